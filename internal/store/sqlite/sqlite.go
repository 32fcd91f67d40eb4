// Package sqlite provides the standalone-mode storage backend. It keeps the
// same interfaces as the Postgres stores but auto-creates its schema on open,
// so a single-tenant deployment needs no migration tooling.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/unibox/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS bindings (
	id TEXT PRIMARY KEY,
	platform TEXT NOT NULL,
	external_account_id TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	access_token TEXT NOT NULL DEFAULT '',
	active INTEGER NOT NULL DEFAULT 1,
	auto_reply_enabled INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bindings_account ON bindings(platform, external_account_id);

CREATE TABLE IF NOT EXISTS channel_settings (
	channel_id TEXT PRIMARY KEY,
	automation_enabled INTEGER NOT NULL DEFAULT 1,
	notify_routing_key TEXT NOT NULL DEFAULT '',
	dashboard_base_url TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	binding_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	external_user_id TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	mode TEXT NOT NULL,
	unread_count INTEGER NOT NULL DEFAULT 0,
	last_activity_at TIMESTAMP NOT NULL,
	meta TEXT NOT NULL DEFAULT '{}',
	tags TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (channel_id, platform, external_user_id, kind)
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	external_id TEXT,
	direction TEXT NOT NULL,
	sender_role TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	attachment_url TEXT NOT NULL DEFAULT '',
	attachment_type TEXT NOT NULL DEFAULT '',
	sent_at TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_external
	ON messages(channel_id, external_id) WHERE external_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS comments (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	external_id TEXT NOT NULL,
	parent_external_id TEXT,
	author_name TEXT NOT NULL DEFAULT '',
	author_avatar TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	commented_at TIMESTAMP NOT NULL,
	UNIQUE (channel_id, external_id)
);
`

// Open opens (and if needed initializes) the standalone SQLite database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite is single-writer; serialize through one connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return db, nil
}

// NewSQLiteStores creates all stores backed by a standalone SQLite file.
func NewSQLiteStores(cfg store.StoreConfig) (*store.Stores, error) {
	db, err := Open(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	return &store.Stores{
		Bindings:      &bindingStore{db: db},
		Channels:      &channelStore{db: db},
		Conversations: &conversationStore{db: db},
		Messages:      &messageStore{db: db},
		Comments:      &commentStore{db: db},
	}, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type bindingStore struct{ db *sql.DB }

const bindingCols = `id, platform, external_account_id, channel_id, access_token, active, auto_reply_enabled, created_at, updated_at`

func (s *bindingStore) FindActive(ctx context.Context, platform store.Platform, externalAccountID string) ([]store.Binding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bindingCols+` FROM bindings
		 WHERE platform = ? AND external_account_id = ? AND active = 1 ORDER BY created_at`,
		platform, externalAccountID)
	if err != nil {
		return nil, err
	}
	return scanBindings(rows)
}

func (s *bindingStore) FindAny(ctx context.Context, platform store.Platform, externalAccountID string) ([]store.Binding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bindingCols+` FROM bindings
		 WHERE platform = ? AND external_account_id = ? ORDER BY created_at`,
		platform, externalAccountID)
	if err != nil {
		return nil, err
	}
	return scanBindings(rows)
}

func (s *bindingStore) ListActive(ctx context.Context) ([]store.Binding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bindingCols+` FROM bindings WHERE active = 1 ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	return scanBindings(rows)
}

func scanBindings(rows *sql.Rows) ([]store.Binding, error) {
	defer rows.Close()
	var out []store.Binding
	for rows.Next() {
		var b store.Binding
		if err := rows.Scan(&b.ID, &b.Platform, &b.ExternalAccountID, &b.ChannelID,
			&b.AccessToken, &b.Active, &b.AutoReplyEnabled, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type channelStore struct{ db *sql.DB }

func (s *channelStore) Settings(ctx context.Context, channelID uuid.UUID) (*store.ChannelSettings, error) {
	var cs store.ChannelSettings
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_id, automation_enabled, notify_routing_key, dashboard_base_url
		 FROM channel_settings WHERE channel_id = ?`,
		channelID).Scan(&cs.ChannelID, &cs.AutomationEnabled, &cs.NotifyRoutingKey, &cs.DashboardBaseURL)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

type conversationStore struct{ db *sql.DB }

const conversationCols = `id, channel_id, binding_id, platform, external_user_id, display_name, avatar_url, kind, status, mode, unread_count, last_activity_at, meta, tags, created_at, updated_at`

func (s *conversationStore) FindByKey(ctx context.Context, channelID uuid.UUID, platform store.Platform, externalUserID string, kind store.ConversationKind) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationCols+` FROM conversations
		 WHERE channel_id = ? AND platform = ? AND external_user_id = ? AND kind = ?`,
		channelID, platform, externalUserID, kind)
	return scanConversation(row)
}

func (s *conversationStore) Get(ctx context.Context, id uuid.UUID) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

func (s *conversationStore) Create(ctx context.Context, c *store.Conversation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.Must(uuid.NewV7())
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	metaJSON, err := json.Marshal(c.Meta)
	if err != nil {
		return err
	}
	tagsJSON, err := json.Marshal(c.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations
		 (id, channel_id, binding_id, platform, external_user_id, display_name, avatar_url,
		  kind, status, mode, unread_count, last_activity_at, meta, tags, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ChannelID, c.BindingID, c.Platform, c.ExternalUserID, c.DisplayName, c.AvatarURL,
		c.Kind, c.Status, c.Mode, c.UnreadCount, c.LastActivityAt, string(metaJSON), string(tagsJSON),
		c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *conversationStore) Update(ctx context.Context, c *store.Conversation) error {
	c.UpdatedAt = time.Now().UTC()
	metaJSON, err := json.Marshal(c.Meta)
	if err != nil {
		return err
	}
	tagsJSON, err := json.Marshal(c.Tags)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET
		 display_name = ?, avatar_url = ?, status = ?, mode = ?, unread_count = ?,
		 last_activity_at = ?, meta = ?, tags = ?, updated_at = ?
		 WHERE id = ?`,
		c.DisplayName, c.AvatarURL, c.Status, c.Mode, c.UnreadCount,
		c.LastActivityAt, string(metaJSON), string(tagsJSON), c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanConversation(row *sql.Row) (*store.Conversation, error) {
	var c store.Conversation
	var metaJSON, tagsJSON string
	err := row.Scan(&c.ID, &c.ChannelID, &c.BindingID, &c.Platform, &c.ExternalUserID,
		&c.DisplayName, &c.AvatarURL, &c.Kind, &c.Status, &c.Mode, &c.UnreadCount,
		&c.LastActivityAt, &metaJSON, &tagsJSON, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &c.Meta); err != nil {
			return nil, err
		}
	}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &c.Tags); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

type messageStore struct{ db *sql.DB }

func (s *messageStore) Insert(ctx context.Context, m *store.Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.Must(uuid.NewV7())
	}
	var externalID any
	if m.ExternalID != "" {
		externalID = m.ExternalID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages
		 (id, conversation_id, channel_id, external_id, direction, sender_role,
		  content, attachment_url, attachment_type, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.ChannelID, externalID, m.Direction, m.SenderRole,
		m.Content, m.AttachmentURL, m.AttachmentType, m.SentAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *messageStore) ExistsByExternalID(ctx context.Context, channelID uuid.UUID, externalID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM messages WHERE channel_id = ? AND external_id = ?`,
		channelID, externalID).Scan(&n)
	return n > 0, err
}

func (s *messageStore) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, channel_id, external_id, direction, sender_role,
		        content, attachment_url, attachment_type, sent_at
		 FROM messages WHERE conversation_id = ? ORDER BY sent_at`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		var m store.Message
		var externalID sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.ChannelID, &externalID,
			&m.Direction, &m.SenderRole, &m.Content, &m.AttachmentURL, &m.AttachmentType, &m.SentAt); err != nil {
			return nil, err
		}
		m.ExternalID = externalID.String
		out = append(out, m)
	}
	return out, rows.Err()
}

type commentStore struct{ db *sql.DB }

func (s *commentStore) Insert(ctx context.Context, c *store.Comment) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.Must(uuid.NewV7())
	}
	var parent any
	if c.ParentExternalID != "" {
		parent = c.ParentExternalID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO comments
		 (id, conversation_id, channel_id, external_id, parent_external_id,
		  author_name, author_avatar, content, status, commented_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ConversationID, c.ChannelID, c.ExternalID, parent,
		c.AuthorName, c.AuthorAvatar, c.Content, c.Status, c.CommentedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *commentStore) ExistsByExternalID(ctx context.Context, channelID uuid.UUID, externalID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM comments WHERE channel_id = ? AND external_id = ?`,
		channelID, externalID).Scan(&n)
	return n > 0, err
}

func (s *commentStore) Hide(ctx context.Context, channelID uuid.UUID, externalID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE comments SET status = ? WHERE channel_id = ? AND external_id = ?`,
		store.CommentHidden, channelID, externalID)
	return err
}

func (s *commentStore) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]store.Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, channel_id, external_id, parent_external_id,
		        author_name, author_avatar, content, status, commented_at
		 FROM comments WHERE conversation_id = ? ORDER BY commented_at`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Comment
	for rows.Next() {
		var c store.Comment
		var parent sql.NullString
		if err := rows.Scan(&c.ID, &c.ConversationID, &c.ChannelID, &c.ExternalID, &parent,
			&c.AuthorName, &c.AuthorAvatar, &c.Content, &c.Status, &c.CommentedAt); err != nil {
			return nil, err
		}
		c.ParentExternalID = parent.String
		out = append(out, c)
	}
	return out, rows.Err()
}
