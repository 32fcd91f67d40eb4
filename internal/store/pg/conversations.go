package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nextlevelbuilder/unibox/internal/store"
)

// PGConversationStore implements store.ConversationStore backed by Postgres.
// The (channel_id, platform, external_user_id, kind) unique index backs up
// the router's keyed locking against double-creates across processes.
type PGConversationStore struct {
	db *sql.DB
}

func NewPGConversationStore(db *sql.DB) *PGConversationStore {
	return &PGConversationStore{db: db}
}

const conversationSelectCols = `id, channel_id, binding_id, platform, external_user_id, display_name, avatar_url, kind, status, mode, unread_count, last_activity_at, meta, tags, created_at, updated_at`

func (s *PGConversationStore) FindByKey(ctx context.Context, channelID uuid.UUID, platform store.Platform, externalUserID string, kind store.ConversationKind) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationSelectCols+` FROM conversations
		 WHERE channel_id = $1 AND platform = $2 AND external_user_id = $3 AND kind = $4`,
		channelID, platform, externalUserID, kind)
	return scanConversation(row)
}

func (s *PGConversationStore) Get(ctx context.Context, id uuid.UUID) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationSelectCols+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (s *PGConversationStore) Create(ctx context.Context, c *store.Conversation) error {
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
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations
		 (id, channel_id, binding_id, platform, external_user_id, display_name, avatar_url,
		  kind, status, mode, unread_count, last_activity_at, meta, tags, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		c.ID, c.ChannelID, c.BindingID, c.Platform, c.ExternalUserID, c.DisplayName, c.AvatarURL,
		c.Kind, c.Status, c.Mode, c.UnreadCount, c.LastActivityAt, metaJSON, pq.Array(c.Tags),
		c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *PGConversationStore) Update(ctx context.Context, c *store.Conversation) error {
	c.UpdatedAt = time.Now().UTC()
	metaJSON, err := json.Marshal(c.Meta)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET
		 display_name = $2, avatar_url = $3, status = $4, mode = $5, unread_count = $6,
		 last_activity_at = $7, meta = $8, tags = $9, updated_at = $10
		 WHERE id = $1`,
		c.ID, c.DisplayName, c.AvatarURL, c.Status, c.Mode, c.UnreadCount,
		c.LastActivityAt, metaJSON, pq.Array(c.Tags), c.UpdatedAt)
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
	var avatar sql.NullString
	var metaJSON []byte
	err := row.Scan(&c.ID, &c.ChannelID, &c.BindingID, &c.Platform, &c.ExternalUserID,
		&c.DisplayName, &avatar, &c.Kind, &c.Status, &c.Mode, &c.UnreadCount,
		&c.LastActivityAt, &metaJSON, pq.Array(&c.Tags), &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.AvatarURL = avatar.String
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &c.Meta); err != nil {
			return nil, err
		}
	}
	return &c, nil
}
