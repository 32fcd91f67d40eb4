package pg

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/unibox/internal/store"
)

// PGCommentStore implements store.CommentStore backed by Postgres.
type PGCommentStore struct {
	db *sql.DB
}

func NewPGCommentStore(db *sql.DB) *PGCommentStore {
	return &PGCommentStore{db: db}
}

func (s *PGCommentStore) Insert(ctx context.Context, c *store.Comment) error {
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
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.ConversationID, c.ChannelID, c.ExternalID, parent,
		c.AuthorName, c.AuthorAvatar, c.Content, c.Status, c.CommentedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *PGCommentStore) ExistsByExternalID(ctx context.Context, channelID uuid.UUID, externalID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM comments WHERE channel_id = $1 AND external_id = $2)`,
		channelID, externalID).Scan(&exists)
	return exists, err
}

// Hide is an idempotent status transition; hiding a comment that is already
// hidden or was never stored affects zero rows and is not an error.
func (s *PGCommentStore) Hide(ctx context.Context, channelID uuid.UUID, externalID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE comments SET status = $3 WHERE channel_id = $1 AND external_id = $2`,
		channelID, externalID, store.CommentHidden)
	return err
}

func (s *PGCommentStore) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]store.Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, channel_id, external_id, parent_external_id,
		        author_name, author_avatar, content, status, commented_at
		 FROM comments WHERE conversation_id = $1 ORDER BY commented_at`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Comment
	for rows.Next() {
		var c store.Comment
		var parent, avatar sql.NullString
		if err := rows.Scan(&c.ID, &c.ConversationID, &c.ChannelID, &c.ExternalID, &parent,
			&c.AuthorName, &avatar, &c.Content, &c.Status, &c.CommentedAt); err != nil {
			return nil, err
		}
		c.ParentExternalID = parent.String
		c.AuthorAvatar = avatar.String
		out = append(out, c)
	}
	return out, rows.Err()
}
