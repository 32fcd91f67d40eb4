package pg

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/unibox/internal/store"
)

// PGMessageStore implements store.MessageStore backed by Postgres.
// The partial unique index on (channel_id, external_id) is what makes
// at-least-once webhook redelivery safe: a second insert for the same
// external id fails with unique_violation and surfaces as ErrDuplicate.
type PGMessageStore struct {
	db *sql.DB
}

func NewPGMessageStore(db *sql.DB) *PGMessageStore {
	return &PGMessageStore{db: db}
}

func (s *PGMessageStore) Insert(ctx context.Context, m *store.Message) error {
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
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.ConversationID, m.ChannelID, externalID, m.Direction, m.SenderRole,
		m.Content, m.AttachmentURL, m.AttachmentType, m.SentAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *PGMessageStore) ExistsByExternalID(ctx context.Context, channelID uuid.UUID, externalID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM messages WHERE channel_id = $1 AND external_id = $2)`,
		channelID, externalID).Scan(&exists)
	return exists, err
}

func (s *PGMessageStore) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, channel_id, external_id, direction, sender_role,
		        content, attachment_url, attachment_type, sent_at
		 FROM messages WHERE conversation_id = $1 ORDER BY sent_at`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		var m store.Message
		var externalID, attURL, attType sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.ChannelID, &externalID,
			&m.Direction, &m.SenderRole, &m.Content, &attURL, &attType, &m.SentAt); err != nil {
			return nil, err
		}
		m.ExternalID = externalID.String
		m.AttachmentURL = attURL.String
		m.AttachmentType = attType.String
		out = append(out, m)
	}
	return out, rows.Err()
}
