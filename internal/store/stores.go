package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when an insert hits a uniqueness constraint,
	// e.g. a redelivered message with an already-seen external id.
	ErrDuplicate = errors.New("store: duplicate")
)

// BindingStore is the read-only view of the binding table this subsystem
// uses. Bindings are created elsewhere (the authorization flow); the webhook
// path never writes them.
type BindingStore interface {
	// FindActive returns all active bindings claiming the account.
	FindActive(ctx context.Context, platform Platform, externalAccountID string) ([]Binding, error)
	// FindAny returns bindings regardless of active flag. Used as a
	// last-resort fallback so a mis-flagged binding still receives data.
	FindAny(ctx context.Context, platform Platform, externalAccountID string) ([]Binding, error)
	// ListActive returns every active binding, for subscription keepalive.
	ListActive(ctx context.Context) ([]Binding, error)
}

// ChannelStore reads per-channel settings (automation veto, notify routing).
type ChannelStore interface {
	// Settings returns the channel's settings, or ErrNotFound.
	Settings(ctx context.Context, channelID uuid.UUID) (*ChannelSettings, error)
}

// ConversationStore persists conversation aggregates.
type ConversationStore interface {
	// FindByKey looks up a conversation by its uniqueness key.
	FindByKey(ctx context.Context, channelID uuid.UUID, platform Platform, externalUserID string, kind ConversationKind) (*Conversation, error)
	// Create inserts a new conversation. ErrDuplicate if the key already
	// exists (lost a create race to a sibling delivery).
	Create(ctx context.Context, c *Conversation) error
	// Update persists mutable fields (status, mode, unread count, name,
	// avatar, meta, last activity).
	Update(ctx context.Context, c *Conversation) error
	// Get returns a conversation by id.
	Get(ctx context.Context, id uuid.UUID) (*Conversation, error)
}

// MessageStore persists messages. Insert enforces the per-channel external-id
// uniqueness that makes at-least-once webhook delivery safe.
type MessageStore interface {
	// Insert creates the message, or returns ErrDuplicate when a message
	// with the same (channel, external id) already exists.
	Insert(ctx context.Context, m *Message) error
	// ExistsByExternalID reports whether the channel already holds a
	// message with this external id.
	ExistsByExternalID(ctx context.Context, channelID uuid.UUID, externalID string) (bool, error)
	// ListByConversation returns messages ordered by sent time.
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]Message, error)
}

// CommentStore persists comments, parallel to MessageStore.
type CommentStore interface {
	Insert(ctx context.Context, c *Comment) error
	ExistsByExternalID(ctx context.Context, channelID uuid.UUID, externalID string) (bool, error)
	// Hide marks the comment hidden. Idempotent; hiding an already-hidden
	// or unknown comment is not an error.
	Hide(ctx context.Context, channelID uuid.UUID, externalID string) error
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]Comment, error)
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Bindings      BindingStore
	Channels      ChannelStore
	Conversations ConversationStore
	Messages      MessageStore
	Comments      CommentStore
}

// StoreConfig selects and parameterizes the storage backend.
type StoreConfig struct {
	// PostgresDSN enables the Postgres backend when non-empty.
	PostgresDSN string
	// SQLitePath is the standalone-mode database file.
	SQLitePath string
}
