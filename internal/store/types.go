package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Platform identifies the external social platform an account lives on.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
)

// ConversationKind distinguishes DM threads from comment threads.
// A user's DMs and the same user's comments on the same channel are
// separate conversations.
type ConversationKind string

const (
	KindMessage ConversationKind = "message"
	KindComment ConversationKind = "comment"
)

// ConversationStatus is the inbox workflow state of a conversation.
type ConversationStatus string

const (
	StatusNew      ConversationStatus = "new"
	StatusOpen     ConversationStatus = "open"
	StatusDone     ConversationStatus = "done"
	StatusArchived ConversationStatus = "archived"
)

// ConversationMode controls whether inbound messages are answered
// automatically or queued for a human agent.
type ConversationMode string

const (
	ModeBot   ConversationMode = "bot"
	ModeAgent ConversationMode = "agent"
)

// Direction of a message relative to the channel.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// SenderRole identifies who authored a message.
type SenderRole string

const (
	RoleCustomer SenderRole = "customer"
	RoleAgent    SenderRole = "agent"
	RoleBot      SenderRole = "bot"
)

// CommentStatus is the visibility state of a comment.
type CommentStatus string

const (
	CommentNew    CommentStatus = "new"
	CommentHidden CommentStatus = "hidden"
)

// Binding is a channel's claim on an external platform account.
// The same (platform, external_account_id) pair may be claimed by multiple
// channels; the resolver treats that as fan-out, never as an error.
// Bindings are deactivated on disconnect, never hard-deleted, because
// historical conversations keep referencing them.
type Binding struct {
	ID                uuid.UUID `json:"id"`
	Platform          Platform  `json:"platform"`
	ExternalAccountID string    `json:"external_account_id"`
	ChannelID         uuid.UUID `json:"channel_id"`
	AccessToken       string    `json:"-"` // platform API token, never serialized
	Active            bool      `json:"active"`
	AutoReplyEnabled  bool      `json:"auto_reply_enabled"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ChannelSettings carries the per-channel flags this subsystem reads:
// the channel-level automation veto and notification routing.
type ChannelSettings struct {
	ChannelID         uuid.UUID `json:"channel_id"`
	AutomationEnabled bool      `json:"automation_enabled"`
	NotifyRoutingKey  string    `json:"notify_routing_key,omitempty"`
	DashboardBaseURL  string    `json:"dashboard_base_url,omitempty"`
}

// ConversationMeta is the typed metadata blob attached to a conversation,
// typically describing the post/media a comment thread hangs off.
// Raw keeps unknown platform fields for forward compatibility.
type ConversationMeta struct {
	PostID    string          `json:"post_id,omitempty"`
	Caption   string          `json:"caption,omitempty"`
	Permalink string          `json:"permalink,omitempty"`
	ImageURLs []string        `json:"image_urls,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// IsZero reports whether no metadata has been stored yet.
func (m ConversationMeta) IsZero() bool {
	return m.PostID == "" && m.Caption == "" && m.Permalink == "" &&
		len(m.ImageURLs) == 0 && len(m.Raw) == 0
}

// Conversation is the per-(channel, external user, kind) thread aggregate.
// Created on first inbound event for its key, mutated on every subsequent
// event, never deleted — only archived.
type Conversation struct {
	ID             uuid.UUID          `json:"id"`
	ChannelID      uuid.UUID          `json:"channel_id"`
	BindingID      uuid.UUID          `json:"binding_id"`
	Platform       Platform           `json:"platform"`
	ExternalUserID string             `json:"external_user_id"`
	DisplayName    string             `json:"display_name"`
	AvatarURL      string             `json:"avatar_url,omitempty"`
	Kind           ConversationKind   `json:"kind"`
	Status         ConversationStatus `json:"status"`
	Mode           ConversationMode   `json:"mode"`
	UnreadCount    int                `json:"unread_count"`
	LastActivityAt time.Time          `json:"last_activity_at"`
	Meta           ConversationMeta   `json:"meta,omitempty"`
	Tags           []string           `json:"tags,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// Message is one unit of inbound or outbound content in a conversation.
// Immutable after creation. ExternalID, when set, is unique per channel —
// a redelivered event with the same id is a no-op.
type Message struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	ChannelID      uuid.UUID  `json:"channel_id"`
	ExternalID     string     `json:"external_id,omitempty"`
	Direction      Direction  `json:"direction"`
	SenderRole     SenderRole `json:"sender_role"`
	Content        string     `json:"content"`
	AttachmentURL  string     `json:"attachment_url,omitempty"`
	AttachmentType string     `json:"attachment_type,omitempty"`
	SentAt         time.Time  `json:"sent_at"`
}

// Comment is the comment-thread counterpart of Message. Removal events flip
// Status to hidden; rows are never deleted so audit history survives.
type Comment struct {
	ID               uuid.UUID     `json:"id"`
	ConversationID   uuid.UUID     `json:"conversation_id"`
	ChannelID        uuid.UUID     `json:"channel_id"`
	ExternalID       string        `json:"external_id"`
	ParentExternalID string        `json:"parent_external_id,omitempty"`
	AuthorName       string        `json:"author_name"`
	AuthorAvatar     string        `json:"author_avatar,omitempty"`
	Content          string        `json:"content"`
	Status           CommentStatus `json:"status"`
	CommentedAt      time.Time     `json:"commented_at"`
}
