// Package notify dispatches best-effort admin notifications for qualifying
// inbound events. Dispatch is explicitly fire-and-forget: a bounded worker
// pool drains a queue so publish latency and broker failures can be observed
// in logs without ever touching the webhook request path.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a notification.
type Kind string

const (
	KindNewMessage Kind = "inbox.message"
	KindNewComment Kind = "inbox.comment"
)

// Notification is the payload delivered to channel administrators.
type Notification struct {
	ChannelID  uuid.UUID `json:"channel_id"`
	Kind       Kind      `json:"kind"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Link       string    `json:"link,omitempty"`
	RoutingKey string    `json:"-"` // broker routing, not part of the payload
}

// Meta identifies one published event.
type Meta struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Envelope wraps a notification for the wire.
type Envelope struct {
	Meta Meta         `json:"meta"`
	Data Notification `json:"data"`
}

// Publisher delivers envelopes to the notification transport.
type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
	Close() error
}

// Notifier is the interface the inbox router sees.
type Notifier interface {
	// Notify enqueues a notification. Never blocks and never returns
	// delivery status — failures are logged by the dispatcher.
	Notify(n Notification)
}
