// Package events normalizes heterogeneous platform webhook payloads into a
// small internal event union consumed by the inbox router.
package events

import (
	"time"

	"github.com/nextlevelbuilder/unibox/internal/store"
)

// Event is the normalized event union. Exactly one of CommentEvent,
// MessageEvent, RemovalEvent or UnrecognizedEvent.
type Event interface {
	isEvent()
}

// CommentEvent is a new comment on a post or media object.
type CommentEvent struct {
	Platform          store.Platform
	ExternalAccountID string
	PostID            string
	CommentID         string
	ParentCommentID   string
	AuthorID          string
	AuthorName        string
	Text              string
	OccurredAt        time.Time
}

func (CommentEvent) isEvent() {}

// RemovalEvent is a comment removal. It short-circuits into the removal
// path: no enrichment, no conversation creation, only an idempotent
// status flip to hidden.
type RemovalEvent struct {
	Platform          store.Platform
	ExternalAccountID string
	CommentID         string
	OccurredAt        time.Time
}

func (RemovalEvent) isEvent() {}

// MessageEvent is an inbound direct message.
type MessageEvent struct {
	Platform          store.Platform
	ExternalAccountID string
	SenderID          string
	RecipientID       string
	MessageID         string
	Text              string
	AttachmentURL     string
	AttachmentType    string
	OccurredAt        time.Time
}

func (MessageEvent) isEvent() {}

// UnrecognizedEvent is any payload shape the normalizer does not know.
// Dropped at debug level; counts as success to the platform.
type UnrecognizedEvent struct {
	Platform store.Platform
	Field    string
}

func (UnrecognizedEvent) isEvent() {}

// Delivery is one decoded POST body: a list of per-account entries, each
// carrying zero or more normalized events.
type Delivery struct {
	Object  string
	Entries []Entry
}

// Entry groups the events of one external account within a delivery.
type Entry struct {
	AccountID string
	Events    []Event
}
