package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/unibox/internal/store"
)

// Raw payload shapes for Meta-style webhook deliveries. Unknown fields are
// ignored; unknown shapes normalize to UnrecognizedEvent rather than erroring.

type rawDelivery struct {
	Object string     `json:"object"`
	Entry  []rawEntry `json:"entry"`
}

type rawEntry struct {
	ID        string         `json:"id"`
	Time      int64          `json:"time"`
	Changes   []rawChange    `json:"changes,omitempty"`
	Messaging []rawMessaging `json:"messaging,omitempty"`
}

type rawChange struct {
	Field string          `json:"field"`
	Value rawChangeValue  `json:"value"`
}

type rawChangeValue struct {
	Item        string   `json:"item,omitempty"`
	Verb        string   `json:"verb,omitempty"`
	CommentID   string   `json:"comment_id,omitempty"`
	PostID      string   `json:"post_id,omitempty"`
	ParentID    string   `json:"parent_id,omitempty"`
	Message     string   `json:"message,omitempty"`
	CreatedTime int64    `json:"created_time,omitempty"`
	From        *rawFrom `json:"from,omitempty"`

	// Instagram comment shape ("comments" field).
	ID    string    `json:"id,omitempty"`
	Text  string    `json:"text,omitempty"`
	Media *rawMedia `json:"media,omitempty"`
}

type rawFrom struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
}

type rawMedia struct {
	ID string `json:"id"`
}

type rawMessaging struct {
	Sender    rawFrom     `json:"sender"`
	Recipient rawFrom     `json:"recipient"`
	Timestamp int64       `json:"timestamp"`
	Message   *rawMessage `json:"message,omitempty"`
}

type rawMessage struct {
	MID         string          `json:"mid"`
	Text        string          `json:"text,omitempty"`
	IsEcho      bool            `json:"is_echo,omitempty"`
	Attachments []rawAttachment `json:"attachments,omitempty"`
}

type rawAttachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL string `json:"url"`
	} `json:"payload"`
}

// Parse decodes and normalizes one webhook POST body. A decode failure is
// the only error case; per-event oddities degrade to UnrecognizedEvent.
// Suppression happens here: echo confirmations of the tenant's own sends
// and self-authored comments never reach the router, so the system cannot
// reply to itself.
func Parse(platform store.Platform, body []byte) (*Delivery, error) {
	var raw rawDelivery
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode webhook body: %w", err)
	}

	d := &Delivery{Object: raw.Object}
	for _, e := range raw.Entry {
		entry := Entry{AccountID: e.ID}
		for _, ch := range e.Changes {
			entry.Events = append(entry.Events, normalizeChange(platform, e.ID, ch))
		}
		for _, m := range e.Messaging {
			if ev, ok := normalizeMessaging(platform, e.ID, m); ok {
				entry.Events = append(entry.Events, ev)
			}
		}
		d.Entries = append(d.Entries, entry)
	}
	return d, nil
}

func normalizeChange(platform store.Platform, accountID string, ch rawChange) Event {
	v := ch.Value
	switch ch.Field {
	case "feed":
		if v.Item != "comment" {
			slog.Debug("events.unrecognized", "platform", platform, "field", ch.Field, "item", v.Item)
			return UnrecognizedEvent{Platform: platform, Field: ch.Field}
		}
		if v.Verb == "remove" {
			return RemovalEvent{
				Platform:          platform,
				ExternalAccountID: accountID,
				CommentID:         v.CommentID,
				OccurredAt:        unixTime(v.CreatedTime),
			}
		}
		authorID, authorName := "", ""
		if v.From != nil {
			authorID, authorName = v.From.ID, v.From.Name
		}
		// The page commenting on its own posts (scheduled posts, admin
		// replies via the platform UI) must not open a conversation.
		if authorID == accountID {
			slog.Debug("events.self_comment_dropped", "platform", platform, "account", accountID)
			return UnrecognizedEvent{Platform: platform, Field: ch.Field}
		}
		return CommentEvent{
			Platform:          platform,
			ExternalAccountID: accountID,
			PostID:            v.PostID,
			CommentID:         v.CommentID,
			ParentCommentID:   v.ParentID,
			AuthorID:          authorID,
			AuthorName:        authorName,
			Text:              v.Message,
			OccurredAt:        unixTime(v.CreatedTime),
		}

	case "comments":
		// Instagram media comments carry a flatter shape.
		authorID, authorName := "", ""
		if v.From != nil {
			authorID = v.From.ID
			authorName = v.From.Username
			if authorName == "" {
				authorName = v.From.Name
			}
		}
		if authorID == accountID {
			slog.Debug("events.self_comment_dropped", "platform", platform, "account", accountID)
			return UnrecognizedEvent{Platform: platform, Field: ch.Field}
		}
		postID := v.PostID
		if postID == "" && v.Media != nil {
			postID = v.Media.ID
		}
		commentID := v.CommentID
		if commentID == "" {
			commentID = v.ID
		}
		text := v.Text
		if text == "" {
			text = v.Message
		}
		return CommentEvent{
			Platform:          platform,
			ExternalAccountID: accountID,
			PostID:            postID,
			CommentID:         commentID,
			ParentCommentID:   v.ParentID,
			AuthorID:          authorID,
			AuthorName:        authorName,
			Text:              text,
			OccurredAt:        unixTime(v.CreatedTime),
		}

	default:
		slog.Debug("events.unrecognized", "platform", platform, "field", ch.Field)
		return UnrecognizedEvent{Platform: platform, Field: ch.Field}
	}
}

func normalizeMessaging(platform store.Platform, accountID string, m rawMessaging) (Event, bool) {
	if m.Message == nil {
		slog.Debug("events.unrecognized", "platform", platform, "field", "messaging")
		return UnrecognizedEvent{Platform: platform, Field: "messaging"}, true
	}
	// Echo events confirm the tenant's own outbound send; they are not a
	// second inbound message.
	if m.Message.IsEcho {
		slog.Debug("events.echo_dropped", "platform", platform, "account", accountID, "mid", m.Message.MID)
		return nil, false
	}
	// A message whose sender is the account itself is the page talking,
	// not a customer.
	if m.Sender.ID == accountID {
		slog.Debug("events.self_message_dropped", "platform", platform, "account", accountID)
		return nil, false
	}

	ev := MessageEvent{
		Platform:          platform,
		ExternalAccountID: accountID,
		SenderID:          m.Sender.ID,
		RecipientID:       m.Recipient.ID,
		MessageID:         m.Message.MID,
		Text:              m.Message.Text,
		OccurredAt:        unixMillis(m.Timestamp),
	}
	if len(m.Message.Attachments) > 0 {
		ev.AttachmentURL = m.Message.Attachments[0].Payload.URL
		ev.AttachmentType = m.Message.Attachments[0].Type
	}
	return ev, true
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}

func unixMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
