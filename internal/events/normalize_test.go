package events

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/unibox/internal/store"
)

func singleEvent(t *testing.T, platform store.Platform, body string) Event {
	t.Helper()
	d, err := Parse(platform, []byte(body))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(d.Entries) != 1 || len(d.Entries[0].Events) != 1 {
		t.Fatalf("expected exactly one event, got %+v", d)
	}
	return d.Entries[0].Events[0]
}

func TestParseFeedCommentAdd(t *testing.T) {
	body := `{
		"object": "page",
		"entry": [{
			"id": "PAGE1",
			"time": 1767255000,
			"changes": [{
				"field": "feed",
				"value": {
					"item": "comment",
					"verb": "add",
					"comment_id": "C1",
					"post_id": "PAGE1_POST9",
					"parent_id": "C0",
					"message": "love this",
					"created_time": 1767255000,
					"from": {"id": "900100", "name": "Alice"}
				}
			}]
		}]
	}`
	ev, ok := singleEvent(t, store.PlatformFacebook, body).(CommentEvent)
	if !ok {
		t.Fatalf("expected CommentEvent")
	}
	if ev.ExternalAccountID != "PAGE1" || ev.CommentID != "C1" || ev.PostID != "PAGE1_POST9" {
		t.Errorf("ids wrong: %+v", ev)
	}
	if ev.ParentCommentID != "C0" {
		t.Errorf("parent = %q, want C0", ev.ParentCommentID)
	}
	if ev.AuthorID != "900100" || ev.AuthorName != "Alice" || ev.Text != "love this" {
		t.Errorf("author/text wrong: %+v", ev)
	}
	want := time.Unix(1767255000, 0).UTC()
	if !ev.OccurredAt.Equal(want) {
		t.Errorf("occurred at %v, want %v", ev.OccurredAt, want)
	}
}

func TestParseFeedRemoveVerb(t *testing.T) {
	body := `{
		"object": "page",
		"entry": [{
			"id": "PAGE1",
			"changes": [{
				"field": "feed",
				"value": {"item": "comment", "verb": "remove", "comment_id": "C1", "created_time": 1767255000}
			}]
		}]
	}`
	ev, ok := singleEvent(t, store.PlatformFacebook, body).(RemovalEvent)
	if !ok {
		t.Fatalf("expected RemovalEvent")
	}
	if ev.CommentID != "C1" || ev.ExternalAccountID != "PAGE1" {
		t.Errorf("removal fields wrong: %+v", ev)
	}
}

func TestSelfAuthoredCommentDropped(t *testing.T) {
	body := `{
		"object": "page",
		"entry": [{
			"id": "PAGE1",
			"changes": [{
				"field": "feed",
				"value": {"item": "comment", "verb": "add", "comment_id": "C1", "from": {"id": "PAGE1", "name": "The Page"}}
			}]
		}]
	}`
	if _, ok := singleEvent(t, store.PlatformFacebook, body).(UnrecognizedEvent); !ok {
		t.Fatalf("page commenting on itself must not become a CommentEvent")
	}
}

func TestNonCommentFeedItemUnrecognized(t *testing.T) {
	body := `{
		"object": "page",
		"entry": [{
			"id": "PAGE1",
			"changes": [{"field": "feed", "value": {"item": "reaction", "verb": "add"}}]
		}]
	}`
	if _, ok := singleEvent(t, store.PlatformFacebook, body).(UnrecognizedEvent); !ok {
		t.Fatalf("reaction items are out of scope")
	}
}

func TestUnknownChangeFieldUnrecognized(t *testing.T) {
	body := `{
		"object": "page",
		"entry": [{"id": "PAGE1", "changes": [{"field": "mention", "value": {}}]}]
	}`
	ev, ok := singleEvent(t, store.PlatformFacebook, body).(UnrecognizedEvent)
	if !ok {
		t.Fatalf("expected UnrecognizedEvent")
	}
	if ev.Field != "mention" {
		t.Errorf("field = %q", ev.Field)
	}
}

func TestParseInstagramCommentShape(t *testing.T) {
	body := `{
		"object": "instagram",
		"entry": [{
			"id": "IG1",
			"changes": [{
				"field": "comments",
				"value": {
					"id": "IGC1",
					"text": "nice shot",
					"media": {"id": "MEDIA9"},
					"from": {"id": "700200", "username": "bob_ig"}
				}
			}]
		}]
	}`
	ev, ok := singleEvent(t, store.PlatformInstagram, body).(CommentEvent)
	if !ok {
		t.Fatalf("expected CommentEvent")
	}
	if ev.CommentID != "IGC1" {
		t.Errorf("comment id = %q, want fallback to value.id", ev.CommentID)
	}
	if ev.PostID != "MEDIA9" {
		t.Errorf("post id = %q, want media id", ev.PostID)
	}
	if ev.AuthorName != "bob_ig" {
		t.Errorf("author name = %q, want username", ev.AuthorName)
	}
	if ev.Text != "nice shot" {
		t.Errorf("text = %q", ev.Text)
	}
}

func TestParseMessaging(t *testing.T) {
	body := `{
		"object": "page",
		"entry": [{
			"id": "PAGE1",
			"messaging": [{
				"sender": {"id": "900100"},
				"recipient": {"id": "PAGE1"},
				"timestamp": 1767255000123,
				"message": {
					"mid": "m.1",
					"text": "do you ship overseas?",
					"attachments": [{"type": "image", "payload": {"url": "https://cdn.example/x.jpg"}}]
				}
			}]
		}]
	}`
	ev, ok := singleEvent(t, store.PlatformFacebook, body).(MessageEvent)
	if !ok {
		t.Fatalf("expected MessageEvent")
	}
	if ev.SenderID != "900100" || ev.RecipientID != "PAGE1" || ev.MessageID != "m.1" {
		t.Errorf("ids wrong: %+v", ev)
	}
	if ev.AttachmentURL != "https://cdn.example/x.jpg" || ev.AttachmentType != "image" {
		t.Errorf("attachment wrong: %+v", ev)
	}
	want := time.UnixMilli(1767255000123).UTC()
	if !ev.OccurredAt.Equal(want) {
		t.Errorf("occurred at %v, want %v", ev.OccurredAt, want)
	}
}

func TestEchoMessageSuppressed(t *testing.T) {
	body := `{
		"object": "page",
		"entry": [{
			"id": "PAGE1",
			"messaging": [{
				"sender": {"id": "PAGE1"},
				"recipient": {"id": "900100"},
				"message": {"mid": "m.echo", "text": "our reply", "is_echo": true}
			}]
		}]
	}`
	d, err := Parse(store.PlatformFacebook, []byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if n := len(d.Entries[0].Events); n != 0 {
		t.Fatalf("echo produced %d events, want 0", n)
	}
}

func TestSelfSenderSuppressed(t *testing.T) {
	body := `{
		"object": "page",
		"entry": [{
			"id": "PAGE1",
			"messaging": [{
				"sender": {"id": "PAGE1"},
				"recipient": {"id": "900100"},
				"message": {"mid": "m.self", "text": "page talking"}
			}]
		}]
	}`
	d, err := Parse(store.PlatformFacebook, []byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if n := len(d.Entries[0].Events); n != 0 {
		t.Fatalf("self-sent message produced %d events, want 0", n)
	}
}

func TestMessagingWithoutMessageUnrecognized(t *testing.T) {
	// Delivery receipts and read events share the messaging envelope.
	body := `{
		"object": "page",
		"entry": [{
			"id": "PAGE1",
			"messaging": [{"sender": {"id": "900100"}, "recipient": {"id": "PAGE1"}}]
		}]
	}`
	if _, ok := singleEvent(t, store.PlatformFacebook, body).(UnrecognizedEvent); !ok {
		t.Fatalf("expected UnrecognizedEvent for messaging without message")
	}
}

func TestZeroTimestampDefaultsToNow(t *testing.T) {
	body := `{
		"object": "page",
		"entry": [{
			"id": "PAGE1",
			"changes": [{
				"field": "feed",
				"value": {"item": "comment", "verb": "add", "comment_id": "C1", "from": {"id": "900100"}}
			}]
		}]
	}`
	before := time.Now().UTC().Add(-time.Second)
	ev := singleEvent(t, store.PlatformFacebook, body).(CommentEvent)
	if ev.OccurredAt.Before(before) {
		t.Errorf("occurred at %v, want approximately now", ev.OccurredAt)
	}
}

func TestMalformedBodyErrors(t *testing.T) {
	if _, err := Parse(store.PlatformFacebook, []byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestMultiEntryDeliveryPreservesOrder(t *testing.T) {
	body := `{
		"object": "page",
		"entry": [
			{"id": "PAGE1", "changes": [{"field": "feed", "value": {"item": "comment", "verb": "add", "comment_id": "C1", "from": {"id": "1"}}}]},
			{"id": "PAGE2", "changes": [{"field": "feed", "value": {"item": "comment", "verb": "add", "comment_id": "C2", "from": {"id": "2"}}}]}
		]
	}`
	d, err := Parse(store.PlatformFacebook, []byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(d.Entries))
	}
	if d.Entries[0].AccountID != "PAGE1" || d.Entries[1].AccountID != "PAGE2" {
		t.Errorf("entry order not preserved: %+v", d.Entries)
	}
}
