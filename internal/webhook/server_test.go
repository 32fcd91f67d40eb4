package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/unibox/internal/config"
	"github.com/nextlevelbuilder/unibox/internal/enrich"
	"github.com/nextlevelbuilder/unibox/internal/events"
	"github.com/nextlevelbuilder/unibox/internal/inbox"
	"github.com/nextlevelbuilder/unibox/internal/store"
	"github.com/nextlevelbuilder/unibox/internal/store/memory"
)

type recordingProcessor struct {
	deliveries []*events.Delivery
}

func (p *recordingProcessor) ProcessDelivery(_ context.Context, d *events.Delivery) {
	p.deliveries = append(p.deliveries, d)
}

func newTestServer(cfg config.WebhookConfig, p Processor) *Server {
	if p == nil {
		p = &recordingProcessor{}
	}
	return NewServer(cfg, p)
}

func TestVerificationHandshake(t *testing.T) {
	s := newTestServer(config.WebhookConfig{VerifyToken: "tok"}, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/facebook?hub.mode=subscribe&hub.verify_token=tok&hub.challenge=abc123", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "abc123" {
		t.Errorf("body = %q, want challenge echoed verbatim", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet,
		"/webhooks/facebook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=abc123", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong token: status = %d, want 403", rec.Code)
	}
}

func TestUnknownPlatformIs404(t *testing.T) {
	s := newTestServer(config.WebhookConfig{VerifyToken: "tok"}, nil)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		req := httptest.NewRequest(method, "/webhooks/telegram", strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s unknown platform: status = %d, want 404", method, rec.Code)
		}
	}
}

func TestDeliverySignatureEnforcement(t *testing.T) {
	proc := &recordingProcessor{}
	s := newTestServer(config.WebhookConfig{AppSecret: "app-secret"}, proc)
	body := `{"object":"page","entry":[]}`

	post := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/facebook", strings.NewReader(body))
		if sig != "" {
			req.Header.Set("X-Hub-Signature-256", sig)
		}
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		return rec
	}

	if rec := post(sign([]byte(body), "app-secret")); rec.Code != http.StatusOK {
		t.Errorf("valid signature: status = %d, want 200", rec.Code)
	}
	if rec := post(sign([]byte(body), "attacker")); rec.Code != http.StatusForbidden {
		t.Errorf("forged signature: status = %d, want 403", rec.Code)
	}
	// Unsigned deliveries pass in degraded-trust mode.
	if rec := post(""); rec.Code != http.StatusOK {
		t.Errorf("missing signature: status = %d, want 200", rec.Code)
	}
	if len(proc.deliveries) != 2 {
		t.Errorf("processed deliveries = %d, want 2 (forged one rejected)", len(proc.deliveries))
	}
}

func TestUnparseableBodyIs400(t *testing.T) {
	proc := &recordingProcessor{}
	s := newTestServer(config.WebhookConfig{}, proc)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/facebook", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(proc.deliveries) != 0 {
		t.Errorf("unparseable body reached the processor")
	}
}

type failingFetcher struct{}

func (failingFetcher) GetObject(context.Context, string, string, string, any) error {
	return errors.New("graph unavailable")
}

// endToEndFixture wires the real router behind the HTTP server with
// in-memory stores, two channels bound to the same page.
func endToEndFixture(t *testing.T) (*Server, *memory.CommentStore, *memory.ConversationStore) {
	t.Helper()

	bindings := memory.NewBindingStore()
	comments := memory.NewCommentStore()
	convs := memory.NewConversationStore()
	stores := &store.Stores{
		Bindings:      bindings,
		Channels:      memory.NewChannelStore(),
		Conversations: convs,
		Messages:      memory.NewMessageStore(),
		Comments:      comments,
	}
	for i := 0; i < 2; i++ {
		bindings.Add(store.Binding{
			Platform:          store.PlatformFacebook,
			ExternalAccountID: "PAGE1",
			ChannelID:         uuid.Must(uuid.NewV7()),
			Active:            true,
		})
	}

	router := inbox.NewRouter(stores, enrich.New(failingFetcher{}), nil, nil)
	return NewServer(config.WebhookConfig{}, router), comments, convs
}

func TestDeliveryEndToEndFanOutAndReplay(t *testing.T) {
	s, comments, convs := endToEndFixture(t)

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
					"message": "is this in stock?",
					"created_time": 1767255000,
					"from": {"id": "900100", "name": "Alice"}
				}
			}]
		}]
	}`

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/facebook", strings.NewReader(body))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec := post()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response body: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("response = %v, want status ok", resp)
	}

	if n := len(comments.All()); n != 2 {
		t.Fatalf("comments = %d, want one per bound channel", n)
	}
	if n := len(convs.All()); n != 2 {
		t.Fatalf("conversations = %d, want 2", n)
	}
	for _, c := range convs.All() {
		if c.Kind != store.KindComment {
			t.Errorf("conversation kind = %q, want comment", c.Kind)
		}
	}

	// Replay of the identical payload must ack 200 and change nothing.
	if rec := post(); rec.Code != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", rec.Code)
	}
	if n := len(comments.All()); n != 2 {
		t.Errorf("replay changed comment count to %d", n)
	}
	if n := len(convs.All()); n != 2 {
		t.Errorf("replay changed conversation count to %d", n)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(config.WebhookConfig{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
