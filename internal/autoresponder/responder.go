// Package autoresponder is the reply-engine collaborator. The inbox router
// only decides whether and when to call it; generation itself lives behind
// an HTTP service boundary.
package autoresponder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/unibox/internal/config"
	"github.com/nextlevelbuilder/unibox/internal/store"
)

// Result is the outcome of one contextual auto-reply.
type Result struct {
	ReplyText string `json:"reply_text"`
}

// Responder generates and sends automated replies for BOT-mode conversations.
type Responder interface {
	// SendGreeting sends the one-time greeting for a brand-new conversation.
	SendGreeting(ctx context.Context, conversationID uuid.UUID, platform store.Platform) error
	// GenerateAndSend produces and sends a contextual reply to the inbound
	// text.
	GenerateAndSend(ctx context.Context, conversationID uuid.UUID, inboundText string, platform store.Platform) (*Result, error)
}

// HTTPResponder calls the reply-engine service.
type HTTPResponder struct {
	endpoint string
	token    string
	http     *http.Client
}

// NewHTTPResponder builds a responder from config.
func NewHTTPResponder(cfg config.AutoresponderConfig) *HTTPResponder {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPResponder{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		http:     &http.Client{Timeout: timeout},
	}
}

func (r *HTTPResponder) SendGreeting(ctx context.Context, conversationID uuid.UUID, platform store.Platform) error {
	payload := map[string]any{
		"conversation_id": conversationID,
		"platform":        platform,
	}
	return r.post(ctx, "/v1/replies/greeting", payload, nil)
}

func (r *HTTPResponder) GenerateAndSend(ctx context.Context, conversationID uuid.UUID, inboundText string, platform store.Platform) (*Result, error) {
	payload := map[string]any{
		"conversation_id": conversationID,
		"platform":        platform,
		"inbound_text":    inboundText,
	}
	var result Result
	if err := r.post(ctx, "/v1/replies/generate", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *HTTPResponder) post(ctx context.Context, path string, payload any, dst any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("responder %s: status %d: %s", path, resp.StatusCode, truncate(data, 200))
	}
	if dst != nil && len(data) > 0 {
		return json.Unmarshal(data, dst)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Disabled is a no-op responder used when no reply engine is configured.
// Conversations still resolve to BOT mode per their flags; sends simply do
// nothing.
type Disabled struct{}

func (Disabled) SendGreeting(context.Context, uuid.UUID, store.Platform) error { return nil }

func (Disabled) GenerateAndSend(context.Context, uuid.UUID, string, store.Platform) (*Result, error) {
	return &Result{}, nil
}
