package graph

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/unibox/internal/store"
)

// fieldSets are tried in order when registering webhook subscriptions.
// A permission rejection degrades to the next narrower set instead of
// failing the whole subscription.
var fieldSets = []string{
	"feed,messages,message_reactions",
	"feed,messages",
	"feed",
}

// Subscriber registers webhook field subscriptions for bound accounts.
type Subscriber struct {
	client   *Client
	bindings store.BindingStore
}

func NewSubscriber(client *Client, bindings store.BindingStore) *Subscriber {
	return &Subscriber{client: client, bindings: bindings}
}

// Subscribe registers subscribed_apps for one binding, degrading the field
// set on permission errors.
func (s *Subscriber) Subscribe(ctx context.Context, b store.Binding) error {
	var lastErr error
	for _, fields := range fieldSets {
		form := url.Values{}
		form.Set("subscribed_fields", fields)
		form.Set("access_token", b.AccessToken)

		var result struct {
			Success bool `json:"success"`
		}
		err := s.client.Post(ctx, b.ExternalAccountID, "subscribed_apps", form, &result)
		if err == nil {
			if !result.Success {
				return fmt.Errorf("subscribe %s: platform reported failure", b.ExternalAccountID)
			}
			slog.Info("graph.subscribed", "account", b.ExternalAccountID, "fields", fields)
			return nil
		}
		lastErr = err
		if !IsPermissionError(err) {
			return fmt.Errorf("subscribe %s: %w", b.ExternalAccountID, err)
		}
		slog.Warn("graph.subscribe_degraded", "account", b.ExternalAccountID, "fields", fields, "error", err)
	}
	return fmt.Errorf("subscribe %s: all field sets rejected: %w", b.ExternalAccountID, lastErr)
}

// SubscribeAll registers subscriptions for every active binding. Uses
// active bindings only — the any-status resolver fallback is for the read
// path, never for write-amplifying operations like resubscription.
func (s *Subscriber) SubscribeAll(ctx context.Context) (int, error) {
	bindings, err := s.bindings.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active bindings: %w", err)
	}
	ok := 0
	for _, b := range bindings {
		if err := s.Subscribe(ctx, b); err != nil {
			slog.Warn("graph.subscribe_failed", "binding", b.ID, "account", b.ExternalAccountID, "error", err)
			continue
		}
		ok++
	}
	return ok, nil
}

// RunKeepalive re-registers subscriptions on a cron schedule until ctx is
// cancelled. Platform-side subscriptions occasionally lapse when tokens
// rotate; periodic re-registration keeps deliveries flowing.
func (s *Subscriber) RunKeepalive(ctx context.Context, cronExpr string) {
	gron := gronx.New()
	if !gron.IsValid(cronExpr) {
		slog.Error("graph.keepalive_invalid_cron", "expr", cronExpr)
		return
	}
	slog.Info("graph.keepalive_started", "cron", cronExpr)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := gron.IsDue(cronExpr, time.Now())
			if err != nil || !due {
				continue
			}
			n, err := s.SubscribeAll(ctx)
			if err != nil {
				slog.Warn("graph.keepalive_failed", "error", err)
				continue
			}
			slog.Info("graph.keepalive_done", "subscribed", n)
		}
	}
}
