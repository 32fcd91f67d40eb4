// Package inbox is the conversation router: it fans one physical platform
// event out to every channel binding claiming the account, maintains the
// per-(channel, user, kind) conversation aggregates, deduplicates redelivered
// events by external id, and decides whether the autoresponder runs.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/unibox/internal/autoresponder"
	"github.com/nextlevelbuilder/unibox/internal/enrich"
	"github.com/nextlevelbuilder/unibox/internal/events"
	"github.com/nextlevelbuilder/unibox/internal/notify"
	"github.com/nextlevelbuilder/unibox/internal/store"
)

// fanoutConcurrency bounds concurrent per-binding processing for one event.
// Each binding's conversation is independent, so no cross-binding lock is
// needed.
const fanoutConcurrency = 4

const previewMaxRunes = 120

// Router processes normalized events into conversation state.
type Router struct {
	stores    *store.Stores
	enricher  *enrich.Enricher
	responder autoresponder.Responder
	notifier  notify.Notifier
	locks     *keyedLocks
	tracer    trace.Tracer
}

// NewRouter wires the router. responder and notifier may be the no-op
// implementations; stores and enricher are required.
func NewRouter(stores *store.Stores, enricher *enrich.Enricher, responder autoresponder.Responder, notifier notify.Notifier) *Router {
	if responder == nil {
		responder = autoresponder.Disabled{}
	}
	return &Router{
		stores:    stores,
		enricher:  enricher,
		responder: responder,
		notifier:  notifier,
		locks:     newKeyedLocks(),
		tracer:    otel.Tracer("unibox/inbox"),
	}
}

// ProcessDelivery runs every event of a decoded webhook delivery. Entries
// are processed sequentially (platforms preserve ordering per account);
// failures are contained per event and never propagate to the HTTP layer.
func (r *Router) ProcessDelivery(ctx context.Context, d *events.Delivery) {
	for _, entry := range d.Entries {
		for _, ev := range entry.Events {
			switch e := ev.(type) {
			case events.CommentEvent:
				r.processComment(ctx, e)
			case events.MessageEvent:
				r.processMessage(ctx, e)
			case events.RemovalEvent:
				r.processRemoval(ctx, e)
			case events.UnrecognizedEvent:
				// Already logged at debug by the normalizer.
			}
		}
	}
}

// resolveBindings returns the fan-out target list for an external account.
// Active bindings win; an any-status fallback keeps a mis-flagged binding
// receiving data. The source is logged and traced so the fallback's use is
// observable in operation.
func (r *Router) resolveBindings(ctx context.Context, platform store.Platform, accountID string) ([]store.Binding, string, error) {
	bindings, err := r.stores.Bindings.FindActive(ctx, platform, accountID)
	if err != nil {
		return nil, "", fmt.Errorf("find active bindings: %w", err)
	}
	if len(bindings) > 0 {
		return bindings, "active", nil
	}
	bindings, err = r.stores.Bindings.FindAny(ctx, platform, accountID)
	if err != nil {
		return nil, "", fmt.Errorf("find any bindings: %w", err)
	}
	if len(bindings) > 0 {
		slog.Warn("inbox.resolved_via_fallback", "platform", platform, "account", accountID, "bindings", len(bindings))
		return bindings, "fallback", nil
	}
	return nil, "none", nil
}

func (r *Router) processMessage(ctx context.Context, ev events.MessageEvent) {
	ctx, span := r.tracer.Start(ctx, "inbox.message")
	defer span.End()
	span.SetAttributes(
		attribute.String("platform", string(ev.Platform)),
		attribute.String("account", ev.ExternalAccountID),
	)

	bindings, source, err := r.resolveBindings(ctx, ev.Platform, ev.ExternalAccountID)
	if err != nil {
		slog.Error("inbox.resolve_failed", "platform", ev.Platform, "account", ev.ExternalAccountID, "error", err)
		return
	}
	span.SetAttributes(attribute.String("resolution.source", source))
	if len(bindings) == 0 {
		slog.Info("inbox.no_binding", "platform", ev.Platform, "account", ev.ExternalAccountID)
		return
	}

	// One profile fetch per physical event: the result is the same
	// whichever tenant's credential performs it.
	profile := r.enricher.FetchProfile(ctx, ev.Platform, ev.SenderID, bindings[0].AccessToken)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanoutConcurrency)
	for _, b := range bindings {
		g.Go(func() error {
			if err := r.messageForBinding(gctx, b, ev, profile); err != nil {
				slog.Error("inbox.message_binding_failed",
					"binding", b.ID, "channel", b.ChannelID,
					"platform", ev.Platform, "mid", ev.MessageID, "error", err)
			}
			// One binding's failure must not cancel siblings.
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Router) messageForBinding(ctx context.Context, b store.Binding, ev events.MessageEvent, profile enrich.SenderProfile) error {
	key := convKey{b.ChannelID, ev.Platform, ev.SenderID, store.KindMessage}
	unlock := r.locks.lock(key)
	defer unlock()

	// Redelivered event: already stored, nothing to do (and no unread bump).
	if ev.MessageID != "" {
		seen, err := r.stores.Messages.ExistsByExternalID(ctx, b.ChannelID, ev.MessageID)
		if err != nil {
			return fmt.Errorf("dedup check: %w", err)
		}
		if seen {
			slog.Debug("inbox.duplicate_message", "channel", b.ChannelID, "mid", ev.MessageID)
			return nil
		}
	}

	displayName := profile.Name
	if displayName == "" {
		displayName = ev.SenderID
	}
	conv, created, err := r.findOrCreateConversation(ctx, b, key, displayName, profile.Avatar, store.ConversationMeta{}, ev.OccurredAt)
	if err != nil {
		return err
	}

	msg := &store.Message{
		ConversationID: conv.ID,
		ChannelID:      b.ChannelID,
		ExternalID:     ev.MessageID,
		Direction:      store.DirectionInbound,
		SenderRole:     store.RoleCustomer,
		Content:        ev.Text,
		AttachmentURL:  ev.AttachmentURL,
		AttachmentType: ev.AttachmentType,
		SentAt:         ev.OccurredAt,
	}
	if err := r.stores.Messages.Insert(ctx, msg); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			slog.Debug("inbox.duplicate_message", "channel", b.ChannelID, "mid", ev.MessageID)
			return nil
		}
		return fmt.Errorf("insert message: %w", err)
	}

	if !created {
		r.touchInbound(conv, displayName, profile.Avatar, store.ConversationMeta{}, ev.OccurredAt)
		if err := r.stores.Conversations.Update(ctx, conv); err != nil {
			return fmt.Errorf("update conversation: %w", err)
		}
	}

	r.triggerAutoresponder(ctx, conv, created, ev.Text)
	r.notifyInbound(ctx, conv, notify.KindNewMessage, displayName, ev.Text)
	return nil
}

func (r *Router) processComment(ctx context.Context, ev events.CommentEvent) {
	ctx, span := r.tracer.Start(ctx, "inbox.comment")
	defer span.End()
	span.SetAttributes(
		attribute.String("platform", string(ev.Platform)),
		attribute.String("account", ev.ExternalAccountID),
	)

	bindings, source, err := r.resolveBindings(ctx, ev.Platform, ev.ExternalAccountID)
	if err != nil {
		slog.Error("inbox.resolve_failed", "platform", ev.Platform, "account", ev.ExternalAccountID, "error", err)
		return
	}
	span.SetAttributes(attribute.String("resolution.source", source))
	if len(bindings) == 0 {
		slog.Info("inbox.no_binding", "platform", ev.Platform, "account", ev.ExternalAccountID)
		return
	}

	// Shared enrichment: one post fetch, result passed by value to every
	// fan-out leg.
	post := r.enricher.FetchPost(ctx, ev.Platform, ev.PostID, bindings[0].AccessToken)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanoutConcurrency)
	for _, b := range bindings {
		g.Go(func() error {
			if err := r.commentForBinding(gctx, b, ev, post); err != nil {
				slog.Error("inbox.comment_binding_failed",
					"binding", b.ID, "channel", b.ChannelID,
					"platform", ev.Platform, "comment", ev.CommentID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Router) commentForBinding(ctx context.Context, b store.Binding, ev events.CommentEvent, post enrich.PostContext) error {
	key := convKey{b.ChannelID, ev.Platform, ev.AuthorID, store.KindComment}
	unlock := r.locks.lock(key)
	defer unlock()

	seen, err := r.stores.Comments.ExistsByExternalID(ctx, b.ChannelID, ev.CommentID)
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}
	if seen {
		slog.Debug("inbox.duplicate_comment", "channel", b.ChannelID, "comment", ev.CommentID)
		return nil
	}

	displayName := ev.AuthorName
	if displayName == "" {
		displayName = ev.AuthorID
	}
	meta := store.ConversationMeta{}
	if !post.Stub {
		meta = post.Meta()
	}
	conv, created, err := r.findOrCreateConversation(ctx, b, key, displayName, "", meta, ev.OccurredAt)
	if err != nil {
		return err
	}

	comment := &store.Comment{
		ConversationID:   conv.ID,
		ChannelID:        b.ChannelID,
		ExternalID:       ev.CommentID,
		ParentExternalID: ev.ParentCommentID,
		AuthorName:       displayName,
		Content:          ev.Text,
		Status:           store.CommentNew,
		CommentedAt:      ev.OccurredAt,
	}
	if err := r.stores.Comments.Insert(ctx, comment); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			slog.Debug("inbox.duplicate_comment", "channel", b.ChannelID, "comment", ev.CommentID)
			return nil
		}
		return fmt.Errorf("insert comment: %w", err)
	}

	if !created {
		r.touchInbound(conv, displayName, "", meta, ev.OccurredAt)
		if err := r.stores.Conversations.Update(ctx, conv); err != nil {
			return fmt.Errorf("update conversation: %w", err)
		}
	}

	r.triggerAutoresponder(ctx, conv, created, ev.Text)
	r.notifyInbound(ctx, conv, notify.KindNewComment, displayName, ev.Text)
	return nil
}

// processRemoval hides the comment in every bound channel. Removals carry no
// enrichment and never create conversations; hiding is an idempotent status
// transition so replays are harmless.
func (r *Router) processRemoval(ctx context.Context, ev events.RemovalEvent) {
	bindings, _, err := r.resolveBindings(ctx, ev.Platform, ev.ExternalAccountID)
	if err != nil {
		slog.Error("inbox.resolve_failed", "platform", ev.Platform, "account", ev.ExternalAccountID, "error", err)
		return
	}
	for _, b := range bindings {
		if err := r.stores.Comments.Hide(ctx, b.ChannelID, ev.CommentID); err != nil {
			slog.Error("inbox.hide_failed", "binding", b.ID, "channel", b.ChannelID, "comment", ev.CommentID, "error", err)
		}
	}
}

// findOrCreateConversation looks the aggregate up by key, creating it on
// first contact. Mode is resolved only on the create path. A create that
// loses a cross-process race re-reads the winner's row.
func (r *Router) findOrCreateConversation(ctx context.Context, b store.Binding, key convKey, displayName, avatar string, meta store.ConversationMeta, at time.Time) (*store.Conversation, bool, error) {
	conv, err := r.stores.Conversations.FindByKey(ctx, key.channelID, key.platform, key.userID, key.kind)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("find conversation: %w", err)
	}

	conv = &store.Conversation{
		ChannelID:      key.channelID,
		BindingID:      b.ID,
		Platform:       key.platform,
		ExternalUserID: key.userID,
		DisplayName:    displayName,
		AvatarURL:      avatar,
		Kind:           key.kind,
		Status:         store.StatusNew,
		Mode:           r.resolveMode(ctx, b),
		UnreadCount:    1,
		LastActivityAt: at,
		Meta:           meta,
	}
	if err := r.stores.Conversations.Create(ctx, conv); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			conv, err = r.stores.Conversations.FindByKey(ctx, key.channelID, key.platform, key.userID, key.kind)
			if err != nil {
				return nil, false, fmt.Errorf("reload conversation after create race: %w", err)
			}
			return conv, false, nil
		}
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}
	return conv, true, nil
}

// touchInbound applies the inbound-event mutations to an existing
// conversation: unread bump, reopen from done/archived, placeholder name
// replacement, first-seen metadata.
func (r *Router) touchInbound(conv *store.Conversation, displayName, avatar string, meta store.ConversationMeta, at time.Time) {
	conv.UnreadCount++
	if conv.Status == store.StatusDone || conv.Status == store.StatusArchived {
		// A returning customer always resurfaces the thread.
		conv.Status = store.StatusNew
	}
	if isSyntheticName(conv.DisplayName) && displayName != "" && !isSyntheticName(displayName) {
		conv.DisplayName = displayName
	}
	if conv.AvatarURL == "" && avatar != "" {
		conv.AvatarURL = avatar
	}
	// First-seen metadata wins; repeated enrichment must not thrash it.
	if conv.Meta.IsZero() && !meta.IsZero() {
		conv.Meta = meta
	}
	if at.After(conv.LastActivityAt) {
		conv.LastActivityAt = at
	}
}

// triggerAutoresponder fires the reply pipeline when the conversation is in
// BOT mode: greeting exactly once (first inbound ever), then the contextual
// reply. Sends are awaited so ingestion and reply stay causally ordered, but
// a reply failure never fails ingestion.
func (r *Router) triggerAutoresponder(ctx context.Context, conv *store.Conversation, firstInbound bool, inboundText string) {
	if conv.Mode != store.ModeBot {
		return
	}
	if firstInbound {
		if err := r.responder.SendGreeting(ctx, conv.ID, conv.Platform); err != nil {
			slog.Warn("inbox.greeting_failed", "conversation", conv.ID, "error", err)
		}
	}
	if _, err := r.responder.GenerateAndSend(ctx, conv.ID, inboundText, conv.Platform); err != nil {
		slog.Warn("inbox.autoreply_failed", "conversation", conv.ID, "error", err)
	}
}

// notifyInbound enqueues the fire-and-forget admin notification.
func (r *Router) notifyInbound(ctx context.Context, conv *store.Conversation, kind notify.Kind, sender, content string) {
	if r.notifier == nil {
		return
	}
	n := notify.Notification{
		ChannelID: conv.ChannelID,
		Kind:      kind,
		Title:     fmt.Sprintf("New %s from %s", conv.Kind, sender),
		Body:      preview(content),
	}
	if settings, err := r.stores.Channels.Settings(ctx, conv.ChannelID); err == nil {
		n.RoutingKey = settings.NotifyRoutingKey
		if settings.DashboardBaseURL != "" {
			n.Link = fmt.Sprintf("%s/inbox/%s", settings.DashboardBaseURL, conv.ID)
		}
	}
	r.notifier.Notify(n)
}

func preview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewMaxRunes {
		return s
	}
	return string(runes[:previewMaxRunes]) + "…"
}
