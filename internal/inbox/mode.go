package inbox

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nextlevelbuilder/unibox/internal/store"
)

// resolveMode decides BOT vs AGENT for a conversation. Evaluated exactly
// once, at creation: either the binding-level or the channel-level
// automation veto forces AGENT. Existing conversations keep their mode —
// the webhook path never flips it afterwards.
func (r *Router) resolveMode(ctx context.Context, b store.Binding) store.ConversationMode {
	if !b.AutoReplyEnabled {
		return store.ModeAgent
	}
	settings, err := r.stores.Channels.Settings(ctx, b.ChannelID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			// On a read failure, default to automation on rather than
			// silently routing everything to humans.
			slog.Warn("inbox.mode_settings_failed", "channel", b.ChannelID, "error", err)
		}
		return store.ModeBot
	}
	if !settings.AutomationEnabled {
		return store.ModeAgent
	}
	return store.ModeBot
}

// isSyntheticName reports whether a stored display name is a placeholder
// (purely numeric external id) that a real profile name should replace.
func isSyntheticName(name string) bool {
	if name == "" {
		return true
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
