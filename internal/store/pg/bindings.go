package pg

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/unibox/internal/store"
)

// PGBindingStore implements store.BindingStore backed by Postgres.
// The webhook path only ever reads bindings.
type PGBindingStore struct {
	db *sql.DB
}

func NewPGBindingStore(db *sql.DB) *PGBindingStore {
	return &PGBindingStore{db: db}
}

const bindingSelectCols = `id, platform, external_account_id, channel_id, access_token, active, auto_reply_enabled, created_at, updated_at`

func (s *PGBindingStore) FindActive(ctx context.Context, platform store.Platform, externalAccountID string) ([]store.Binding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bindingSelectCols+` FROM bindings
		 WHERE platform = $1 AND external_account_id = $2 AND active = true
		 ORDER BY created_at`,
		platform, externalAccountID)
	if err != nil {
		return nil, err
	}
	return scanBindings(rows)
}

func (s *PGBindingStore) FindAny(ctx context.Context, platform store.Platform, externalAccountID string) ([]store.Binding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bindingSelectCols+` FROM bindings
		 WHERE platform = $1 AND external_account_id = $2
		 ORDER BY created_at`,
		platform, externalAccountID)
	if err != nil {
		return nil, err
	}
	return scanBindings(rows)
}

func (s *PGBindingStore) ListActive(ctx context.Context) ([]store.Binding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bindingSelectCols+` FROM bindings WHERE active = true ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	return scanBindings(rows)
}

func scanBindings(rows *sql.Rows) ([]store.Binding, error) {
	defer rows.Close()
	var out []store.Binding
	for rows.Next() {
		var b store.Binding
		if err := rows.Scan(&b.ID, &b.Platform, &b.ExternalAccountID, &b.ChannelID,
			&b.AccessToken, &b.Active, &b.AutoReplyEnabled, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// PGChannelStore implements store.ChannelStore backed by Postgres.
type PGChannelStore struct {
	db *sql.DB
}

func NewPGChannelStore(db *sql.DB) *PGChannelStore {
	return &PGChannelStore{db: db}
}

func (s *PGChannelStore) Settings(ctx context.Context, channelID uuid.UUID) (*store.ChannelSettings, error) {
	var cs store.ChannelSettings
	var routingKey, baseURL sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_id, automation_enabled, notify_routing_key, dashboard_base_url
		 FROM channel_settings WHERE channel_id = $1`,
		channelID).Scan(&cs.ChannelID, &cs.AutomationEnabled, &routingKey, &baseURL)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cs.NotifyRoutingKey = routingKey.String
	cs.DashboardBaseURL = baseURL.String
	return &cs, nil
}
