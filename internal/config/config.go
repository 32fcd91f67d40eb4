package config

// Config is the root configuration for the Unibox gateway. Loaded once at
// startup and treated as immutable afterwards — the webhook path never
// re-reads it.
type Config struct {
	Gateway       GatewayConfig       `json:"gateway"`
	Webhook       WebhookConfig       `json:"webhook"`
	Graph         GraphConfig         `json:"graph"`
	Autoresponder AutoresponderConfig `json:"autoresponder,omitempty"`
	Notify        NotifyConfig        `json:"notify,omitempty"`
	Database      DatabaseConfig      `json:"database,omitempty"`
	Keepalive     KeepaliveConfig     `json:"keepalive,omitempty"`
	Telemetry     TelemetryConfig     `json:"telemetry,omitempty"`
}

// GatewayConfig configures the HTTP listener.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// WebhookConfig configures inbound webhook verification.
// VerifyToken is the pre-shared handshake secret the platform echoes back on
// the GET verification handshake. AppSecret signs POST bodies
// (X-Hub-Signature-256); when empty, signature checking runs in
// degraded-trust mode (log, don't block). Both env-only.
type WebhookConfig struct {
	VerifyToken  string `json:"-"` // from env UNIBOX_VERIFY_TOKEN only
	AppSecret    string `json:"-"` // from env UNIBOX_APP_SECRET only
	RateLimitRPM int    `json:"rate_limit_rpm,omitempty"`
}

// GraphConfig configures the outbound platform Graph API client.
type GraphConfig struct {
	BaseURL        string  `json:"base_url"`
	TimeoutSeconds int     `json:"timeout_seconds"`
	RatePerSecond  float64 `json:"rate_per_second,omitempty"` // client-side limiter, 0 = unlimited
}

// AutoresponderConfig configures the reply-engine collaborator.
type AutoresponderConfig struct {
	Enabled        bool   `json:"enabled"`
	Endpoint       string `json:"endpoint,omitempty"`
	Token          string `json:"-"` // from env UNIBOX_RESPONDER_TOKEN only
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// NotifyConfig configures admin notification dispatch. With an empty
// AMQPURL notifications fall back to log-only dispatch.
type NotifyConfig struct {
	AMQPURL   string `json:"-"` // from env UNIBOX_AMQP_URL only
	Exchange  string `json:"exchange,omitempty"`
	Workers   int    `json:"workers,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
}

// DatabaseConfig selects the storage backend.
// PostgresDSN is NEVER read from config.json (secret) — only from env
// UNIBOX_POSTGRES_DSN. When unset, the standalone SQLite backend is used.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"` // from env UNIBOX_POSTGRES_DSN only
	SQLitePath  string `json:"sqlite_path,omitempty"`
}

// IsManaged returns true when running against Postgres.
func (c *Config) IsManaged() bool {
	return c.Database.PostgresDSN != ""
}

// KeepaliveConfig schedules periodic webhook field re-subscription for
// every active binding.
type KeepaliveConfig struct {
	Enabled bool   `json:"enabled"`
	Cron    string `json:"cron,omitempty"` // gronx expression, default hourly
}

// TelemetryConfig configures the optional OTLP trace exporter.
type TelemetryConfig struct {
	Enabled      bool   `json:"enabled"`
	OTLPEndpoint string `json:"otlp_endpoint,omitempty"` // host:port, http exporter
	ServiceName  string `json:"service_name,omitempty"`
}
