package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 18890,
		},
		Webhook: WebhookConfig{
			RateLimitRPM: 600,
		},
		Graph: GraphConfig{
			BaseURL:        "https://graph.facebook.com/v19.0",
			TimeoutSeconds: 5,
			RatePerSecond:  10,
		},
		Autoresponder: AutoresponderConfig{
			TimeoutSeconds: 15,
		},
		Notify: NotifyConfig{
			Exchange:  "unibox.notifications",
			Workers:   4,
			QueueSize: 256,
		},
		Database: DatabaseConfig{
			SQLitePath: "~/.unibox/unibox.db",
		},
		Keepalive: KeepaliveConfig{
			Cron: "0 * * * *",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "unibox",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error — defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values; secrets are env-only.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("UNIBOX_VERIFY_TOKEN", &c.Webhook.VerifyToken)
	envStr("UNIBOX_APP_SECRET", &c.Webhook.AppSecret)
	envStr("UNIBOX_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("UNIBOX_AMQP_URL", &c.Notify.AMQPURL)
	envStr("UNIBOX_RESPONDER_TOKEN", &c.Autoresponder.Token)
	envStr("UNIBOX_RESPONDER_ENDPOINT", &c.Autoresponder.Endpoint)
	envStr("UNIBOX_GRAPH_BASE_URL", &c.Graph.BaseURL)
	envStr("UNIBOX_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)

	if v := os.Getenv("UNIBOX_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Gateway.Port = n
		}
	}
	if c.Autoresponder.Endpoint != "" {
		c.Autoresponder.Enabled = true
	}
	if c.Telemetry.OTLPEndpoint != "" {
		c.Telemetry.Enabled = true
	}
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}
