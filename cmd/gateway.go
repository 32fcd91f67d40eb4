package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/unibox/internal/autoresponder"
	"github.com/nextlevelbuilder/unibox/internal/config"
	"github.com/nextlevelbuilder/unibox/internal/enrich"
	"github.com/nextlevelbuilder/unibox/internal/graph"
	"github.com/nextlevelbuilder/unibox/internal/inbox"
	"github.com/nextlevelbuilder/unibox/internal/notify"
	"github.com/nextlevelbuilder/unibox/internal/store"
	"github.com/nextlevelbuilder/unibox/internal/store/pg"
	"github.com/nextlevelbuilder/unibox/internal/store/sqlite"
	"github.com/nextlevelbuilder/unibox/internal/telemetry"
	"github.com/nextlevelbuilder/unibox/internal/webhook"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the webhook gateway (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

func runGateway() {
	setupLogging()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Webhook.VerifyToken == "" {
		slog.Warn("UNIBOX_VERIFY_TOKEN not set; verification handshakes will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without traces", "error", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	stores := openStores(cfg)

	graphClient := graph.NewClient(cfg.Graph)
	enricher := enrich.New(graphClient)

	var responder autoresponder.Responder = autoresponder.Disabled{}
	if cfg.Autoresponder.Enabled && cfg.Autoresponder.Endpoint != "" {
		responder = autoresponder.NewHTTPResponder(cfg.Autoresponder)
		slog.Info("autoresponder enabled", "endpoint", cfg.Autoresponder.Endpoint)
	}

	dispatcher := newDispatcher(cfg.Notify)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			slog.Warn("notifier shutdown failed", "error", err)
		}
	}()

	router := inbox.NewRouter(stores, enricher, responder, dispatcher)
	server := webhook.NewServer(cfg.Webhook, router)

	if cfg.Keepalive.Enabled {
		subscriber := graph.NewSubscriber(graphClient, stores.Bindings)
		go subscriber.RunKeepalive(ctx, cfg.Keepalive.Cron)
	}

	errCh := server.Start(cfg.Gateway.Host, cfg.Gateway.Port)

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			slog.Error("webhook server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown failed", "error", err)
	}
}

// openStores selects the storage backend: Postgres when a DSN is configured,
// standalone SQLite otherwise.
func openStores(cfg *config.Config) *store.Stores {
	if cfg.IsManaged() {
		stores, err := pg.NewPGStores(store.StoreConfig{PostgresDSN: cfg.Database.PostgresDSN})
		if err != nil {
			slog.Error("failed to open postgres stores", "error", err)
			os.Exit(1)
		}
		slog.Info("storage: postgres")
		return stores
	}

	path := config.ExpandHome(cfg.Database.SQLitePath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		slog.Error("failed to create data directory", "path", path, "error", err)
		os.Exit(1)
	}
	stores, err := sqlite.NewSQLiteStores(store.StoreConfig{SQLitePath: path})
	if err != nil {
		slog.Error("failed to open sqlite stores", "error", err)
		os.Exit(1)
	}
	slog.Info("storage: sqlite", "path", path)
	return stores
}

// newDispatcher wires the notification pipeline: AMQP when a broker URL is
// configured, log-only fallback otherwise.
func newDispatcher(cfg config.NotifyConfig) *notify.Dispatcher {
	logger := slog.Default()
	if cfg.AMQPURL == "" {
		slog.Info("notifications: log-only (UNIBOX_AMQP_URL not set)")
		return notify.NewDispatcher(notify.NewLogPublisher(logger), cfg.Workers, cfg.QueueSize)
	}
	pub, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.Exchange, logger)
	if err != nil {
		slog.Warn("amqp connection failed, falling back to log-only notifications", "error", err)
		return notify.NewDispatcher(notify.NewLogPublisher(logger), cfg.Workers, cfg.QueueSize)
	}
	slog.Info("notifications: amqp", "exchange", cfg.Exchange)
	return notify.NewDispatcher(pub, cfg.Workers, cfg.QueueSize)
}
