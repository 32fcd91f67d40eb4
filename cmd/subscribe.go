package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/unibox/internal/config"
	"github.com/nextlevelbuilder/unibox/internal/graph"
)

func subscribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe",
		Short: "Register webhook field subscriptions for all active bindings",
		Long:  "Calls subscribed_apps for every active binding, degrading the requested field set when the platform rejects a field for missing permission scope.",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()

			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			stores := openStores(cfg)
			subscriber := graph.NewSubscriber(graph.NewClient(cfg.Graph), stores.Bindings)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			n, err := subscriber.SubscribeAll(ctx)
			if err != nil {
				return err
			}
			slog.Info("subscription registration complete", "subscribed", n)
			return nil
		},
	}
}
