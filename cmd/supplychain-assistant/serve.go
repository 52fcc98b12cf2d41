package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:       "serve [api|worker|all]",
	Short:     "Run the HTTP API, the ingestion worker, or both",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"api", "worker", "all"},
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := getEnv("RUN_MODE", "all")
		if len(args) > 0 {
			mode = args[0]
		}
		switch mode {
		case "api", "worker", "all":
		default:
			return fmt.Errorf("unknown mode %q (use: api, worker, or all)", mode)
		}

		ctx := cmd.Context()
		logger := slog.Default()
		logger.Info("supplychain-assistant starting", "version", version, "mode", mode)

		a, err := newApp(ctx, loadConfig(), logger)
		if err != nil {
			return err
		}
		defer a.close()

		if mode == "worker" || mode == "all" {
			w := a.worker()
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("start worker: %w", err)
			}
			defer w.Stop()
		}

		if mode == "worker" {
			<-ctx.Done()
			logger.Info("shutdown signal received")
			return nil
		}
		return a.server().Start(ctx)
	},
}
