package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zring/cfbmodel/internal/api"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var (
		port      int
		schedule  string
		modelPath string
		noWatch   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions and run history over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(modelPath, "")
			if err != nil {
				return err
			}
			if _, err := svc.LoadModel(); err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					return err
				}
				a.logger.WithField("path", svc.ModelPath()).Warn("No saved model yet; predictions are unavailable until one is trained")
			}

			runs, err := a.runs()
			if err != nil {
				return err
			}

			cfg := api.DefaultConfig()
			cfg.Port = a.cfg.Server.Port
			cfg.AllowedOrigins = a.cfg.Server.AllowedOrigins
			cfg.WatchModel = a.cfg.Server.WatchModel && !noWatch
			cfg.Schedule = a.cfg.Server.Schedule
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("schedule") {
				cfg.Schedule = schedule
			}

			server := api.NewServer(cfg, svc, runs, a.logger)
			if err := server.Start(); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "API server running at http://localhost:%d\n", server.Port())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "HTTP port (default from config)")
	cmd.Flags().StringVar(&schedule, "schedule", "", `Cron schedule for automatic predictions, e.g. "0 9 * * 4"`)
	cmd.Flags().StringVar(&modelPath, "model-path", "", "Model file (default from config)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload the model when its file changes")
	return cmd
}
