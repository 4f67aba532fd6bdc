package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/sheetask/internal/api"
	"github.com/KaramelBytes/sheetask/internal/session"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Example: `  sheetask serve
  sheetask serve --addr 127.0.0.1:9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			c.ServerAddr = serveAddr
		}
		logger := newLogger(c)
		defer func() { _ = logger.Sync() }()
		svc, err := newAssistant(c, logger)
		if err != nil {
			return err
		}

		sessions := session.NewManager(session.Options{
			MaxSessions: c.MaxSessions,
			TTL:         time.Duration(c.SessionTTLMin) * time.Minute,
			Logger:      logger,
		})
		e := api.NewServer(&api.Dependencies{
			Sessions:    sessions,
			Assistant:   svc,
			Logger:      logger,
			Version:     Version,
			MaxUploadMB: c.MaxUploadMB,
		})

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		go sessions.Run(ctx, time.Duration(c.CleanupIntervalMin)*time.Minute)

		errCh := make(chan error, 1)
		go func() { errCh <- e.Start(c.ServerAddr) }()
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Listening on %s (provider=%s model=%s)\n", c.ServerAddr, c.Provider, c.Model)
		logger.Info("server started", zap.String("addr", c.ServerAddr), zap.String("version", Version))

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server: %w", err)
			}
			return nil
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		if err := e.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config server_addr)")
}
