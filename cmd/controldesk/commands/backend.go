package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/controldesk/controldesk/internal/backend"
	"github.com/controldesk/controldesk/internal/server"
	"github.com/controldesk/controldesk/internal/telemetry"
)

func newBackendCmd() *cobra.Command {
	var port int
	var database string

	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Run the reference remote control service",
		Long: `Serves the remote control service API (get-data, save-control, generate-plan,
generate-policy, generate-procedure, save-policy) from a local SQLite or
PostgreSQL database. Documents come from an OpenAI model when the key named
by backend.api_key_env is set, and from built-in templates otherwise.`,
		Example: `  controldesk backend
  controldesk backend --db postgres://controldesk@localhost/controldesk`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Backend.Port = port
			}
			if database != "" {
				cfg.Backend.Database = database
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Server.Level()}))

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := backend.OpenStore(ctx, cfg.Backend.Database)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			writer := backend.NewWriter(backend.WriterConfig{
				APIKey:      os.Getenv(cfg.Backend.APIKeyEnv),
				BaseURL:     cfg.Backend.BaseURL,
				Model:       cfg.Backend.Model,
				MaxTokens:   cfg.Backend.MaxTokens,
				Temperature: cfg.Backend.Temperature,
			}, logger)

			var handler http.Handler = backend.NewService(store, writer, server.Version, logger).Handler()
			if cfg.Telemetry.Tracing {
				shutdown, err := telemetry.SetupTracing(cfg.Telemetry.ServiceName+"-backend", os.Stderr)
				if err != nil {
					return err
				}
				defer func() { _ = shutdown(context.Background()) }()
				handler = otelhttp.NewHandler(handler, "controldesk-backend")
			}

			addr := net.JoinHostPort(cfg.Backend.Bind, strconv.Itoa(cfg.Backend.Port))
			srv := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       15 * time.Second,
				WriteTimeout:      2 * time.Minute, // model calls are slow
				IdleTimeout:       60 * time.Second,
			}

			logger.Info("remote control service starting", "addr", addr, "ai", writer.AI())

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("backend server: %w", err)
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override backend port")
	cmd.Flags().StringVar(&database, "db", "", "sqlite path or postgres:// URL")
	return cmd
}
