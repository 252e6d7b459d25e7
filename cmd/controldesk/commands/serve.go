package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/controldesk/controldesk/internal/config"
	"github.com/controldesk/controldesk/internal/server"
)

func newServeCmd() *cobra.Command {
	var port int
	var bind, remoteURL string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the controls dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefaults(cfgFile)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			if remoteURL != "" {
				cfg.Remote.URL = remoteURL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			level := new(slog.LevelVar)
			level.Set(cfg.Server.Level())
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stack, err := server.NewStack(ctx, cfg, logger)
			if err != nil {
				return err
			}
			srv, err := server.NewServer(stack, cfgFile, logger, level)
			if err != nil {
				_ = stack.Close(context.Background())
				return err
			}

			printBanner(cmd.OutOrStdout(), cfg, srv.Port(), stack.Board.SummaryCounts().Total)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "address to bind (default: 127.0.0.1)")
	cmd.Flags().StringVar(&remoteURL, "remote", "", "override the remote control service URL")
	return cmd
}

func printBanner(w io.Writer, cfg *config.Config, port, controls int) {
	bindAddr := cfg.Server.Bind
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	p := newPainter(w)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "  controldesk")
	fmt.Fprintln(w, "  ────────────────────────────────────────")
	fmt.Fprintf(w, "  Dashboard:  %s\n", p.ok(fmt.Sprintf("http://%s:%d/dashboard", bindAddr, port)))
	fmt.Fprintf(w, "  API:        http://%s:%d/dashboard/api/controls\n", bindAddr, port)
	fmt.Fprintf(w, "  Health:     http://%s:%d/health\n", bindAddr, port)
	if cfg.Telemetry.Metrics {
		fmt.Fprintf(w, "  Metrics:    http://%s:%d/metrics\n", bindAddr, port)
	}
	fmt.Fprintln(w, "  ────────────────────────────────────────")
	fmt.Fprintf(w, "  Remote:     %s\n", cfg.Remote.URL)
	fmt.Fprintf(w, "  Controls:   %d loaded\n", controls)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Press Ctrl+C to stop.")
	fmt.Fprintln(w)
}
