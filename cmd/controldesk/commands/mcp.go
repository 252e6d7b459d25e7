package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/controldesk/controldesk/internal/mcp"
	"github.com/controldesk/controldesk/internal/server"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start controldesk as an MCP server (stdio)",
		Long: `Exposes the controls board as an MCP tool server. Add to your MCP client config:

  {
    "mcpServers": {
      "controldesk": {
        "command": "controldesk",
        "args": ["mcp", "--config", "./controldesk.yaml"]
      }
    }
  }

Tools: list_controls, summary, get_control, advance_status, analytics, gaps, history`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Telemetry.Metrics = false

			// stdout carries the protocol; logs and spans go to stderr.
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stack, err := server.NewStack(ctx, cfg, logger, server.WithTraceOutput(os.Stderr))
			if err != nil {
				return err
			}
			defer func() { _ = stack.Close(context.Background()) }()

			s := mcpserver.NewServer(stack.Board, stack.Journal, server.Version, logger)
			return mcpserver.Serve(ctx, s)
		},
	}
}
