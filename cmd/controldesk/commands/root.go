package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/controldesk/controldesk/internal/config"
	"github.com/controldesk/controldesk/internal/server"
)

var cfgFile string

func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "controldesk",
		Short:         "Compliance controls dashboard",
		Long:          "controldesk tracks compliance controls from a remote control service through Not Started, In Progress, Pending Review and Approved.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")

	root.AddCommand(
		newServeCmd(),
		newBackendCmd(),
		newControlsCmd(),
		newPlanCmd(),
		newStatusCmd(),
		newHistoryCmd(),
		newAuditCmd(),
		newTUICmd(),
		newMCPCmd(),
		newRulesCmd(),
		newInitCmd(),
		newVersionCmd(),
	)

	return root
}

// loadConfig reads --config, falling back to defaults when the file does
// not exist.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefaults(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// quietLogger is used by one-shot commands whose output goes to stdout.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// openStackNoLoad builds a stack for a one-shot command with an empty
// board. Metrics are off since nothing scrapes a short-lived process.
func openStackNoLoad(ctx context.Context, cfg *config.Config) (*server.Stack, error) {
	cfg.Telemetry.Metrics = false
	cfg.Remote.LoadOnStart = false
	return server.NewStack(ctx, cfg, quietLogger())
}

// openBoard is openStackNoLoad followed by a load from the remote service.
func openBoard(ctx context.Context, cfg *config.Config) (*server.Stack, error) {
	stack, err := openStackNoLoad(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if res := stack.Board.Reload(ctx); !res.OK {
		_ = stack.Close(context.Background())
		return nil, fmt.Errorf("loading controls from %s: %s", cfg.Remote.URL, res.Message)
	}
	return stack, nil
}
