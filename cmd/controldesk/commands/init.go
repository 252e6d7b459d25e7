package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/controldesk/controldesk/internal/config"
)

func newInitCmd() *cobra.Command {
	var remoteURL string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Example: `  controldesk init
  controldesk init --remote https://compliance.internal:5000 --config ./controldesk.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(cfgFile); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgFile)
			}
			cfg := config.Defaults()
			cfg.Presets = []config.Preset{
				{Name: "High risk open", Risk: "High", Status: "In Progress"},
				{Name: "Awaiting review", Status: "Pending Review"},
			}
			if remoteURL != "" {
				cfg.Remote.URL = remoteURL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(cfgFile); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s\n", cfgFile)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintln(out, "  controldesk backend   # reference remote control service on :5000")
			fmt.Fprintln(out, "  controldesk serve     # dashboard on :8080")
			return nil
		},
	}

	cmd.Flags().StringVar(&remoteURL, "remote", "", "remote control service URL")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}
