package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/controldesk/controldesk/internal/tui"
)

func newTUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse and advance controls in the terminal",
		Long: `Interactive table of controls.

Keys: / search, s status, r risk, t type, c clear filters,
      a advance selected, R reload, q quit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("tui needs an interactive terminal; use 'controldesk controls list' instead")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			stack, err := openStackNoLoad(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = stack.Close(context.Background()) }()

			// A failed load still opens the UI; R retries.
			stack.Board.Reload(cmd.Context())
			return tui.Run(cmd.Context(), stack.Board)
		},
	}
}
