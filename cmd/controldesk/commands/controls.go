package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/controldesk/controldesk/internal/board"
	"github.com/controldesk/controldesk/internal/control"
	"github.com/controldesk/controldesk/internal/remote"
	"github.com/controldesk/controldesk/internal/safefile"
)

// maxImportBytes caps the size of a controls import file.
const maxImportBytes = 32 << 20

func newControlsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "controls",
		Short: "List, advance, import and export controls",
	}
	cmd.AddCommand(
		newControlsListCmd(),
		newControlsShowCmd(),
		newControlsAdvanceCmd(),
		newControlsProgressCmd(),
		newControlsEvidenceCmd(),
		newControlsExportCmd(),
		newControlsImportCmd(),
	)
	return cmd
}

func newControlsListCmd() *cobra.Command {
	var status, risk, typ, search, framework string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List controls from the remote service",
		Example: `  controldesk controls list
  controldesk controls list --risk high --status "in progress"
  controldesk controls list --search firewall --json
  controldesk controls list --framework "PCI DSS"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := control.ParseFilter(status, risk, typ, search)
			if err != nil {
				return err
			}
			f.Framework = framework
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			stack, err := openBoard(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = stack.Close(context.Background()) }()

			stack.Board.SetFilterState(f.Patch())
			rows := stack.Board.Rows()
			out := cmd.OutOrStdout()

			if asJSON {
				return writeJSON(out, rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No controls match the filter.")
				return nil
			}
			printRows(out, rows)
			s := stack.Board.SummaryCounts()
			fmt.Fprintf(out, "\n%d of %d controls  |  %d high risk  |  %d approved  |  %d in progress  |  %d not started\n",
				len(rows), s.Total, s.HighRisk, s.Completed, s.InProgress, s.NotStarted)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (not started, in progress, pending review, approved)")
	cmd.Flags().StringVar(&risk, "risk", "", "filter by risk (low, medium, high)")
	cmd.Flags().StringVar(&typ, "type", "", "filter by type (automatic, manual, hybrid)")
	cmd.Flags().StringVar(&search, "search", "", "case-insensitive match on id, description or area")
	cmd.Flags().StringVar(&framework, "framework", "", "exact framework name, e.g. \"SOC 2\"")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print rows as JSON")
	return cmd
}

func printRows(w io.Writer, rows []control.Row) {
	p := newPainter(w)
	fmt.Fprintf(w, "%-12s %-9s %-15s %-9s %-40s %s\n", "ID", "RISK", "STATUS", "PROGRESS", "DESCRIPTION", "AREA")
	for _, r := range rows {
		// Pad before painting so escape codes do not skew the columns.
		fmt.Fprintf(w, "%-12s %s %s %-9s %-40s %s\n",
			r.ID,
			p.risk(r.Risk)+strings.Repeat(" ", pad(string(r.Risk), 9)),
			p.status(r.Status)+strings.Repeat(" ", pad(string(r.Status), 15)),
			fmt.Sprintf("%d%%", r.Progress),
			truncate(r.Description, 40),
			p.dim(r.Area),
		)
	}
}

func pad(s string, width int) int {
	if n := width - len(s); n > 0 {
		return n
	}
	return 0
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func newControlsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <control-id>",
		Short: "Show one control with its test plans",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			stack, err := openBoard(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = stack.Close(context.Background()) }()

			c, ok := stack.Board.Control(args[0])
			if !ok {
				return fmt.Errorf("control %q not found", args[0])
			}
			printControl(cmd.OutOrStdout(), c)
			return nil
		},
	}
}

func printControl(w io.Writer, c control.Control) {
	p := newPainter(w)
	fmt.Fprintf(w, "%s  %s\n", c.ID, c.Description)
	fmt.Fprintf(w, "  Area:      %s\n", c.Area)
	fmt.Fprintf(w, "  Type:      %s\n", c.Type)
	fmt.Fprintf(w, "  Risk:      %s\n", p.risk(c.Risk))
	fmt.Fprintf(w, "  Status:    %s (%d%%)\n", p.status(c.Status), c.Progress)
	if c.Framework != "" {
		fmt.Fprintf(w, "  Framework: %s\n", c.Framework)
	}
	if c.RiskStatement != "" {
		fmt.Fprintf(w, "  Risk statement: %s\n", c.RiskStatement)
	}
	printPlan(w, "Test of design", c.TestOfDesign)
	printPlan(w, "Test of effectiveness", c.TestOfEffectiveness)
	for _, s := range c.CustomTestingSteps {
		fmt.Fprintf(w, "\n  %s\n    %s\n", s.Technology, s.Steps)
		if s.AutomationArtifact.Snippet != "" {
			fmt.Fprintf(w, "    %s\n", p.dim(s.AutomationArtifact.Snippet))
		}
	}
	if next := c.Status.Action(); next != "" {
		fmt.Fprintf(w, "\n  Next: %s (controldesk controls advance %s)\n", next, c.ID)
	}
}

func printPlan(w io.Writer, title string, plan control.TestPlan) {
	if len(plan.Steps) == 0 && len(plan.Evidence) == 0 {
		return
	}
	fmt.Fprintf(w, "\n  %s\n", title)
	for i, s := range plan.Steps {
		fmt.Fprintf(w, "    %d. %s\n", i+1, s)
	}
	for _, e := range plan.Evidence {
		fmt.Fprintf(w, "    evidence: %s\n", e)
	}
}

func newControlsAdvanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance <control-id>",
		Short: "Move a control to its next workflow status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd, func(b *board.State) error {
				return report(cmd, b.AdvanceStatus(cmd.Context(), args[0]))
			})
		},
	}
}

func newControlsExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every control as JSON",
		Example: `  controldesk controls export > controls.json
  controldesk controls export -o controls.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			stack, err := openBoard(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = stack.Close(context.Background()) }()

			controls := stack.Board.Controls()
			if output == "" {
				return writeJSON(cmd.OutOrStdout(), controls)
			}
			data, err := json.MarshalIndent(controls, "", "  ")
			if err != nil {
				return err
			}
			if err := safefile.WriteFileAtomic(output, append(data, '\n'), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d controls to %s\n", len(controls), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newControlsImportCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Normalize a JSON array of controls and save each to the remote service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := safefile.ReadFileMax(args[0], maxImportBytes)
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			var raws []control.Raw
			if err := json.Unmarshal(data, &raws); err != nil {
				return fmt.Errorf("parsing %s: expected a JSON array of controls: %w", args[0], err)
			}
			controls, dropped := control.NormalizeAll(raws)
			out := cmd.OutOrStdout()
			if dropped > 0 {
				fmt.Fprintf(out, "Skipping %d records with duplicate ids.\n", dropped)
			}
			if dryRun {
				printRows(out, control.Project(controls))
				return nil
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var opts []remote.Option
			if cfg.Remote.TimeoutSeconds > 0 {
				opts = append(opts, remote.WithTimeout(time.Duration(cfg.Remote.TimeoutSeconds)*time.Second))
			}
			client := remote.NewClient(cfg.Remote.URL, opts...)

			p := newPainter(out)
			var failed int
			for _, c := range controls {
				if err := client.SaveControl(cmd.Context(), c); err != nil {
					failed++
					fmt.Fprintf(out, "  %s %s: %v\n", p.fail("✗"), c.ID, err)
					continue
				}
				fmt.Fprintf(out, "  %s %s\n", p.ok("✓"), c.ID)
			}
			fmt.Fprintf(out, "Imported %d of %d controls.\n", len(controls)-failed, len(controls))
			if failed > 0 {
				return fmt.Errorf("%d controls failed to save", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the normalized controls without saving")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
