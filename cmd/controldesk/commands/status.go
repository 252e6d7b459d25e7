package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/controldesk/controldesk/internal/auditcheck"
	"github.com/controldesk/controldesk/internal/control"
	"github.com/controldesk/controldesk/internal/server"
)

func newStatusCmd() *cobra.Command {
	var gaps int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show dashboard counters, compliance score and open gaps",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			stack, err := openStackNoLoad(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = stack.Close(context.Background()) }()

			out := cmd.OutOrStdout()
			p := newPainter(out)

			fmt.Fprintln(out)
			fmt.Fprintln(out, "  controldesk status")
			fmt.Fprintln(out, "  ────────────────────────────────────────")
			fmt.Fprintf(out, "  Config:        %s\n", cfgFile)
			score, grade := auditcheck.ComputeHealthScore(auditcheck.RunChecks(cfg, "", os.LookupEnv))
			fmt.Fprintf(out, "  Health:        %d/100 (%s)\n", score, grade)
			fmt.Fprintf(out, "  Remote:        %s", cfg.Remote.URL)
			if h, err := stack.Remote.Health(cmd.Context()); err != nil {
				fmt.Fprintf(out, " (%s)\n", p.fail("unreachable"))
				fmt.Fprintln(out)
				return nil
			} else if h.Version != "" {
				fmt.Fprintf(out, " (%s, %s)\n", p.ok(h.Status), h.Version)
			} else {
				fmt.Fprintf(out, " (%s)\n", p.ok(h.Status))
			}

			if res := stack.Board.Reload(cmd.Context()); !res.OK {
				return fmt.Errorf("loading controls: %s", res.Message)
			}
			printSummary(out, p, stack)
			printGaps(out, p, stack.Board.Gaps(gaps))
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().IntVar(&gaps, "gaps", control.DefaultGapLimit, "number of open gaps to list")
	return cmd
}

func printSummary(w io.Writer, p painter, stack *server.Stack) {
	s := stack.Board.SummaryCounts()
	a := stack.Board.Analytics()

	fmt.Fprintln(w, "  ────────────────────────────────────────")
	fmt.Fprintf(w, "  Controls:      %d\n", s.Total)
	fmt.Fprintf(w, "  High risk:     %s\n", p.risk(control.RiskHigh)+fmt.Sprintf(" %d", s.HighRisk))
	fmt.Fprintf(w, "  Approved:      %d\n", s.Completed)
	fmt.Fprintf(w, "  In progress:   %d\n", s.InProgress)
	fmt.Fprintf(w, "  Not started:   %d\n", s.NotStarted)
	fmt.Fprintf(w, "  Compliance:    %.1f%%\n", a.ComplianceScore)

	if len(a.ByArea) > 0 {
		fmt.Fprintln(w, "  ────────────────────────────────────────")
		fmt.Fprintln(w, "  By area:")
		for _, g := range a.ByArea {
			fmt.Fprintf(w, "    %-28s %3d/%-3d %s\n", truncate(g.Name, 28), g.Approved, g.Total, scoreBar(g.Score))
		}
	}
}

func printGaps(w io.Writer, p painter, gaps []control.Gap) {
	if len(gaps) == 0 {
		return
	}
	fmt.Fprintln(w, "  ────────────────────────────────────────")
	fmt.Fprintln(w, "  Open gaps:")
	for _, g := range gaps {
		fmt.Fprintf(w, "    %-12s %s  %s\n", g.ID, p.risk(g.Risk)+strings.Repeat(" ", pad(string(g.Risk), 6)), truncate(g.Description, 50))
	}
}

// scoreBar renders a 0-100 score as a ten-cell bar.
func scoreBar(score float64) string {
	filled := int(score/10 + 0.5)
	if filled > 10 {
		filled = 10
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", 10-filled) + fmt.Sprintf(" %.0f%%", score)
}
