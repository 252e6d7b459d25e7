package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/controldesk/controldesk/internal/auditcheck"
)

func newAuditCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check the configuration for risky settings",
		Example: `  controldesk audit
  controldesk audit --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path := cfgFile
			if _, err := os.Stat(path); err != nil {
				path = ""
			}
			findings := auditcheck.RunChecks(cfg, path, os.LookupEnv)
			score, grade := auditcheck.ComputeHealthScore(findings)
			out := cmd.OutOrStdout()

			if asJSON {
				if findings == nil {
					findings = []auditcheck.Finding{}
				}
				return writeJSON(out, struct {
					Score    int                  `json:"score"`
					Grade    string               `json:"grade"`
					Summary  auditcheck.Summary   `json:"summary"`
					Findings []auditcheck.Finding `json:"findings"`
				}{score, grade, auditcheck.Summarize(findings), findings})
			}

			printFindings(out, findings)
			fmt.Fprintf(out, "\nHealth: %d/100 (%s)\n", score, grade)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print findings as JSON")
	return cmd
}

func printFindings(w io.Writer, findings []auditcheck.Finding) {
	p := newPainter(w)
	if len(findings) == 0 {
		fmt.Fprintln(w, p.ok("No issues found."))
		return
	}
	for _, f := range findings {
		fmt.Fprintf(w, "%s [%s] %s\n", severityLabel(p, f.Severity), f.CheckID, f.Title)
		fmt.Fprintf(w, "    %s\n", f.Detail)
		if f.Remediation != "" {
			fmt.Fprintf(w, "    %s %s\n", p.dim("fix:"), f.Remediation)
		}
	}
}

func severityLabel(p painter, s auditcheck.Severity) string {
	label := fmt.Sprintf("%-8s", s)
	switch s {
	case auditcheck.Critical:
		return p.paint(label, color.FgRed, color.Bold)
	case auditcheck.High:
		return p.paint(label, color.FgRed)
	case auditcheck.Medium:
		return p.paint(label, color.FgYellow)
	}
	return p.dim(label)
}
