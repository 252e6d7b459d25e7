package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/controldesk/controldesk/internal/scan"
)

func newRulesCmd() *cobra.Command {
	var explain string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List or explain the document scanning rules",
		Example: `  controldesk rules
  controldesk rules --explain CDK-001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sev, err := scan.ParseSeverity(cfg.Scan.BlockSeverity)
			if err != nil {
				return err
			}
			scanner := scan.NewScanner(cfg.Scan.CustomRulesDir, sev)
			defer scanner.Close() //nolint:errcheck // best-effort cleanup
			out := cmd.OutOrStdout()

			if explain != "" {
				detail, err := scanner.ExplainRule(explain)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Rule: %s\n", detail.ID)
				fmt.Fprintf(out, "Name: %s\n", detail.Name)
				fmt.Fprintf(out, "Severity: %s\n", detail.Severity)
				fmt.Fprintf(out, "Category: %s\n", detail.Category)
				fmt.Fprintf(out, "Description: %s\n", detail.Description)
				fmt.Fprintln(out, "\nPatterns:")
				for _, p := range detail.Patterns {
					fmt.Fprintf(out, "  %s\n", p)
				}
				return nil
			}

			rules := scanner.ListRules()
			fmt.Fprintf(out, "Loaded %d detection rules (saves blocked at %s and above):\n\n", len(rules), sev)
			for _, r := range rules {
				fmt.Fprintf(out, "  %-28s %-10s %s\n", r.ID, r.Severity, r.Name)
			}

			outcome, err := scanner.Scan(cmd.Context(), "# Access Control Policy\n\nAll access is reviewed quarterly.")
			if err != nil {
				return fmt.Errorf("engine check: %w", err)
			}
			fmt.Fprintf(out, "\nEngine status: OK (sample policy: %s)\n", outcome.Verdict)
			if !cfg.Scan.Enabled {
				fmt.Fprintln(out, "Note: scan.enabled is false; documents are saved without scanning.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&explain, "explain", "", "explain a specific rule by ID")
	return cmd
}
