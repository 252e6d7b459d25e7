package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/controldesk/controldesk/internal/remote"
)

func newPlanCmd() *cobra.Command {
	var framework, industry string
	var stack []string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Generate a control set for a framework and tech stack",
		Long: `Asks the remote control service for a new control set. The generated
controls replace the stored controls of that framework.`,
		Example: `  controldesk plan --framework "SOC 2" --industry fintech --stack AWS,PostgreSQL,GitHub`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(framework) == "" {
				return fmt.Errorf("--framework is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStackNoLoad(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close(context.Background()) }()

			res := st.Board.GeneratePlan(cmd.Context(), remote.PlanRequest{
				Framework: framework,
				Industry:  industry,
				TechStack: remote.DedupeStack(stack),
			})
			if !res.OK {
				return fmt.Errorf("%s: %s", res.Kind, res.Message)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, newPainter(out).ok(res.Message))
			if plan, ok := st.Board.Plan(); ok && plan.Summary != "" {
				fmt.Fprintln(out, plan.Summary)
			}
			fmt.Fprintln(out)
			printRows(out, st.Board.Rows())
			return nil
		},
	}

	cmd.Flags().StringVar(&framework, "framework", "", "compliance framework, e.g. SOC 2, ISO 27001, PCI DSS")
	cmd.Flags().StringVar(&industry, "industry", "", "industry the controls are tailored to")
	cmd.Flags().StringSliceVar(&stack, "stack", nil, "comma-separated technologies (AWS, Azure, GCP, Kubernetes, PostgreSQL, GitHub)")
	return cmd
}
