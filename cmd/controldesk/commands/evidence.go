package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/controldesk/controldesk/internal/board"
	"github.com/controldesk/controldesk/internal/control"
	"github.com/controldesk/controldesk/internal/safefile"
)

func newControlsProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "progress <control-id> <percent>",
		Short:   "Raise a control's completion percentage without changing its status",
		Example: `  controldesk controls progress SOC2-3 75`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pct, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("percent must be a whole number, got %q", args[1])
			}
			return withBoard(cmd, func(b *board.State) error {
				return report(cmd, b.SetProgress(cmd.Context(), args[0], pct))
			})
		},
	}
}

func newControlsEvidenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evidence",
		Short: "List, upload and review evidence files",
	}
	cmd.AddCommand(
		newEvidenceListCmd(),
		newEvidenceAddCmd(),
		newEvidenceReviewCmd(),
		newEvidenceStatsCmd(),
	)
	return cmd
}

func newEvidenceListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list <control-id>",
		Short: "List the evidence attached to a control",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd, func(b *board.State) error {
				list, res := b.Evidence(cmd.Context(), args[0])
				if !res.OK {
					return fmt.Errorf("%s: %s", res.Kind, res.Message)
				}
				out := cmd.OutOrStdout()
				if asJSON {
					if list == nil {
						list = []control.Evidence{}
					}
					return writeJSON(out, list)
				}
				if len(list) == 0 {
					fmt.Fprintf(out, "No evidence for %s.\n", args[0])
					return nil
				}
				p := newPainter(out)
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "ID\tFILE\tSIZE\tUPLOADED\tSTATUS\n") //nolint:errcheck // CLI output
				for _, e := range list {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", //nolint:errcheck // CLI output
						e.ID, e.Filename, e.Size, e.UploadDate.Format("2006-01-02"), p.evidence(e.Status))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newEvidenceAddCmd() *cobra.Command {
	var description, uploadedBy string

	cmd := &cobra.Command{
		Use:   "add <control-id> <file>",
		Short: "Upload a file as evidence for a control",
		Example: `  controldesk controls evidence add SOC2-3 access-review.pdf --by dana
  controldesk controls evidence add SOC2-3 fw.txt -d "Q1 firewall export"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := safefile.ReadFileMax(args[1], control.MaxEvidenceBytes)
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[1], err)
			}
			return withBoard(cmd, func(b *board.State) error {
				return report(cmd, b.AddEvidence(cmd.Context(), args[0], board.EvidenceUpload{
					Filename:    filepath.Base(args[1]),
					Description: description,
					UploadedBy:  uploadedBy,
					Content:     content,
				}))
			})
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "what the file shows")
	cmd.Flags().StringVar(&uploadedBy, "by", "", "who is uploading")
	return cmd
}

func newEvidenceReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review <control-id> <evidence-id> <approved|rejected|pending_review>",
		Short: "Set the review status of an evidence file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd, func(b *board.State) error {
				return report(cmd, b.ReviewEvidence(cmd.Context(), args[0], args[1], args[2]))
			})
		},
	}
}

func newEvidenceStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Evidence review counts across all controls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd, func(b *board.State) error {
				st, res := b.EvidenceStats(cmd.Context())
				if !res.OK {
					return fmt.Errorf("%s: %s", res.Kind, res.Message)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d files: %d approved, %d pending, %d rejected (%.1f%% approved)\n",
					st.Total, st.Approved, st.Pending, st.Rejected, st.ApprovalRate)
				return nil
			})
		},
	}
}

// withBoard loads the config, opens the board stack and closes it after fn.
func withBoard(cmd *cobra.Command, fn func(*board.State) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stack, err := openBoard(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = stack.Close(context.Background()) }()
	return fn(stack.Board)
}

// report prints a successful result or turns a failed one into an error.
func report(cmd *cobra.Command, res board.Result) error {
	if !res.OK {
		return fmt.Errorf("%s: %s", res.Kind, res.Message)
	}
	fmt.Fprintln(cmd.OutOrStdout(), newPainter(cmd.OutOrStdout()).ok(res.Message))
	return nil
}
