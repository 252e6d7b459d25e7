package commands

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/controldesk/controldesk/internal/audit"
)

func newHistoryCmd() *cobra.Command {
	var eventType, controlID, since, search string
	var limit int
	var stats bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query the activity journal",
		Example: `  controldesk history
  controldesk history --control SOC2-3
  controldesk history --type persist_failed --since 24h
  controldesk history --stats`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Journal.Path == "" {
				return fmt.Errorf("journal is disabled (journal.path is empty)")
			}
			if _, err := os.Stat(cfg.Journal.Path); err != nil {
				return fmt.Errorf("no journal at %s: %w", cfg.Journal.Path, err)
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
			store, err := audit.NewStore(cfg.Journal.Path, logger)
			if err != nil {
				return fmt.Errorf("opening journal: %w", err)
			}
			defer store.Close() //nolint:errcheck // best-effort cleanup

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

			if stats {
				st, err := store.QueryStats()
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "EVENT\tCOUNT\tFAILED\n") //nolint:errcheck // CLI output
				for _, s := range st {
					fmt.Fprintf(tw, "%s\t%d\t%d\n", s.Type, s.Count, s.Failed) //nolint:errcheck // CLI output
				}
				return tw.Flush()
			}

			var sinceTime string
			if since != "" {
				dur, err := time.ParseDuration(since)
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", since, err)
				}
				sinceTime = time.Now().Add(-dur).UTC().Format(audit.TimeLayout)
			}

			entries, err := store.Query(audit.QueryOpts{
				Type:      eventType,
				ControlID: controlID,
				Since:     sinceTime,
				Search:    search,
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No journal entries found.")
				return nil
			}

			p := newPainter(out)
			fmt.Fprintf(tw, "TIME\tEVENT\tCONTROL\tCHANGE\tRESULT\tMESSAGE\n") //nolint:errcheck // CLI output
			for _, e := range entries {
				change := ""
				if e.FromStatus != "" || e.ToStatus != "" {
					change = e.FromStatus + " → " + e.ToStatus
				}
				result := p.ok("ok")
				if !e.OK {
					result = p.fail("failed")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", //nolint:errcheck // CLI output
					e.Timestamp, e.Type, e.ControlID, change, result, e.Message)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type (status_advanced, persist_failed, ...)")
	cmd.Flags().StringVar(&controlID, "control", "", "filter by control id")
	cmd.Flags().StringVar(&since, "since", "", "show entries since duration (e.g. 1h, 30m)")
	cmd.Flags().StringVar(&search, "search", "", "match control id, type or message")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")
	cmd.Flags().BoolVar(&stats, "stats", false, "show counts per event type")
	return cmd
}
