package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/workflow"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var checkHealth bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				rows := buildStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(out, "Queue is empty")
				} else {
					fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, 2))
				}

				letters, err := store.ListDeadLetters(cmd.Context(), queue.DeadLetterFilter{})
				if err != nil {
					return err
				}
				if pending := countPendingDeadLetters(letters); pending > 0 {
					fmt.Fprintf(out, "%d dead-lettered job(s) awaiting operator review (scribe deadletter list)\n", pending)
				}

				if checkHealth {
					cfg, err := ctx.ensureConfig()
					if err != nil {
						return err
					}
					renderHealth(cmd, cfg, store)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&checkHealth, "health", false, "Probe stage worker readiness")
	return cmd
}

func buildStatusRows(stats map[queue.Status]int) [][]string {
	statuses := make([]queue.Status, 0, len(stats))
	for status, count := range stats {
		if count == 0 {
			continue
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })

	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		rows = append(rows, []string{string(status), fmt.Sprintf("%d", stats[status])})
	}
	return rows
}

func countPendingDeadLetters(letters []*queue.DeadLetterRecord) int {
	var pending int
	for _, record := range letters {
		if !record.Requeued {
			pending++
		}
	}
	return pending
}

func renderHealth(cmd *cobra.Command, cfg *config.Config, store *queue.Store) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(cmd.OutOrStdout())
	manager := workflow.NewManager(cfg, store, logging.NewNop())
	fmt.Fprintln(out, "Stage health:")
	for _, health := range manager.Health(cmd.Context()) {
		kind := statusOK
		detail := health.Detail
		if !health.Ready {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(health.Name, kind, detail, colorize))
	}
}
