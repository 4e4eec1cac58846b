package main

import (
	"fmt"
	"os/user"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/queue"
	"scribe/internal/workflow"
)

func newDeadLetterCommand(ctx *commandContext) *cobra.Command {
	deadLetterCmd := &cobra.Command{
		Use:     "deadletter",
		Aliases: []string{"dl"},
		Short:   "Inspect and requeue permanently failed jobs",
	}

	deadLetterCmd.AddCommand(newDeadLetterListCommand(ctx))
	deadLetterCmd.AddCommand(newDeadLetterRequeueCommand(ctx))
	deadLetterCmd.AddCommand(newDeadLetterReasonsCommand(ctx))

	return deadLetterCmd
}

func newDeadLetterListCommand(ctx *commandContext) *cobra.Command {
	var (
		reason string
		since  time.Duration
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead letter records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.DeadLetterFilter{Reason: reason, Limit: limit}
			if since > 0 {
				cutoff := time.Now().Add(-since)
				filter.Since = &cutoff
			}

			return ctx.withStore(func(store *queue.Store) error {
				records, err := store.ListDeadLetters(cmd.Context(), filter)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No dead letters")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Job", "Owner", "Stage", "Reason", "Created", "Requeued"},
					buildDeadLetterRows(records),
					1,
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Only records with this exact reason")
	cmd.Flags().DurationVar(&since, "since", 0, "Only records newer than this age (e.g. 24h)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum records to show (0 for all)")
	return cmd
}

func newDeadLetterRequeueCommand(ctx *commandContext) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "requeue <job-id>",
		Short: "Return a dead-lettered job to the queue with a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			if strings.TrimSpace(actor) == "" {
				actor = currentUserName()
			}

			return ctx.withStore(func(store *queue.Store) error {
				job, err := workflow.RequeueDeadLetter(cmd.Context(), store, jobID, actor)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %d requeued at stage %s by %s\n",
					job.ID, job.CurrentStage, actor)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&actor, "by", "", "Operator recorded on the audit trail (defaults to the current user)")
	return cmd
}

func newDeadLetterReasonsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reasons",
		Short: "Aggregate dead letters by failure reason",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				counts, err := store.FailureReasonCounts(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(counts) == 0 {
					fmt.Fprintln(out, "No dead letters")
					return nil
				}

				reasons := make([]string, 0, len(counts))
				for reason := range counts {
					reasons = append(reasons, reason)
				}
				sort.Slice(reasons, func(i, j int) bool {
					if counts[reasons[i]] != counts[reasons[j]] {
						return counts[reasons[i]] > counts[reasons[j]]
					}
					return reasons[i] < reasons[j]
				})

				rows := make([][]string, 0, len(reasons))
				for _, reason := range reasons {
					rows = append(rows, []string{reason, fmt.Sprintf("%d", counts[reason])})
				}
				fmt.Fprintln(out, renderTable([]string{"Reason", "Count"}, rows, 2))
				return nil
			})
		},
	}
}

func buildDeadLetterRows(records []*queue.DeadLetterRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		requeued := "no"
		if record.Requeued {
			requeued = "by " + record.RequeuedBy
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", record.JobID),
			record.OwnerID,
			string(record.Stage),
			truncate(record.Reason, 48),
			formatRelativeTime(record.CreatedAt),
			requeued,
		})
	}
	return rows
}

func currentUserName() string {
	if current, err := user.Current(); err == nil && current.Username != "" {
		return current.Username
	}
	return "operator"
}
