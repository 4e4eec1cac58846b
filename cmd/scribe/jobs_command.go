package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/queue"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List pipeline jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatusFilters(statusFilters)
			if err != nil {
				return err
			}
			if len(statuses) == 0 {
				statuses = []queue.Status{queue.StatusPending, queue.StatusRunning, queue.StatusFailed}
			}

			return ctx.withStore(func(store *queue.Store) error {
				jobs, err := store.JobsByStatus(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No matching jobs")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Status", "Stage", "Progress", "Retries", "Updated", "Message"},
					buildJobRows(jobs),
					1, 4, 5,
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statusFilters, "status", nil,
		"Statuses to include (pending, running, completed, failed, cancelled); default pending,running,failed")
	return cmd
}

func parseStatusFilters(raw []string) ([]queue.Status, error) {
	var statuses []queue.Status
	for _, value := range raw {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func buildJobRows(jobs []*queue.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		message := job.StatusMessage
		if job.ErrorMessage != "" {
			message = job.ErrorMessage
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", job.ID),
			string(job.Status),
			string(job.CurrentStage),
			fmt.Sprintf("%.0f%%", job.OverallProgress),
			fmt.Sprintf("%d/%d", job.RetryCount, job.MaxRetries),
			formatRelativeTime(job.UpdatedAt),
			truncate(message, 48),
		})
	}
	return rows
}

func formatRelativeTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	elapsed := time.Since(ts)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	default:
		return ts.Local().Format("2006-01-02 15:04")
	}
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
