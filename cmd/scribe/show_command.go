package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/queue"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var withTranscript bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}

			return ctx.withStore(func(store *queue.Store) error {
				job, err := store.GetJob(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %d not found", jobID)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job %d\n", job.ID)
				fmt.Fprintf(out, "  Owner:    %s\n", job.OwnerID)
				fmt.Fprintf(out, "  Status:   %s\n", job.Status)
				fmt.Fprintf(out, "  Stage:    %s\n", job.CurrentStage)
				fmt.Fprintf(out, "  Progress: %.0f%%\n", job.OverallProgress)
				fmt.Fprintf(out, "  Retries:  %d/%d\n", job.RetryCount, job.MaxRetries)
				if job.StatusMessage != "" {
					fmt.Fprintf(out, "  Message:  %s\n", job.StatusMessage)
				}
				if job.ErrorMessage != "" {
					fmt.Fprintf(out, "  Error:    %s\n", job.ErrorMessage)
				}
				if job.NextAttemptAt != nil {
					fmt.Fprintf(out, "  Next attempt: %s\n", job.NextAttemptAt.Local().Format(time.RFC3339))
				}

				fmt.Fprintln(out, "  Stages:")
				for _, stage := range queue.PipelineStages() {
					marker := " "
					if job.Metadata.Has(stage) {
						marker = "✓"
					}
					fmt.Fprintf(out, "    %s %-10s %3.0f%%\n", marker, stage, job.Progress[stage])
				}

				item, err := store.GetSourceItem(cmd.Context(), job.SourceItemID)
				if err != nil {
					return err
				}
				if item != nil {
					printSourceItem(cmd, item)
					if withTranscript && item.TranscribedAt != nil {
						if err := printTranscript(cmd, store, item.ID); err != nil {
							return err
						}
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&withTranscript, "transcript", false, "Print transcript units for completed items")
	return cmd
}

func printSourceItem(cmd *cobra.Command, item *queue.SourceItem) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Item %d (%s)\n", item.ID, item.ExternalID)
	if item.Title != "" {
		fmt.Fprintf(out, "  Title:    %s\n", item.Title)
	}
	if item.Author != "" {
		fmt.Fprintf(out, "  Author:   %s\n", item.Author)
	}
	if item.DurationSeconds > 0 {
		fmt.Fprintf(out, "  Duration: %s\n", (time.Duration(item.DurationSeconds * float64(time.Second))).Round(time.Second))
	}
	if item.Language != "" {
		fmt.Fprintf(out, "  Language: %s\n", item.Language)
	}
	if item.TranscribedAt != nil {
		fmt.Fprintf(out, "  Transcribed: %s (%d units)\n",
			item.TranscribedAt.Local().Format(time.RFC3339), item.UnitCount)
	}
}

func printTranscript(cmd *cobra.Command, store *queue.Store, itemID int64) error {
	units, err := store.UnitsForSourceItem(cmd.Context(), itemID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Transcript:")
	for _, unit := range units {
		fmt.Fprintf(out, "  [%8.2f - %8.2f] %s\n", unit.StartSeconds, unit.EndSeconds, unit.Content)
	}
	return nil
}
