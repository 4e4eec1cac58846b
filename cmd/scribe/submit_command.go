package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"scribe/internal/ingest"
	"scribe/internal/logging"
	"scribe/internal/queue"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "submit <identifier>",
		Short: "Submit a media item for transcription",
		Long: `Submit a media item for transcription.

The identifier may be a canonical media:// ID or an http(s) URL the
gatekeeper can reduce to one. Resubmitting an already known item is a
no-op that reports the existing job.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				gatekeeper := ingest.NewGatekeeper(cfg, store, logging.NewNop())
				result, err := gatekeeper.Submit(cmd.Context(), owner, args[0])
				if err != nil {
					if errors.Is(err, ingest.ErrRateLimited) {
						return fmt.Errorf("submission rejected: owner %q is over the per-minute limit", owner)
					}
					return err
				}

				out := cmd.OutOrStdout()
				if result.AlreadyExists {
					fmt.Fprintf(out, "Item %d already submitted; tracked by job %d (%s)\n",
						result.Item.ID, result.Job.ID, result.Job.Status)
					return nil
				}
				fmt.Fprintf(out, "Item %d queued as job %d\n", result.Item.ID, result.Job.ID)
				if result.Item.Title != "" {
					fmt.Fprintf(out, "Title: %s\n", result.Item.Title)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner the submission is attributed to")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
