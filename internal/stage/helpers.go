package stage

import (
	"fmt"

	"scribe/internal/queue"
	"scribe/internal/services"
)

// RequireSection decodes an upstream stage's metadata section into out. A
// missing or undecodable section is a precondition failure: the stage chain
// was entered without its input and the job must not burn retry budget on it.
func RequireSection(job *queue.Job, owner queue.Stage, out any) error {
	if !job.Metadata.Has(owner) {
		return services.Wrap(
			services.ErrPrecondition, "stage", "require metadata",
			fmt.Sprintf("%s output missing from job metadata", owner), nil)
	}
	if err := job.Metadata.Decode(owner, out); err != nil {
		return services.Wrap(
			services.ErrPrecondition, "stage", "require metadata",
			fmt.Sprintf("%s output unreadable", owner), err)
	}
	return nil
}
