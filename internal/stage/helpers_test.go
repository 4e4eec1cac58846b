package stage_test

import (
	"errors"
	"testing"

	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/stage"
)

func TestRequireSectionMissingIsPrecondition(t *testing.T) {
	job := &queue.Job{Metadata: queue.Bag{}}
	var out queue.FetchOutput
	err := stage.RequireSection(job, queue.StageFetch, &out)
	if err == nil {
		t.Fatal("expected error for missing section")
	}
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("error = %v, want precondition", err)
	}
	if services.Retryable(err) {
		t.Error("precondition failures must not be retryable")
	}
}

func TestRequireSectionDecodes(t *testing.T) {
	job := &queue.Job{Metadata: queue.Bag{}}
	if err := job.Metadata.WriteSection(queue.StageFetch, queue.FetchOutput{LocalPath: "/tmp/x"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out queue.FetchOutput
	if err := stage.RequireSection(job, queue.StageFetch, &out); err != nil {
		t.Fatalf("require: %v", err)
	}
	if out.LocalPath != "/tmp/x" {
		t.Errorf("path = %q", out.LocalPath)
	}
}
