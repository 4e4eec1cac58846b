package fetching_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"scribe/internal/fetching"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/testsupport"
	"scribe/internal/workers"
)

type stubFetchClient struct {
	path string
	size int64
	err  error
}

func (s *stubFetchClient) Fetch(ctx context.Context, externalID, destDir string, progress workers.Progress) (queue.FetchOutput, error) {
	if s.err != nil {
		return queue.FetchOutput{}, s.err
	}
	if progress != nil {
		progress(100)
	}
	return queue.FetchOutput{LocalPath: s.path, SizeBytes: s.size}, nil
}

func TestFetcherRecordsOutputSection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewSubmission(t, store, "media://fetch123")
	ctx := context.Background()

	downloaded := filepath.Join(cfg.Paths.StagingDir, "media.bin")
	testsupport.WriteFile(t, downloaded, 4096)

	handler := fetching.NewFetcherWithClient(cfg, store, logging.NewNop(), &stubFetchClient{path: downloaded})
	if err := handler.Prepare(ctx, job); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := handler.Execute(ctx, job); err != nil {
		t.Fatalf("execute: %v", err)
	}

	var out queue.FetchOutput
	if err := job.Metadata.Decode(queue.StageFetch, &out); err != nil {
		t.Fatalf("decode section: %v", err)
	}
	if out.LocalPath != downloaded {
		t.Errorf("local path = %q", out.LocalPath)
	}
	if out.SizeBytes != 4096 {
		t.Errorf("size = %d, want 4096 from stat", out.SizeBytes)
	}
	if job.Progress[queue.StageFetch] != 100 {
		t.Errorf("progress = %v", job.Progress[queue.StageFetch])
	}
}

func TestFetcherMissingSourceItemIsPrecondition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := &queue.Job{ID: 99, Metadata: queue.Bag{}, Progress: queue.NewStageProgress()}

	handler := fetching.NewFetcherWithClient(cfg, store, logging.NewNop(), &stubFetchClient{})
	err := handler.Prepare(context.Background(), job)
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("error = %v, want precondition", err)
	}
}

func TestFetcherMissingDownloadIsExternalToolError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewSubmission(t, store, "media://gone1234")

	client := &stubFetchClient{path: filepath.Join(cfg.Paths.StagingDir, "never-written.bin")}
	handler := fetching.NewFetcherWithClient(cfg, store, logging.NewNop(), client)
	err := handler.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error = %v, want external tool", err)
	}
	if job.Metadata.Has(queue.StageFetch) {
		t.Error("failed fetch must not record a section")
	}
}

func TestFetcherHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	handler := fetching.NewFetcher(cfg, store, logging.NewNop())
	if health := handler.HealthCheck(context.Background()); !health.Ready {
		t.Errorf("health = %+v, want ready", health)
	}

	cfg.Tools.FetchCommand = ""
	handler = fetching.NewFetcher(cfg, store, logging.NewNop())
	if health := handler.HealthCheck(context.Background()); health.Ready {
		t.Error("health should be not ready without a fetch_command")
	}
}
