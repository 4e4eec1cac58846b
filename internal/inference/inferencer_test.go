package inference_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"scribe/internal/config"
	"scribe/internal/inference"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/testsupport"
	"scribe/internal/workers"
)

type stubInferClient struct {
	availableErr error
	output       queue.InferOutput
	err          error
	lastRequest  workers.InferRequest
}

func (s *stubInferClient) Available(ctx context.Context) error {
	return s.availableErr
}

func (s *stubInferClient) Infer(ctx context.Context, req workers.InferRequest, progress workers.Progress) (queue.InferOutput, error) {
	s.lastRequest = req
	if s.err != nil {
		return queue.InferOutput{}, s.err
	}
	return s.output, nil
}

func seedTransformSection(t *testing.T, cfg *config.Config, job *queue.Job, duration float64) string {
	t.Helper()
	audio := filepath.Join(cfg.Paths.StagingDir, "normalized.wav")
	testsupport.WriteFile(t, audio, 128)
	if err := job.Metadata.WriteSection(queue.StageTransform, queue.TransformOutput{
		NormalizedPath: audio, DurationSeconds: duration,
	}); err != nil {
		t.Fatalf("seed transform section: %v", err)
	}
	return audio
}

func TestInferencerRoutesTierByDuration(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewSubmission(t, store, "media://tier1234")
	ctx := context.Background()

	// 30 minutes lands in the balanced tier with the default 10/60 bounds.
	audio := seedTransformSection(t, cfg, job, 30*60)

	client := &stubInferClient{output: queue.InferOutput{
		Units: []queue.InferredUnit{{StartSeconds: 0, EndSeconds: 5, Content: "hello", Confidence: 0.9}},
	}}
	handler := inference.NewInferencerWithClient(cfg, store, logging.NewNop(), client)
	if err := handler.Prepare(ctx, job); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := handler.Execute(ctx, job); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if client.lastRequest.Tier != workers.TierBalanced {
		t.Errorf("tier = %s, want balanced", client.lastRequest.Tier)
	}
	if client.lastRequest.AudioPath != audio {
		t.Errorf("audio path = %q", client.lastRequest.AudioPath)
	}
	if client.lastRequest.Language != "en" {
		t.Errorf("language = %q, want default en", client.lastRequest.Language)
	}

	var out queue.InferOutput
	if err := job.Metadata.Decode(queue.StageInfer, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Tier != string(workers.TierBalanced) {
		t.Errorf("recorded tier = %q", out.Tier)
	}
	if out.Language != "en" {
		t.Errorf("recorded language = %q", out.Language)
	}
}

func TestInferencerUsesItemLanguageHint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewSubmission(t, store, "media://lang1234")
	ctx := context.Background()

	item, err := store.GetSourceItem(ctx, job.SourceItemID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	item.Language = "deu"
	if err := store.UpdateSourceItem(ctx, item); err != nil {
		t.Fatalf("update item: %v", err)
	}
	seedTransformSection(t, cfg, job, 60)

	client := &stubInferClient{output: queue.InferOutput{
		Units: []queue.InferredUnit{{StartSeconds: 0, EndSeconds: 2, Content: "hallo"}},
	}}
	handler := inference.NewInferencerWithClient(cfg, store, logging.NewNop(), client)
	if err := handler.Execute(ctx, job); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if client.lastRequest.Language != "de" {
		t.Errorf("language = %q, want canonical de", client.lastRequest.Language)
	}
}

func TestInferencerUnavailableBackendIsRetryable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewSubmission(t, store, "media://down1234")

	seedTransformSection(t, cfg, job, 60)

	client := &stubInferClient{availableErr: services.Wrap(
		services.ErrUnavailable, "infer", "probe backend", "backend not ready", nil)}
	handler := inference.NewInferencerWithClient(cfg, store, logging.NewNop(), client)
	err := handler.Prepare(context.Background(), job)
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("error = %v, want unavailable", err)
	}
	if !services.Retryable(err) {
		t.Error("unavailable backend must be retryable")
	}
}

func TestInferencerEmptyOutputIsError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewSubmission(t, store, "media://empty123")

	seedTransformSection(t, cfg, job, 60)

	client := &stubInferClient{output: queue.InferOutput{}}
	handler := inference.NewInferencerWithClient(cfg, store, logging.NewNop(), client)
	err := handler.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error = %v, want external tool", err)
	}
	if job.Metadata.Has(queue.StageInfer) {
		t.Error("failed inference must not record a section")
	}
}
