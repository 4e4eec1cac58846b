package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "pipeline.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestSubmission(t *testing.T, store *Store, externalID string) *Job {
	t.Helper()
	item := &SourceItem{ExternalID: externalID, Title: "Test Item"}
	job, err := store.CreateSubmission(context.Background(), item, "owner-1", 3)
	if err != nil {
		t.Fatalf("create submission: %v", err)
	}
	return job
}

func TestCreateSubmissionLinksItemAndJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := newTestSubmission(t, store, "media://abc123")
	if job.Status != StatusPending {
		t.Errorf("status = %s, want %s", job.Status, StatusPending)
	}
	if job.CurrentStage != StageNone {
		t.Errorf("stage = %s, want %s", job.CurrentStage, StageNone)
	}

	item, err := store.FindSourceItemByExternalID(ctx, "media://abc123")
	if err != nil {
		t.Fatalf("find source item: %v", err)
	}
	if item == nil {
		t.Fatal("expected source item")
	}
	if item.ID != job.SourceItemID {
		t.Errorf("item id = %d, want %d", item.ID, job.SourceItemID)
	}

	latest, err := store.LatestJobForSourceItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("latest job: %v", err)
	}
	if latest == nil || latest.ID != job.ID {
		t.Fatalf("latest job = %+v, want id %d", latest, job.ID)
	}
}

func TestCreateSubmissionDuplicateExternalID(t *testing.T) {
	store := newTestStore(t)
	newTestSubmission(t, store, "media://dup")

	_, err := store.CreateSubmission(context.Background(), &SourceItem{ExternalID: "media://dup"}, "owner-2", 3)
	if err == nil {
		t.Fatal("expected unique constraint error for duplicate external id")
	}
}

func TestClaimStageSingleWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job := newTestSubmission(t, store, "media://claim")

	claimed, err := store.ClaimStage(ctx, job.ID, StageFetch)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !claimed {
		t.Fatal("first claim should succeed")
	}

	again, err := store.ClaimStage(ctx, job.ID, StageFetch)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again {
		t.Fatal("second claim should lose the compare-and-set")
	}

	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != StatusRunning {
		t.Errorf("status = %s, want %s", got.Status, StatusRunning)
	}
	if got.CurrentStage != StageFetch {
		t.Errorf("stage = %s, want %s", got.CurrentStage, StageFetch)
	}
	if got.StartedAt == nil || got.LastHeartbeat == nil {
		t.Error("claim should stamp started_at and last_heartbeat")
	}
}

func TestNextRunnableHonorsBackoffDeadline(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job := newTestSubmission(t, store, "media://backoff")

	if err := store.ScheduleRetry(ctx, job, time.Hour); err != nil {
		t.Fatalf("schedule retry: %v", err)
	}

	next, err := store.NextRunnable(ctx)
	if err != nil {
		t.Fatalf("next runnable: %v", err)
	}
	if next != nil {
		t.Fatalf("job with future deadline should not be runnable, got %d", next.ID)
	}

	past := time.Now().UTC().Add(-time.Minute)
	job.NextAttemptAt = &past
	if err := store.UpdateJob(ctx, job); err != nil {
		t.Fatalf("update job: %v", err)
	}

	next, err = store.NextRunnable(ctx)
	if err != nil {
		t.Fatalf("next runnable after deadline: %v", err)
	}
	if next == nil || next.ID != job.ID {
		t.Fatalf("expected job %d to be runnable", job.ID)
	}
	if next.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", next.RetryCount)
	}
}

func TestUpdateJobRoundTripsMetadataAndProgress(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job := newTestSubmission(t, store, "media://roundtrip")

	job.CurrentStage = StageFetch
	job.Progress[StageFetch] = 100
	job.RecomputeOverall()
	if err := job.Metadata.WriteSection(StageFetch, FetchOutput{LocalPath: "/tmp/a.bin", SizeBytes: 42}); err != nil {
		t.Fatalf("write section: %v", err)
	}
	if err := store.UpdateJob(ctx, job); err != nil {
		t.Fatalf("update job: %v", err)
	}

	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Progress[StageFetch] != 100 {
		t.Errorf("fetch progress = %v, want 100", got.Progress[StageFetch])
	}
	if got.OverallProgress != 25 {
		t.Errorf("overall progress = %v, want 25", got.OverallProgress)
	}

	var fetched FetchOutput
	if err := got.Metadata.Decode(StageFetch, &fetched); err != nil {
		t.Fatalf("decode section: %v", err)
	}
	if fetched.LocalPath != "/tmp/a.bin" || fetched.SizeBytes != 42 {
		t.Errorf("fetch section = %+v", fetched)
	}
}

func TestReclaimStaleRunning(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job := newTestSubmission(t, store, "media://stale")

	if _, err := store.ClaimStage(ctx, job.ID, StageFetch); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Heartbeat is fresh, nothing to reclaim.
	reclaimed, err := store.ReclaimStaleRunning(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("reclaimed = %d, want 0", reclaimed)
	}

	reclaimed, err = store.ReclaimStaleRunning(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("reclaim past cutoff: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("reclaimed = %d, want 1", reclaimed)
	}

	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("status = %s, want %s", got.Status, StatusPending)
	}
	if got.CurrentStage != StageFetch {
		t.Errorf("stage = %s, want %s (resume at start of interrupted stage)", got.CurrentStage, StageFetch)
	}
}

func TestStuckRunningSurfacesClaimedJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job := newTestSubmission(t, store, "media://wedged")
	newTestSubmission(t, store, "media://waiting")

	claimed, err := store.ClaimStage(ctx, job.ID, StageFetch)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed {
		t.Fatal("claim should win on a pending job")
	}

	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.StartedAt == nil {
		t.Error("claim must stamp started_at")
	}
	if got.LastHeartbeat == nil {
		t.Error("claim must stamp last_heartbeat")
	}

	stuck, err := store.StuckRunning(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("stuck running: %v", err)
	}
	if len(stuck) != 1 {
		t.Fatalf("stuck jobs = %d, want 1 (only the claimed job)", len(stuck))
	}
	if stuck[0].ID != job.ID {
		t.Errorf("stuck job = %d, want %d", stuck[0].ID, job.ID)
	}
}

func TestReplaceUnitsSwapsAtomically(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job := newTestSubmission(t, store, "media://units")

	first := []ResultUnit{
		{SourceItemID: job.SourceItemID, SequenceIndex: 0, StartSeconds: 0, EndSeconds: 2, Content: "hello"},
		{SourceItemID: job.SourceItemID, SequenceIndex: 1, StartSeconds: 2, EndSeconds: 4, Content: "world"},
	}
	if err := store.ReplaceUnits(ctx, job.SourceItemID, first); err != nil {
		t.Fatalf("replace units: %v", err)
	}

	second := []ResultUnit{
		{SourceItemID: job.SourceItemID, SequenceIndex: 0, StartSeconds: 0, EndSeconds: 4, Content: "hello world"},
	}
	if err := store.ReplaceUnits(ctx, job.SourceItemID, second); err != nil {
		t.Fatalf("replace units again: %v", err)
	}

	units, err := store.UnitsForSourceItem(ctx, job.SourceItemID)
	if err != nil {
		t.Fatalf("units for item: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("unit count = %d, want 1", len(units))
	}
	if units[0].Content != "hello world" {
		t.Errorf("content = %q", units[0].Content)
	}

	count, err := store.CountUnits(ctx, job.SourceItemID)
	if err != nil {
		t.Fatalf("count units: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestMarkTranscribedStampsTerminalFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job := newTestSubmission(t, store, "media://done")

	if err := store.MarkTranscribed(ctx, job.SourceItemID, 7, "en"); err != nil {
		t.Fatalf("mark transcribed: %v", err)
	}

	item, err := store.GetSourceItem(ctx, job.SourceItemID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.TranscribedAt == nil {
		t.Error("transcribed_at should be set")
	}
	if item.UnitCount != 7 {
		t.Errorf("unit count = %d, want 7", item.UnitCount)
	}
	if item.Language != "en" {
		t.Errorf("language = %q, want en", item.Language)
	}
}

func TestAppendDeadLetterIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job := newTestSubmission(t, store, "media://dead")
	job.CurrentStage = StageInfer
	job.ErrorMessage = "inference backend unavailable"

	if err := store.AppendDeadLetter(ctx, job, "infer: backend unavailable"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendDeadLetter(ctx, job, "infer: backend unavailable (replay)"); err != nil {
		t.Fatalf("replayed append: %v", err)
	}

	records, err := store.ListDeadLetters(ctx, DeadLetterFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("record count = %d, want exactly 1", len(records))
	}
	if records[0].Reason != "infer: backend unavailable" {
		t.Errorf("reason = %q, first write should win", records[0].Reason)
	}
	if records[0].Stage != StageInfer {
		t.Errorf("stage = %s, want %s", records[0].Stage, StageInfer)
	}
}

func TestListDeadLettersFiltering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jobA := newTestSubmission(t, store, "media://dla")
	jobA.CurrentStage = StageFetch
	jobB := newTestSubmission(t, store, "media://dlb")
	jobB.CurrentStage = StageTransform

	if err := store.AppendDeadLetter(ctx, jobA, "fetch: source removed"); err != nil {
		t.Fatalf("append a: %v", err)
	}
	if err := store.AppendDeadLetter(ctx, jobB, "transform: codec unsupported"); err != nil {
		t.Fatalf("append b: %v", err)
	}

	records, err := store.ListDeadLetters(ctx, DeadLetterFilter{Reason: "fetch: source removed"})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(records) != 1 || records[0].JobID != jobA.ID {
		t.Fatalf("filtered records = %+v", records)
	}

	counts, err := store.FailureReasonCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["fetch: source removed"] != 1 || counts["transform: codec unsupported"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestMarkRequeuedKeepsFirstAttribution(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job := newTestSubmission(t, store, "media://requeue")

	if err := store.AppendDeadLetter(ctx, job, "fetch: timeout"); err != nil {
		t.Fatalf("append: %v", err)
	}
	record, err := store.GetDeadLetterByJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}

	if err := store.MarkRequeued(ctx, record.ID, "alice"); err != nil {
		t.Fatalf("mark requeued: %v", err)
	}
	if err := store.MarkRequeued(ctx, record.ID, "bob"); err != nil {
		t.Fatalf("second mark: %v", err)
	}

	got, err := store.GetDeadLetterByJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get record again: %v", err)
	}
	if !got.Requeued {
		t.Error("record should be marked requeued")
	}
	if got.RequeuedBy != "alice" {
		t.Errorf("requeued_by = %q, want alice", got.RequeuedBy)
	}
}

func TestStatsGroupsByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := newTestSubmission(t, store, "media://stats1")
	newTestSubmission(t, store, "media://stats2")
	if _, err := store.ClaimStage(ctx, a.ID, StageFetch); err != nil {
		t.Fatalf("claim: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[StatusRunning] != 1 {
		t.Errorf("running = %d, want 1", stats[StatusRunning])
	}
	if stats[StatusPending] != 1 {
		t.Errorf("pending = %d, want 1", stats[StatusPending])
	}
}
