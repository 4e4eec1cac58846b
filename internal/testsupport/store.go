package testsupport

import (
	"context"
	"testing"

	"scribe/internal/config"
	"scribe/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewSubmission creates a source item and its job for tests.
func NewSubmission(t testing.TB, store *queue.Store, externalID string) *queue.Job {
	t.Helper()

	item := &queue.SourceItem{ExternalID: externalID, Title: "Test Item"}
	job, err := store.CreateSubmission(context.Background(), item, "test-owner", 3)
	if err != nil {
		t.Fatalf("store.CreateSubmission: %v", err)
	}
	return job
}
