package workers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"scribe/internal/services"
)

func TestHTTPMetadataFetcherDecodesPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
            "title": "Talk",
            "author": "Speaker",
            "duration_seconds": 1234.5,
            "published_at": "2024-05-01T10:00:00Z",
            "language": "en"
        }`))
	}))
	defer server.Close()

	fetcher := NewHTTPMetadataFetcher(server.URL, time.Second)
	meta, err := fetcher.Fetch(context.Background(), "media://abc")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if meta.Title != "Talk" || meta.Author != "Speaker" {
		t.Errorf("meta = %+v", meta)
	}
	if meta.DurationSeconds != 1234.5 {
		t.Errorf("duration = %v", meta.DurationSeconds)
	}
	if meta.PublishedAt == nil || meta.PublishedAt.UTC().Format("2006-01-02") != "2024-05-01" {
		t.Errorf("published = %v", meta.PublishedAt)
	}
}

func TestHTTPMetadataFetcherClassifiesStatuses(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		marker    error
		retryable bool
	}{
		{"not found", http.StatusNotFound, services.ErrNotFound, false},
		{"server error", http.StatusInternalServerError, services.ErrTransient, true},
		{"throttled", http.StatusTooManyRequests, services.ErrTransient, true},
		{"bad request", http.StatusBadRequest, services.ErrValidation, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			fetcher := NewHTTPMetadataFetcher(server.URL, time.Second)
			_, err := fetcher.Fetch(context.Background(), "media://abc")
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, tc.marker) {
				t.Errorf("error = %v, want %v", err, tc.marker)
			}
			if services.Retryable(err) != tc.retryable {
				t.Errorf("retryable = %v, want %v", services.Retryable(err), tc.retryable)
			}
		})
	}
}

func TestHTTPMetadataFetcherNetworkErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	fetcher := NewHTTPMetadataFetcher(server.URL, time.Second)
	_, err := fetcher.Fetch(context.Background(), "media://abc")
	if err == nil {
		t.Fatal("expected error")
	}
	if !services.Retryable(err) {
		t.Errorf("network failure should be retryable, got %v", err)
	}
}
