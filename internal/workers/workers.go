package workers

import (
	"context"
	"time"

	"scribe/internal/queue"
)

// Progress reports stage completion percent in [0,100]. Implementations must
// tolerate nil callbacks.
type Progress func(percent float64)

// Metadata is the descriptive record returned by the submission-time lookup.
type Metadata struct {
	Title           string
	Author          string
	Description     string
	ThumbnailURL    string
	PublishedAt     *time.Time
	DurationSeconds float64
	Language        string
}

// MetadataFetcher resolves a canonical external identifier to its metadata.
type MetadataFetcher interface {
	Fetch(ctx context.Context, externalID string) (Metadata, error)
}

// Fetcher downloads the media behind an external identifier into destDir.
type Fetcher interface {
	Fetch(ctx context.Context, externalID, destDir string, progress Progress) (queue.FetchOutput, error)
}

// Transformer converts a fetched file into the normalized intermediate format
// the inference backend consumes.
type Transformer interface {
	Transform(ctx context.Context, sourcePath, destDir string, progress Progress) (queue.TransformOutput, error)
}

// InferRequest carries everything the inference backend needs for one run.
type InferRequest struct {
	AudioPath       string
	Language        string
	Tier            Tier
	DurationSeconds float64
}

// Inferencer runs speech inference. Available reports backend readiness and
// is consulted both by stage health checks and before each run.
type Inferencer interface {
	Available(ctx context.Context) error
	Infer(ctx context.Context, req InferRequest, progress Progress) (queue.InferOutput, error)
}
