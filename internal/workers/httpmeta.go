package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"scribe/internal/services"
)

// HTTPMetadataFetcher resolves metadata against an HTTP catalog service.
type HTTPMetadataFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPMetadataFetcher builds a fetcher for the catalog at baseURL.
func NewHTTPMetadataFetcher(baseURL string, timeout time.Duration) *HTTPMetadataFetcher {
	return &HTTPMetadataFetcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type metadataPayload struct {
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	Description     string  `json:"description"`
	ThumbnailURL    string  `json:"thumbnail_url"`
	PublishedAt     string  `json:"published_at"`
	DurationSeconds float64 `json:"duration_seconds"`
	Language        string  `json:"language"`
}

// Fetch looks up an external identifier. Server-side and network failures are
// transient; a missing item is reported as not found so the gatekeeper rejects
// the submission instead of retrying it.
func (f *HTTPMetadataFetcher) Fetch(ctx context.Context, externalID string) (Metadata, error) {
	endpoint := f.baseURL + "/items/" + url.PathEscape(externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Metadata{}, services.Wrap(
			services.ErrConfiguration, "submission", "metadata request",
			"Invalid metadata endpoint", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		marker := services.ErrUnavailable
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			marker = services.ErrTimeout
		}
		return Metadata{}, services.Wrap(
			marker, "submission", "metadata request",
			"Metadata service unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return Metadata{}, services.Wrap(
			services.ErrNotFound, "submission", "metadata request",
			"Item not found in catalog", nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Metadata{}, services.Wrap(
			services.ErrTransient, "submission", "metadata request",
			fmt.Sprintf("Metadata service returned status %d", resp.StatusCode), nil)
	default:
		return Metadata{}, services.Wrap(
			services.ErrValidation, "submission", "metadata request",
			fmt.Sprintf("Metadata service rejected request with status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Metadata{}, services.Wrap(
			services.ErrTransient, "submission", "metadata response",
			"Failed reading metadata response", err)
	}

	var payload metadataPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Metadata{}, services.Wrap(
			services.ErrValidation, "submission", "metadata response",
			"Metadata response was not valid JSON", err)
	}

	meta := Metadata{
		Title:           payload.Title,
		Author:          payload.Author,
		Description:     payload.Description,
		ThumbnailURL:    payload.ThumbnailURL,
		DurationSeconds: payload.DurationSeconds,
		Language:        payload.Language,
	}
	if payload.PublishedAt != "" {
		if published, err := time.Parse(time.RFC3339, payload.PublishedAt); err == nil {
			meta.PublishedAt = &published
		}
	}
	return meta, nil
}
