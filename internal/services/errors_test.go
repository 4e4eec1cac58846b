package services_test

import (
	"context"
	"errors"
	"testing"

	"scribe/internal/services"
)

func TestWrapCarriesMarkerAndDetail(t *testing.T) {
	cause := errors.New("connection reset")
	err := services.Wrap(services.ErrTransient, "fetch", "download media", "upstream closed connection", cause)

	if !errors.Is(err, services.ErrTransient) {
		t.Fatal("expected transient marker")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause")
	}
	details := services.Details(err)
	if details.Kind != "transient" {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if details.Message == "" {
		t.Fatal("expected message")
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		fatal     bool
	}{
		{"transient", services.Wrap(services.ErrTransient, "fetch", "", "network blip", nil), true, false},
		{"timeout", services.Wrap(services.ErrTimeout, "infer", "", "model call timed out", nil), true, false},
		{"unavailable", services.Wrap(services.ErrUnavailable, "infer", "", "engine offline", nil), true, false},
		{"external tool consumes budget", services.Wrap(services.ErrExternalTool, "transform", "", "exit status 1", nil), true, false},
		{"precondition", services.Wrap(services.ErrPrecondition, "transform", "", "missing fetch output", nil), false, true},
		{"not found", services.Wrap(services.ErrNotFound, "fetch", "", "job vanished", nil), false, true},
		{"validation", services.Wrap(services.ErrValidation, "normalize", "", "overlapping units", nil), false, true},
		{"nil", nil, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Retryable(tc.err); got != tc.retryable {
				t.Fatalf("Retryable = %v, want %v", got, tc.retryable)
			}
			if got := services.Fatal(tc.err); got != tc.fatal {
				t.Fatalf("Fatal = %v, want %v", got, tc.fatal)
			}
		})
	}
}

func TestContextRoundTrips(t *testing.T) {
	ctx := services.WithJobID(context.Background(), 42)
	ctx = services.WithStage(ctx, "fetch")
	ctx = services.WithActor(ctx, "user-1")
	ctx = services.WithRequestID(ctx, "req-abc")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("job id = %d, %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "fetch" {
		t.Fatalf("stage = %q, %v", stage, ok)
	}
	if actor, ok := services.ActorFromContext(ctx); !ok || actor != "user-1" {
		t.Fatalf("actor = %q, %v", actor, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-abc" {
		t.Fatalf("request id = %q, %v", rid, ok)
	}
}
