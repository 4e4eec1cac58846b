package stage

import (
	"context"
	"log/slog"

	"scribe/internal/queue"
)

// Handler describes the contract the workflow manager needs from each stage.
// Prepare runs before the stage is marked in flight and validates that the
// preconditions recorded by earlier stages are present. Execute performs the
// stage's work and writes its metadata section on success.
type Handler interface {
	Prepare(context.Context, *queue.Job) error
	Execute(context.Context, *queue.Job) error
	HealthCheck(context.Context) Health
}

// LoggerAware lets the manager hand stage handlers a scoped logger.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
