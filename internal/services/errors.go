package services

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrTransient     = errors.New("transient failure")
	ErrTimeout       = errors.New("timeout")
	ErrUnavailable   = errors.New("service unavailable")
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation error")
	ErrPrecondition  = errors.New("precondition missing")
	ErrExternalTool  = errors.New("external tool error")
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later retry classification. The marker should
// be one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a stage error should consume retry budget and be
// re-enqueued. Worker-reported permanent failures (ErrExternalTool) still
// count toward the budget so exhausted jobs land in the dead letter store.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if Fatal(err) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUnavailable) || errors.Is(err, ErrExternalTool) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Fatal reports whether an error represents an orchestration-data defect that
// must never be retried: missing records, missing precondition metadata, or
// consistency violations detected by our own bookkeeping.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrPrecondition) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrValidation) || errors.Is(err, ErrConfiguration)
}

// Details extracts the human-readable portion of a wrapped stage error.
type ErrorDetails struct {
	Kind    string
	Message string
}

// Details classifies an error and strips the sentinel prefix from its message.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	kind := "unknown"
	for _, candidate := range []struct {
		marker error
		name   string
	}{
		{ErrPrecondition, "precondition"},
		{ErrValidation, "validation"},
		{ErrNotFound, "not_found"},
		{ErrConfiguration, "configuration"},
		{ErrTimeout, "timeout"},
		{ErrUnavailable, "unavailable"},
		{ErrExternalTool, "external_tool"},
		{ErrTransient, "transient"},
	} {
		if errors.Is(err, candidate.marker) {
			kind = candidate.name
			break
		}
	}
	message := strings.TrimSpace(err.Error())
	for _, marker := range []error{ErrPrecondition, ErrValidation, ErrNotFound, ErrConfiguration, ErrTimeout, ErrUnavailable, ErrExternalTool, ErrTransient} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(message, prefix) {
			message = strings.TrimPrefix(message, prefix)
			break
		}
	}
	return ErrorDetails{Kind: kind, Message: message}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
