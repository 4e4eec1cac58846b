// Package logging configures structured logging for the daemon and CLI.
//
// It wraps log/slog with console and JSON handlers, attribute helpers, and
// standardized field names so every component logs job IDs, stages, and
// correlation identifiers the same way.
package logging
