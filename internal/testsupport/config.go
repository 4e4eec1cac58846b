// Package testsupport provides shared fixtures for package tests: temp-dir
// seeded configs, store constructors, and submission helpers.
package testsupport

import (
	"path/filepath"
	"testing"

	"scribe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StagingMinFreeGiB = 0
	cfg.Tools.FetchCommand = "fetch-tool {id} {dest}"
	cfg.Tools.TransformCommand = "transform-tool {input} {dest}"
	cfg.Tools.InferCommand = "infer-tool {input} {language} {tier}"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithMaxRetries overrides the retry budget on the test config.
func WithMaxRetries(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.MaxRetries = n
	}
}

// WithMaxUnitLength overrides the transcript unit bound on the test config.
func WithMaxUnitLength(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Transcripts.MaxUnitLength = n
	}
}
