package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scribe/internal/config"
)

func TestLoadReturnsDefaultsWhenFileMissing(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file")
	}
	if cfg.Submission.RateLimitPerMinute != 10 {
		t.Fatalf("rate limit default = %d", cfg.Submission.RateLimitPerMinute)
	}
	if cfg.Workflow.MaxRetries != 3 {
		t.Fatalf("max retries default = %d", cfg.Workflow.MaxRetries)
	}
	if got := cfg.Workflow.RetryBackoffSeconds; len(got) != 2 || got[0] != 30 || got[1] != 60 {
		t.Fatalf("retry backoff default = %v", got)
	}
	if cfg.Transcripts.MaxUnitLength != 500 {
		t.Fatalf("max unit length default = %d", cfg.Transcripts.MaxUnitLength)
	}
}

func TestLoadParsesAndExpandsPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
staging_dir = "` + filepath.Join(dir, "staging") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[workflow]
worker_count = 2
max_retries = 5

[logging]
format = "JSON"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved = %q exists = %v", resolved, exists)
	}
	if cfg.Workflow.WorkerCount != 2 || cfg.Workflow.MaxRetries != 5 {
		t.Fatalf("workflow overrides not applied: %+v", cfg.Workflow)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("format not normalized: %q", cfg.Logging.Format)
	}
	if !filepath.IsAbs(cfg.Paths.StagingDir) {
		t.Fatalf("staging dir not absolute: %q", cfg.Paths.StagingDir)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero workers", func(c *config.Config) { c.Workflow.WorkerCount = 0 }, "worker_count"},
		{"heartbeat ordering", func(c *config.Config) { c.Workflow.HeartbeatTimeout = c.Workflow.HeartbeatInterval }, "heartbeat_timeout"},
		{"empty retry backoff", func(c *config.Config) { c.Workflow.RetryBackoffSeconds = nil }, "retry_backoff_seconds"},
		{"tier ordering", func(c *config.Config) { c.Inference.BalancedTierMaxMinutes = 5 }, "balanced_tier_max_minutes"},
		{"unit length", func(c *config.Config) { c.Transcripts.MaxUnitLength = 0 }, "max_unit_length"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestEnsureDirectoriesCreatesPaths(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(dir, "staging")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, p := range []string{cfg.Paths.StagingDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(p); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q, err=%v", p, err)
		}
	}
}
