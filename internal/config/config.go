package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	// StagingMinFreeGiB is the free space required in StagingDir before a
	// fetch is allowed to start.
	StagingMinFreeGiB int `toml:"staging_min_free_gib"`
}

// Submission contains gatekeeper limits and metadata lookup behavior.
type Submission struct {
	RateLimitPerMinute     int    `toml:"rate_limit_per_minute"`
	MaxIdentifierLength    int    `toml:"max_identifier_length"`
	MetadataRetryAttempts  int    `toml:"metadata_retry_attempts"`
	MetadataBackoffSeconds []int  `toml:"metadata_backoff_seconds"`
	MetadataBaseURL        string `toml:"metadata_base_url"`
	MetadataTimeoutSeconds int    `toml:"metadata_timeout_seconds"`
}

// Workflow contains dispatcher timing, retry policy, and pool sizing.
type Workflow struct {
	WorkerCount            int   `toml:"worker_count"`
	QueuePollInterval      int   `toml:"queue_poll_interval"`
	ErrorRetryInterval     int   `toml:"error_retry_interval"`
	HeartbeatInterval      int   `toml:"heartbeat_interval"`
	HeartbeatTimeout       int   `toml:"heartbeat_timeout"`
	StuckJobTimeoutMinutes int   `toml:"stuck_job_timeout_minutes"`
	MaxRetries             int   `toml:"max_retries"`
	RetryBackoffSeconds    []int `toml:"retry_backoff_seconds"`
}

// Inference contains quality-tier thresholds and language defaults.
type Inference struct {
	// AccurateTierMaxMinutes is the longest input routed to the
	// highest-accuracy tier; BalancedTierMaxMinutes bounds the middle tier.
	AccurateTierMaxMinutes int    `toml:"accurate_tier_max_minutes"`
	BalancedTierMaxMinutes int    `toml:"balanced_tier_max_minutes"`
	DefaultLanguage        string `toml:"default_language"`
}

// Transcripts contains normalization output constraints.
type Transcripts struct {
	MaxUnitLength int `toml:"max_unit_length"`
}

// Tools contains command templates for the external stage workers.
type Tools struct {
	FetchCommand     string `toml:"fetch_command"`
	TransformCommand string `toml:"transform_command"`
	InferCommand     string `toml:"infer_command"`
	InferProbe       string `toml:"infer_probe"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for scribe.
type Config struct {
	Paths       Paths       `toml:"paths"`
	Submission  Submission  `toml:"submission"`
	Workflow    Workflow    `toml:"workflow"`
	Inference   Inference   `toml:"inference"`
	Transcripts Transcripts `toml:"transcripts"`
	Tools       Tools       `toml:"tools"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scribe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a file existed at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("scribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	for _, field := range []*string{&c.Paths.StagingDir, &c.Paths.LogDir} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Submission.MetadataBaseURL = strings.TrimRight(strings.TrimSpace(c.Submission.MetadataBaseURL), "/")
	c.Inference.DefaultLanguage = strings.TrimSpace(c.Inference.DefaultLanguage)
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
