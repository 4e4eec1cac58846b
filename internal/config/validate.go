package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSubmission(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateInference(); err != nil {
		return err
	}
	if c.Transcripts.MaxUnitLength <= 0 {
		return errors.New("transcripts.max_unit_length must be positive")
	}
	if c.Paths.StagingMinFreeGiB < 0 {
		return errors.New("paths.staging_min_free_gib must be >= 0")
	}
	return nil
}

func (c *Config) validateSubmission() error {
	if err := ensurePositiveMap(map[string]int{
		"submission.rate_limit_per_minute":    c.Submission.RateLimitPerMinute,
		"submission.max_identifier_length":    c.Submission.MaxIdentifierLength,
		"submission.metadata_retry_attempts":  c.Submission.MetadataRetryAttempts,
		"submission.metadata_timeout_seconds": c.Submission.MetadataTimeoutSeconds,
	}); err != nil {
		return err
	}
	for _, backoff := range c.Submission.MetadataBackoffSeconds {
		if backoff <= 0 {
			return errors.New("submission.metadata_backoff_seconds entries must be positive")
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.worker_count":              c.Workflow.WorkerCount,
		"workflow.queue_poll_interval":       c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval":      c.Workflow.ErrorRetryInterval,
		"workflow.stuck_job_timeout_minutes": c.Workflow.StuckJobTimeoutMinutes,
		"workflow.max_retries":               c.Workflow.MaxRetries,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if len(c.Workflow.RetryBackoffSeconds) == 0 {
		return errors.New("workflow.retry_backoff_seconds must include at least one delay")
	}
	for _, backoff := range c.Workflow.RetryBackoffSeconds {
		if backoff <= 0 {
			return errors.New("workflow.retry_backoff_seconds entries must be positive")
		}
	}
	return nil
}

func (c *Config) validateInference() error {
	if c.Inference.AccurateTierMaxMinutes <= 0 {
		return errors.New("inference.accurate_tier_max_minutes must be positive")
	}
	if c.Inference.BalancedTierMaxMinutes <= c.Inference.AccurateTierMaxMinutes {
		return errors.New("inference.balanced_tier_max_minutes must be greater than inference.accurate_tier_max_minutes")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
