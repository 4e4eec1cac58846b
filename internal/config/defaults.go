package config

const (
	defaultStagingDir             = "~/.local/share/scribe/staging"
	defaultLogDir                 = "~/.local/share/scribe/logs"
	defaultStagingMinFreeGiB      = 1
	defaultRateLimitPerMinute     = 10
	defaultMaxIdentifierLength    = 2048
	defaultMetadataRetryAttempts  = 3
	defaultMetadataTimeoutSeconds = 15
	defaultWorkerCount            = 4
	defaultQueuePollInterval      = 5
	defaultErrorRetryInterval     = 10
	defaultHeartbeatInterval      = 15
	defaultHeartbeatTimeout       = 120
	defaultStuckJobTimeoutMin     = 30
	defaultMaxRetries             = 3
	defaultAccurateTierMaxMin     = 10
	defaultBalancedTierMaxMin     = 60
	defaultDefaultLanguage        = "en"
	defaultMaxUnitLength          = 500
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:        defaultStagingDir,
			LogDir:            defaultLogDir,
			StagingMinFreeGiB: defaultStagingMinFreeGiB,
		},
		Submission: Submission{
			RateLimitPerMinute:     defaultRateLimitPerMinute,
			MaxIdentifierLength:    defaultMaxIdentifierLength,
			MetadataRetryAttempts:  defaultMetadataRetryAttempts,
			MetadataBackoffSeconds: []int{10, 30, 90},
			MetadataTimeoutSeconds: defaultMetadataTimeoutSeconds,
		},
		Workflow: Workflow{
			WorkerCount:            defaultWorkerCount,
			QueuePollInterval:      defaultQueuePollInterval,
			ErrorRetryInterval:     defaultErrorRetryInterval,
			HeartbeatInterval:      defaultHeartbeatInterval,
			HeartbeatTimeout:       defaultHeartbeatTimeout,
			StuckJobTimeoutMinutes: defaultStuckJobTimeoutMin,
			MaxRetries:             defaultMaxRetries,
			RetryBackoffSeconds:    []int{30, 60},
		},
		Inference: Inference{
			AccurateTierMaxMinutes: defaultAccurateTierMaxMin,
			BalancedTierMaxMinutes: defaultBalancedTierMaxMin,
			DefaultLanguage:        defaultDefaultLanguage,
		},
		Transcripts: Transcripts{
			MaxUnitLength: defaultMaxUnitLength,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
