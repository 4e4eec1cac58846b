package workers

import "scribe/internal/config"

// Tier selects the accuracy/latency trade-off for an inference run.
type Tier string

const (
	// TierAccurate is the highest-quality tier, reserved for short inputs.
	TierAccurate Tier = "accurate"
	// TierBalanced trades some accuracy for throughput on medium inputs.
	TierBalanced Tier = "balanced"
	// TierFast handles everything too long for the other tiers.
	TierFast Tier = "fast"
)

// TierForDuration routes an input to a tier by its duration. Thresholds come
// from configuration; routing is monotonic, longer input never yields a
// slower tier.
func TierForDuration(durationSeconds float64, cfg config.Inference) Tier {
	minutes := durationSeconds / 60
	switch {
	case minutes <= float64(cfg.AccurateTierMaxMinutes):
		return TierAccurate
	case minutes <= float64(cfg.BalancedTierMaxMinutes):
		return TierBalanced
	default:
		return TierFast
	}
}
