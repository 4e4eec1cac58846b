package normalizing

import (
	"fmt"
	"strings"

	"scribe/internal/queue"
	"scribe/internal/services"
)

// ValidateUnits checks the invariants the transcript store relies on: every
// unit has content, non-negative monotonically ordered timestamps, and no
// unit overlaps its predecessor. Violations are validation failures, the
// inference output is structurally broken and retrying will not help.
func ValidateUnits(units []queue.InferredUnit) error {
	if len(units) == 0 {
		return services.Wrap(
			services.ErrValidation, "normalize", "validate units",
			"Transcript has no units", nil)
	}
	prevEnd := 0.0
	for i, unit := range units {
		if strings.TrimSpace(unit.Content) == "" {
			return services.Wrap(
				services.ErrValidation, "normalize", "validate units",
				fmt.Sprintf("Unit %d has empty content", i), nil)
		}
		if unit.StartSeconds < 0 {
			return services.Wrap(
				services.ErrValidation, "normalize", "validate units",
				fmt.Sprintf("Unit %d starts at negative time %.3f", i, unit.StartSeconds), nil)
		}
		if unit.EndSeconds < unit.StartSeconds {
			return services.Wrap(
				services.ErrValidation, "normalize", "validate units",
				fmt.Sprintf("Unit %d ends at %.3f before it starts at %.3f", i, unit.EndSeconds, unit.StartSeconds), nil)
		}
		if unit.StartSeconds < prevEnd {
			return services.Wrap(
				services.ErrValidation, "normalize", "validate units",
				fmt.Sprintf("Unit %d overlaps its predecessor (%.3f < %.3f)", i, unit.StartSeconds, prevEnd), nil)
		}
		prevEnd = unit.EndSeconds
	}
	return nil
}
