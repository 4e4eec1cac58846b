package workflow

import "time"

const defaultRetryDelay = 30 * time.Second

// RetryPolicy maps an attempt number to its backoff delay. The schedule is
// positional; attempts past its end reuse the final entry.
type RetryPolicy struct {
	schedule []time.Duration
}

// NewRetryPolicy builds a policy from a schedule in seconds.
func NewRetryPolicy(seconds []int) RetryPolicy {
	schedule := make([]time.Duration, 0, len(seconds))
	for _, s := range seconds {
		if s > 0 {
			schedule = append(schedule, time.Duration(s)*time.Second)
		}
	}
	return RetryPolicy{schedule: schedule}
}

// DelayFor returns the backoff before retry number attempt (zero-based).
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	if len(p.schedule) == 0 {
		return defaultRetryDelay
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(p.schedule) {
		attempt = len(p.schedule) - 1
	}
	return p.schedule[attempt]
}
