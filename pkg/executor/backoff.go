package executor

import "time"

// backoffSchedule holds the delay applied before re-attempting a call,
// indexed by the attempt that just failed. Attempts past the schedule
// stay at the final value.
var backoffSchedule = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
}

// RetryBackoff returns the delay before retry for the given attempt
// number (1-based).
func RetryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(backoffSchedule) {
		attempt = len(backoffSchedule)
	}
	return backoffSchedule[attempt-1]
}
