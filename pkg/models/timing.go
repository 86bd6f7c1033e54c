package models

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"
)

// Timing specs form a closed grammar describing when follow-up calls fire
// relative to the discharge instant:
//
//	N_hours_after_discharge
//	daily_for_N_days_starting_M_hours_after_discharge
//	day_before_date:YYYY-MM-DD   (14:00 local on the prior day)
//	within_24_hours              (18 hours after discharge)
//
// Anything else falls back to a single call 24 hours after discharge.

var (
	hoursAfterRe = regexp.MustCompile(`^(\d+)_hours?_after_discharge$`)
	dailyRe      = regexp.MustCompile(`^daily_for_(\d+)_days?_starting_(\d+)_hours?_after_discharge$`)
	dayBeforeRe  = regexp.MustCompile(`^day_before_date:(\d{4}-\d{2}-\d{2})$`)
)

// WithinDayOffset is the effective offset of the within_24_hours spec.
const WithinDayOffset = 18 * time.Hour

// FallbackOffset is applied when a timing spec is not recognized.
const FallbackOffset = 24 * time.Hour

// ParseTimingSpec converts a timing spec into the UTC instants at which
// calls should fire for the given discharge time. Unknown specs warn and
// fall back to a single call 24 hours after discharge.
func ParseTimingSpec(spec string, discharge time.Time) ([]time.Time, error) {
	discharge = discharge.UTC()

	if m := hoursAfterRe.FindStringSubmatch(spec); m != nil {
		hours, _ := strconv.Atoi(m[1])
		return []time.Time{discharge.Add(time.Duration(hours) * time.Hour)}, nil
	}

	if m := dailyRe.FindStringSubmatch(spec); m != nil {
		days, _ := strconv.Atoi(m[1])
		startHours, _ := strconv.Atoi(m[2])
		first := discharge.Add(time.Duration(startHours) * time.Hour)
		times := make([]time.Time, 0, days)
		for i := 0; i < days; i++ {
			times = append(times, first.Add(time.Duration(i)*24*time.Hour))
		}
		return times, nil
	}

	if m := dayBeforeRe.FindStringSubmatch(spec); m != nil {
		date, err := time.ParseInLocation("2006-01-02", m[1], time.Local)
		if err != nil {
			return nil, fmt.Errorf("parsing day_before_date %q: %w", m[1], err)
		}
		prior := date.AddDate(0, 0, -1)
		at := time.Date(prior.Year(), prior.Month(), prior.Day(), 14, 0, 0, 0, time.Local)
		return []time.Time{at.UTC()}, nil
	}

	if spec == "within_24_hours" {
		return []time.Time{discharge.Add(WithinDayOffset)}, nil
	}

	slog.Warn("Unknown timing spec, falling back to 24 hours after discharge", "spec", spec)
	return []time.Time{discharge.Add(FallbackOffset)}, nil
}
