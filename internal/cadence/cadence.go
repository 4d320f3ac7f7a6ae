// Package cadence translates refresh intervals into cron expressions.
// It is the only place cadence policy lives, so schedule updates never
// duplicate this logic.
package cadence

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultMinutes is used when a non-positive interval is requested.
const DefaultMinutes = 30

// Translate converts a refresh interval in minutes into a standard
// 5-field cron expression.
//
//   - minutes < 60: fire every N minutes, every hour.
//   - minutes a multiple of 60: fire on the hour, every (minutes/60) hours.
//   - otherwise: approximated to the floor whole-hour count. A 90-minute
//     interval becomes "every 1 hour"; the sub-hour remainder is lost.
func Translate(minutes int) string {
	if minutes <= 0 {
		minutes = DefaultMinutes
	}

	if minutes < 60 {
		return fmt.Sprintf("*/%d * * * *", minutes)
	}

	hours := minutes / 60
	return fmt.Sprintf("0 */%d * * *", hours)
}

// Next returns the first fire time of expr strictly after from.
func Next(expr string, from time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cadence expression %q: %w", expr, err)
	}
	return schedule.Next(from), nil
}
