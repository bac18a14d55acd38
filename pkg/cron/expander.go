package cron

import (
	"fmt"
	"time"

	"github.com/gorhill/cronexpr"
)

// NextSchedules expands a cron expression over the half-open window
// [startAt, stopAt) and returns the fire instants in increasing order.
// resolution enforces a minimum spacing between consecutive instants;
// 0 disables the debounce.
//
// The evaluator is seeded one second before startAt so an instant that
// lands exactly on startAt is included; stopAt is always exclusive.
func NextSchedules(cronExpr string, startAt, stopAt time.Time, resolution time.Duration) ([]time.Time, error) {
	expr, err := cronexpr.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression '%s': %w", cronExpr, err)
	}

	instants := make([]time.Time, 0)

	// Sentinel one day back guarantees the first candidate is never
	// suppressed by the debounce.
	previous := startAt.Add(-24 * time.Hour)

	eta := expr.Next(startAt.Add(-time.Second))
	for {
		// cronexpr returns the zero time when the expression never
		// fires again.
		if eta.IsZero() || !eta.Before(stopAt) {
			break
		}

		if eta.Before(startAt) {
			eta = expr.Next(eta)
			continue
		}

		if eta.Sub(previous) < resolution {
			eta = expr.Next(eta)
			continue
		}

		instants = append(instants, eta)
		previous = eta
		eta = expr.Next(eta)
	}

	return instants, nil
}
