package chat

import (
	"context"
	"time"
)

// RetryPolicy retries an operation on errors its predicate classifies
// as transient, waiting BaseDelay before the first retry and multiplying
// the wait after each one. The policy is plain data so the schedule can
// be tested without performing real calls.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64

	// sleep is time.Sleep in production; tests replace it.
	sleep func(time.Duration)
}

// DefaultRetryPolicy matches the chat channel's delivery contract:
// five attempts with 10s, 20s, 40s, 80s waits between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   10 * time.Second,
		Multiplier:  2,
	}
}

// Do runs fn until it succeeds, returns a non-transient error, or the
// attempt budget is spent. The last error is returned unwrapped so
// callers can classify it.
func (p RetryPolicy) Do(ctx context.Context, transient func(error) bool, fn func() error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	delay := p.BaseDelay
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !transient(err) || attempt == p.MaxAttempts {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		sleep(delay)
		delay = time.Duration(float64(delay) * p.Multiplier)
	}
	return err
}
