package http

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPollExhausted is returned by Poll when the probe never reported ready.
var ErrPollExhausted = errors.New("poll attempts exhausted")

// PollConfig holds the bounded-retry parameters for Poll.
type PollConfig struct {
	// Interval is the pause between attempts.
	Interval time.Duration
	// MaxAttempts is the total number of probe calls (minimum 1).
	MaxAttempts int
	// OnAttempt is an optional callback invoked after each probe.
	OnAttempt func(attempt int, ready bool, err error)
}

// Poll calls probe until it reports ready, sleeping Interval between
// attempts. A probe error counts as "not ready" and is retried; the last
// one is wrapped into the exhaustion error.
//
// Returns the number of probe calls made. There is no sleep after the last
// attempt, so the worst-case wall time is (MaxAttempts-1)*Interval plus the
// probes themselves.
func Poll(ctx context.Context, cfg PollConfig, probe func(context.Context) (bool, error)) (int, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return attempt - 1, ctx.Err()
		}

		ready, err := probe(ctx)
		if cfg.OnAttempt != nil {
			cfg.OnAttempt(attempt, ready, err)
		}
		if err == nil && ready {
			return attempt, nil
		}
		if err != nil {
			lastErr = err
		}

		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr != nil {
		return maxAttempts, fmt.Errorf("%w after %d attempts: %v", ErrPollExhausted, maxAttempts, lastErr)
	}
	return maxAttempts, fmt.Errorf("%w after %d attempts", ErrPollExhausted, maxAttempts)
}
