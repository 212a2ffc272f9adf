// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/lawline/lawsync/remote"
)

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withRetry runs fn under a per-attempt timeout, retrying transient
// failures with exponential backoff up to the attempt ceiling.
// Non-transient errors surface immediately.
func withRetry(ctx context.Context, logger *slog.Logger, cfg Config, op string, fn func(ctx context.Context) error) error {
	backoff := cfg.BackoffMin
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !remote.IsRetryable(err) {
			return err
		}
		lastErr = err
		if attempt == cfg.MaxAttempts {
			break
		}
		logger.Warn("transient failure, backing off",
			"op", op, "attempt", attempt, "backoff", backoff, "error", err)
		if serr := sleepWithContext(ctx, backoff); serr != nil {
			return lastErr
		}
		backoff *= 2
		if backoff > cfg.BackoffMax {
			backoff = cfg.BackoffMax
		}
	}
	return lastErr
}
