package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrLedgerFailure wraps an exhausted retry budget (spec §7's
// ledger_failure kind).
var ErrLedgerFailure = errors.New("ledger call failed after retries")

// RetryConfig bounds the exponential backoff applied to ledger calls
// (spec §4.4/§7: "5 attempts, 1s -> 30s").
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetry matches the spec's literal numbers.
var DefaultRetry = RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second}

// WithRetry calls fn up to cfg.MaxAttempts times with exponential
// backoff between attempts, doubling from BaseDelay and capping at
// MaxDelay. It returns the last error wrapped in ErrLedgerFailure once
// the budget is exhausted, or nil on the first success. Context
// cancellation aborts the retry loop immediately.
func WithRetry(ctx context.Context, cfg RetryConfig, name string, fn func(context.Context) error) error {
	var lastErr error
	delay := cfg.BaseDelay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		log.Printf("ledger: %s attempt %d/%d failed: %v", name, attempt, cfg.MaxAttempts, lastErr)
		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return fmt.Errorf("ledger: %s: %w: %v", name, ErrLedgerFailure, lastErr)
}
