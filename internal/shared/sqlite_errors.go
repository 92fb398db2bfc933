// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// IsSQLiteBusyError checks if the error is a SQLITE_BUSY error.
func IsSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsSQLiteLockedError checks if the error is a "database is locked" error.
func IsSQLiteLockedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsSQLiteConflictError reports SQLite concurrency errors that warrant a retry.
func IsSQLiteConflictError(err error) bool {
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}

// RetryPolicy bounds RetryOnConflict.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy retries three times: 50ms, 100ms.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond}

// RetryOnConflict runs op, retrying with exponential backoff while it fails
// with a SQLite conflict error. Other errors are returned immediately.
func RetryOnConflict(ctx context.Context, policy RetryPolicy, label string, op func() error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	var err error
	for i := 0; i < policy.MaxAttempts; i++ {
		err = op()
		if err == nil {
			return nil
		}
		if !IsSQLiteConflictError(err) || i == policy.MaxAttempts-1 {
			break
		}

		delay := policy.BaseDelay * time.Duration(1<<i)
		slog.Debug("SQLite conflict, retrying", "op", label, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", label, ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s: %w", label, err)
}
