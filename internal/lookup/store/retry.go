package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// maxConflictRetries bounds how many times a conflicted transaction is
	// re-attempted after the initial try.
	maxConflictRetries = 2

	// conflictRetryDelay is the fixed pause between attempts.
	conflictRetryDelay = time.Second
)

// runWithConflictRetry drives attempt through the bounded
// ATTEMPT -> CONFLICT -> RETRY|FAIL loop. Only ErrConflict triggers a
// retry; any other failure aborts immediately. Exhausted retries surface
// the last conflict so callers treat the write as failed, not as a silent
// no-op.
func runWithConflictRetry(ctx context.Context, retries int, delay time.Duration, attempt func(context.Context) error) error {
	var err error
	for try := 0; try <= retries; try++ {
		if try > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err = attempt(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("retries exhausted after %d attempts: %w", retries+1, err)
}
