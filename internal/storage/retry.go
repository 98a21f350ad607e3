package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-sqlite3"
)

// withRetry runs op until it succeeds, fails with something other than lock
// contention, or runs out of attempts. The delay doubles after every attempt.
func withRetry(ctx context.Context, attempts int, delay time.Duration, log hclog.Logger, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = op(); err == nil || !isLocked(err) {
			return err
		}
		if i == attempts {
			break
		}
		log.Warn("database is locked, retrying", "attempt", i, "delay", delay)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay *= 2
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}

func isLocked(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return strings.Contains(strings.ToLower(err.Error()), "database is locked")
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}
