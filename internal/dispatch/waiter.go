package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/store"
)

// Waiter blocks until the ride's assignment record exists. The record is
// written by the intake service shortly after the ride document, so a
// short bounded poll covers the gap.
type Waiter struct {
	Store store.Store
	Log   *slog.Logger

	Attempts int                                  // total checks, default 4
	Interval time.Duration                        // between checks, default 1s
	Sleep    func(context.Context, time.Duration) // injectable for tests
}

// Await returns the record or ErrRecordMissing once the attempts run out.
// No cancellation side effect: a missing record may simply belong to a
// ride type this engine does not own.
func (w *Waiter) Await(ctx context.Context, loc models.AssignmentLocator) (*models.AssignmentRecord, error) {
	attempts := w.Attempts
	if attempts <= 0 {
		attempts = 4
	}
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}
	sleep := w.Sleep
	if sleep == nil {
		sleep = sleepFor
	}
	for i := 0; i < attempts; i++ {
		if i > 0 {
			sleep(ctx, interval)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := w.Store.GetAssignment(ctx, loc)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			w.Log.Warn("assignment record read failed", "ride_id", loc.RideID, "error", err)
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrRecordMissing, loc.Key(), attempts)
}

// sleepFor waits for d or until ctx is done, whichever comes first.
func sleepFor(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
