package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/store"
)

// CancelReasonRiderTimeout is written when no driver confirmed within the
// rider-facing wait budget.
const CancelReasonRiderTimeout = "We could not find you a driver in time. Please try again."

// Guard enforces the rider's overall wait budget, independently of the
// dispatch loop. It never touches the candidate pools; it only races the
// loop on disjoint ride fields, which the store resolves field-level
// last-write-wins.
type Guard struct {
	Store  store.Store
	Events EventSink // optional
	Log    *slog.Logger

	Now   func() time.Time
	Sleep func(context.Context, time.Duration)
}

// Run sleeps out the rider budget and cancels the ride if no driver was
// confirmed in the meantime. All failures are local to this ride.
func (g *Guard) Run(ctx context.Context, rideID string) {
	log := g.Log.With("ride_id", rideID)

	ride, err := g.Store.GetRide(ctx, rideID)
	if err != nil {
		log.Error("user timer: ride read failed", "error", err)
		return
	}
	budget := RiderBudget(ride)
	if err := g.Store.SetRideUserTimer(ctx, rideID, g.now().Add(budget)); err != nil {
		log.Warn("user timer: expiry write failed", "error", err)
	}

	g.sleep(ctx, budget)
	if ctx.Err() != nil {
		// shutdown woke the sleep early; the rider budget never elapsed
		return
	}

	fresh, err := g.Store.GetRide(ctx, rideID)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		log.Error("user timer: ride re-read failed", "error", err)
		return
	}
	if fresh.DriverID != "" || fresh.Status != models.RideStatusPending {
		// a driver is engaged or the ride already reached a terminal
		// state through some other path
		return
	}

	if err := g.Store.CancelRide(ctx, rideID, CancelReasonRiderTimeout); err != nil {
		log.Error("user timer: cancellation write failed", "error", err)
		return
	}
	// also flip the assignment record so a dispatch loop mid-offer stops on
	// its next wake instead of working the remaining pool
	if cls, err := Classify(fresh); err == nil {
		if err := g.Store.CancelAssignment(ctx, cls.Locator); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Warn("user timer: assignment cancel write failed", "error", err)
		}
	}
	observability.CancellationsTotal.WithLabelValues("rider_timeout").Inc()
	log.Info("ride cancelled, rider wait budget exhausted")
	if g.Events != nil {
		ev := models.DispatchEvent{RideID: rideID, Type: models.EventRideCancelled, At: g.now()}
		if err := g.Events.Publish(ctx, ev); err != nil {
			log.Warn("event publish failed", "error", err)
		}
	}

	// sweep stray markers left behind by the legacy fan-out attribute;
	// one failed delete must not block the others
	for _, id := range fresh.LegacyDriverIDs {
		if !isNumericID(id) {
			continue
		}
		if err := g.Store.DeleteMarker(ctx, id); err != nil {
			log.Warn("stray marker cleanup failed", "driver_id", id, "error", err)
		}
	}
}

func (g *Guard) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Guard) sleep(ctx context.Context, d time.Duration) {
	if g.Sleep != nil {
		g.Sleep(ctx, d)
		return
	}
	sleepFor(ctx, d)
}

func isNumericID(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
