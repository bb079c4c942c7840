package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/store"
)

// EventSink receives dispatch lifecycle events. Publishing is always
// best-effort; the state machine never blocks on a sink error.
type EventSink interface {
	Publish(ctx context.Context, ev models.DispatchEvent) error
}

// Loop is the per-ride offer state machine. One goroutine runs one loop:
// offer the current driver, sleep out the acceptance window, inspect the
// outcome, and either finish or reassign. The candidate pools strictly
// shrink every cycle, so the loop always terminates.
type Loop struct {
	Store      store.Store
	Reassigner *Reassigner
	Events     EventSink // optional
	Log        *slog.Logger

	Now   func() time.Time
	Sleep func(context.Context, time.Duration)
}

// Run drives the assignment record to a terminal state. It returns an
// error only for the fatal pre-flight/in-flight conditions
// (ErrNoCurrentDriver, ErrTimerWrite, a failed re-read); a reassignment
// transaction failure is logged and treated as "no candidate", ending the
// loop with a nil error.
func (l *Loop) Run(ctx context.Context, ride *models.RideRequest, cls Classification, rec *models.AssignmentRecord) error {
	if rec.CurrentDriverID == "" {
		return fmt.Errorf("%w: ride %s", ErrNoCurrentDriver, ride.ID)
	}
	current := rec.CurrentDriverID
	log := l.Log.With("ride_id", ride.ID)

	for {
		deadline := l.now().Add(cls.AcceptTimeout)
		if err := l.Store.ArmAssignmentTimer(ctx, cls.Locator, deadline); err != nil {
			return fmt.Errorf("%w: ride %s: %v", ErrTimerWrite, ride.ID, err)
		}
		entry := models.MarkerEntry{RideRequestID: ride.ID, DriverID: current}
		if err := l.Store.EnsureMarker(ctx, current, entry); err != nil {
			log.Warn("busy marker write failed", "driver_id", current, "error", err)
		}
		l.publish(ctx, ride.ID, models.EventOffered, current)
		observability.OffersTotal.Inc()
		log.Info("offer extended", "driver_id", current, "expires_at", deadline.UTC().Format(time.RFC3339))

		l.sleep(ctx, cls.AcceptTimeout)
		if err := ctx.Err(); err != nil {
			// shutdown woke the sleep early; the acceptance window never
			// elapsed, so this is not a timeout and no pool moves
			log.Info("dispatch interrupted, offer left in flight", "driver_id", current)
			return err
		}

		fresh, err := l.Store.GetAssignment(ctx, cls.Locator)
		if err != nil {
			return fmt.Errorf("re-read assignment for ride %s: %w", ride.ID, err)
		}
		switch fresh.Status {
		case models.AssignmentAccepted, models.AssignmentRejected:
			l.publish(ctx, ride.ID, models.EventDriverResponded, fresh.CurrentDriverID)
			log.Info("driver responded", "driver_id", fresh.CurrentDriverID, "status", string(fresh.Status))
			return nil
		case models.AssignmentCancelled:
			// the user timeout guard got there first; stop offering
			log.Info("assignment cancelled elsewhere, stopping dispatch")
			return nil
		}

		// the current driver sat on the offer
		observability.OfferTimeoutsTotal.Inc()
		l.publish(ctx, ride.ID, models.EventOfferTimedOut, current)
		if err := l.Store.DeleteMarker(ctx, current); err != nil {
			log.Warn("busy marker cleanup failed", "driver_id", current, "error", err)
		}

		next, err := l.Reassigner.Next(ctx, cls.Locator, current)
		if err != nil {
			// infrastructure failure, not exhaustion; the ride is left
			// undispatched without cancellation markers
			observability.ReassignFailuresTotal.Inc()
			log.Error("reassignment failed, abandoning offer cycle", "error", err)
			return nil
		}
		if next == "" {
			observability.CancellationsTotal.WithLabelValues("pool_exhausted").Inc()
			l.publish(ctx, ride.ID, models.EventPoolExhausted, "")
			l.publish(ctx, ride.ID, models.EventRideCancelled, "")
			log.Info("candidate pools exhausted, ride cancelled")
			return nil
		}
		observability.ReassignmentsTotal.Inc()
		l.publish(ctx, ride.ID, models.EventReassigned, next)
		current = next
	}
}

func (l *Loop) publish(ctx context.Context, rideID string, t models.DispatchEventType, driverID string) {
	if l.Events == nil {
		return
	}
	ev := models.DispatchEvent{RideID: rideID, DriverID: driverID, Type: t, At: l.now()}
	if err := l.Events.Publish(ctx, ev); err != nil {
		l.Log.Warn("event publish failed", "ride_id", rideID, "type", string(t), "error", err)
	}
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) {
	if l.Sleep != nil {
		l.Sleep(ctx, d)
		return
	}
	sleepFor(ctx, d)
}
