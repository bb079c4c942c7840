package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/store"
)

// Engine runs the two per-ride processes: the user timeout guard and the
// dispatch loop. Each ride gets its own goroutines; there is no global
// lock across rides, and a failure in one ride never propagates to
// another.
type Engine struct {
	Store  store.Store
	Events EventSink // optional
	Log    *slog.Logger

	// Injectable timing/randomness for tests; nil means real time and the
	// global RNG.
	Now   func() time.Time
	Sleep func(context.Context, time.Duration)
	Pick  func(n int) int
}

func NewEngine(st store.Store, events EventSink, log *slog.Logger) *Engine {
	return &Engine{Store: st, Events: events, Log: log}
}

// HandleRideCreated is the entry point for one ride. The guard starts
// unconditionally; the dispatch loop starts only when classification says
// this engine owns the ride. Blocks until the loop reaches a terminal
// state, so callers normally run it in its own goroutine.
func (e *Engine) HandleRideCreated(ctx context.Context, rideID string) error {
	ride, err := e.Store.GetRide(ctx, rideID)
	if err != nil {
		e.Log.Error("ride read failed", "ride_id", rideID, "error", err)
		return err
	}

	guard := &Guard{Store: e.Store, Events: e.Events, Log: e.Log, Now: e.Now, Sleep: e.Sleep}
	go guard.Run(ctx, rideID)

	cls, err := Classify(ride)
	if errors.Is(err, ErrBiddingRide) {
		e.Log.Debug("bidding ride, dispatch skipped", "ride_id", rideID)
		return nil
	}
	if err != nil {
		e.Log.Error("unclassifiable ride, dispatch skipped", "ride_id", rideID, "error", err)
		return err
	}

	observability.ActiveLoops.Inc()
	defer observability.ActiveLoops.Dec()

	waiter := &Waiter{Store: e.Store, Log: e.Log, Sleep: e.Sleep}
	rec, err := waiter.Await(ctx, cls.Locator)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			e.Log.Info("dispatch interrupted", "ride_id", rideID)
			return err
		}
		e.Log.Error("dispatch abandoned", "ride_id", rideID, "error", err)
		return err
	}

	loop := &Loop{
		Store:      e.Store,
		Reassigner: &Reassigner{Store: e.Store, Log: e.Log, Pick: e.Pick},
		Events:     e.Events,
		Log:        e.Log,
		Now:        e.Now,
		Sleep:      e.Sleep,
	}
	if err := loop.Run(ctx, ride, cls, rec); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		e.Log.Error("dispatch loop aborted", "ride_id", rideID, "error", err)
		return err
	}
	return nil
}
