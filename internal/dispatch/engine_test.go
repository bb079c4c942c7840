package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/store"
)

type countingStore struct {
	*store.MemoryStore
	assignmentReads int32
}

func (c *countingStore) GetAssignment(ctx context.Context, loc models.AssignmentLocator) (*models.AssignmentRecord, error) {
	atomic.AddInt32(&c.assignmentReads, 1)
	return c.MemoryStore.GetAssignment(ctx, loc)
}

func newEngine(st store.Store) *Engine {
	e := NewEngine(st, nil, testLogger())
	e.Sleep = noSleep
	e.Pick = pickFirst
	return e
}

func TestEngineSkipsBiddingRide(t *testing.T) {
	cs := &countingStore{MemoryStore: store.NewMemoryStore()}
	cs.PutRide(&models.RideRequest{
		ID:              "r1",
		ServiceType:     models.ServiceCab,
		ServiceCategory: models.CategoryRide,
		IsBidding:       true,
		Status:          models.RideStatusPending,
	})

	if err := newEngine(cs).HandleRideCreated(context.Background(), "r1"); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&cs.assignmentReads); n != 0 {
		t.Fatalf("bidding ride must never read the assignment record, got %d reads", n)
	}
}

func TestEngineRejectsInvalidService(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutRide(&models.RideRequest{ID: "r1", ServiceType: "drone", Status: models.RideStatusPending})

	err := newEngine(st).HandleRideCreated(context.Background(), "r1")
	if !errors.Is(err, ErrInvalidServiceConfig) {
		t.Fatalf("expected ErrInvalidServiceConfig, got %v", err)
	}
}

func TestEngineAbandonsWhenRecordNeverAppears(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutRide(&models.RideRequest{
		ID:              "r1",
		ServiceType:     models.ServiceCab,
		ServiceCategory: models.CategoryRide,
		Status:          models.RideStatusPending,
	})

	err := newEngine(st).HandleRideCreated(context.Background(), "r1")
	if !errors.Is(err, ErrRecordMissing) {
		t.Fatalf("expected ErrRecordMissing, got %v", err)
	}
}

func TestEngineRunsLoopToAcceptance(t *testing.T) {
	st := store.NewMemoryStore()
	loc, _, _ := seedRideAndAssignment(st, "9", nil, nil)

	e := newEngine(st)
	// the driver accepts and intake pins them to the ride document
	e.Sleep = func(ctx context.Context, d time.Duration) {
		cur, err := st.GetAssignment(ctx, loc)
		if err != nil {
			return
		}
		cur.Status = models.AssignmentAccepted
		st.PutAssignment(loc, cur)
		ride, err := st.GetRide(ctx, "r1")
		if err != nil {
			return
		}
		ride.DriverID = "9"
		ride.Status = models.RideStatusAccepted
		st.PutRide(ride)
	}

	if err := e.HandleRideCreated(context.Background(), "r1"); err != nil {
		t.Fatal(err)
	}
	rec, _ := st.GetAssignment(context.Background(), loc)
	if rec.Status != models.AssignmentAccepted || rec.CurrentDriverID != "9" {
		t.Fatalf("unexpected terminal record: %+v", rec)
	}
}
