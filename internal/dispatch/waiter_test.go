package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/store"
)

func TestWaiterFindsLateRecord(t *testing.T) {
	st := store.NewMemoryStore()
	loc := models.AssignmentLocator{RideID: "r1", Kind: models.AssignmentInstant}

	sleeps := 0
	w := &Waiter{
		Store: st,
		Log:   testLogger(),
		Sleep: func(ctx context.Context, d time.Duration) {
			sleeps++
			if sleeps == 2 {
				// intake catches up between polls
				st.PutAssignment(loc, &models.AssignmentRecord{RideID: "r1", CurrentDriverID: "5"})
			}
		},
	}

	rec, err := w.Await(context.Background(), loc)
	if err != nil {
		t.Fatal(err)
	}
	if rec.CurrentDriverID != "5" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if sleeps != 2 {
		t.Fatalf("expected 2 polls before the record appeared, got %d", sleeps)
	}
}

func TestWaiterStopsOnShutdown(t *testing.T) {
	st := store.NewMemoryStore()
	loc := models.AssignmentLocator{RideID: "r1", Kind: models.AssignmentInstant}
	ctx, cancel := context.WithCancel(context.Background())

	w := &Waiter{
		Store: st,
		Log:   testLogger(),
		Sleep: func(context.Context, time.Duration) { cancel() },
	}
	_, err := w.Await(ctx, loc)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWaiterGivesUpAfterFourAttempts(t *testing.T) {
	st := store.NewMemoryStore()
	loc := models.AssignmentLocator{RideID: "r1", Kind: models.AssignmentInstant}

	sleeps := 0
	w := &Waiter{
		Store: st,
		Log:   testLogger(),
		Sleep: func(ctx context.Context, d time.Duration) { sleeps++ },
	}

	_, err := w.Await(context.Background(), loc)
	if !errors.Is(err, ErrRecordMissing) {
		t.Fatalf("expected ErrRecordMissing, got %v", err)
	}
	if sleeps != 3 {
		t.Fatalf("expected an initial check plus 3 retries, got %d sleeps", sleeps)
	}
}
