package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

func seedAssignment(m *MemoryStore) models.AssignmentLocator {
	loc := models.AssignmentLocator{RideID: "r1", Kind: models.AssignmentInstant}
	m.PutAssignment(loc, &models.AssignmentRecord{
		RideID:            "r1",
		CurrentDriverID:   "1",
		EligibleDriverIDs: []string{"2", "3"},
	})
	return loc
}

func TestGetRideNotFound(t *testing.T) {
	m := NewMemoryStore()
	if _, err := m.GetRide(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestArmTimerDefaultsStatusOnce(t *testing.T) {
	m := NewMemoryStore()
	loc := seedAssignment(m)
	ctx := context.Background()

	if err := m.ArmAssignmentTimer(ctx, loc, time.Unix(100, 0)); err != nil {
		t.Fatal(err)
	}
	rec, _ := m.GetAssignment(ctx, loc)
	if rec.Status != models.AssignmentPending {
		t.Fatalf("expected pending, got %s", rec.Status)
	}
	if rec.TimerExpiresAt == "" {
		t.Fatal("expected timer_expires_at to be written")
	}

	// a status written by the driver flow must survive the next arm
	rec.Status = models.AssignmentAccepted
	m.PutAssignment(loc, rec)
	if err := m.ArmAssignmentTimer(ctx, loc, time.Unix(200, 0)); err != nil {
		t.Fatal(err)
	}
	rec, _ = m.GetAssignment(ctx, loc)
	if rec.Status != models.AssignmentAccepted {
		t.Fatalf("arm must not overwrite status, got %s", rec.Status)
	}
}

func TestCancelAssignmentIsPlainFieldWrite(t *testing.T) {
	m := NewMemoryStore()
	loc := seedAssignment(m)
	ctx := context.Background()

	if err := m.CancelAssignment(ctx, loc); err != nil {
		t.Fatal(err)
	}
	rec, _ := m.GetAssignment(ctx, loc)
	if rec.Status != models.AssignmentCancelled {
		t.Fatalf("expected cancelled, got %s", rec.Status)
	}
	if rec.CurrentDriverID != "1" || len(rec.EligibleDriverIDs) != 2 {
		t.Fatalf("only status may change: %+v", rec)
	}

	ghost := models.AssignmentLocator{RideID: "ghost", Kind: models.AssignmentInstant}
	if err := m.CancelAssignment(ctx, ghost); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEnsureMarkerIdempotentPerRide(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	e := models.MarkerEntry{RideRequestID: "r1", DriverID: "9"}
	for i := 0; i < 3; i++ {
		if err := m.EnsureMarker(ctx, "9", e); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(m.markers["9"]); got != 1 {
		t.Fatalf("expected 1 entry, got %d", got)
	}
	// a different ride merges in rather than overwriting
	if err := m.EnsureMarker(ctx, "9", models.MarkerEntry{RideRequestID: "r2", DriverID: "9"}); err != nil {
		t.Fatal(err)
	}
	if got := len(m.markers["9"]); got != 2 {
		t.Fatalf("expected 2 entries, got %d", got)
	}
}

func TestReassignCommitsAtomically(t *testing.T) {
	m := NewMemoryStore()
	loc := seedAssignment(m)
	m.PutRide(&models.RideRequest{ID: "r1", Status: models.RideStatusPending})
	ctx := context.Background()

	err := m.Reassign(ctx, loc, func(tx Tx) error {
		rec := tx.Assignment()
		rec.CurrentDriverID = "2"
		rec.EligibleDriverIDs = []string{"3"}
		tx.StageAssignment(rec)
		tx.StageMarker("2", models.MarkerEntry{RideRequestID: "r1", DriverID: "2"})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := m.GetAssignment(ctx, loc)
	if rec.CurrentDriverID != "2" || len(rec.EligibleDriverIDs) != 1 {
		t.Fatalf("staged writes not applied: %+v", rec)
	}
	if busy, _ := m.DriverBusy(ctx, "2"); !busy {
		t.Fatal("staged marker not applied")
	}
}

func TestReassignAbortsOnError(t *testing.T) {
	m := NewMemoryStore()
	loc := seedAssignment(m)
	ctx := context.Background()

	boom := errors.New("boom")
	err := m.Reassign(ctx, loc, func(tx Tx) error {
		rec := tx.Assignment()
		rec.CurrentDriverID = "changed"
		tx.StageAssignment(rec)
		tx.StageMarker("changed", models.MarkerEntry{RideRequestID: "r1", DriverID: "changed"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error back, got %v", err)
	}
	rec, _ := m.GetAssignment(ctx, loc)
	if rec.CurrentDriverID != "1" {
		t.Fatal("aborted transaction must not write")
	}
	if busy, _ := m.DriverBusy(ctx, "changed"); busy {
		t.Fatal("aborted transaction must not create markers")
	}
}

func TestReassignStagedCancellationHitsRide(t *testing.T) {
	m := NewMemoryStore()
	loc := seedAssignment(m)
	m.PutRide(&models.RideRequest{ID: "r1", Status: models.RideStatusPending})
	ctx := context.Background()

	err := m.Reassign(ctx, loc, func(tx Tx) error {
		rec := tx.Assignment()
		rec.Status = models.AssignmentCancelled
		tx.StageAssignment(rec)
		tx.StageRideCancellation("nobody came")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	ride, _ := m.GetRide(ctx, "r1")
	if ride.Status != models.RideStatusCancelled || ride.CancellationReason != "nobody came" {
		t.Fatalf("ride not cancelled: %+v", ride)
	}
}

func TestTxSnapshotIsACopy(t *testing.T) {
	m := NewMemoryStore()
	loc := seedAssignment(m)
	ctx := context.Background()

	_ = m.Reassign(ctx, loc, func(tx Tx) error {
		tx.Assignment().EligibleDriverIDs[0] = "mutated"
		return errors.New("abort")
	})
	rec, _ := m.GetAssignment(ctx, loc)
	if rec.EligibleDriverIDs[0] != "2" {
		t.Fatal("snapshot mutation leaked into the store")
	}
}
