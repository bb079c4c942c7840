package store

import (
	"context"
	"errors"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

var (
	// ErrNotFound reports a missing ride or assignment document.
	ErrNotFound = errors.New("store: not found")
	// ErrTxConflict reports an optimistic-isolation failure: another
	// writer touched a watched document between snapshot and commit.
	// Conflicts are surfaced, never retried here.
	ErrTxConflict = errors.New("store: transaction conflict")
)

// Tx is the view one reassignment transaction operates on. Reads observe
// a consistent snapshot of the assignment record and the busy markers it
// inspects; staged writes commit atomically or not at all.
type Tx interface {
	// Assignment returns the snapshot taken when the transaction began.
	// Callers may mutate and re-stage it.
	Assignment() *models.AssignmentRecord
	// DriverBusy checks marker presence for a candidate. The checked key
	// joins the transaction's conflict set.
	DriverBusy(driverID string) (bool, error)
	StageAssignment(rec *models.AssignmentRecord)
	StageMarker(driverID string, entry models.MarkerEntry)
	StageRideCancellation(reason string)
}

// Store is the document store shared by the dispatch loop and the user
// timeout guard. Plain writes are field-level last-write-wins; anything
// that depends on a prior read goes through Reassign.
type Store interface {
	GetRide(ctx context.Context, rideID string) (*models.RideRequest, error)
	SetRideUserTimer(ctx context.Context, rideID string, expiresAt time.Time) error
	CancelRide(ctx context.Context, rideID string, reason string) error

	GetAssignment(ctx context.Context, loc models.AssignmentLocator) (*models.AssignmentRecord, error)
	// ArmAssignmentTimer writes timer_expires_at and defaults status to
	// pending when unset.
	ArmAssignmentTimer(ctx context.Context, loc models.AssignmentLocator, expiresAt time.Time) error
	// CancelAssignment writes status=cancelled on the record. A plain
	// last-write-wins field write; the dispatch loop observes it on wake
	// and stops offering.
	CancelAssignment(ctx context.Context, loc models.AssignmentLocator) error

	// EnsureMarker appends the entry to the driver's busy marker unless an
	// entry for the same ride is already there.
	EnsureMarker(ctx context.Context, driverID string, entry models.MarkerEntry) error
	DeleteMarker(ctx context.Context, driverID string) error
	DriverBusy(ctx context.Context, driverID string) (bool, error)

	// Reassign runs fn against a consistent snapshot of the assignment
	// record and commits its staged writes atomically. An error from fn
	// aborts the transaction; nothing is written.
	Reassign(ctx context.Context, loc models.AssignmentLocator, fn func(tx Tx) error) error
}
