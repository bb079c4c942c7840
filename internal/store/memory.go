package store

import (
	"context"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// MemoryStore is the in-process reference implementation. A single mutex
// serializes every operation, so each Reassign trivially sees a consistent
// snapshot. Used by tests and local runs without Redis.
type MemoryStore struct {
	mu          sync.Mutex
	rides       map[string]*models.RideRequest
	assignments map[string]*models.AssignmentRecord
	markers     map[string][]models.MarkerEntry
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*memTx)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:       make(map[string]*models.RideRequest),
		assignments: make(map[string]*models.AssignmentRecord),
		markers:     make(map[string][]models.MarkerEntry),
	}
}

// PutRide seeds a ride document the way the intake service would.
func (m *MemoryStore) PutRide(r *models.RideRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rides[r.ID] = &cp
}

// PutAssignment seeds an assignment record the way the intake service would.
func (m *MemoryStore) PutAssignment(loc models.AssignmentLocator, rec *models.AssignmentRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[loc.Key()] = copyAssignment(rec)
}

func (m *MemoryStore) GetRide(ctx context.Context, rideID string) (*models.RideRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) SetRideUserTimer(ctx context.Context, rideID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return ErrNotFound
	}
	r.UserTimerExpiresAt = expiresAt.UTC().Format(time.RFC3339)
	return nil
}

func (m *MemoryStore) CancelRide(ctx context.Context, rideID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return ErrNotFound
	}
	r.Status = models.RideStatusCancelled
	r.CancellationReason = reason
	return nil
}

func (m *MemoryStore) GetAssignment(ctx context.Context, loc models.AssignmentLocator) (*models.AssignmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.assignments[loc.Key()]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAssignment(rec), nil
}

func (m *MemoryStore) ArmAssignmentTimer(ctx context.Context, loc models.AssignmentLocator, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.assignments[loc.Key()]
	if !ok {
		return ErrNotFound
	}
	rec.TimerExpiresAt = expiresAt.UTC().Format(time.RFC3339)
	if rec.Status == "" {
		rec.Status = models.AssignmentPending
	}
	return nil
}

func (m *MemoryStore) CancelAssignment(ctx context.Context, loc models.AssignmentLocator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.assignments[loc.Key()]
	if !ok {
		return ErrNotFound
	}
	rec.Status = models.AssignmentCancelled
	return nil
}

func (m *MemoryStore) EnsureMarker(ctx context.Context, driverID string, entry models.MarkerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.markers[driverID] {
		if e.RideRequestID == entry.RideRequestID {
			return nil
		}
	}
	m.markers[driverID] = append(m.markers[driverID], entry)
	return nil
}

func (m *MemoryStore) DeleteMarker(ctx context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.markers, driverID)
	return nil
}

func (m *MemoryStore) DriverBusy(ctx context.Context, driverID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.markers[driverID]) > 0, nil
}

func (m *MemoryStore) Reassign(ctx context.Context, loc models.AssignmentLocator, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.assignments[loc.Key()]
	if !ok {
		return ErrNotFound
	}
	tx := &memTx{store: m, snapshot: copyAssignment(rec)}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.stagedRec != nil {
		m.assignments[loc.Key()] = copyAssignment(tx.stagedRec)
	}
	for _, sm := range tx.stagedMarkers {
		m.markers[sm.driverID] = append(m.markers[sm.driverID], sm.entry)
	}
	if tx.cancelled {
		if r, ok := m.rides[loc.RideID]; ok {
			r.Status = models.RideStatusCancelled
			r.CancellationReason = tx.cancelReason
		}
	}
	return nil
}

type stagedMarker struct {
	driverID string
	entry    models.MarkerEntry
}

type memTx struct {
	store         *MemoryStore
	snapshot      *models.AssignmentRecord
	stagedRec     *models.AssignmentRecord
	stagedMarkers []stagedMarker
	cancelled     bool
	cancelReason  string
}

func (t *memTx) Assignment() *models.AssignmentRecord { return t.snapshot }

func (t *memTx) DriverBusy(driverID string) (bool, error) {
	// caller already holds the store lock for the whole transaction
	return len(t.store.markers[driverID]) > 0, nil
}

func (t *memTx) StageAssignment(rec *models.AssignmentRecord) { t.stagedRec = rec }

func (t *memTx) StageMarker(driverID string, entry models.MarkerEntry) {
	t.stagedMarkers = append(t.stagedMarkers, stagedMarker{driverID: driverID, entry: entry})
}

func (t *memTx) StageRideCancellation(reason string) {
	t.cancelled = true
	t.cancelReason = reason
}

func copyAssignment(rec *models.AssignmentRecord) *models.AssignmentRecord {
	cp := *rec
	cp.EligibleDriverIDs = append([]string(nil), rec.EligibleDriverIDs...)
	cp.QueueDriverIDs = append([]string(nil), rec.QueueDriverIDs...)
	cp.RejectedDriverIDs = append([]string(nil), rec.RejectedDriverIDs...)
	return &cp
}
