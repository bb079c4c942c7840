package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/models"
)

// RedisStore keeps each document as a hash so the dispatch loop and the
// timeout guard can write disjoint fields without clobbering each other.
// Reassignment uses WATCH for optimistic isolation: the assignment key and
// every busy marker the transaction inspects join the conflict set, and a
// conflicting write aborts the commit (surfaced as ErrTxConflict, never
// retried by this layer).
type RedisStore struct {
	client *redis.Client
}

var (
	_ Store = (*RedisStore)(nil)
	_ Tx    = (*redisTx)(nil)
)

func NewRedisStore(addr, password string) *RedisStore {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisStore{client: c}
}

func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStore) Close() error { return s.client.Close() }

func rideKey(rideID string) string { return "ride_requests:" + rideID }

func assignmentKey(loc models.AssignmentLocator) string {
	return "ride_requests:" + loc.RideID + ":" + string(loc.Kind)
}

func markerKey(driverID string) string { return "driver_ride_requests:" + driverID }

func (s *RedisStore) GetRide(ctx context.Context, rideID string) (*models.RideRequest, error) {
	m, err := s.client.HGetAll(ctx, rideKey(rideID)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return decodeRide(rideID, m)
}

func (s *RedisStore) SetRideUserTimer(ctx context.Context, rideID string, expiresAt time.Time) error {
	return s.client.HSet(ctx, rideKey(rideID),
		"user_timer_expires_at", expiresAt.UTC().Format(time.RFC3339)).Err()
}

func (s *RedisStore) CancelRide(ctx context.Context, rideID string, reason string) error {
	return s.client.HSet(ctx, rideKey(rideID),
		"status", string(models.RideStatusCancelled),
		"cancellation_reason", reason).Err()
}

func (s *RedisStore) GetAssignment(ctx context.Context, loc models.AssignmentLocator) (*models.AssignmentRecord, error) {
	m, err := s.client.HGetAll(ctx, assignmentKey(loc)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return decodeAssignment(loc.RideID, m)
}

func (s *RedisStore) ArmAssignmentTimer(ctx context.Context, loc models.AssignmentLocator, expiresAt time.Time) error {
	key := assignmentKey(loc)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "timer_expires_at", expiresAt.UTC().Format(time.RFC3339))
	pipe.HSetNX(ctx, key, "status", string(models.AssignmentPending))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) CancelAssignment(ctx context.Context, loc models.AssignmentLocator) error {
	return s.client.HSet(ctx, assignmentKey(loc),
		"status", string(models.AssignmentCancelled)).Err()
}

func (s *RedisStore) EnsureMarker(ctx context.Context, driverID string, entry models.MarkerEntry) error {
	key := markerKey(driverID)
	existing, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	for _, raw := range existing {
		var e models.MarkerEntry
		if json.Unmarshal([]byte(raw), &e) == nil && e.RideRequestID == entry.RideRequestID {
			return nil
		}
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, key, b).Err()
}

func (s *RedisStore) DeleteMarker(ctx context.Context, driverID string) error {
	return s.client.Del(ctx, markerKey(driverID)).Err()
}

func (s *RedisStore) DriverBusy(ctx context.Context, driverID string) (bool, error) {
	n, err := s.client.Exists(ctx, markerKey(driverID)).Result()
	return n > 0, err
}

func (s *RedisStore) Reassign(ctx context.Context, loc models.AssignmentLocator, fn func(tx Tx) error) error {
	key := assignmentKey(loc)
	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		m, err := rtx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(m) == 0 {
			return ErrNotFound
		}
		rec, err := decodeAssignment(loc.RideID, m)
		if err != nil {
			return err
		}
		tx := &redisTx{ctx: ctx, rtx: rtx, snapshot: rec}
		if err := fn(tx); err != nil {
			return err
		}
		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if tx.stagedRec != nil {
				pipe.HSet(ctx, key, encodeAssignment(tx.stagedRec))
			}
			for _, sm := range tx.stagedMarkers {
				b, err := json.Marshal(sm.entry)
				if err != nil {
					return err
				}
				pipe.RPush(ctx, markerKey(sm.driverID), b)
			}
			if tx.cancelled {
				pipe.HSet(ctx, rideKey(loc.RideID),
					"status", string(models.RideStatusCancelled),
					"cancellation_reason", tx.cancelReason)
			}
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %v", ErrTxConflict, err)
	}
	return err
}

type redisTx struct {
	ctx           context.Context
	rtx           *redis.Tx
	snapshot      *models.AssignmentRecord
	stagedRec     *models.AssignmentRecord
	stagedMarkers []stagedMarker
	cancelled     bool
	cancelReason  string
}

func (t *redisTx) Assignment() *models.AssignmentRecord { return t.snapshot }

func (t *redisTx) DriverBusy(driverID string) (bool, error) {
	key := markerKey(driverID)
	if err := t.rtx.Watch(t.ctx, key).Err(); err != nil {
		return false, err
	}
	n, err := t.rtx.Exists(t.ctx, key).Result()
	return n > 0, err
}

func (t *redisTx) StageAssignment(rec *models.AssignmentRecord) { t.stagedRec = rec }

func (t *redisTx) StageMarker(driverID string, entry models.MarkerEntry) {
	t.stagedMarkers = append(t.stagedMarkers, stagedMarker{driverID: driverID, entry: entry})
}

func (t *redisTx) StageRideCancellation(reason string) {
	t.cancelled = true
	t.cancelReason = reason
}

func decodeRide(rideID string, m map[string]string) (*models.RideRequest, error) {
	r := &models.RideRequest{
		ID:                 rideID,
		RiderID:            m["rider_id"],
		ServiceType:        models.ServiceType(m["service_type"]),
		ServiceCategory:    models.ServiceCategory(m["service_category"]),
		IsBidding:          m["is_bidding"] == "true",
		Status:             models.RideStatus(m["status"]),
		CancellationReason: m["cancellation_reason"],
		DriverID:           m["driver_id"],
		UserTimerExpiresAt: m["user_timer_expires_at"],
	}
	r.AcceptTimeSec = atoiField(m, "driver_ride_request_accept_time")
	r.RentalAcceptTimeSec = atoiField(m, "driver_amb_rent_ride_req_time")
	r.FindDriverLimitMin = atoiField(m, "find_driver_time_limit")
	if raw, ok := m["driverIds"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &r.LegacyDriverIDs); err != nil {
			return nil, fmt.Errorf("ride %s: bad driverIds: %w", rideID, err)
		}
	}
	return r, nil
}

func decodeAssignment(rideID string, m map[string]string) (*models.AssignmentRecord, error) {
	rec := &models.AssignmentRecord{
		RideID:          rideID,
		CurrentDriverID: m["current_driver_id"],
		Status:          models.AssignmentStatus(m["status"]),
		TimerExpiresAt:  m["timer_expires_at"],
	}
	for field, target := range map[string]*[]string{
		"eligible_driver_ids": &rec.EligibleDriverIDs,
		"queue_driver_id":     &rec.QueueDriverIDs,
		"rejected_driver_ids": &rec.RejectedDriverIDs,
	} {
		raw, ok := m[field]
		if !ok || raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(raw), target); err != nil {
			return nil, fmt.Errorf("assignment %s: bad %s: %w", rideID, field, err)
		}
	}
	return rec, nil
}

func encodeAssignment(rec *models.AssignmentRecord) map[string]interface{} {
	return map[string]interface{}{
		"current_driver_id":   rec.CurrentDriverID,
		"eligible_driver_ids": mustJSON(rec.EligibleDriverIDs),
		"queue_driver_id":     mustJSON(rec.QueueDriverIDs),
		"rejected_driver_ids": mustJSON(rec.RejectedDriverIDs),
		"status":              string(rec.Status),
		"timer_expires_at":    rec.TimerExpiresAt,
	}
}

func mustJSON(ids []string) string {
	if ids == nil {
		ids = []string{}
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

func atoiField(m map[string]string, field string) int {
	v, ok := m[field]
	if !ok || v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
