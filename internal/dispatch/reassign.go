package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/store"
)

// CancelReasonExhausted is written to the ride when every candidate has
// been tried without an acceptance.
const CancelReasonExhausted = "No driver accepted your request. Please try again."

// Reassigner picks the next candidate for a ride inside a single store
// transaction, so the busy check and the pool updates commit together and
// two concurrent reassignments can never hand the same idle driver two
// rides.
type Reassigner struct {
	Store store.Store
	Log   *slog.Logger

	// Pick returns a uniform-random index in [0,n). Injectable so tests
	// can force a selection order; defaults to the global RNG.
	Pick func(n int) int
}

// Next retires the lapsed driver and returns the next candidate, or ""
// when both pools are exhausted — in which case the assignment and the
// parent ride are marked cancelled in the same commit. Transaction-level
// failures come back wrapped in ErrReassignFailed.
//
// Eligible candidates are tried in random order; drivers found busy move
// to the tail of the FIFO queue pool for one later retry. During the
// queue drain a driver found busy a second time is given up on.
func (r *Reassigner) Next(ctx context.Context, loc models.AssignmentLocator, lapsed string) (string, error) {
	var winner string
	err := r.Store.Reassign(ctx, loc, func(tx store.Tx) error {
		rec := tx.Assignment()
		eligible := removeID(rec.EligibleDriverIDs, lapsed)
		queue := removeID(rec.QueueDriverIDs, lapsed)
		rejected := appendUnique(rec.RejectedDriverIDs, lapsed)

		commitWinner := func(cand string) {
			winner = cand
			rec.CurrentDriverID = cand
			rec.EligibleDriverIDs = eligible
			rec.QueueDriverIDs = queue
			rec.RejectedDriverIDs = rejected
			tx.StageMarker(cand, models.MarkerEntry{RideRequestID: loc.RideID, DriverID: cand})
			tx.StageAssignment(rec)
		}

		for len(eligible) > 0 {
			i := r.pick(len(eligible))
			cand := eligible[i]
			eligible = append(eligible[:i:i], eligible[i+1:]...)
			busy, err := tx.DriverBusy(cand)
			if err != nil {
				return err
			}
			if busy {
				if !containsID(queue, cand) {
					queue = append(queue, cand)
				}
				continue
			}
			commitWinner(cand)
			return nil
		}

		for len(queue) > 0 {
			cand := queue[0]
			queue = queue[1:]
			busy, err := tx.DriverBusy(cand)
			if err != nil {
				return err
			}
			if busy {
				// second strike; not re-queued
				rejected = appendUnique(rejected, cand)
				continue
			}
			commitWinner(cand)
			return nil
		}

		rec.CurrentDriverID = ""
		rec.EligibleDriverIDs = eligible
		rec.QueueDriverIDs = queue
		rec.RejectedDriverIDs = rejected
		rec.Status = models.AssignmentCancelled
		tx.StageAssignment(rec)
		tx.StageRideCancellation(CancelReasonExhausted)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: ride %s: %v", ErrReassignFailed, loc.RideID, err)
	}
	return winner, nil
}

func (r *Reassigner) pick(n int) int {
	if r.Pick != nil {
		return r.Pick(n)
	}
	return rand.Intn(n)
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func appendUnique(ids []string, id string) []string {
	if containsID(ids, id) {
		return ids
	}
	return append(ids, id)
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
