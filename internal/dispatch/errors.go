package dispatch

import "errors"

var (
	// ErrBiddingRide marks a ride handled by the bidding flow; the loop
	// must never start for it. Not a failure.
	ErrBiddingRide = errors.New("dispatch: bidding ride handled elsewhere")

	// ErrInvalidServiceConfig reports an unrecognized service type or
	// category combination. Fatal for the ride, no mutation.
	ErrInvalidServiceConfig = errors.New("dispatch: invalid service configuration")

	// ErrRecordMissing reports that the assignment record never showed up
	// within the bounded wait. The ride may belong to a flow this engine
	// does not own, so no cancellation is written.
	ErrRecordMissing = errors.New("dispatch: assignment record never materialized")

	// ErrNoCurrentDriver reports an assignment record without an initial
	// driver to offer to.
	ErrNoCurrentDriver = errors.New("dispatch: assignment record has no current driver")

	// ErrTimerWrite reports a failed timer_expires_at/status write; the
	// loop aborts mid-flight.
	ErrTimerWrite = errors.New("dispatch: failed to arm offer timer")

	// ErrReassignFailed wraps a transaction-level failure. Distinct from
	// pool exhaustion even though the loop ends either way, so a future
	// retry policy can tell infrastructure failures apart.
	ErrReassignFailed = errors.New("dispatch: reassignment transaction failed")
)
