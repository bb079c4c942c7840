package models

import "time"

type ServiceType string

const (
	ServiceCab    ServiceType = "cab"
	ServiceParcel ServiceType = "parcel"
)

type ServiceCategory string

const (
	CategoryRental    ServiceCategory = "rental"
	CategoryPackage   ServiceCategory = "package"
	CategoryRide      ServiceCategory = "ride"
	CategoryIntercity ServiceCategory = "intercity"
	CategorySchedule  ServiceCategory = "schedule"
)

type RideStatus string

const (
	RideStatusPending   RideStatus = "pending"
	RideStatusAccepted  RideStatus = "accepted"
	RideStatusCancelled RideStatus = "cancelled"
)

type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentAccepted  AssignmentStatus = "accepted"
	AssignmentRejected  AssignmentStatus = "rejected"
	AssignmentCancelled AssignmentStatus = "cancelled"
)

// RideRequest is the top-level document written by the intake service.
// This engine only ever flips status/cancellation fields on it.
type RideRequest struct {
	ID              string          `json:"id"`
	RiderID         string          `json:"rider_id"`
	ServiceType     ServiceType     `json:"service_type"`
	ServiceCategory ServiceCategory `json:"service_category"`
	IsBidding       bool            `json:"is_bidding"`

	// Per-ride timeout knobs, whole seconds/minutes. Zero means
	// "use the default".
	AcceptTimeSec       int `json:"driver_ride_request_accept_time"`
	RentalAcceptTimeSec int `json:"driver_amb_rent_ride_req_time"`
	FindDriverLimitMin  int `json:"find_driver_time_limit"`

	Status             RideStatus `json:"status"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	DriverID           string     `json:"driver_id,omitempty"` // set once a driver confirms
	UserTimerExpiresAt string     `json:"user_timer_expires_at,omitempty"`

	// LegacyDriverIDs is an older fan-out attribute some intake paths
	// still write; the timeout guard sweeps markers for its numeric ids.
	LegacyDriverIDs []string `json:"driverIds,omitempty"`
}

// AssignmentKind selects which child record of the ride holds the
// assignment state.
type AssignmentKind string

const (
	AssignmentInstant AssignmentKind = "instantRide"
	AssignmentRental  AssignmentKind = "rental_requests"
)

// AssignmentLocator addresses the one assignment record of a ride.
type AssignmentLocator struct {
	RideID string
	Kind   AssignmentKind
}

func (l AssignmentLocator) Key() string { return l.RideID + "/" + string(l.Kind) }

// AssignmentRecord tracks the current offer and the candidate pools.
// Mutated only by the dispatch loop and its reassignment transaction;
// immutable once Status reaches accepted or cancelled.
type AssignmentRecord struct {
	RideID            string           `json:"ride_id"`
	CurrentDriverID   string           `json:"current_driver_id,omitempty"`
	EligibleDriverIDs []string         `json:"eligible_driver_ids"`
	QueueDriverIDs    []string         `json:"queue_driver_id"`
	RejectedDriverIDs []string         `json:"rejected_driver_ids"`
	Status            AssignmentStatus `json:"status"`
	TimerExpiresAt    string           `json:"timer_expires_at,omitempty"`
}

// MarkerEntry is one element of a driver's busy marker. The marker's
// existence is the busy signal; entries record which rides put it there.
type MarkerEntry struct {
	RideRequestID string `json:"ride_request_id"`
	DriverID      string `json:"driver_id"`
}

type DispatchEventType string

const (
	EventOffered         DispatchEventType = "offered"
	EventOfferTimedOut   DispatchEventType = "offer_timed_out"
	EventReassigned      DispatchEventType = "reassigned"
	EventDriverResponded DispatchEventType = "driver_responded"
	EventPoolExhausted   DispatchEventType = "pool_exhausted"
	EventRideCancelled   DispatchEventType = "ride_cancelled"
)

// DispatchEvent is the lifecycle record published for the notification
// component and the audit trail.
type DispatchEvent struct {
	RideID   string            `json:"ride_id"`
	DriverID string            `json:"driver_id,omitempty"`
	Type     DispatchEventType `json:"type"`
	At       time.Time         `json:"at"`
}
