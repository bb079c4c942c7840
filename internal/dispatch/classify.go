package dispatch

import (
	"fmt"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

const (
	defaultAcceptTimeout = 3 * time.Second
	defaultRiderBudget   = 3 * time.Minute
)

// Classification tells the loop how long each driver gets to answer and
// where the ride's assignment record lives.
type Classification struct {
	AcceptTimeout time.Duration
	Locator       models.AssignmentLocator
}

// Classify derives the dispatch parameters from ride attributes.
// Bidding rides (except package deliveries) return ErrBiddingRide;
// unknown combinations return ErrInvalidServiceConfig. Either way the
// loop must not start and the ride is left untouched.
func Classify(r *models.RideRequest) (Classification, error) {
	if r.IsBidding && r.ServiceCategory != models.CategoryPackage {
		return Classification{}, fmt.Errorf("%w: ride %s", ErrBiddingRide, r.ID)
	}
	switch r.ServiceType {
	case models.ServiceCab:
		switch r.ServiceCategory {
		case models.CategoryRental:
			return Classification{
				AcceptTimeout: secondsOrDefault(r.RentalAcceptTimeSec),
				Locator:       models.AssignmentLocator{RideID: r.ID, Kind: models.AssignmentRental},
			}, nil
		case models.CategoryPackage, models.CategoryRide, models.CategoryIntercity, models.CategorySchedule:
			return Classification{
				AcceptTimeout: secondsOrDefault(r.AcceptTimeSec),
				Locator:       models.AssignmentLocator{RideID: r.ID, Kind: models.AssignmentInstant},
			}, nil
		default:
			return Classification{}, fmt.Errorf("%w: cab category %q", ErrInvalidServiceConfig, r.ServiceCategory)
		}
	case models.ServiceParcel:
		return Classification{
			AcceptTimeout: secondsOrDefault(r.AcceptTimeSec),
			Locator:       models.AssignmentLocator{RideID: r.ID, Kind: models.AssignmentInstant},
		}, nil
	default:
		return Classification{}, fmt.Errorf("%w: service type %q", ErrInvalidServiceConfig, r.ServiceType)
	}
}

// RiderBudget returns the rider-facing wait limit for the timeout guard.
func RiderBudget(r *models.RideRequest) time.Duration {
	if r.FindDriverLimitMin <= 0 {
		return defaultRiderBudget
	}
	return time.Duration(r.FindDriverLimitMin) * time.Minute
}

func secondsOrDefault(sec int) time.Duration {
	if sec <= 0 {
		return defaultAcceptTimeout
	}
	return time.Duration(sec) * time.Second
}
