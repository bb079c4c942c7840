package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

func TestClassifyCabRental(t *testing.T) {
	cls, err := Classify(&models.RideRequest{
		ID:                  "r1",
		ServiceType:         models.ServiceCab,
		ServiceCategory:     models.CategoryRental,
		RentalAcceptTimeSec: 7,
		AcceptTimeSec:       2, // must be ignored for rentals
	})
	if err != nil {
		t.Fatal(err)
	}
	if cls.AcceptTimeout != 7*time.Second {
		t.Fatalf("expected 7s, got %s", cls.AcceptTimeout)
	}
	if cls.Locator.Kind != models.AssignmentRental {
		t.Fatalf("expected rental locator, got %s", cls.Locator.Kind)
	}
}

func TestClassifyInstantCategories(t *testing.T) {
	for _, cat := range []models.ServiceCategory{
		models.CategoryPackage, models.CategoryRide, models.CategoryIntercity, models.CategorySchedule,
	} {
		cls, err := Classify(&models.RideRequest{ID: "r1", ServiceType: models.ServiceCab, ServiceCategory: cat})
		if err != nil {
			t.Fatalf("%s: %v", cat, err)
		}
		if cls.Locator.Kind != models.AssignmentInstant {
			t.Fatalf("%s: expected instant locator, got %s", cat, cls.Locator.Kind)
		}
		if cls.AcceptTimeout != 3*time.Second {
			t.Fatalf("%s: expected default 3s, got %s", cat, cls.AcceptTimeout)
		}
	}
}

func TestClassifyParcelAlwaysInstant(t *testing.T) {
	cls, err := Classify(&models.RideRequest{ID: "r1", ServiceType: models.ServiceParcel, AcceptTimeSec: 10})
	if err != nil {
		t.Fatal(err)
	}
	if cls.Locator.Kind != models.AssignmentInstant || cls.AcceptTimeout != 10*time.Second {
		t.Fatalf("unexpected classification: %+v", cls)
	}
}

func TestClassifyBiddingExcluded(t *testing.T) {
	_, err := Classify(&models.RideRequest{
		ID: "r1", ServiceType: models.ServiceCab, ServiceCategory: models.CategoryRide, IsBidding: true,
	})
	if !errors.Is(err, ErrBiddingRide) {
		t.Fatalf("expected ErrBiddingRide, got %v", err)
	}

	// package deliveries dispatch normally even with bidding on
	if _, err := Classify(&models.RideRequest{
		ID: "r1", ServiceType: models.ServiceCab, ServiceCategory: models.CategoryPackage, IsBidding: true,
	}); err != nil {
		t.Fatalf("bidding package should dispatch, got %v", err)
	}
}

func TestClassifyInvalidCombos(t *testing.T) {
	for _, r := range []*models.RideRequest{
		{ID: "r1", ServiceType: models.ServiceCab, ServiceCategory: "boat"},
		{ID: "r1", ServiceType: "drone", ServiceCategory: models.CategoryRide},
		{ID: "r1"},
	} {
		if _, err := Classify(r); !errors.Is(err, ErrInvalidServiceConfig) {
			t.Fatalf("%+v: expected ErrInvalidServiceConfig, got %v", r, err)
		}
	}
}

func TestRiderBudgetDefault(t *testing.T) {
	if got := RiderBudget(&models.RideRequest{}); got != 3*time.Minute {
		t.Fatalf("expected 3m default, got %s", got)
	}
	if got := RiderBudget(&models.RideRequest{FindDriverLimitMin: 5}); got != 5*time.Minute {
		t.Fatalf("expected 5m, got %s", got)
	}
}
