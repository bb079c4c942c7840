package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OffersTotal           = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "offers_total", Help: "Driver offers extended"})
	OfferTimeoutsTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "offer_timeouts_total", Help: "Offers the driver never answered"})
	ReassignmentsTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "reassignments_total", Help: "Successful reassignments to a new driver"})
	ReassignFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "reassign_failures_total", Help: "Reassignment transactions that failed"})
	ActiveLoops           = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "active_loops", Help: "Dispatch loops currently running"})

	CancellationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "cancellations_total", Help: "Rides cancelled, by source"},
		[]string{"source"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
