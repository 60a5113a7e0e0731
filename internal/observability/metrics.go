package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srb_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "srb_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	SeatsLocked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "srb_seats_locked_total",
			Help: "Seats moved into locked by hold creation",
		},
	)

	SeatsSold = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "srb_seats_sold_total",
			Help: "Seats converted from locked to sold",
		},
	)

	HoldsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "srb_holds_expired_total",
			Help: "Temporary bookings cancelled by the expiry reaper",
		},
	)

	PaymentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srb_payment_failures_total",
			Help: "Payment integrity failures by kind",
		},
		[]string{"kind"},
	)

	InvariantViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "srb_invariant_violations_total",
			Help: "Detected seat counter inconsistencies",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "srb_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "srb_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
