package metrics

import "github.com/prometheus/client_golang/prometheus"

// NewRateLimitExceededTotal returns a Prometheus counter for the number of rejected HTTP requests due to rate limiting
func NewRateLimitExceededTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_exceeded_total",
		Help: "Total number of rejected HTTP requests due to rate limiting",
	})
}

// NewGatewayRetriesTotal returns a Prometheus counter for the number of retry attempts performed by the delivery gateway
func NewGatewayRetriesTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_retries_total",
		Help: "Total number of retry attempts performed by the delivery gateway",
	})
}

// NewBroadcastsReceivedTotal returns a Prometheus counter for broadcasts added to the local set
func NewBroadcastsReceivedTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broadcasts_received_total",
		Help: "Total number of delivery broadcasts added to the local set",
	})
}

// NewBroadcastsRemovedTotal returns a Prometheus counter vector for removed broadcasts, labeled by reason
func NewBroadcastsRemovedTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcasts_removed_total",
		Help: "Total number of delivery broadcasts removed from the local set",
	}, []string{"reason"})
}

// NewAcceptAttemptsTotal returns a Prometheus counter vector for accept attempts, labeled by outcome
func NewAcceptAttemptsTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "accept_attempts_total",
		Help: "Total number of delivery accept attempts",
	}, []string{"outcome"})
}

// Removal reasons used as label values for broadcasts_removed_total.
const (
	ReasonAccepted        = "accepted"
	ReasonAcceptedByOther = "accepted_by_other"
	ReasonExpired         = "expired"
	ReasonClosed          = "closed"
)

// Accept outcomes used as label values for accept_attempts_total.
const (
	OutcomeSuccess  = "success"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)
