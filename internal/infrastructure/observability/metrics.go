package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RelationshipsCreated counts relationships written, labeled by stored edge type.
	RelationshipsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kin_relationships_created_total",
			Help: "Total number of relationships created",
		},
		[]string{"type"},
	)

	// RelationshipsDeleted counts relationship edges removed.
	RelationshipsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kin_relationships_deleted_total",
			Help: "Total number of relationship edges deleted",
		},
	)

	// ValidationFailures counts relationship creations rejected by validation.
	ValidationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kin_validation_failures_total",
			Help: "Total number of relationship writes rejected by validation",
		},
	)

	// PartialWrites counts primary edges left without their reciprocal.
	PartialWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kin_partial_writes_total",
			Help: "Total number of relationships stored without their reciprocal edge",
		},
	)

	// SuggestionsServed counts suggestions returned, labeled by suggested relationship.
	SuggestionsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kin_suggestions_served_total",
			Help: "Total number of relationship suggestions returned",
		},
		[]string{"type"},
	)

	// HTTPRequestsTotal counts API requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kin_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures API response time.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kin_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// StoreCircuitState reports the hosted store circuit breaker state (0 closed, 1 half-open, 2 open).
	StoreCircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kin_store_circuit_state",
			Help: "Circuit breaker state of the hosted store",
		},
		[]string{"name"},
	)
)
