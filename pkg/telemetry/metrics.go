package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the platform core.
type Metrics struct {
	config MetricsConfig

	// Transition metrics
	transitionsTotal   *prometheus.CounterVec
	transitionDuration *prometheus.HistogramVec

	// Dispatch metrics
	dispatchesTotal  *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec

	// Settlement metrics
	settlementsTotal      *prometheus.CounterVec
	settlementRejections  *prometheus.CounterVec

	// Policy metrics
	policyDenials *prometheus.CounterVec

	// Version lookup metrics
	releaseLookups *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// State metrics
	appsByStatus        *prometheus.GaugeVec
	transientOperations prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Transition metrics
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Total number of requested lifecycle transitions",
			},
			[]string{"entity", "action", "outcome"},
		),
		transitionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transition_duration_seconds",
				Help:      "Duration from transition request to dispatched intent in seconds",
				Buckets:   buckets,
			},
			[]string{"entity", "action"},
		),

		// Dispatch metrics
		dispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_total",
				Help:      "Total number of events handed to the runner",
			},
			[]string{"engine", "type", "status"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Duration of event handover in seconds",
				Buckets:   buckets,
			},
			[]string{"engine"},
		),

		// Settlement metrics
		settlementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlements_total",
				Help:      "Total number of runner settlements applied",
			},
			[]string{"entity", "status"},
		),
		settlementRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlement_rejections_total",
				Help:      "Total number of settlements rejected as invalid",
			},
			[]string{"reason"},
		),

		// Policy metrics
		policyDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_denials_total",
				Help:      "Total number of operations denied by policy",
			},
			[]string{"operation", "policy"},
		),

		// Version lookup metrics
		releaseLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "release_lookups_total",
				Help:      "Total number of release endpoint lookups",
			},
			[]string{"status"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Total number of ephemeral cache lookups",
			},
			[]string{"result"},
		),

		// Error metrics
		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of lifecycle errors by kind",
			},
			[]string{"kind"},
		),

		// State metrics
		appsByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "apps_by_status",
				Help:      "Current number of application records per status",
			},
			[]string{"status"},
		),
		transientOperations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "transient_operations",
				Help:      "Current number of dispatched, not yet settled operations",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.transitionsTotal,
		m.transitionDuration,
		m.dispatchesTotal,
		m.dispatchDuration,
		m.settlementsTotal,
		m.settlementRejections,
		m.policyDenials,
		m.releaseLookups,
		m.cacheLookups,
		m.errorsByKind,
		m.appsByStatus,
		m.transientOperations,
	)

	return m, nil
}

// Transition Metrics

// RecordTransition records a requested transition and its outcome.
// Entity is "app" or "system"; outcome is "dispatched" or "rejected".
func (m *Metrics) RecordTransition(entity, action, outcome string) {
	if m.transitionsTotal == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(entity, action, outcome).Inc()
}

// RecordTransitionDuration records the time a transition spent between
// request and dispatched intent.
func (m *Metrics) RecordTransitionDuration(entity, action string, duration time.Duration) {
	if m.transitionDuration == nil {
		return
	}
	m.transitionDuration.WithLabelValues(entity, action).Observe(duration.Seconds())
}

// Dispatch Metrics

// RecordDispatch records one event handover with its duration.
func (m *Metrics) RecordDispatch(engine, eventType, status string, duration time.Duration) {
	if m.dispatchesTotal == nil {
		return
	}
	m.dispatchesTotal.WithLabelValues(engine, eventType, status).Inc()
	m.dispatchDuration.WithLabelValues(engine).Observe(duration.Seconds())
}

// Settlement Metrics

// RecordSettlement records an applied runner settlement.
func (m *Metrics) RecordSettlement(entity, status string) {
	if m.settlementsTotal == nil {
		return
	}
	m.settlementsTotal.WithLabelValues(entity, status).Inc()
}

// RecordSettlementRejection records a settlement rejected as invalid.
func (m *Metrics) RecordSettlementRejection(reason string) {
	if m.settlementRejections == nil {
		return
	}
	m.settlementRejections.WithLabelValues(reason).Inc()
}

// Policy Metrics

// RecordPolicyDenial records an operation denied by a policy.
func (m *Metrics) RecordPolicyDenial(operation, policy string) {
	if m.policyDenials == nil {
		return
	}
	m.policyDenials.WithLabelValues(operation, policy).Inc()
}

// Lookup Metrics

// RecordReleaseLookup records one release endpoint lookup by status
// ("ok" or "error").
func (m *Metrics) RecordReleaseLookup(status string) {
	if m.releaseLookups == nil {
		return
	}
	m.releaseLookups.WithLabelValues(status).Inc()
}

// RecordCacheLookup records a cache lookup result.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m.cacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Error Metrics

// RecordError records a lifecycle error by kind.
func (m *Metrics) RecordError(kind string) {
	if m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// State Metrics

// SetAppCount sets the current count of application records in a status.
func (m *Metrics) SetAppCount(status string, count float64) {
	if m.appsByStatus == nil {
		return
	}
	m.appsByStatus.WithLabelValues(status).Set(count)
}

// SetTransientOperations sets the current number of unsettled operations.
func (m *Metrics) SetTransientOperations(count float64) {
	if m.transientOperations == nil {
		return
	}
	m.transientOperations.Set(count)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
