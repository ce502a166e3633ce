package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/port"
)

// MetricsOptions configures the domain collectors.
type MetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// Metrics implements guard and query layer instrumentation on Prometheus collectors.
type Metrics struct {
	Decisions     *prometheus.CounterVec
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	Subscriptions prometheus.Gauge
	FeedErrors    prometheus.Counter
}

// NewMetrics registers the collectors, reusing ones already registered under the same name.
func NewMetrics(opts MetricsOptions) (*Metrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "salon"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	decisions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "guard",
		Name:      "decisions_total",
		Help:      "Navigation decisions partitioned by route class, outcome and deny reason.",
	}, []string{"class", "outcome", "reason"}))
	if err != nil {
		return nil, err
	}

	hits, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "query_cache",
		Name:      "hits_total",
		Help:      "Appointment range queries served from the cache.",
	}, []string{"collection"}))
	if err != nil {
		return nil, err
	}

	misses, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "query_cache",
		Name:      "misses_total",
		Help:      "Appointment range queries that reached the store.",
	}, []string{"collection"}))
	if err != nil {
		return nil, err
	}

	subscriptions, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "query_cache",
		Name:      "open_subscriptions",
		Help:      "Currently open appointment range subscriptions.",
	}))
	if err != nil {
		return nil, err
	}

	feedErrors, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "query_cache",
		Name:      "feed_errors_total",
		Help:      "Errors delivered by appointment feeds.",
	}))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Decisions:     decisions,
		CacheHits:     hits,
		CacheMisses:   misses,
		Subscriptions: subscriptions,
		FeedErrors:    feedErrors,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	if err := reg.Register(collector); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return collector, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return collector, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return collector, nil
}

// ObserveDecision counts a guard decision.
func (m *Metrics) ObserveDecision(decision domain.Decision) {
	reason := string(decision.Reason)
	if reason == "" {
		reason = "none"
	}
	m.Decisions.WithLabelValues(decision.Class.String(), string(decision.Outcome), reason).Inc()
}

func (m *Metrics) CacheHit(collection string) {
	m.CacheHits.WithLabelValues(collection).Inc()
}

func (m *Metrics) CacheMiss(collection string) {
	m.CacheMisses.WithLabelValues(collection).Inc()
}

func (m *Metrics) SubscriptionOpened() {
	m.Subscriptions.Inc()
}

func (m *Metrics) SubscriptionClosed() {
	m.Subscriptions.Dec()
}

func (m *Metrics) FeedError() {
	m.FeedErrors.Inc()
}

var (
	_ port.GuardMetrics = (*Metrics)(nil)
	_ port.QueryMetrics = (*Metrics)(nil)
)
