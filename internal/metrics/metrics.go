// Package metrics exposes Prometheus counters for generation runs. All
// methods are safe on a nil *Metrics so callers can leave metrics unwired.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "monologue"

// Metrics holds the collectors for one registry.
type Metrics struct {
	requests   *prometheus.CounterVec
	retries    prometheus.Counter
	latency    *prometheus.HistogramVec
	units      *prometheus.CounterVec
	recoveries *prometheus.CounterVec
	days       *prometheus.CounterVec
	inFlight   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Generation service attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Attempts that were retried after a transient failure.",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Latency of single generation service attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"provider"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Resolved hour stages by stage and source.",
		}, []string{"stage", "source"}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_tier_total",
			Help:      "Recovery tier that resolved each hour stage.",
		}, []string{"stage", "tier"}),
		days: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "days_total",
			Help:      "Days processed by outcome.",
		}, []string{"outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Generation service calls holding a concurrency slot.",
		}),
	}
	reg.MustRegister(m.requests, m.retries, m.latency, m.units, m.recoveries, m.days, m.inFlight)
	return m
}

// ObserveRequest records one service attempt.
func (m *Metrics) ObserveRequest(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(provider, outcome).Inc()
	m.latency.WithLabelValues(provider).Observe(d.Seconds())
}

// Retry records a retried attempt.
func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// Unit records a resolved hour stage.
func (m *Metrics) Unit(stage, source, tier string) {
	if m == nil {
		return
	}
	m.units.WithLabelValues(stage, source).Inc()
	m.recoveries.WithLabelValues(stage, tier).Inc()
}

// Day records a day outcome: "generated", "skipped", "fixed", "failed" or
// "aborted".
func (m *Metrics) Day(outcome string) {
	if m == nil {
		return
	}
	m.days.WithLabelValues(outcome).Inc()
}

// Acquire and Release track gate occupancy.
func (m *Metrics) Acquire() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) Release() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

// Serve exposes the registry on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
