// Package metrics collects Prometheus instrumentation for the
// diagnostics pipeline and syncs a local snapshot for the CLI.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/armorclaw/diagnostics/internal/bus"
	errsys "github.com/armorclaw/diagnostics/pkg/errors"
)

// Recorder owns its metric vectors and registry; nothing is global, so
// two recorders never collide and tests stay isolated.
type Recorder struct {
	registry *prometheus.Registry

	errorsTotal    *prometheus.CounterVec
	retriesTotal   *prometheus.CounterVec
	logWritesTotal prometheus.Counter
	rotationsTotal prometheus.Counter
	redactionsVec  *prometheus.CounterVec
	connectivity   prometheus.Gauge
	windowSize     prometheus.Gauge
	probeDuration  prometheus.Histogram

	mu         sync.RWMutex
	errors     int64
	retries    int64
	logWrites  int64
	rotations  int64
	redactions int64
}

// Retry outcome labels.
const (
	RetryOutcomeSuccess   = "success"
	RetryOutcomeExhausted = "exhausted"
	RetryOutcomeAborted   = "aborted"
)

// New creates a recorder with every metric registered on a private
// registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diag_errors_total",
				Help: "Total errors tracked, by domain and severity",
			},
			[]string{"domain", "severity"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diag_retry_runs_total",
				Help: "Total retry loops completed, by outcome",
			},
			[]string{"outcome"},
		),
		logWritesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "diag_log_writes_total",
				Help: "Total log entries accepted by the store",
			},
		),
		rotationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "diag_log_rotations_total",
				Help: "Total log file rotations",
			},
		),
		redactionsVec: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diag_redactions_total",
				Help: "Total values redacted, by pattern",
			},
			[]string{"pattern"},
		),
		connectivity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "diag_connectivity_status",
				Help: "Connectivity status (1 connected, 0 otherwise)",
			},
		),
		windowSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "diag_analytics_window_size",
				Help: "Events currently held in the analytics window",
			},
		),
		probeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "diag_probe_duration_seconds",
				Help:    "Latency of internet reachability probes",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
	}

	r.registry.MustRegister(
		r.errorsTotal,
		r.retriesTotal,
		r.logWritesTotal,
		r.rotationsTotal,
		r.redactionsVec,
		r.connectivity,
		r.windowSize,
		r.probeDuration,
	)
	return r
}

// Registry exposes the recorder's registry for a scrape handler.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordError counts one tracked error.
func (r *Recorder) RecordError(domain errsys.Domain, severity errsys.Severity) {
	r.mu.Lock()
	r.errors++
	r.mu.Unlock()
	r.errorsTotal.WithLabelValues(string(domain), severity.Label()).Inc()
}

// RecordRetry counts one finished retry loop.
func (r *Recorder) RecordRetry(outcome string) {
	r.mu.Lock()
	r.retries++
	r.mu.Unlock()
	r.retriesTotal.WithLabelValues(outcome).Inc()
}

// RecordLogWrite counts one accepted log entry.
func (r *Recorder) RecordLogWrite() {
	r.mu.Lock()
	r.logWrites++
	r.mu.Unlock()
	r.logWritesTotal.Inc()
}

// RecordRotation counts one log file rotation.
func (r *Recorder) RecordRotation() {
	r.mu.Lock()
	r.rotations++
	r.mu.Unlock()
	r.rotationsTotal.Inc()
}

// RecordRedactions counts values removed by one scrubber pattern.
func (r *Recorder) RecordRedactions(pattern string, count int) {
	if count <= 0 {
		return
	}
	r.mu.Lock()
	r.redactions += int64(count)
	r.mu.Unlock()
	r.redactionsVec.WithLabelValues(pattern).Add(float64(count))
}

// SetConnectivity updates the connectivity gauge.
func (r *Recorder) SetConnectivity(online bool) {
	if online {
		r.connectivity.Set(1)
	} else {
		r.connectivity.Set(0)
	}
}

// SetWindowSize updates the analytics window gauge.
func (r *Recorder) SetWindowSize(n int) {
	r.windowSize.Set(float64(n))
}

// ObserveProbe records one probe round-trip.
func (r *Recorder) ObserveProbe(d time.Duration) {
	r.probeDuration.Observe(d.Seconds())
}

// Snapshot returns current counter values for the CLI stats view.
func (r *Recorder) Snapshot() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]int64{
		"errors":     r.errors,
		"retries":    r.retries,
		"log_writes": r.logWrites,
		"rotations":  r.rotations,
		"redactions": r.redactions,
	}
}

// WatchBus feeds the recorder from bus traffic: tracked errors, log
// entries, and connectivity flips. The returned stop function
// unsubscribes and waits for the feed goroutine to drain.
func (r *Recorder) WatchBus(b *bus.Bus) func() {
	sub, err := b.Subscribe(bus.Filter{})
	if err != nil {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range sub.EventChannel {
			switch ev.Topic {
			case bus.TopicError:
				r.RecordError(ev.Domain, ev.Severity)
			case bus.TopicLog:
				if ev.Fields["rotation"] != "" {
					r.RecordRotation()
				} else {
					r.RecordLogWrite()
				}
			case bus.TopicStatus:
				r.SetConnectivity(ev.Fields["status"] == "connected")
			}
		}
	}()

	return func() {
		_ = b.Unsubscribe(sub.ID)
		<-done
	}
}
