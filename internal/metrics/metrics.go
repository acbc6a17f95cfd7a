// Package metrics exposes Prometheus instrumentation for scans, exits and
// the market data provider. All collectors live on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the hunter's collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	scanDuration   prometheus.Histogram
	stageDropped   *prometheus.CounterVec
	candidates     *prometheus.CounterVec
	exitSignals    *prometheus.CounterVec
	openPositions  prometheus.Gauge
	providerErrors *prometheus.CounterVec
	providerCalls  *prometheus.HistogramVec
	breakerState   *prometheus.GaugeVec
}

// New registers every collector on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		scanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hunter_scan_duration_seconds",
			Help:    "Duration of a full candidate scan",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		stageDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hunter_stage_dropped_total",
			Help: "Symbols dropped per pipeline stage",
		}, []string{"stage"}),
		candidates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hunter_candidates_total",
			Help: "Candidates published per grade",
		}, []string{"grade"}),
		exitSignals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hunter_exit_signals_total",
			Help: "Exit signals raised per reason",
		}, []string{"reason"}),
		openPositions: f.NewGauge(prometheus.GaugeOpts{
			Name: "hunter_open_positions",
			Help: "Currently open positions",
		}),
		providerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hunter_provider_errors_total",
			Help: "Market data calls that failed after retries",
		}, []string{"op"}),
		providerCalls: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hunter_provider_call_seconds",
			Help:    "Latency of market data calls including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hunter_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),
	}
}

// Registry returns the private registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) ObserveScan(d time.Duration) {
	if r == nil {
		return
	}
	r.scanDuration.Observe(d.Seconds())
}

func (r *Recorder) StageDropped(stage string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.stageDropped.WithLabelValues(stage).Add(float64(n))
}

func (r *Recorder) Candidate(grade string) {
	if r == nil {
		return
	}
	r.candidates.WithLabelValues(grade).Inc()
}

func (r *Recorder) ExitSignal(reason string) {
	if r == nil {
		return
	}
	r.exitSignals.WithLabelValues(reason).Inc()
}

func (r *Recorder) SetOpenPositions(n int) {
	if r == nil {
		return
	}
	r.openPositions.Set(float64(n))
}

// ProviderCall records one provider operation and, when err is set, an error.
func (r *Recorder) ProviderCall(op string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.providerCalls.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		r.providerErrors.WithLabelValues(op).Inc()
	}
}

// BreakerState sets the gauge for a named breaker.
func (r *Recorder) BreakerState(name string, state int) {
	if r == nil {
		return
	}
	r.breakerState.WithLabelValues(name).Set(float64(state))
}
