// Package metrics exposes Prometheus counters for the synthesis pipeline.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values recorded on status-labelled counters.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Metrics defines the counters recorded by the request pipeline and the
// retention sweeper.
type Metrics interface {
	IncRequests(tool string)
	IncRequestFailures(tool, reason string)
	ObserveSynthesisDuration(seconds float64)
	IncUploads(backend, status string)
	IncSweeps(status string)
	AddSweptFiles(count int)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncRequests(string)                {}
func (Noop) IncRequestFailures(string, string) {}
func (Noop) ObserveSynthesisDuration(float64)  {}
func (Noop) IncUploads(string, string)         {}
func (Noop) IncSweeps(string)                  {}
func (Noop) AddSweptFiles(int)                 {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	requests          *prometheus.CounterVec
	requestFailures   *prometheus.CounterVec
	synthesisDuration prometheus.Histogram
	uploads           *prometheus.CounterVec
	sweeps            *prometheus.CounterVec
	sweptFiles        prometheus.Counter
	once              sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Tool requests by tool name",
		}, []string{"tool"}),
		requestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_failures_total",
			Help:      "Failed tool requests by tool name and reason",
		}, []string{"tool", "reason"}),
		synthesisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Wall-clock duration of synthesis requests",
			Buckets:   prometheus.DefBuckets,
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Artifact uploads by backend and status",
		}, []string{"backend", "status"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Retention sweep runs by status",
		}, []string{"status"}),
		sweptFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_files_total",
			Help:      "Artifacts removed by the retention sweeper",
		}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(
			p.requests,
			p.requestFailures,
			p.synthesisDuration,
			p.uploads,
			p.sweeps,
			p.sweptFiles,
		)
	})
}

func (p *Prom) IncRequests(tool string) {
	p.requests.WithLabelValues(tool).Inc()
}

func (p *Prom) IncRequestFailures(tool, reason string) {
	p.requestFailures.WithLabelValues(tool, reason).Inc()
}

func (p *Prom) ObserveSynthesisDuration(seconds float64) {
	p.synthesisDuration.Observe(seconds)
}

func (p *Prom) IncUploads(backend, status string) {
	p.uploads.WithLabelValues(backend, status).Inc()
}

func (p *Prom) IncSweeps(status string) {
	p.sweeps.WithLabelValues(status).Inc()
}

func (p *Prom) AddSweptFiles(count int) {
	p.sweptFiles.Add(float64(count))
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
