// Package metrics exposes prometheus collectors for store operations.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var ErrRegister = errors.New("failed to register metric collector")

type collector struct {
	SaveCounter        prometheus.Counter
	DeleteCounter      *prometheus.CounterVec
	ListDuration       prometheus.Histogram
	ListFailureCounter prometheus.Counter
	JobCounter         *prometheus.CounterVec
	JobDuration        *prometheus.HistogramVec
}

// Metrics records store activity. The zero value discards everything.
type Metrics struct {
	collector *collector
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) (Metrics, error) {
	collector := newMetricCollector()

	for _, c := range []prometheus.Collector{
		collector.SaveCounter, collector.DeleteCounter, collector.ListDuration,
		collector.ListFailureCounter, collector.JobCounter, collector.JobDuration,
	} {
		if err := registerer.Register(c); err != nil {
			return Metrics{}, errors.Join(err, ErrRegister)
		}
	}

	return Metrics{collector: collector}, nil
}

func (m Metrics) Saved() {
	if m.collector == nil {
		return
	}

	m.collector.SaveCounter.Inc()
}

// Deleted records the number of encounters removed by an operation of the given kind.
func (m Metrics) Deleted(kind string, count int64) {
	if m.collector == nil {
		return
	}

	m.collector.DeleteCounter.With(prometheus.Labels{"kind": kind}).Add(float64(count))
}

func (m Metrics) Listed(elapsed time.Duration, err error) {
	if m.collector == nil {
		return
	}

	if err != nil {
		m.collector.ListFailureCounter.Inc()

		return
	}

	m.collector.ListDuration.Observe(elapsed.Seconds())
}

func (m Metrics) JobFinished(kind string, elapsed time.Duration, err error) {
	if m.collector == nil {
		return
	}

	status := "ok"
	if err != nil {
		status = "error"
	}

	m.collector.JobCounter.With(prometheus.Labels{"kind": kind, "status": status}).Inc()
	m.collector.JobDuration.With(prometheus.Labels{"kind": kind}).Observe(elapsed.Seconds())
}

func newMetricCollector() *collector {
	return &collector{
		SaveCounter: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "encounters_saved_total", Help: "Total encounters saved"}),

		DeleteCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "encounters_deleted_total", Help: "Total encounters deleted"},
			[]string{"kind"}),

		ListDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "encounters_list_duration_seconds",
				Help:    "Time taken to list a page of encounters",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			}),

		ListFailureCounter: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "encounters_list_failures_total", Help: "Total listing or count failures"}),

		JobCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "encounters_maintenance_jobs_total", Help: "Total maintenance jobs run"},
			[]string{"kind", "status"}),

		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "encounters_maintenance_duration_seconds",
				Help:    "Time taken by maintenance jobs",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"}),
	}
}
