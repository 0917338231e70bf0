package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	recurring  *prometheus.CounterVec
	events     *prometheus.CounterVec
	mismatches prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddRecurringOutcomes counts template runs of one tick by outcome.
func (m *Metrics) AddRecurringOutcomes(succeeded, failed, skipped int) {
	if m == nil {
		return
	}
	add(m.recurring, "success", succeeded)
	add(m.recurring, "failed", failed)
	add(m.recurring, "skipped", skipped)
}

// AddEventRetries counts reprocessed external events by result.
func (m *Metrics) AddEventRetries(processed, failed int) {
	if m == nil {
		return
	}
	add(m.events, "processed", processed)
	add(m.events, "failed", failed)
}

// SetIntegrityMismatches records how many accounts failed the last replay.
func (m *Metrics) SetIntegrityMismatches(n int) {
	if m == nil {
		return
	}
	m.mismatches.Set(float64(n))
}

func add(vec *prometheus.CounterVec, label string, n int) {
	if n > 0 {
		vec.WithLabelValues(label).Add(float64(n))
	}
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	recurring := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_recurring_runs_total",
		Help: "Recurring template materialisations grouped by outcome.",
	}, []string{"outcome"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_event_retries_total",
		Help: "Failed external events reprocessed, grouped by result.",
	}, []string{"result"})
	mismatches := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_ledger_integrity_mismatches",
		Help: "Accounts whose cached balance disagreed with the ledger replay on the last check.",
	})
	registerer.MustRegister(runs, failures, duration, recurring, events, mismatches)
	return &Metrics{
		runs:       runs,
		failures:   failures,
		duration:   duration,
		recurring:  recurring,
		events:     events,
		mismatches: mismatches,
	}
}
