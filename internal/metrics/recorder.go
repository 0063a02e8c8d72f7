// Package metrics records pipeline run outcomes as Prometheus metrics. The
// dashboard serves the registry on /metrics; batch commands use the recorder
// for run-scoped counters visible in logs-plus-scrape setups.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Recorder holds the gridcast Prometheus metrics over a private registry.
type Recorder struct {
	registry *prometheus.Registry

	runDurationSeconds *prometheus.HistogramVec
	runStatusCounter   *prometheus.CounterVec

	rowsIngested     *prometheus.CounterVec
	predictionsMade  *prometheus.CounterVec
	providerFailures *prometheus.CounterVec
	modelTrainings   *prometheus.CounterVec
}

// NewRecorder creates a Recorder with Go runtime and process collectors
// registered alongside the pipeline metrics.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Recorder{
		registry: registry,
		runDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridcast_run_duration_seconds",
			Help:    "Duration of pipeline runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pipeline", "status"}),
		runStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridcast_run_status_total",
			Help: "Total number of pipeline runs by status.",
		}, []string{"pipeline", "status"}),
		rowsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridcast_rows_ingested_total",
			Help: "Total feature store rows upserted by group and section.",
		}, []string{"group", "section"}),
		predictionsMade: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridcast_predictions_total",
			Help: "Total predictions issued by section and energy source.",
		}, []string{"section", "energy_source"}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridcast_provider_failures_total",
			Help: "Total provider call failures by provider.",
		}, []string{"provider"}),
		modelTrainings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridcast_model_trainings_total",
			Help: "Total model training runs by section, source and status.",
		}, []string{"section", "energy_source", "status"}),
	}

	registry.MustRegister(r.runDurationSeconds)
	registry.MustRegister(r.runStatusCounter)
	registry.MustRegister(r.rowsIngested)
	registry.MustRegister(r.predictionsMade)
	registry.MustRegister(r.providerFailures)
	registry.MustRegister(r.modelTrainings)

	return r
}

// Registry returns the Prometheus registry for scraping handlers.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordRun records one completed pipeline run.
func (r *Recorder) RecordRun(pipeline, status string, duration time.Duration) {
	r.runStatusCounter.WithLabelValues(pipeline, status).Inc()
	r.runDurationSeconds.WithLabelValues(pipeline, status).Observe(duration.Seconds())
}

// RecordRowsIngested records upserted feature store rows.
func (r *Recorder) RecordRowsIngested(group, section string, rows int64) {
	r.rowsIngested.WithLabelValues(group, section).Add(float64(rows))
}

// RecordPredictions records issued predictions.
func (r *Recorder) RecordPredictions(section, source string, count int) {
	r.predictionsMade.WithLabelValues(section, source).Add(float64(count))
}

// RecordProviderFailure records one failed provider call.
func (r *Recorder) RecordProviderFailure(provider string) {
	r.providerFailures.WithLabelValues(provider).Inc()
}

// RecordTraining records one model training run.
func (r *Recorder) RecordTraining(section, source, status string) {
	r.modelTrainings.WithLabelValues(section, source, status).Inc()
}
