package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder is a Recorder backed by its own registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	stepDuration *prometheus.HistogramVec
	runCounter   *prometheus.CounterVec
	runFiles     prometheus.Counter
	saveDuration *prometheus.HistogramVec
	pendingEdits prometheus.Gauge
	previewCount *prometheus.CounterVec
	exportBytes  *prometheus.CounterVec
}

func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docflow_page_step_duration_seconds",
			Help:    "Duration of split-next page steps.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		runCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_runs_total",
			Help: "Processing runs by final status.",
		}, []string{"status"}),
		runFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docflow_run_files_total",
			Help: "Files submitted across all runs.",
		}),
		saveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docflow_save_duration_seconds",
			Help:    "Duration of result saves.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome", "silent"}),
		pendingEdits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docflow_pending_edits",
			Help: "Cells edited locally and not yet confirmed by the server.",
		}),
		previewCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_preview_fetches_total",
			Help: "Preview fetches by outcome.",
		}, []string{"outcome"}),
		exportBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_export_bytes_total",
			Help: "Bytes written by exports.",
		}, []string{"format"}),
	}

	registry.MustRegister(r.stepDuration)
	registry.MustRegister(r.runCounter)
	registry.MustRegister(r.runFiles)
	registry.MustRegister(r.saveDuration)
	registry.MustRegister(r.pendingEdits)
	registry.MustRegister(r.previewCount)
	registry.MustRegister(r.exportBytes)
	return r
}

func (r *PrometheusRecorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus text format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *PrometheusRecorder) RecordStep(outcome string, elapsed time.Duration) {
	r.stepDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (r *PrometheusRecorder) RecordRun(status string, files int) {
	r.runCounter.WithLabelValues(status).Inc()
	r.runFiles.Add(float64(files))
}

func (r *PrometheusRecorder) RecordSave(outcome string, silent bool, elapsed time.Duration) {
	r.saveDuration.WithLabelValues(outcome, strconv.FormatBool(silent)).Observe(elapsed.Seconds())
}

func (r *PrometheusRecorder) SetPendingEdits(n int) {
	r.pendingEdits.Set(float64(n))
}

func (r *PrometheusRecorder) RecordPreviewFetch(outcome string) {
	r.previewCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRecorder) RecordExport(format string, bytes int) {
	r.exportBytes.WithLabelValues(format).Add(float64(bytes))
}
