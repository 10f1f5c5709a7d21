package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sampler"

// Metrics owns a private registry so tests and multiple processes never collide
// on prometheus.DefaultRegisterer. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	musicSubmits    *prometheus.CounterVec
	musicPolls      *prometheus.CounterVec
	musicFinished   *prometheus.CounterVec
	musicDuration   prometheus.Histogram
	activeSlots     prometheus.Gauge
	searchRequests  *prometheus.CounterVec
	narrationFrames *prometheus.CounterVec
}

// New registers every collector, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		musicSubmits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "music_submits_total",
			Help:      "Generation submissions, partitioned by result.",
		}, []string{"result"}),
		musicPolls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "music_polls_total",
			Help:      "Status queries, partitioned by classified state.",
		}, []string{"state"}),
		musicFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "music_jobs_finished_total",
			Help:      "Jobs that reached a terminal state.",
		}, []string{"state"}),
		musicDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "music_job_duration_seconds",
			Help:      "Wall time from submit to terminal state.",
			Buckets:   []float64{15, 30, 60, 120, 240, 480, 900},
		}),
		activeSlots: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "music_active_slots",
			Help:      "Poll loops currently running in this process.",
		}),
		searchRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search requests, partitioned by mode and result.",
		}, []string{"mode", "result"}),
		narrationFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narration_frames_total",
			Help:      "Frames offered to narrators, partitioned by decision.",
		}, []string{"decision"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) MusicSubmitted(ok bool) {
	if m == nil {
		return
	}
	m.musicSubmits.WithLabelValues(resultLabel(ok)).Inc()
}

func (m *Metrics) MusicPolled(state string) {
	if m == nil {
		return
	}
	m.musicPolls.WithLabelValues(state).Inc()
}

func (m *Metrics) MusicFinished(state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.musicFinished.WithLabelValues(state).Inc()
	m.musicDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) SlotStarted() {
	if m == nil {
		return
	}
	m.activeSlots.Inc()
}

func (m *Metrics) SlotStopped() {
	if m == nil {
		return
	}
	m.activeSlots.Dec()
}

func (m *Metrics) SearchServed(mode string, ok bool) {
	if m == nil {
		return
	}
	m.searchRequests.WithLabelValues(mode, resultLabel(ok)).Inc()
}

func (m *Metrics) NarrationFrame(decision string) {
	if m == nil {
		return
	}
	m.narrationFrames.WithLabelValues(decision).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
