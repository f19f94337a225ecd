package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exposes render and delivery metrics.
type Recorder struct {
	reg *prometheus.Registry

	renders     *prometheus.CounterVec
	frames      *prometheus.CounterVec
	bytesSent   *prometheus.CounterVec
	sinkWaits   *prometheus.CounterVec
	cacheLookup *prometheus.CounterVec
	active      *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New creates a recorder on its own registry, with Go and process
// collectors attached.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		renders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "astrosonic_renders_total",
				Help: "Renders finished, by transport, mode and outcome",
			},
			[]string{"transport", "mode", "outcome"},
		),
		frames: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "astrosonic_frames_total",
				Help: "PCM frames fully accepted by a sink",
			},
			[]string{"transport"},
		),
		bytesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "astrosonic_bytes_sent_total",
				Help: "Bytes accepted by sinks, headers included",
			},
			[]string{"transport"},
		),
		sinkWaits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "astrosonic_sink_waits_total",
				Help: "Times delivery paused on a busy sink",
			},
			[]string{"transport"},
		),
		cacheLookup: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "astrosonic_cache_lookups_total",
				Help: "Render cache lookups by result",
			},
			[]string{"result"},
		),
		active: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "astrosonic_active_streams",
				Help: "Streams currently delivering",
			},
			[]string{"transport"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "astrosonic_render_duration_seconds",
				Help:    "Wall time from first byte to last byte of a render",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"transport"},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// RecordRender records a finished render and its wall time.
func (r *Recorder) RecordRender(transport, mode, outcome string, seconds float64) {
	r.renders.WithLabelValues(transport, mode, outcome).Inc()
	r.latency.WithLabelValues(transport).Observe(seconds)
}

// RecordDelivery adds what one delivery pushed into its sink.
func (r *Recorder) RecordDelivery(transport string, frames int, bytes int64, waits int) {
	r.frames.WithLabelValues(transport).Add(float64(frames))
	r.bytesSent.WithLabelValues(transport).Add(float64(bytes))
	r.sinkWaits.WithLabelValues(transport).Add(float64(waits))
}

// RecordCache records a cache hit or miss.
func (r *Recorder) RecordCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookup.WithLabelValues(result).Inc()
}

// StreamStarted bumps the active gauge; call the returned func when done.
func (r *Recorder) StreamStarted(transport string) func() {
	g := r.active.WithLabelValues(transport)
	g.Inc()
	return g.Dec
}
