package obs

import (
	"github.com/prometheus/client_golang/prometheus"

	"ample/eventkind"
)

// Metrics holds the counters named in spec §4.8. It wraps a private
// *prometheus.Registry rather than the global default one so a producer
// and a test harness can each own an isolated set of counters.
type Metrics struct {
	Registry *prometheus.Registry

	BytesOut          *prometheus.CounterVec
	FramesOut         *prometheus.CounterVec
	Dropped           *prometheus.CounterVec
	ReconnectsTotal   prometheus.Counter
	HandshakeFailures prometheus.Counter
	DecodeErrors      prometheus.Counter
	PluginErrors      *prometheus.CounterVec
}

// NewMetrics constructs and registers the full counter set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		BytesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ample_bytes_out_total",
			Help: "Bytes written to data streams, by event kind.",
		}, []string{"kind"}),
		FramesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ample_frames_out_total",
			Help: "Frames written to data streams, by event kind.",
		}, []string{"kind"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ample_dropped_total",
			Help: "Records dropped before reaching the wire, by event kind and reason.",
		}, []string{"kind", "reason"}),
		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ample_reconnects_total",
			Help: "Client-side reconnect attempts after a connection-fatal error.",
		}),
		HandshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ample_handshake_failures_total",
			Help: "Handshakes that failed TLS verification or protocol negotiation.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ample_decode_errors_total",
			Help: "Frame decode failures on any stream.",
		}),
		PluginErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ample_plugin_errors_total",
			Help: "Downstream plugin callback failures or panics, by event kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(m.BytesOut, m.FramesOut, m.Dropped, m.ReconnectsTotal, m.HandshakeFailures, m.DecodeErrors, m.PluginErrors)
	return m
}

// DropReason enumerates why a record never reached the wire.
type DropReason string

const (
	DropQueueOverflow DropReason = "queue_overflow"
	DropFrameTooLarge DropReason = "frame_too_large"
)

func (m *Metrics) RecordDrop(kind eventkind.Kind, reason DropReason) {
	m.Dropped.WithLabelValues(kind.String(), string(reason)).Inc()
}

func (m *Metrics) RecordFrame(kind eventkind.Kind, bytes int) {
	m.FramesOut.WithLabelValues(kind.String()).Inc()
	m.BytesOut.WithLabelValues(kind.String()).Add(float64(bytes))
}

func (m *Metrics) RecordPluginError(kind eventkind.Kind) {
	m.PluginErrors.WithLabelValues(kind.String()).Inc()
}
