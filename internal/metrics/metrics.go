// Package metrics records recording-session telemetry in a Prometheus
// registry and exports it in the node_exporter textfile format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nupi-ai/vad-recorder/internal/audio"
	"github.com/nupi-ai/vad-recorder/internal/vad"
)

const namespace = "vadrec"

// Metrics implements vad.Observer on top of a private registry.
type Metrics struct {
	registry *prometheus.Registry

	chunksReceived  prometheus.Counter
	chunkGlitches   *prometheus.CounterVec
	energyLevel     prometheus.Gauge
	speechDetected  prometheus.Gauge
	sessionDuration prometheus.Histogram
	sessions        *prometheus.CounterVec
	samplesWritten  prometheus.Counter
}

var _ vad.Observer = (*Metrics)(nil)

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chunksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_received_total",
			Help:      "Audio chunks delivered by the capture source.",
		}),
		chunkGlitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_glitches_total",
			Help:      "Chunks flagged by the capture source, by status flag.",
		}, []string{"status"}),
		energyLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "energy_level",
			Help:      "Last RMS level of the rolling silence window (0..1).",
		}),
		speechDetected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "speech_detected",
			Help:      "1 once the current session has heard speech.",
		}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Length of captured audio per session.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished sessions by termination reason.",
		}, []string{"reason"}),
		samplesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_written_total",
			Help:      "Samples persisted to WAV files.",
		}),
	}
	m.registry.MustRegister(
		m.chunksReceived,
		m.chunkGlitches,
		m.energyLevel,
		m.speechDetected,
		m.sessionDuration,
		m.sessions,
		m.samplesWritten,
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ChunkReceived implements vad.Observer.
func (m *Metrics) ChunkReceived(c audio.Chunk) {
	m.chunksReceived.Inc()
	for _, flag := range c.Status.Flags() {
		m.chunkGlitches.WithLabelValues(flag.String()).Inc()
	}
}

// EnergyMeasured implements vad.Observer.
func (m *Metrics) EnergyMeasured(level float64) {
	m.energyLevel.Set(level)
}

// SpeechStarted implements vad.Observer.
func (m *Metrics) SpeechStarted() {
	m.speechDetected.Set(1)
}

// SessionEnded implements vad.Observer.
func (m *Metrics) SessionEnded(res vad.Result) {
	m.sessions.WithLabelValues(res.Reason.String()).Inc()
	m.sessionDuration.Observe(res.Duration.Seconds())
}

// SamplesWritten counts samples persisted by the sink.
func (m *Metrics) SamplesWritten(n int) {
	m.samplesWritten.Add(float64(n))
}

// WriteTextfile atomically writes all metrics to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
