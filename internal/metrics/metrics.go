package metrics

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roman-kulish/rf-sentinel/internal/capture"
	"github.com/roman-kulish/rf-sentinel/internal/detect"
)

const namespace = "sentinel"

// Capture results
const (
	resultComplete = "complete"
	resultPartial  = "partial"
	resultFailed   = "failed"
)

// Metrics holds the Prometheus collectors of the monitor
type Metrics struct {
	// Sweep metrics
	visitsTotal      prometheus.Counter // Completed frequency visits
	sweepCycles      prometheus.Gauge   // Sweep cycles elapsed, fractional
	currentFrequency prometheus.Gauge   // Frequency being scanned in Hz

	// Acquisition metrics (with 'frequency' label)
	blocksTotal    *prometheus.CounterVec // Sample blocks scored
	underrunsTotal *prometheus.CounterVec // Empty reads
	blockPower     *prometheus.GaugeVec   // Power of the last block in dBFS

	// Detection metrics
	detectionsTotal *prometheus.CounterVec // Reported detections (by frequency and strength)
	lastDetection   *prometheus.GaugeVec   // Unix timestamp of the last detection
	lastPowerDBm    *prometheus.GaugeVec   // Estimated power of the last detection

	// Capture metrics
	capturesTotal      *prometheus.CounterVec // Capture sessions (by result)
	captureSamples     prometheus.Counter     // Samples written to capture files
	captureInProgress  prometheus.Gauge       // 1 while a capture holds the receiver
	captureDuration    prometheus.Histogram   // Wall time of capture sessions
	captureErrorsTotal *prometheus.CounterVec // Captures ended by an error (by kind)
}

// New registers the collectors with reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		visitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_total",
			Help:      "Total completed frequency visits",
		}),
		sweepCycles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sweep_cycles",
			Help:      "Sweep cycles elapsed since start, fractional",
		}),
		currentFrequency: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_frequency_hz",
			Help:      "Center frequency currently scanned in Hz",
		}),
		blocksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "blocks_total",
				Help:      "Total sample blocks scored",
			},
			[]string{"frequency"},
		),
		underrunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "underruns_total",
				Help:      "Total reads that returned no samples",
			},
			[]string{"frequency"},
		),
		blockPower: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "block_power_dbfs",
				Help:      "Mean power of the last block in dBFS",
			},
			[]string{"frequency"},
		),
		detectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "detections_total",
				Help:      "Total reported detections",
			},
			[]string{"frequency", "strength"},
		),
		lastDetection: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_detection_timestamp_seconds",
				Help:      "Unix timestamp of the last detection",
			},
			[]string{"frequency"},
		),
		lastPowerDBm: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_detection_power_dbm",
				Help:      "Uncalibrated power estimate of the last detection in dBm",
			},
			[]string{"frequency"},
		),
		capturesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "captures_total",
				Help:      "Total capture sessions by result",
			},
			[]string{"result"},
		),
		captureSamples: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_samples_total",
			Help:      "Total samples written to capture files",
		}),
		captureInProgress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capture_in_progress",
			Help:      "1 while a capture holds the receiver",
		}),
		captureDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_duration_seconds",
			Help:      "Wall time of capture sessions",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 10, 30, 60},
		}),
		captureErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "capture_errors_total",
				Help:      "Total captures ended early by an error",
			},
			[]string{"kind"},
		),
	}
}

// FrequencyLabel formats a frequency in Hz as a metric label
func FrequencyLabel(frequency float64) string {
	return fmt.Sprintf("%.3f MHz", frequency/1e6)
}

// ObserveTune records the frequency being scanned
func (m *Metrics) ObserveTune(frequency float64) {
	m.currentFrequency.Set(frequency)
}

// ObserveVisit records a completed visit and the cycles elapsed
func (m *Metrics) ObserveVisit(cycles float64) {
	m.visitsTotal.Inc()
	m.sweepCycles.Set(cycles)
}

// ObserveBlock records a scored block and its power in linear full scale
func (m *Metrics) ObserveBlock(frequency, power float64) {
	label := FrequencyLabel(frequency)
	m.blocksTotal.WithLabelValues(label).Inc()
	m.blockPower.WithLabelValues(label).Set(10 * math.Log10(power+1e-12))
}

func (m *Metrics) ObserveUnderrun(frequency float64) {
	m.underrunsTotal.WithLabelValues(FrequencyLabel(frequency)).Inc()
}

func (m *Metrics) ObserveDetection(ev detect.Event) {
	label := FrequencyLabel(ev.Frequency)
	m.detectionsTotal.WithLabelValues(label, string(ev.Strength)).Inc()
	m.lastDetection.WithLabelValues(label).Set(float64(ev.Timestamp.UnixNano()) / 1e9)
	m.lastPowerDBm.WithLabelValues(label).Set(ev.EstimatedPowerDBm)
}

// CaptureStarted marks the receiver as held by a capture
func (m *Metrics) CaptureStarted() {
	m.captureInProgress.Set(1)
}

// ObserveCapture records a finished capture session
func (m *Metrics) ObserveCapture(s *capture.Session, err error) {
	m.captureInProgress.Set(0)
	m.captureSamples.Add(float64(s.Written))
	m.captureDuration.Observe(s.Finished.Sub(s.Started).Seconds())

	switch {
	case err == nil && s.Complete():
		m.capturesTotal.WithLabelValues(resultComplete).Inc()
	case s.Written > 0:
		m.capturesTotal.WithLabelValues(resultPartial).Inc()
	default:
		m.capturesTotal.WithLabelValues(resultFailed).Inc()
	}

	if err != nil {
		m.captureErrorsTotal.WithLabelValues(errorKind(err)).Inc()
	}
}

func errorKind(err error) string {
	var fsErr *capture.FileSystemError
	switch {
	case errors.As(err, &fsErr):
		return "filesystem"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "hardware"
	}
}
