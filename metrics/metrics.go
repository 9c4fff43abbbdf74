// Package metrics exports acquisition loop counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chzchzchz/rtlstream/acquire"
	"github.com/chzchzchz/rtlstream/tuner"
)

// Metrics implements acquire.Observer.
type Metrics struct {
	Buffers      prometheus.Counter
	Samples      prometheus.Counter
	Bytes        prometheus.Counter
	Errors       *prometheus.CounterVec
	BufferTime   prometheus.Histogram
	LastBufferAt prometheus.Gauge
}

var _ acquire.Observer = (*Metrics)(nil)

// New creates the metrics and registers them with registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		Buffers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtlstream_buffers_total",
			Help: "Buffers read, processed and flushed to the output",
		}),
		Samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtlstream_samples_total",
			Help: "Samples written to the output",
		}),
		Bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtlstream_output_bytes_total",
			Help: "Bytes written to the output",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rtlstream_errors_total",
			Help: "Errors that ended the acquisition loop, by kind",
		}, []string{"kind"}),
		BufferTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rtlstream_buffer_seconds",
			Help:    "Time to read, convert and emit one buffer",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		LastBufferAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rtlstream_last_buffer_time_seconds",
			Help: "Unix time of the last emitted buffer",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) ObserveBuffer(samples, bytes int, elapsed time.Duration) {
	m.Buffers.Inc()
	m.Samples.Add(float64(samples))
	m.Bytes.Add(float64(bytes))
	m.BufferTime.Observe(elapsed.Seconds())
	m.LastBufferAt.SetToCurrentTime()
}

func (m *Metrics) ObserveError(err error) {
	m.Errors.WithLabelValues(Kind(err)).Inc()
}

// Kind buckets a loop error for the errors_total label.
func Kind(err error) string {
	var (
		readErr *tuner.ReadError
		ioErr   *acquire.IoError
		hwErr   *tuner.HardwareConfigError
	)
	switch {
	case errors.As(err, &readErr):
		return "read"
	case errors.As(err, &ioErr):
		return "output"
	case errors.As(err, &hwErr):
		return "hardware"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "other"
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.Buffers.Describe(ch)
	m.Samples.Describe(ch)
	m.Bytes.Describe(ch)
	m.Errors.Describe(ch)
	m.BufferTime.Describe(ch)
	m.LastBufferAt.Describe(ch)
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.Buffers.Collect(ch)
	m.Samples.Collect(ch)
	m.Bytes.Collect(ch)
	m.Errors.Collect(ch)
	m.BufferTime.Collect(ch)
	m.LastBufferAt.Collect(ch)
}
