// Package metrics provides Prometheus metrics for device calls and transfers.
//
// Each Session owns its own registry so tests and embedded shells never
// share counters. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values
const (
	ResultOK      = "ok"
	ResultFailure = "failure"
)

// Direction label values
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	deviceRequestsTotal  *prometheus.CounterVec
	deviceRequestLatency *prometheus.HistogramVec
	uploadChunksTotal    prometheus.Counter
	transferBytesTotal   *prometheus.CounterVec
	transfersTotal       *prometheus.CounterVec
	downloadPollAttempts prometheus.Histogram
}

// New creates a Metrics instance with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		deviceRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "viforest_device_requests_total",
				Help: "Total number of device API operations",
			},
			[]string{"op", "result"},
		),

		deviceRequestLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "viforest_device_request_duration_seconds",
				Help:    "Device API operation duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 30.0},
			},
			[]string{"op"},
		),

		uploadChunksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "viforest_upload_chunks_total",
				Help: "Total number of upload chunks acknowledged by devices",
			},
		),

		transferBytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "viforest_transfer_bytes_total",
				Help: "Total bytes transferred to or from devices",
			},
			[]string{"direction"},
		),

		transfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "viforest_transfers_total",
				Help: "Total number of file transfers",
			},
			[]string{"direction", "result"},
		),

		downloadPollAttempts: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "viforest_download_poll_attempts",
				Help:    "Readiness polls needed per packaged download",
				Buckets: []float64{1, 2, 3, 5, 8, 10, 15},
			},
		),
	}
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordDeviceRequest records one device operation.
func (m *Metrics) RecordDeviceRequest(op string, ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.deviceRequestsTotal.WithLabelValues(op, result(ok)).Inc()
	m.deviceRequestLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordChunk records one acknowledged upload chunk of n bytes.
func (m *Metrics) RecordChunk(n int) {
	if m == nil {
		return
	}
	m.uploadChunksTotal.Inc()
	m.transferBytesTotal.WithLabelValues(DirectionUpload).Add(float64(n))
}

// RecordDownloadBytes records bytes written by a download.
func (m *Metrics) RecordDownloadBytes(n int64) {
	if m == nil {
		return
	}
	m.transferBytesTotal.WithLabelValues(DirectionDownload).Add(float64(n))
}

// RecordTransfer records the outcome of one file transfer.
func (m *Metrics) RecordTransfer(direction string, ok bool) {
	if m == nil {
		return
	}
	m.transfersTotal.WithLabelValues(direction, result(ok)).Inc()
}

// RecordPollAttempts records how many readiness polls a download needed.
func (m *Metrics) RecordPollAttempts(attempts int) {
	if m == nil {
		return
	}
	m.downloadPollAttempts.Observe(float64(attempts))
}

// WriteFile writes all metrics to path in the node-exporter textfile format.
func (m *Metrics) WriteFile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func result(ok bool) string {
	if ok {
		return ResultOK
	}
	return ResultFailure
}
