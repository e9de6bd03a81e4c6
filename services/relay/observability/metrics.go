// Copyright (C) 2025 TutorLink (engineering@tutorlink.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the chat relay.
//
// # Description
//
// Metrics cover both relay endpoints:
//   - Request counters (by endpoint, status, error type)
//   - Delta frame counters and skipped-frame diagnostics for the
//     stream transform
//   - Stream duration histograms and active stream gauges
//
// # Integration
//
// Exposed via the /metrics endpoint. Use with Prometheus + Grafana for
// dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "tutorlink"

// Subsystem for relay metrics
const relaySubsystem = "relay"

// RelayMetrics holds all Prometheus metrics for chat relay operations.
//
// # Fields
//
//   - RequestsTotal: Counter of chat requests by endpoint, mode and status
//   - ErrorsTotal: Counter of errors by type and endpoint
//   - DeltaFramesTotal: Counter of delta frames relayed downstream
//   - SkippedFramesTotal: Counter of malformed upstream frames dropped by
//     the stream transform
//   - StreamDurationSeconds: Histogram of total stream duration
//   - ActiveStreams: Gauge of currently open streaming responses
//   - KeepAlivesTotal: Counter of keepalive comments sent
//   - ClientDisconnectsTotal: Counter of client disconnects mid-stream
type RelayMetrics struct {
	// RequestsTotal counts chat requests.
	// Labels: endpoint (chat, teaching_chat), mode (stream, single_shot),
	// status (success, error)
	RequestsTotal *prometheus.CounterVec

	// ErrorsTotal counts errors by type and endpoint.
	// Labels: endpoint, error_code
	ErrorsTotal *prometheus.CounterVec

	// DeltaFramesTotal counts delta frames re-emitted downstream.
	// Labels: endpoint
	DeltaFramesTotal *prometheus.CounterVec

	// SkippedFramesTotal counts malformed upstream data lines the
	// transform dropped. A nonzero rate means the upstream is emitting
	// garbage even though callers never notice.
	// Labels: endpoint
	SkippedFramesTotal *prometheus.CounterVec

	// StreamDurationSeconds measures total stream duration.
	// Labels: endpoint, status
	StreamDurationSeconds *prometheus.HistogramVec

	// TimeToFirstDeltaSeconds measures latency until the first delta
	// frame reaches the client.
	// Labels: endpoint
	TimeToFirstDeltaSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently open streaming responses.
	// Labels: endpoint
	ActiveStreams *prometheus.GaugeVec

	// KeepAlivesTotal counts keepalive comments sent.
	// Labels: endpoint
	KeepAlivesTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts client disconnections during streaming.
	// Labels: endpoint
	ClientDisconnectsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of RelayMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *RelayMetrics

var initOnce sync.Once

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics on the default registry.
// Idempotent: subsequent calls return the already-initialized instance,
// so test binaries may call it from any package.
//
// # Outputs
//
//   - *RelayMetrics: The initialized metrics instance.
func InitMetrics() *RelayMetrics {
	initOnce.Do(func() {
		DefaultMetrics = &RelayMetrics{
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: relaySubsystem,
					Name:      "requests_total",
					Help:      "Total chat requests by endpoint, mode and status",
				},
				[]string{"endpoint", "mode", "status"},
			),

			ErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: relaySubsystem,
					Name:      "errors_total",
					Help:      "Total relay errors by type and endpoint",
				},
				[]string{"endpoint", "error_code"},
			),

			DeltaFramesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: relaySubsystem,
					Name:      "delta_frames_total",
					Help:      "Total delta frames re-emitted downstream",
				},
				[]string{"endpoint"},
			),

			SkippedFramesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: relaySubsystem,
					Name:      "skipped_frames_total",
					Help:      "Total malformed upstream frames dropped by the stream transform",
				},
				[]string{"endpoint"},
			),

			StreamDurationSeconds: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: metricsNamespace,
					Subsystem: relaySubsystem,
					Name:      "stream_duration_seconds",
					Help:      "Total stream duration in seconds",
					Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
				},
				[]string{"endpoint", "status"},
			),

			TimeToFirstDeltaSeconds: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: metricsNamespace,
					Subsystem: relaySubsystem,
					Name:      "time_to_first_delta_seconds",
					Help:      "Latency until the first delta frame is sent downstream",
					Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
				},
				[]string{"endpoint"},
			),

			ActiveStreams: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: metricsNamespace,
					Subsystem: relaySubsystem,
					Name:      "active_streams",
					Help:      "Number of currently open streaming responses",
				},
				[]string{"endpoint"},
			),

			KeepAlivesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: relaySubsystem,
					Name:      "keepalives_total",
					Help:      "Total keepalive comments sent",
				},
				[]string{"endpoint"},
			),

			ClientDisconnectsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: relaySubsystem,
					Name:      "client_disconnects_total",
					Help:      "Total client disconnections during streaming",
				},
				[]string{"endpoint"},
			),
		}
	})

	return DefaultMetrics
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeGeneration indicates the upstream model call failed.
	ErrorCodeGeneration ErrorCode = "generation"

	// ErrorCodeInvalidUpstream indicates an uninterpretable upstream shape.
	ErrorCodeInvalidUpstream ErrorCode = "invalid_upstream"

	// ErrorCodeInternal indicates an internal relay error.
	ErrorCodeInternal ErrorCode = "internal"

	// ErrorCodeClientDisconnect indicates the client disconnected.
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"
)

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint represents a relay endpoint for metrics labeling.
type Endpoint string

const (
	// EndpointChat is the tutoring chat endpoint.
	EndpointChat Endpoint = "chat"

	// EndpointTeachingChat is the teaching-mode chat endpoint.
	EndpointTeachingChat Endpoint = "teaching_chat"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed chat request.
func (m *RelayMetrics) RecordRequest(endpoint Endpoint, streaming, success bool) {
	mode := "single_shot"
	if streaming {
		mode = "stream"
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), mode, status).Inc()
}

// RecordError records a relay error.
func (m *RelayMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// RecordDeltaFrame counts one delta frame sent downstream.
func (m *RelayMetrics) RecordDeltaFrame(endpoint Endpoint) {
	m.DeltaFramesTotal.WithLabelValues(string(endpoint)).Inc()
}

// RecordSkippedFrame counts one malformed upstream frame dropped by the
// stream transform.
func (m *RelayMetrics) RecordSkippedFrame(endpoint Endpoint) {
	m.SkippedFramesTotal.WithLabelValues(string(endpoint)).Inc()
}

// StreamStarted increments the active streams gauge.
func (m *RelayMetrics) StreamStarted(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *RelayMetrics) StreamEnded(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Dec()
}

// RecordStreamDuration records the total stream duration.
func (m *RelayMetrics) RecordStreamDuration(endpoint Endpoint, seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.StreamDurationSeconds.WithLabelValues(string(endpoint), status).Observe(seconds)
}

// RecordTimeToFirstDelta records the latency until the first delta frame.
func (m *RelayMetrics) RecordTimeToFirstDelta(endpoint Endpoint, seconds float64) {
	m.TimeToFirstDeltaSeconds.WithLabelValues(string(endpoint)).Observe(seconds)
}

// RecordKeepAlive increments the keepalive counter.
func (m *RelayMetrics) RecordKeepAlive(endpoint Endpoint) {
	m.KeepAlivesTotal.WithLabelValues(string(endpoint)).Inc()
}

// RecordClientDisconnect increments the client disconnect counter.
func (m *RelayMetrics) RecordClientDisconnect(endpoint Endpoint) {
	m.ClientDisconnectsTotal.WithLabelValues(string(endpoint)).Inc()
}
