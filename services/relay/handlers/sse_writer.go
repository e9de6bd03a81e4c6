// Copyright (C) 2025 TutorLink (engineering@tutorlink.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/tutorlink/tutorlink/services/relay/stream"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter defines the contract for writing the relay's SSE frames to an
// HTTP response.
//
// # Description
//
// The relay's wire format is data-only SSE. Each delta frame is
//
//	data: {"response": "<delta text>"}\n\n
//
// and the stream is terminated by
//
//	data: [DONE]\n\n
//
// No event: lines are used; keepalive comments (": ping") may be
// interleaved and are ignored by consumers.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use: the relay pump and the
// keepalive ticker write from different goroutines.
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders before the first write
type SSEWriter interface {
	// WriteDelta writes one incremental text frame and flushes.
	WriteDelta(delta string) error

	// WriteDone writes the completion sentinel frame and flushes.
	// Should only be called once per stream.
	WriteDone() error

	// WriteKeepAlive sends an SSE comment line to keep the connection
	// alive through proxies and load balancers with idle timeouts.
	// Comments carry no data and are skipped by consumers.
	WriteKeepAlive() error
}

// Frames produced by the SSE writer must satisfy the stream transform's
// output contract.
var _ stream.Sink = (SSEWriter)(nil)

// =============================================================================
// Struct Definition
// =============================================================================

// sseWriter implements SSEWriter over an http.ResponseWriter.
//
// # Fields
//
//   - writer: Underlying http.ResponseWriter
//   - flusher: http.Flusher for immediate send after every frame
//   - mu: Mutex serializing frame and keepalive writes
//
// # Limitations
//
//   - Cannot be reused across requests
type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// deltaFrame is the downstream data payload shape.
type deltaFrame struct {
	Response string `json:"response"`
}

// =============================================================================
// Constructor
// =============================================================================

// NewSSEWriter creates an SSEWriter for the given ResponseWriter.
//
// # Inputs
//
//   - w: HTTP ResponseWriter. Must implement http.Flusher.
//
// # Outputs
//
//   - SSEWriter: Ready to write frames.
//   - error: Non-nil if the ResponseWriter does not support flushing.
//
// # Examples
//
//	SetSSEHeaders(w)
//	writer, err := NewSSEWriter(w)
//	if err != nil {
//	    http.Error(w, "Streaming not supported", http.StatusInternalServerError)
//	    return
//	}
//	writer.WriteDelta("Hola")
//	writer.WriteDone()
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &sseWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

// =============================================================================
// Methods
// =============================================================================

// WriteDelta writes one delta frame and flushes immediately, no batching.
// Each upstream delta maps to exactly one output frame.
func (w *sseWriter) WriteDelta(delta string) error {
	payload, err := json.Marshal(deltaFrame{Response: delta})
	if err != nil {
		return fmt.Errorf("marshal delta frame: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.writer, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write delta frame: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// WriteDone writes the terminal sentinel frame.
func (w *sseWriter) WriteDone() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprint(w.writer, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("write done frame: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// WriteKeepAlive sends an SSE comment to reset proxy idle timeouts.
func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprint(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures HTTP response headers for SSE streaming.
//
// # Description
//
// Sets the required headers for Server-Sent Events:
//   - Content-Type: text/event-stream
//   - Cache-Control: no-cache
//   - Connection: keep-alive
//   - X-Accel-Buffering: no (disables nginx buffering)
//
// Must be called before writing any response body.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ SSEWriter = (*sseWriter)(nil)
