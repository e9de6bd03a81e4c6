// Copyright (C) 2025 TutorLink (engineering@tutorlink.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream re-frames the upstream model's SSE byte stream into the
// relay's own SSE stream.
//
// The transform owns a single residual buffer of not-yet-complete bytes.
// Chunks are appended raw and split on the newline byte; because '\n'
// cannot occur inside a multi-byte UTF-8 sequence, splitting on it never
// severs a rune, so decoding is naturally resumable across chunk
// boundaries. The last element of each split may still be awaiting more
// bytes and is never processed; it becomes the new residual.
//
// Each transform instance is owned by exactly one request's read loop and
// is never shared, so no locking is needed.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// dataPrefix is the SSE field prefix carrying payloads. Lines without it
// (blank frame separators, comment keepalives) carry no deltas.
const dataPrefix = "data:"

// doneSentinel marks upstream stream completion.
const doneSentinel = "[DONE]"

// readChunkSize is the upstream read buffer size.
const readChunkSize = 4096

// FrameKind discriminates the two frame types a transform emits.
type FrameKind int

const (
	// FrameDelta carries one incremental text token.
	FrameDelta FrameKind = iota
	// FrameDone is the completion sentinel.
	FrameDone
)

// Frame is one parsed upstream event, ready for re-emission.
type Frame struct {
	Kind  FrameKind
	Delta string
}

// deltaPayload is the upstream data line shape. Only the response field is
// extracted; everything else upstream sends is dropped.
type deltaPayload struct {
	Response *string `json:"response"`
}

// Sink receives re-framed output. The relay's SSE response writer
// implements it on the server; tests implement it in-memory.
type Sink interface {
	// WriteDelta emits one delta frame downstream.
	WriteDelta(delta string) error
	// WriteDone emits the completion sentinel downstream.
	WriteDone() error
}

// Transform is the stateful per-request SSE re-framer.
//
// # Description
//
// Push feeds it raw upstream chunks and returns the frames completed by
// that chunk, in arrival order, one output frame per input delta. Input
// that cannot be interpreted (non-data lines, empty payloads, malformed
// JSON, JSON without the response field) is skipped without aborting the
// stream; OnSkip, when set, observes each skipped payload for diagnostics.
//
// # Limitations
//
//   - Residual bytes left at end of stream are the caller's concern: the
//     source is exhausted, nothing can complete them, so callers simply
//     drop the transform.
type Transform struct {
	buf []byte

	// OnSkip is invoked once per malformed data payload. Optional.
	OnSkip func(payload string)
}

// NewTransform returns an empty transform.
func NewTransform() *Transform {
	return &Transform{}
}

// Push appends one chunk and returns every frame completed by it.
//
// # Inputs
//
//   - chunk: Raw upstream bytes. May begin or end mid-line, mid-rune,
//     or mid-frame; may be empty.
//
// # Outputs
//
//   - []Frame: Completed frames in arrival order. Nil when the chunk
//     completed none.
func (t *Transform) Push(chunk []byte) []Frame {
	t.buf = append(t.buf, chunk...)

	lines := bytes.Split(t.buf, []byte{'\n'})

	// The final element may be an incomplete line still awaiting bytes.
	// It is copied out as the new residual so the processed prefix can be
	// released.
	t.buf = append([]byte(nil), lines[len(lines)-1]...)

	var frames []Frame
	for _, line := range lines[:len(lines)-1] {
		if frame, ok := t.processLine(line); ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

// processLine interprets one complete line. The second return is false
// when the line produced no frame.
func (t *Transform) processLine(line []byte) (Frame, bool) {
	text := strings.TrimSuffix(string(line), "\r")
	if !strings.HasPrefix(text, dataPrefix) {
		return Frame{}, false
	}

	payload := strings.TrimSpace(strings.TrimPrefix(text, dataPrefix))
	if payload == "" {
		return Frame{}, false
	}
	if payload == doneSentinel {
		return Frame{Kind: FrameDone}, true
	}

	var delta deltaPayload
	if err := json.Unmarshal([]byte(payload), &delta); err != nil {
		// Malformed frames are skipped, never fatal. One bad line must
		// not cost the caller the rest of the stream.
		slog.Debug("Skipping unparseable stream payload", "error", err)
		if t.OnSkip != nil {
			t.OnSkip(payload)
		}
		return Frame{}, false
	}
	if delta.Response == nil {
		return Frame{}, false
	}
	return Frame{Kind: FrameDelta, Delta: *delta.Response}, true
}

// Relay pumps the upstream byte stream through a fresh transform into sink
// until the upstream is exhausted.
//
// # Description
//
// The cancellation token is checked before every upstream read. Frames are
// forwarded in arrival order, the done sentinel included; the sentinel
// does not stop the pump, end-of-data does. Residual buffered bytes at
// EOF are discarded. A nil return means the upstream ended cleanly; any
// non-nil return means the stream terminated on failure or cancellation,
// so the caller can tell the two apart.
//
// # Inputs
//
//   - ctx: Cancellation token for the read loop
//   - upstream: Raw SSE bytes from the inference endpoint
//   - sink: Destination for re-framed output
//
// # Outputs
//
//   - error: nil on clean EOF; ctx.Err() on cancellation; otherwise the
//     upstream read or sink write failure
func (t *Transform) Relay(ctx context.Context, upstream io.Reader, sink Sink) error {
	buf := make([]byte, readChunkSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := upstream.Read(buf)
		if n > 0 {
			for _, frame := range t.Push(buf[:n]) {
				var werr error
				switch frame.Kind {
				case FrameDone:
					werr = sink.WriteDone()
				default:
					werr = sink.WriteDelta(frame.Delta)
				}
				if werr != nil {
					return fmt.Errorf("writing downstream frame: %w", werr)
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading upstream stream: %w", err)
		}
	}
}
