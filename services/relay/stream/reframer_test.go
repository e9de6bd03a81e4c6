// Copyright (C) 2025 TutorLink (engineering@tutorlink.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectSink records frames in arrival order.
type collectSink struct {
	deltas []string
	done   int

	failOnWrite error
}

func (s *collectSink) WriteDelta(delta string) error {
	if s.failOnWrite != nil {
		return s.failOnWrite
	}
	s.deltas = append(s.deltas, delta)
	return nil
}

func (s *collectSink) WriteDone() error {
	if s.failOnWrite != nil {
		return s.failOnWrite
	}
	s.done++
	return nil
}

// pushAll feeds the whole input as one chunk and flattens the result.
func pushAll(t *Transform, input string) []Frame {
	return t.Push([]byte(input))
}

func deltasOf(frames []Frame) []string {
	var out []string
	for _, f := range frames {
		if f.Kind == FrameDelta {
			out = append(out, f.Delta)
		}
	}
	return out
}

func doneCount(frames []Frame) int {
	n := 0
	for _, f := range frames {
		if f.Kind == FrameDone {
			n++
		}
	}
	return n
}

// =============================================================================
// Transform.Push() Tests
// =============================================================================

// TestTransform_Push_WellFormedStream verifies a complete stream in one
// chunk yields one delta frame per data line plus the sentinel, in order.
func TestTransform_Push_WellFormedStream(t *testing.T) {
	input := "data: {\"response\":\"Hola\"}\n\n" +
		"data: {\"response\":\" mundo\"}\n\n" +
		"data: [DONE]\n\n"

	frames := pushAll(NewTransform(), input)

	assert.Equal(t, []string{"Hola", " mundo"}, deltasOf(frames))
	assert.Equal(t, 1, doneCount(frames))
	assert.Equal(t, FrameDone, frames[len(frames)-1].Kind)
}

// TestTransform_Push_IncompleteLineIsHeld verifies a line missing its
// newline is never processed until the newline arrives.
func TestTransform_Push_IncompleteLineIsHeld(t *testing.T) {
	tr := NewTransform()

	frames := tr.Push([]byte("data: {\"response\":\"Ho"))
	assert.Empty(t, frames, "incomplete line must not be processed")

	frames = tr.Push([]byte("la\"}\n"))
	assert.Equal(t, []string{"Hola"}, deltasOf(frames))
}

// TestTransform_Push_MultiByteRuneSplit verifies a UTF-8 sequence severed
// across chunks decodes intact once the line completes.
func TestTransform_Push_MultiByteRuneSplit(t *testing.T) {
	full := []byte("data: {\"response\":\"¡Hola! ¿qué tal?\"}\n")
	// Split inside the two-byte encoding of '¡' (0xC2 0xA1).
	cut := bytes.IndexByte(full, 0xC2) + 1

	tr := NewTransform()
	frames := tr.Push(full[:cut])
	assert.Empty(t, frames)
	frames = tr.Push(full[cut:])
	assert.Equal(t, []string{"¡Hola! ¿qué tal?"}, deltasOf(frames))
}

// TestTransform_Push_IgnoresNonDataLines verifies comments, blank frame
// separators, and other SSE fields produce nothing.
func TestTransform_Push_IgnoresNonDataLines(t *testing.T) {
	input := ": ping\n" +
		"\n" +
		"event: message\n" +
		"id: 4\n" +
		"data: {\"response\":\"x\"}\n\n"

	frames := pushAll(NewTransform(), input)
	assert.Equal(t, []string{"x"}, deltasOf(frames))
}

// TestTransform_Push_EmptyDataLine verifies empty payloads are a no-op.
func TestTransform_Push_EmptyDataLine(t *testing.T) {
	frames := pushAll(NewTransform(), "data:\ndata:   \ndata: {\"response\":\"y\"}\n")
	assert.Equal(t, []string{"y"}, deltasOf(frames))
}

// TestTransform_Push_MalformedPayloadSkipped verifies one bad line in the
// middle costs only that line; frames before and after still come through
// in order, and the skip hook observes the bad payload.
func TestTransform_Push_MalformedPayloadSkipped(t *testing.T) {
	input := "data: {\"response\":\"a\"}\n\n" +
		"data: {not json at all\n\n" +
		"data: {\"response\":\"b\"}\n\n" +
		"data: [DONE]\n\n"

	var skipped []string
	tr := NewTransform()
	tr.OnSkip = func(payload string) { skipped = append(skipped, payload) }

	frames := pushAll(tr, input)

	assert.Equal(t, []string{"a", "b"}, deltasOf(frames))
	assert.Equal(t, 1, doneCount(frames))
	assert.Equal(t, []string{"{not json at all"}, skipped)
}

// TestTransform_Push_JSONWithoutResponseField verifies valid JSON lacking
// the text field is dropped without being counted as malformed.
func TestTransform_Push_JSONWithoutResponseField(t *testing.T) {
	var skips int
	tr := NewTransform()
	tr.OnSkip = func(string) { skips++ }

	frames := pushAll(tr, "data: {\"usage\":{\"tokens\":12}}\ndata: {\"response\":\"z\"}\n")

	assert.Equal(t, []string{"z"}, deltasOf(frames))
	assert.Zero(t, skips)
}

// TestTransform_Push_EmptyStringDelta verifies an explicit empty response
// field is still a frame: present-and-empty differs from absent.
func TestTransform_Push_EmptyStringDelta(t *testing.T) {
	frames := pushAll(NewTransform(), "data: {\"response\":\"\"}\n")
	assert.Equal(t, []string{""}, deltasOf(frames))
}

// TestTransform_Push_CRLFLines verifies carriage returns before the
// newline are stripped.
func TestTransform_Push_CRLFLines(t *testing.T) {
	frames := pushAll(NewTransform(), "data: {\"response\":\"crlf\"}\r\n\r\ndata: [DONE]\r\n\r\n")
	assert.Equal(t, []string{"crlf"}, deltasOf(frames))
	assert.Equal(t, 1, doneCount(frames))
}

// TestTransform_Push_SentinelDoesNotStopProcessing verifies lines after a
// sentinel within the same buffered input are still examined; the read
// loop, not the transform, decides when to stop.
func TestTransform_Push_SentinelDoesNotStopProcessing(t *testing.T) {
	input := "data: [DONE]\n\ndata: {\"response\":\"late\"}\n\n"
	frames := pushAll(NewTransform(), input)
	assert.Equal(t, 1, doneCount(frames))
	assert.Equal(t, []string{"late"}, deltasOf(frames))
}

// TestTransform_Push_EveryByteOffset fuzzes chunk boundaries: the same
// total byte sequence split at every possible offset, and additionally
// fed byte by byte, must yield the identical frame sequence every time.
// Splitting must never lose, duplicate, or reorder a delta.
func TestTransform_Push_EveryByteOffset(t *testing.T) {
	input := []byte("data: {\"response\":\"¡Hola\"}\n\n" +
		": keepalive\n" +
		"data: {\"response\":\" qué\"}\n\n" +
		"data: {broken\n\n" +
		"data: {\"response\":\" tal!\"}\n\n" +
		"data: [DONE]\n\n")

	reference := pushAll(NewTransform(), string(input))
	require.Equal(t, []string{"¡Hola", " qué", " tal!"}, deltasOf(reference))
	require.Equal(t, 1, doneCount(reference))

	for cut := 0; cut <= len(input); cut++ {
		tr := NewTransform()
		var frames []Frame
		frames = append(frames, tr.Push(input[:cut])...)
		frames = append(frames, tr.Push(input[cut:])...)

		assert.Equal(t, reference, frames, "split at offset %d diverged", cut)
	}

	t.Run("byte at a time", func(t *testing.T) {
		tr := NewTransform()
		var frames []Frame
		for i := range input {
			frames = append(frames, tr.Push(input[i:i+1])...)
		}
		assert.Equal(t, reference, frames)
	})
}

// =============================================================================
// Transform.Relay() Tests
// =============================================================================

// chunkedReader yields its chunks one Read call each, then the terminal
// error (io.EOF for a clean end).
type chunkedReader struct {
	chunks [][]byte
	err    error
	pos    int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.chunks) {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.pos])
	r.pos++
	return n, nil
}

// TestTransform_Relay_CleanStream verifies deltas and the sentinel reach
// the sink in order and a clean EOF returns nil.
func TestTransform_Relay_CleanStream(t *testing.T) {
	upstream := &chunkedReader{chunks: [][]byte{
		[]byte("data: {\"response\":\"Hola\"}\n\nda"),
		[]byte("ta: {\"response\":\" mundo\"}\n\n"),
		[]byte("data: [DONE]\n\n"),
	}}
	sink := &collectSink{}

	err := NewTransform().Relay(context.Background(), upstream, sink)

	require.NoError(t, err)
	assert.Equal(t, []string{"Hola", " mundo"}, sink.deltas)
	assert.Equal(t, 1, sink.done)
}

// TestTransform_Relay_ResidualDiscardedAtEOF verifies an unterminated tail
// is dropped when the source is exhausted: nothing can complete it.
func TestTransform_Relay_ResidualDiscardedAtEOF(t *testing.T) {
	upstream := strings.NewReader("data: {\"response\":\"done\"}\n\ndata: {\"response\":\"trunca")
	sink := &collectSink{}

	err := NewTransform().Relay(context.Background(), upstream, sink)

	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, sink.deltas)
}

// TestTransform_Relay_UpstreamErrorPropagates verifies a mid-stream read
// failure surfaces as a terminal error, distinguishable from clean EOF.
func TestTransform_Relay_UpstreamErrorPropagates(t *testing.T) {
	readErr := errors.New("connection reset")
	upstream := &chunkedReader{
		chunks: [][]byte{[]byte("data: {\"response\":\"partial\"}\n\n")},
		err:    readErr,
	}
	sink := &collectSink{}

	err := NewTransform().Relay(context.Background(), upstream, sink)

	require.Error(t, err)
	assert.True(t, errors.Is(err, readErr))
	assert.Equal(t, []string{"partial"}, sink.deltas)
}

// TestTransform_Relay_SinkErrorStopsPump verifies a downstream write
// failure terminates the loop instead of pulling further chunks.
func TestTransform_Relay_SinkErrorStopsPump(t *testing.T) {
	writeErr := errors.New("client went away")
	upstream := &chunkedReader{chunks: [][]byte{
		[]byte("data: {\"response\":\"a\"}\n\n"),
		[]byte("data: {\"response\":\"b\"}\n\n"),
	}}
	sink := &collectSink{failOnWrite: writeErr}

	err := NewTransform().Relay(context.Background(), upstream, sink)

	require.Error(t, err)
	assert.True(t, errors.Is(err, writeErr))
}

// TestTransform_Relay_Cancellation verifies the token is honored between
// reads and no further chunks are pulled after cancellation.
func TestTransform_Relay_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	upstream := &chunkedReader{chunks: [][]byte{
		[]byte("data: {\"response\":\"never seen\"}\n\n"),
	}}
	sink := &collectSink{}

	err := NewTransform().Relay(ctx, upstream, sink)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, sink.deltas)
	assert.Zero(t, upstream.pos, "no chunk may be pulled after cancellation")
}

// TestTransform_Relay_ManyDeltas exercises a longer stream with frames
// split arbitrarily across reads.
func TestTransform_Relay_ManyDeltas(t *testing.T) {
	var full bytes.Buffer
	var want []string
	for i := 0; i < 100; i++ {
		token := fmt.Sprintf("tok%d ", i)
		want = append(want, token)
		fmt.Fprintf(&full, "data: {\"response\":%q}\n\n", token)
	}
	full.WriteString("data: [DONE]\n\n")

	// Uneven chunk sizes so frames straddle reads.
	raw := full.Bytes()
	var chunks [][]byte
	for len(raw) > 0 {
		n := 7
		if n > len(raw) {
			n = len(raw)
		}
		chunks = append(chunks, raw[:n])
		raw = raw[n:]
	}

	sink := &collectSink{}
	err := NewTransform().Relay(context.Background(), &chunkedReader{chunks: chunks}, sink)

	require.NoError(t, err)
	assert.Equal(t, want, sink.deltas)
	assert.Equal(t, 1, sink.done)
}
