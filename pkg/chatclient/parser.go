// Copyright (C) 2025 TutorLink (engineering@tutorlink.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package chatclient is the consumer-side counterpart of the chat relay:
// it sends chat requests, decodes the relay's SSE stream incrementally,
// and maintains the in-memory conversation shown to the user.
package chatclient

import (
	"bytes"
	"encoding/json"
	"strings"
)

// frameParser reassembles the relay's SSE frames across chunk boundaries.
//
// It keeps a residual of the last, possibly incomplete line; only lines
// terminated by a newline are ever parsed. Splitting happens on the raw
// bytes, so a multi-byte rune severed by a chunk boundary is reassembled
// before decoding.
type frameParser struct {
	residual []byte
}

type framePayload struct {
	Response *string `json:"response"`
}

// feed consumes one chunk and returns the text deltas it completed, plus
// whether the [DONE] sentinel was seen. Malformed data lines are skipped;
// one bad frame never aborts the stream.
func (p *frameParser) feed(chunk []byte) (deltas []string, done bool) {
	p.residual = append(p.residual, chunk...)

	lines := bytes.Split(p.residual, []byte{'\n'})
	p.residual = append([]byte(nil), lines[len(lines)-1]...)

	for _, raw := range lines[:len(lines)-1] {
		line := strings.TrimSuffix(string(raw), "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			done = true
			continue
		}

		var frame framePayload
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			continue
		}
		if frame.Response == nil {
			continue
		}
		deltas = append(deltas, *frame.Response)
	}
	return deltas, done
}
