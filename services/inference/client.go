// Copyright (C) 2025 TutorLink (engineering@tutorlink.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package inference invokes the hosted large-language-model endpoint on
// behalf of the relay, in streaming or single-shot mode.
package inference

import (
	"context"
	"errors"
	"io"

	"github.com/tutorlink/tutorlink/services/relay/datatypes"
)

// Failure taxonomy. Handlers branch on these with errors.Is; both surface
// to the caller as a generic 500 and are distinguished only in logs and
// metrics.
var (
	// ErrGenerationFailed means the upstream model call itself failed:
	// network error, non-2xx status, quota exhaustion.
	ErrGenerationFailed = errors.New("upstream generation failed")

	// ErrInvalidUpstreamResponse means the upstream answered but with a
	// shape the gateway cannot interpret. Never passed through as if it
	// were valid content.
	ErrInvalidUpstreamResponse = errors.New("invalid upstream response shape")
)

// GenerationParams carries the tunable generation parameters forwarded
// upstream. Pointer fields distinguish "caller omitted" from "caller set
// the zero value"; nil fields are simply not sent.
type GenerationParams struct {
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Gateway defines the interface to any hosted inference backend.
type Gateway interface {
	// Chat performs a single-shot completion and returns the full
	// assistant reply. Returns ErrInvalidUpstreamResponse when the
	// upstream payload lacks the expected text field.
	Chat(ctx context.Context, messages []datatypes.ChatMessage, params GenerationParams) (string, error)

	// ChatStream starts a streaming completion and returns the raw
	// upstream byte stream (SSE-framed). The caller owns the reader and
	// must Close it; closing releases the underlying connection.
	ChatStream(ctx context.Context, messages []datatypes.ChatMessage, params GenerationParams) (io.ReadCloser, error)

	// Ping reports whether the upstream binding is reachable.
	Ping(ctx context.Context) error
}
