// Copyright (C) 2025 TutorLink (engineering@tutorlink.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tutorlink/tutorlink/services/relay/datatypes"
)

var tracer = otel.Tracer("tutorlink.inference.hosted")

// HostedClient talks to the hosted inference endpoint over HTTP.
//
// # Description
//
// The endpoint exposes a single chat route that accepts the message list
// plus generation parameters and answers either with one JSON object
// {"response": "..."} (single-shot) or with an SSE byte stream whose data
// payloads carry the same "response" field as incremental deltas,
// terminated by the [DONE] sentinel.
//
// # Assumptions
//
//   - The endpoint is trusted; its payloads are still validated before use
//   - Auth, when configured, is a static bearer token
type HostedClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	authToken  string
}

// chatPayload is the upstream request body. Field names follow the
// upstream snake_case convention, not the relay's inbound camelCase.
type chatPayload struct {
	Model       string                  `json:"model,omitempty"`
	Messages    []datatypes.ChatMessage `json:"messages"`
	Stream      bool                    `json:"stream"`
	MaxTokens   *int                    `json:"max_tokens,omitempty"`
	Temperature *float64                `json:"temperature,omitempty"`
}

// chatCompletion is the single-shot upstream response body.
type chatCompletion struct {
	Response *string `json:"response"`
}

// NewHostedClient constructs a client from environment configuration.
//
// # Description
//
// Reads INFERENCE_BASE_URL (required), INFERENCE_MODEL (optional, passed
// through to the upstream when set) and INFERENCE_API_TOKEN (optional
// bearer token). The HTTP client timeout covers connection setup and the
// single-shot path; streaming responses are read until EOF by the caller
// and are bounded by request context instead.
//
// # Outputs
//
//   - *HostedClient: Ready-to-use client
//   - error: Non-nil when INFERENCE_BASE_URL is unset
func NewHostedClient() (*HostedClient, error) {
	baseURL := os.Getenv("INFERENCE_BASE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("INFERENCE_BASE_URL environment variable not set")
	}
	model := os.Getenv("INFERENCE_MODEL")
	if model == "" {
		slog.Warn("INFERENCE_MODEL not set, upstream default model will be used")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing hosted inference client", "base_url", baseURL, "model", model)
	return &HostedClient{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
		model:      model,
		authToken:  os.Getenv("INFERENCE_API_TOKEN"),
	}, nil
}

var _ Gateway = (*HostedClient)(nil)

// Chat implements the Gateway interface for the single-shot path.
//
// # Description
//
// Posts the message list with stream=false and returns the full reply
// text. A missing "response" field in an otherwise well-formed upstream
// body is ErrInvalidUpstreamResponse; everything else that goes wrong is
// ErrGenerationFailed. Partial or garbled content is never returned as if
// it were valid.
func (h *HostedClient) Chat(ctx context.Context, messages []datatypes.ChatMessage,
	params GenerationParams) (string, error) {

	ctx, span := tracer.Start(ctx, "HostedClient.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", h.model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	resp, err := h.post(ctx, messages, params, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: reading response body: %v", ErrGenerationFailed, err)
	}

	var completion chatCompletion
	if err := json.Unmarshal(respBody, &completion); err != nil {
		slog.Error("Failed to parse inference response", "error", err, "response", string(respBody))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %v", ErrInvalidUpstreamResponse, err)
	}
	if completion.Response == nil {
		slog.Error("Inference response missing 'response' field", "response", string(respBody))
		span.SetStatus(codes.Error, "missing response field")
		return "", fmt.Errorf("%w: missing 'response' field", ErrInvalidUpstreamResponse)
	}

	slog.Debug("Received single-shot inference response", "chars", len(*completion.Response))
	return *completion.Response, nil
}

// ChatStream implements the Gateway interface for the streaming path.
//
// # Description
//
// Posts the message list with stream=true and hands back the raw response
// body. No parsing happens here; the stream transform owns SSE reassembly.
// The returned reader must be closed by the caller, which also aborts the
// upstream transfer if the caller stops early.
func (h *HostedClient) ChatStream(ctx context.Context, messages []datatypes.ChatMessage,
	params GenerationParams) (io.ReadCloser, error) {

	ctx, span := tracer.Start(ctx, "HostedClient.ChatStream")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", h.model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	resp, err := h.post(ctx, messages, params, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	slog.Debug("Upstream inference stream opened")
	return resp.Body, nil
}

// Ping implements the Gateway interface.
//
// Any HTTP answer counts as reachable; only transport-level failure marks
// the binding unavailable.
func (h *HostedClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}
	if h.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.authToken)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inference endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return nil
}

// post sends the chat request and returns the raw response once the status
// is known good. On non-2xx the body is drained into the error log and the
// caller gets ErrGenerationFailed.
func (h *HostedClient) post(ctx context.Context, messages []datatypes.ChatMessage,
	params GenerationParams, stream bool) (*http.Response, error) {

	payload := chatPayload{
		Model:       h.model,
		Messages:    messages,
		Stream:      stream,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", ErrGenerationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/chat", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrGenerationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if h.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.authToken)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		slog.Error("Inference API call failed", "error", err, "stream", stream)
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		slog.Error("Inference API returned an error",
			"status_code", resp.StatusCode, "response", string(respBody))
		return nil, fmt.Errorf("%w: status %d", ErrGenerationFailed, resp.StatusCode)
	}
	return resp, nil
}
