// Copyright (C) 2025 TutorLink (engineering@tutorlink.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the gin handlers for the chat relay endpoints.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tutorlink/tutorlink/services/inference"
	"github.com/tutorlink/tutorlink/services/relay/datatypes"
	"github.com/tutorlink/tutorlink/services/relay/observability"
	"github.com/tutorlink/tutorlink/services/relay/prompt"
	"github.com/tutorlink/tutorlink/services/relay/stream"
)

var tracer = otel.Tracer("tutorlink.relay.handlers")

// keepAliveInterval is how often an SSE comment is sent while a stream is
// open. Load balancer idle timeouts commonly sit at 60s.
const keepAliveInterval = 15 * time.Second

// =============================================================================
// Chat Handler
// =============================================================================

// ChatHandler serves one chat endpoint: validate, assemble the prompt,
// invoke the inference gateway, and either relay the SSE stream or return
// the single-shot reply.
//
// # Description
//
// The same handler implementation backs POST /chat and POST /teaching-chat;
// the two instances differ only in the fixed system prompt injected when
// the caller supplies none, and in the metrics endpoint label.
//
// # Thread Safety
//
// Safe for concurrent requests. All per-request state (the transform
// buffer included) is allocated inside Handle; nothing is shared.
type ChatHandler struct {
	gateway      inference.Gateway
	systemPrompt string
	endpoint     observability.Endpoint
	metrics      *observability.RelayMetrics
}

// NewChatHandler constructs a handler bound to one endpoint's prompt.
//
// # Inputs
//
//   - gateway: The inference backend to invoke
//   - systemPrompt: Fixed prompt injected when the caller has none
//   - endpoint: Metrics label for this endpoint
func NewChatHandler(gateway inference.Gateway, systemPrompt string,
	endpoint observability.Endpoint) *ChatHandler {

	return &ChatHandler{
		gateway:      gateway,
		systemPrompt: systemPrompt,
		endpoint:     endpoint,
		metrics:      observability.InitMetrics(),
	}
}

// Handle processes one chat request, streaming or single-shot.
//
// # Description
//
// Every violation in the request body is reported together in a 400; the
// gateway is never invoked for an invalid request. Defaults are applied
// only for absent fields. Upstream failures surface as a generic 500;
// the distinction between a failed call and an uninterpretable response
// lives in logs and metrics only.
func (h *ChatHandler) Handle(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ChatHandler.Handle")
	defer span.End()

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	log := slog.With("request_id", requestID, "endpoint", h.endpoint)
	span.SetAttributes(
		attribute.String("relay.endpoint", string(h.endpoint)),
		attribute.String("relay.request_id", requestID),
	)

	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Rejecting undecodable chat request", "error", err)
		h.metrics.RecordError(h.endpoint, observability.ErrorCodeValidation)
		span.SetStatus(codes.Error, "undecodable request body")
		c.JSON(http.StatusBadRequest, datatypes.NewValidationErrorResponse([]datatypes.FieldError{
			{Path: "", Message: "request body must be a valid JSON object"},
		}))
		return
	}

	if details := req.Validate(); len(details) > 0 {
		log.Warn("Rejecting invalid chat request", "violations", len(details))
		h.metrics.RecordError(h.endpoint, observability.ErrorCodeValidation)
		span.SetStatus(codes.Error, "request validation failed")
		c.JSON(http.StatusBadRequest, datatypes.NewValidationErrorResponse(details))
		return
	}
	req.ApplyDefaults()

	messages := prompt.EnsureSystemPrompt(req.Messages, h.systemPrompt)
	params := inference.GenerationParams{
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	span.SetAttributes(
		attribute.Int("chat.num_messages", len(messages)),
		attribute.Bool("chat.stream", *req.Stream),
	)

	if *req.Stream {
		h.handleStreaming(ctx, c, log, messages, params)
		return
	}
	h.handleSingleShot(ctx, c, log, messages, params)
}

// handleSingleShot serves stream=false: one upstream call, one JSON body.
func (h *ChatHandler) handleSingleShot(ctx context.Context, c *gin.Context,
	log *slog.Logger, messages []datatypes.ChatMessage, params inference.GenerationParams) {

	answer, err := h.gateway.Chat(ctx, messages, params)
	if err != nil {
		code := observability.ErrorCodeGeneration
		if errors.Is(err, inference.ErrInvalidUpstreamResponse) {
			code = observability.ErrorCodeInvalidUpstream
		}
		log.Error("Chat generation failed", "error_code", code, "error", err)
		h.metrics.RecordError(h.endpoint, code)
		h.metrics.RecordRequest(h.endpoint, false, false)
		c.JSON(http.StatusInternalServerError,
			datatypes.NewErrorResponse("The model could not generate a response"))
		return
	}

	h.metrics.RecordRequest(h.endpoint, false, true)
	c.JSON(http.StatusOK, datatypes.NewChatResponse(answer))
}

// handleStreaming serves stream=true: open the upstream stream, then pump
// it through a fresh transform into the SSE response.
func (h *ChatHandler) handleStreaming(ctx context.Context, c *gin.Context,
	log *slog.Logger, messages []datatypes.ChatMessage, params inference.GenerationParams) {

	upstream, err := h.gateway.ChatStream(ctx, messages, params)
	if err != nil {
		log.Error("Failed to open upstream stream", "error", err)
		h.metrics.RecordError(h.endpoint, observability.ErrorCodeGeneration)
		h.metrics.RecordRequest(h.endpoint, true, false)
		c.JSON(http.StatusInternalServerError,
			datatypes.NewErrorResponse("The model could not generate a response"))
		return
	}
	defer upstream.Close()

	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		log.Error("Streaming unsupported by response writer")
		h.metrics.RecordError(h.endpoint, observability.ErrorCodeInternal)
		h.metrics.RecordRequest(h.endpoint, true, false)
		c.JSON(http.StatusInternalServerError,
			datatypes.NewErrorResponse("Streaming is not supported"))
		return
	}

	h.metrics.StreamStarted(h.endpoint)
	defer h.metrics.StreamEnded(h.endpoint)
	started := time.Now()

	// Keepalive comments while the pump runs. The writer's lock keeps
	// them from interleaving mid-frame.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if writer.WriteKeepAlive() == nil {
					h.metrics.RecordKeepAlive(h.endpoint)
				}
			case <-done:
				return
			}
		}
	}()

	transform := stream.NewTransform()
	transform.OnSkip = func(string) {
		h.metrics.RecordSkippedFrame(h.endpoint)
	}
	sink := &meteredSink{
		inner:    writer,
		metrics:  h.metrics,
		endpoint: h.endpoint,
		started:  started,
	}

	relayErr := transform.Relay(ctx, upstream, sink)
	elapsed := time.Since(started).Seconds()

	if relayErr != nil {
		// No error frame exists in the wire format; the connection is
		// simply cut short of the sentinel so the consumer can tell.
		switch {
		case errors.Is(relayErr, context.Canceled), errors.Is(relayErr, context.DeadlineExceeded):
			log.Info("Client disconnected mid-stream")
			h.metrics.RecordClientDisconnect(h.endpoint)
		default:
			log.Error("Stream relay failed", "error", relayErr)
			h.metrics.RecordError(h.endpoint, observability.ErrorCodeGeneration)
		}
		h.metrics.RecordStreamDuration(h.endpoint, elapsed, false)
		h.metrics.RecordRequest(h.endpoint, true, false)
		c.Abort()
		return
	}

	log.Debug("Stream relay completed", "duration_seconds", elapsed)
	h.metrics.RecordStreamDuration(h.endpoint, elapsed, true)
	h.metrics.RecordRequest(h.endpoint, true, true)
}

// =============================================================================
// Metered Sink
// =============================================================================

// meteredSink counts delta frames on their way to the SSE writer and
// observes the latency of the first one.
type meteredSink struct {
	inner      SSEWriter
	metrics    *observability.RelayMetrics
	endpoint   observability.Endpoint
	started    time.Time
	firstDelta bool
}

var _ stream.Sink = (*meteredSink)(nil)

func (s *meteredSink) WriteDelta(delta string) error {
	if err := s.inner.WriteDelta(delta); err != nil {
		return err
	}
	if !s.firstDelta {
		s.firstDelta = true
		s.metrics.RecordTimeToFirstDelta(s.endpoint, time.Since(s.started).Seconds())
	}
	s.metrics.RecordDeltaFrame(s.endpoint)
	return nil
}

func (s *meteredSink) WriteDone() error {
	return s.inner.WriteDone()
}
