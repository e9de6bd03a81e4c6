// Copyright (C) 2025 TutorLink (engineering@tutorlink.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tutorlink/tutorlink/services/relay/datatypes"
)

// TerminalState is how a streamed assistant reply ended.
type TerminalState string

const (
	// StateDone means the stream completed cleanly.
	StateDone TerminalState = "done"
	// StateCancelled means the caller aborted mid-stream. Not an error.
	StateCancelled TerminalState = "cancelled"
	// StateErrored means the request or read failed.
	StateErrored TerminalState = "errored"
)

// ChatPath and TeachingChatPath are the relay's two chat endpoints.
const (
	ChatPath         = "/chat"
	TeachingChatPath = "/teaching-chat"
)

// Client talks to the chat relay.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a relay client for the given base URL. No timeout is
// set on the HTTP client; streams are open-ended and are bounded by the
// request context instead.
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// Send performs a non-streaming chat request and returns the full reply.
func (c *Client) Send(ctx context.Context, path string, messages []datatypes.ChatMessage) (string, error) {
	resp, err := c.post(ctx, path, messages, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading chat response: %w", err)
	}

	var reply datatypes.ChatResponse
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("parsing chat response: %w", err)
	}
	return reply.Message, nil
}

// Stream performs a streaming chat request.
//
// onDelta is invoked once per decoded delta, in arrival order, so the
// caller can render each token as it lands. The returned string is the
// full accumulated content at the moment the stream ended.
//
// Cancelling ctx mid-stream stops reading promptly and yields
// StateCancelled with the partial content and a nil error; cancellation
// is not a failure. Any other interruption yields StateErrored. A stream
// that reaches the [DONE] sentinel, or whose source is exhausted without
// one, is StateDone.
func (c *Client) Stream(ctx context.Context, path string, messages []datatypes.ChatMessage,
	onDelta func(delta string)) (string, TerminalState, error) {

	resp, err := c.post(ctx, path, messages, true)
	if err != nil {
		if ctx.Err() != nil {
			return "", StateCancelled, nil
		}
		return "", StateErrored, err
	}
	defer resp.Body.Close()

	var content strings.Builder
	parser := &frameParser{}
	buf := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			return content.String(), StateCancelled, nil
		default:
		}

		n, err := resp.Body.Read(buf)
		if n > 0 {
			deltas, done := parser.feed(buf[:n])
			for _, delta := range deltas {
				content.WriteString(delta)
				if onDelta != nil {
					onDelta(delta)
				}
			}
			if done {
				return content.String(), StateDone, nil
			}
		}
		if err == io.EOF {
			return content.String(), StateDone, nil
		}
		if err != nil {
			// A read error caused by our own abort is a cancellation,
			// not a failure to report.
			if ctx.Err() != nil {
				return content.String(), StateCancelled, nil
			}
			return content.String(), StateErrored, fmt.Errorf("reading stream: %w", err)
		}
	}
}

// StreamInto drives one assistant turn against the conversation: it sends
// the accumulated history, grows an assistant placeholder delta by delta,
// and settles the placeholder according to how the stream ended.
//
// A cancelled turn keeps its partial content, marked cancelled. A failed
// turn removes the placeholder from the conversation entirely and returns
// the error for display.
func (c *Client) StreamInto(ctx context.Context, path string, conv *Conversation,
	onUpdate func(msg ChatUIMessage)) (TerminalState, error) {

	history := conv.History()
	placeholder := conv.addAssistantPlaceholder()

	_, state, err := c.Stream(ctx, path, history, func(delta string) {
		if msg, ok := conv.appendDelta(placeholder.ID, delta); ok && onUpdate != nil {
			onUpdate(msg)
		}
	})

	switch state {
	case StateCancelled:
		conv.markTerminal(placeholder.ID, true)
	case StateErrored:
		conv.remove(placeholder.ID)
	default:
		conv.markTerminal(placeholder.ID, false)
	}
	return state, err
}

// post sends a chat request and verifies the status before handing the
// response back.
func (c *Client) post(ctx context.Context, path string, messages []datatypes.ChatMessage,
	stream bool) (*http.Response, error) {

	reqBody, err := json.Marshal(datatypes.ChatRequest{
		Messages: messages,
		Stream:   &stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending chat request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("chat request failed with status %d: %s",
			resp.StatusCode, summarizeError(body))
	}
	return resp, nil
}

// summarizeError extracts the short error string from a relay error body,
// falling back to the status line alone.
func summarizeError(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return "request rejected"
}

// Health reports whether the relay and its upstream binding are healthy.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/chat/health", nil)
	if err != nil {
		return fmt.Errorf("creating health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
