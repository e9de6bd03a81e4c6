// Copyright (C) 2025 TutorLink (engineering@tutorlink.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() *ChatRequest {
	return &ChatRequest{
		Messages: []ChatMessage{
			{Role: "user", Content: "hola"},
		},
	}
}

// =============================================================================
// ChatRequest.Validate() Tests
// =============================================================================

// TestChatRequest_Validate_ValidRequests verifies that well-formed requests
// produce no violations, including boundary values for every optional field.
func TestChatRequest_Validate_ValidRequests(t *testing.T) {
	intPtr := func(v int) *int { return &v }
	floatPtr := func(v float64) *float64 { return &v }
	boolPtr := func(v bool) *bool { return &v }

	tests := []struct {
		name string
		req  *ChatRequest
	}{
		{
			name: "minimal single user message",
			req:  validRequest(),
		},
		{
			name: "all roles present",
			req: &ChatRequest{
				Messages: []ChatMessage{
					{Role: "system", Content: "You are a tutor."},
					{Role: "user", Content: "hola"},
					{Role: "assistant", Content: "¡Hola!"},
				},
			},
		},
		{
			name: "maxTokens at the ceiling",
			req: &ChatRequest{
				Messages:  validRequest().Messages,
				MaxTokens: intPtr(2000),
			},
		},
		{
			name: "maxTokens at the floor",
			req: &ChatRequest{
				Messages:  validRequest().Messages,
				MaxTokens: intPtr(1),
			},
		},
		{
			name: "temperature at zero",
			req: &ChatRequest{
				Messages:    validRequest().Messages,
				Temperature: floatPtr(0),
			},
		},
		{
			name: "temperature at one",
			req: &ChatRequest{
				Messages:    validRequest().Messages,
				Temperature: floatPtr(1),
			},
		},
		{
			name: "stream explicitly false",
			req: &ChatRequest{
				Messages: validRequest().Messages,
				Stream:   boolPtr(false),
			},
		},
		{
			name: "fifty messages is the inclusive maximum",
			req: &ChatRequest{
				Messages: func() []ChatMessage {
					msgs := make([]ChatMessage, 50)
					for i := range msgs {
						msgs[i] = ChatMessage{Role: "user", Content: fmt.Sprintf("msg %d", i)}
					}
					return msgs
				}(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, tt.req.Validate())
		})
	}
}

// TestChatRequest_Validate_Violations verifies that each out-of-bounds field
// is reported with the caller-facing JSON path.
func TestChatRequest_Validate_Violations(t *testing.T) {
	intPtr := func(v int) *int { return &v }
	floatPtr := func(v float64) *float64 { return &v }

	tests := []struct {
		name     string
		req      *ChatRequest
		wantPath string
	}{
		{
			name:     "missing messages",
			req:      &ChatRequest{},
			wantPath: "messages",
		},
		{
			name:     "empty message list",
			req:      &ChatRequest{Messages: []ChatMessage{}},
			wantPath: "messages",
		},
		{
			name: "fifty-one messages",
			req: &ChatRequest{
				Messages: func() []ChatMessage {
					msgs := make([]ChatMessage, 51)
					for i := range msgs {
						msgs[i] = ChatMessage{Role: "user", Content: "x"}
					}
					return msgs
				}(),
			},
			wantPath: "messages",
		},
		{
			name: "invalid role",
			req: &ChatRequest{
				Messages: []ChatMessage{{Role: "moderator", Content: "x"}},
			},
			wantPath: "messages[0].role",
		},
		{
			name: "empty content",
			req: &ChatRequest{
				Messages: []ChatMessage{{Role: "user", Content: ""}},
			},
			wantPath: "messages[0].content",
		},
		{
			name: "maxTokens zero",
			req: &ChatRequest{
				Messages:  validRequest().Messages,
				MaxTokens: intPtr(0),
			},
			wantPath: "maxTokens",
		},
		{
			name: "maxTokens above ceiling",
			req: &ChatRequest{
				Messages:  validRequest().Messages,
				MaxTokens: intPtr(3000),
			},
			wantPath: "maxTokens",
		},
		{
			name: "negative maxTokens",
			req: &ChatRequest{
				Messages:  validRequest().Messages,
				MaxTokens: intPtr(-5),
			},
			wantPath: "maxTokens",
		},
		{
			name: "temperature above one",
			req: &ChatRequest{
				Messages:    validRequest().Messages,
				Temperature: floatPtr(1.5),
			},
			wantPath: "temperature",
		},
		{
			name: "negative temperature",
			req: &ChatRequest{
				Messages:    validRequest().Messages,
				Temperature: floatPtr(-0.1),
			},
			wantPath: "temperature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			details := tt.req.Validate()
			require.NotEmpty(t, details, "expected validation violations")

			paths := make([]string, 0, len(details))
			for _, d := range details {
				paths = append(paths, d.Path)
				assert.NotEmpty(t, d.Message, "every violation carries a message")
			}
			assert.Contains(t, paths, tt.wantPath)
		})
	}
}

// TestChatRequest_Validate_ReportsAllViolations verifies that validation
// does not stop at the first failing field. A request that is wrong in
// three independent ways must report all three.
func TestChatRequest_Validate_ReportsAllViolations(t *testing.T) {
	maxTokens := 3000
	temperature := 1.5
	req := &ChatRequest{
		Messages: []ChatMessage{
			{Role: "robot", Content: "x"},
			{Role: "user", Content: ""},
		},
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	}

	details := req.Validate()
	require.Len(t, details, 4)

	paths := make([]string, 0, len(details))
	for _, d := range details {
		paths = append(paths, d.Path)
	}
	assert.Contains(t, paths, "messages[0].role")
	assert.Contains(t, paths, "messages[1].content")
	assert.Contains(t, paths, "maxTokens")
	assert.Contains(t, paths, "temperature")
}

// =============================================================================
// ChatRequest.ApplyDefaults() Tests
// =============================================================================

// TestChatRequest_ApplyDefaults verifies that defaults are applied only for
// absent fields and that caller-supplied values are left untouched.
func TestChatRequest_ApplyDefaults(t *testing.T) {
	t.Run("absent fields get defaults", func(t *testing.T) {
		req := validRequest()
		req.ApplyDefaults()

		require.NotNil(t, req.Stream)
		require.NotNil(t, req.MaxTokens)
		require.NotNil(t, req.Temperature)
		assert.True(t, *req.Stream)
		assert.Equal(t, DefaultMaxTokens, *req.MaxTokens)
		assert.Equal(t, DefaultTemperature, *req.Temperature)
	})

	t.Run("supplied values survive", func(t *testing.T) {
		stream := false
		maxTokens := 256
		temperature := 0.0
		req := validRequest()
		req.Stream = &stream
		req.MaxTokens = &maxTokens
		req.Temperature = &temperature

		req.ApplyDefaults()

		assert.False(t, *req.Stream)
		assert.Equal(t, 256, *req.MaxTokens)
		assert.Equal(t, 0.0, *req.Temperature)
	})
}

// =============================================================================
// Response Payload Tests
// =============================================================================

func TestNewChatResponse(t *testing.T) {
	resp := NewChatResponse("¡Hola! ¿En qué puedo ayudarte?")
	assert.Equal(t, "¡Hola! ¿En qué puedo ayudarte?", resp.Message)
	assert.Equal(t, "assistant", resp.Role)
}

func TestNewValidationErrorResponse(t *testing.T) {
	details := []FieldError{{Path: "messages", Message: "messages is required"}}
	resp := NewValidationErrorResponse(details)
	assert.Equal(t, "Invalid request", resp.Error)
	assert.Equal(t, details, resp.Details)
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse("generation failed")
	assert.Equal(t, "Failed to process chat request", resp.Error)
	assert.Equal(t, "generation failed", resp.Message)
}
