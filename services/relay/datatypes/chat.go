// Copyright (C) 2025 TutorLink (engineering@tutorlink.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides request and response types for the chat relay
// service.
//
// This file contains the inbound chat contract: the request body accepted by
// POST /chat and POST /teaching-chat, the non-streaming response body, and
// the structured error payloads returned on validation or upstream failure.
package datatypes

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Request Bounds
// =============================================================================

const (
	// MaxMessagesPerRequest is the maximum number of messages in a request.
	// Requests exceeding this are rejected, never truncated.
	MaxMessagesPerRequest = 50

	// MaxTokensCeiling is the upper bound for the maxTokens parameter.
	MaxTokensCeiling = 2000

	// DefaultMaxTokens is applied when the caller omits maxTokens.
	DefaultMaxTokens = 1000

	// DefaultTemperature is applied when the caller omits temperature.
	DefaultTemperature = 0.7
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with a JSON tag name resolver so that violation
// paths match the wire-level field names the caller sent.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	chatValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// =============================================================================
// Chat Request Types
// =============================================================================

// ChatMessage is a single turn of conversation history.
//
// # Fields
//
//   - Role: Required. One of "system", "user", "assistant".
//   - Content: Required. Non-empty message text.
//
// Ordering within a request is caller-supplied and preserved end to end.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// ChatRequest represents the body of POST /chat and POST /teaching-chat.
//
// # Description
//
// ChatRequest carries the conversation history plus optional generation
// parameters. The optional fields are pointers so that an absent field can
// be told apart from a present-but-zero field: defaults are applied only
// when a field is absent. A present-but-out-of-bounds value is a hard
// validation failure, never silently corrected.
//
// # Fields
//
//   - Messages: Required. 1-50 messages, each individually validated.
//   - Stream: Optional. Whether to stream the response. Default: true.
//   - MaxTokens: Optional. Generation token limit in (0, 2000]. Default: 1000.
//   - Temperature: Optional. Sampling temperature in [0, 1]. Default: 0.7.
//
// # Validation
//
// Uses go-playground/validator:
//   - Messages: required, 1-50 elements, each element validated
//   - Messages[].Role: required, oneof system/user/assistant
//   - Messages[].Content: required (non-empty)
//   - MaxTokens: if present, > 0 and <= 2000
//   - Temperature: if present, in [0, 1]
//
// All violations are collected and reported together; validation never
// stops at the first failure.
//
// # Examples
//
//	req := ChatRequest{
//	    Messages: []ChatMessage{{Role: "user", Content: "hola"}},
//	}
//	if errs := req.Validate(); len(errs) > 0 {
//	    // reject with 400 and errs as details
//	}
//	req.ApplyDefaults()
//
// # Limitations
//
//   - No per-message byte limit is enforced beyond non-emptiness
//   - No request ID field; correlation happens via middleware
type ChatRequest struct {
	Messages    []ChatMessage `json:"messages" validate:"required,min=1,max=50,dive"`
	Stream      *bool         `json:"stream,omitempty"`
	MaxTokens   *int          `json:"maxTokens,omitempty" validate:"omitempty,gt=0,lte=2000"`
	Temperature *float64      `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// Validate checks the request against its bounds and returns every
// violation found as a wire-ready FieldError list.
//
// # Outputs
//
//   - []FieldError: Empty when the request is valid. Otherwise one entry
//     per violated rule, with Path in JSON notation (e.g. "messages[2].role").
func (r *ChatRequest) Validate() []FieldError {
	err := chatValidate.Struct(r)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Path: "", Message: "request could not be validated"}}
	}

	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, FieldError{
			Path:    fieldPath(fe),
			Message: fieldMessage(fe),
		})
	}
	return details
}

// ApplyDefaults fills the optional generation parameters that the caller
// left absent. Must be called only after Validate has passed; defaults are
// never used to paper over an invalid value.
func (r *ChatRequest) ApplyDefaults() {
	if r.Stream == nil {
		v := true
		r.Stream = &v
	}
	if r.MaxTokens == nil {
		v := DefaultMaxTokens
		r.MaxTokens = &v
	}
	if r.Temperature == nil {
		v := DefaultTemperature
		r.Temperature = &v
	}
}

// fieldPath converts a validator namespace like "ChatRequest.messages[2].role"
// into the caller-facing path "messages[2].role".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

// fieldMessage renders a human-readable message for one violation.
func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "messages":
		switch fe.Tag() {
		case "required":
			return "messages is required"
		case "min", "max":
			return fmt.Sprintf("messages must contain between 1 and %d entries", MaxMessagesPerRequest)
		}
	case "role":
		switch fe.Tag() {
		case "required":
			return "role is required"
		case "oneof":
			return "role must be one of 'system', 'user', 'assistant'"
		}
	case "content":
		return "content must not be empty"
	case "maxTokens":
		return fmt.Sprintf("maxTokens must be a positive integer no greater than %d", MaxTokensCeiling)
	case "temperature":
		return "temperature must be between 0 and 1"
	}
	return fmt.Sprintf("%s failed validation rule '%s'", fe.Field(), fe.Tag())
}

// =============================================================================
// Chat Response Types
// =============================================================================

// ChatResponse is the non-streaming success body: the full assistant reply
// in one object.
type ChatResponse struct {
	Message string `json:"message"`
	Role    string `json:"role"`
}

// NewChatResponse wraps a completed assistant reply.
func NewChatResponse(message string) *ChatResponse {
	return &ChatResponse{
		Message: message,
		Role:    "assistant",
	}
}

// =============================================================================
// Error Payload Types
// =============================================================================

// FieldError is one validation violation in a 400 response.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationErrorResponse is the 400 body: a fixed generic error string
// plus the full violation list.
type ValidationErrorResponse struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details"`
}

// NewValidationErrorResponse builds the standard 400 payload.
func NewValidationErrorResponse(details []FieldError) *ValidationErrorResponse {
	return &ValidationErrorResponse{
		Error:   "Invalid request",
		Details: details,
	}
}

// ErrorResponse is the 500 body. Message is a short generic description;
// upstream internals are logged server-side only, never echoed here.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewErrorResponse builds the standard 500 payload.
func NewErrorResponse(message string) *ErrorResponse {
	return &ErrorResponse{
		Error:   "Failed to process chat request",
		Message: message,
	}
}
