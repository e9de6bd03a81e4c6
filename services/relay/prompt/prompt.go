// Copyright (C) 2025 TutorLink (engineering@tutorlink.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package prompt assembles the message list sent upstream, guaranteeing a
// system prompt is present.
//
// The assembler is pure: no I/O, no randomness, no clock. Each endpoint
// injects its own fixed system prompt; a caller-supplied system message
// always wins, wherever it appears in the list (the list is passed through
// unmodified rather than reordered — some inference backends only honor a
// leading system message, so callers placing one elsewhere get exactly what
// they asked for).
package prompt

import (
	"github.com/tutorlink/tutorlink/services/relay/datatypes"
)

const (
	// TutorSystemPrompt is injected for POST /chat when the caller supplies
	// no system message of their own.
	TutorSystemPrompt = "You are a friendly and knowledgeable tutoring assistant for TutorLink, " +
		"an online tutoring marketplace. Help students with their questions across " +
		"academic subjects. Be clear, encouraging, and concise. When a question is " +
		"ambiguous, ask a short clarifying question instead of guessing. If a topic " +
		"needs a live tutor, suggest booking a session."

	// TeachingSystemPrompt is injected for POST /teaching-chat. It steers the
	// model toward pedagogy: guiding the student rather than answering outright.
	TeachingSystemPrompt = "You are a patient teaching assistant for TutorLink. Do not simply give " +
		"the final answer. Guide the student step by step: break the problem into " +
		"smaller parts, ask leading questions, and confirm understanding before " +
		"moving on. Praise correct reasoning and gently correct mistakes."
)

// EnsureSystemPrompt returns a message list guaranteed to contain a system
// message.
//
// # Description
//
// Scans the list once. If any message already has role "system", the input
// slice is returned as-is (same backing array, no copy). Otherwise a new
// slice is returned with systemPrompt prepended as the first element; the
// input slice is never mutated.
//
// # Inputs
//
//   - messages: Validated conversation history, caller order preserved
//   - systemPrompt: The fixed prompt text to inject when none is present
//
// # Outputs
//
//   - []datatypes.ChatMessage: Either the input unchanged, or input with
//     one system message prepended (length = len(messages) + 1)
func EnsureSystemPrompt(messages []datatypes.ChatMessage, systemPrompt string) []datatypes.ChatMessage {
	for _, m := range messages {
		if m.Role == "system" {
			return messages
		}
	}

	assembled := make([]datatypes.ChatMessage, 0, len(messages)+1)
	assembled = append(assembled, datatypes.ChatMessage{
		Role:    "system",
		Content: systemPrompt,
	})
	return append(assembled, messages...)
}
