// Copyright (C) 2025 TutorLink (engineering@tutorlink.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chatclient

import (
	"sync"

	"github.com/google/uuid"

	"github.com/tutorlink/tutorlink/services/relay/datatypes"
)

// ChatUIMessage is one entry of the visible conversation. It is ephemeral
// view state, never persisted.
type ChatUIMessage struct {
	ID          string
	Role        string
	Content     string
	IsStreaming bool
	Cancelled   bool
}

// Conversation is the ordered, in-memory message list backing the chat
// view. Messages are removed only by Clear, or when a failed assistant
// reply is discarded; a cancelled reply stays with its partial content.
type Conversation struct {
	mu       sync.Mutex
	messages []ChatUIMessage
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// AddUserMessage appends the user's input and returns the created entry.
func (c *Conversation) AddUserMessage(content string) ChatUIMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := ChatUIMessage{
		ID:      uuid.New().String(),
		Role:    "user",
		Content: content,
	}
	c.messages = append(c.messages, msg)
	return msg
}

// addAssistantPlaceholder appends an empty streaming assistant entry.
func (c *Conversation) addAssistantPlaceholder() ChatUIMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := ChatUIMessage{
		ID:          uuid.New().String(),
		Role:        "assistant",
		IsStreaming: true,
	}
	c.messages = append(c.messages, msg)
	return msg
}

// appendDelta grows a streaming message's content and returns the updated
// entry. The second return is false when the ID is unknown.
func (c *Conversation) appendDelta(id, delta string) (ChatUIMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages[i].Content += delta
			return c.messages[i], true
		}
	}
	return ChatUIMessage{}, false
}

// markTerminal flips a message out of its streaming state. Cancelled
// messages keep whatever content they accumulated. Idempotent.
func (c *Conversation) markTerminal(id string, cancelled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.messages {
		if c.messages[i].ID == id {
			if !c.messages[i].IsStreaming {
				return
			}
			c.messages[i].IsStreaming = false
			c.messages[i].Cancelled = cancelled
			return
		}
	}
}

// remove discards a message entirely. Used only for failed assistant
// placeholders.
func (c *Conversation) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return
		}
	}
}

// Messages returns a snapshot of the conversation.
func (c *Conversation) Messages() []ChatUIMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ChatUIMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// History converts the conversation into the wire-level message list,
// skipping the in-flight assistant placeholder and cancelled leftovers
// with no content.
func (c *Conversation) History() []datatypes.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]datatypes.ChatMessage, 0, len(c.messages))
	for _, m := range c.messages {
		if m.IsStreaming || m.Content == "" {
			continue
		}
		out = append(out, datatypes.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// Clear empties the conversation.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}
