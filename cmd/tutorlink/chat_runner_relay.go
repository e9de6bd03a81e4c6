// Copyright (C) 2025 TutorLink (engineering@tutorlink.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package main contains the RelayChatRunner implementation.
//
// This file implements the ChatRunner interface on top of the chatclient
// package. It coordinates the conversation state, the relay client, and
// user input to provide an interactive streaming chat session.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/tutorlink/tutorlink/pkg/chatclient"
)

// =============================================================================
// Output Styles
// =============================================================================

var (
	tutorLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// =============================================================================
// RelayChatRunner Implementation
// =============================================================================

// RelayChatRunner implements ChatRunner over the TutorLink chat relay.
//
// # Description
//
// RelayChatRunner manages the interactive chat loop. It keeps the
// conversation history client side via chatclient.Conversation, streams
// each tutor reply token by token, and tolerates mid-reply interruption:
// Ctrl+C during generation cancels only the current reply, keeping the
// partial text in the history.
//
// # Thread Safety
//
// The runner is not designed for concurrent Run() calls. Close() is
// thread-safe and idempotent.
//
// # Limitations
//
//   - Single use: cannot restart after Run() completes
//   - Conversation history is in-memory only
type RelayChatRunner struct {
	client       *chatclient.Client
	conversation *chatclient.Conversation
	input        InputReader
	out          io.Writer
	path         string
	promptText   string
	closed       bool
	mu           sync.Mutex
}

// RelayChatRunnerConfig holds configuration for creating RelayChatRunner.
type RelayChatRunnerConfig struct {
	BaseURL  string // Relay URL (required)
	Teaching bool   // Use the step-by-step teaching endpoint
}

// NewRelayChatRunner creates a chat runner with production dependencies.
func NewRelayChatRunner(config RelayChatRunnerConfig) ChatRunner {
	path := chatclient.ChatPath
	if config.Teaching {
		path = chatclient.TeachingChatPath
	}

	prompt := "you> "
	return &RelayChatRunner{
		client:       chatclient.NewClient(config.BaseURL),
		conversation: chatclient.NewConversation(),
		input:        NewInteractiveInputReader(50, prompt),
		out:          os.Stdout,
		path:         path,
		promptText:   prompt,
	}
}

// NewRelayChatRunnerWithDeps creates a chat runner with injected
// dependencies for testing.
func NewRelayChatRunnerWithDeps(client *chatclient.Client, input InputReader,
	out io.Writer, path string) *RelayChatRunner {

	return &RelayChatRunner{
		client:       client,
		conversation: chatclient.NewConversation(),
		input:        input,
		out:          out,
		path:         path,
		promptText:   "you> ",
	}
}

// Run executes the interactive chat loop.
//
// # Description
//
// The loop:
//  1. Displays the session header
//  2. Prompts for user input
//  3. Checks for exit commands ("exit", "quit")
//  4. Streams the tutor reply, printing tokens as they arrive
//  5. Repeats until exit, EOF, or context cancellation
//
// Ctrl+C while a reply is streaming cancels that reply only. The partial
// text stays in the history so the next message still has context.
//
// # Outputs
//
//   - error: nil on normal exit, context.Canceled on shutdown, or error
func (r *RelayChatRunner) Run(ctx context.Context) error {
	mode := "tutor"
	if r.path == chatclient.TeachingChatPath {
		mode = "teaching"
	}
	fmt.Fprintln(r.out, dimStyle.Render(
		fmt.Sprintf("TutorLink chat (%s mode). Type 'exit' to quit.", mode)))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, ok := r.input.(*InteractiveInputReader); !ok {
			fmt.Fprint(r.out, r.promptText)
		}
		input, err := r.input.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out, dimStyle.Render("Session ended."))
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		if input == "" {
			continue
		}
		if isExitCommand(input) {
			fmt.Fprintln(r.out, dimStyle.Render("Session ended."))
			return nil
		}

		if err := r.handleMessage(ctx, input); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(r.out, errorStyle.Render("Error: "+err.Error()))
			continue
		}
	}
}

// handleMessage streams a single tutor reply.
//
// A SIGINT during the stream cancels only this reply: the derived signal
// context aborts the stream, StreamInto keeps the partial content marked
// cancelled, and the loop continues.
func (r *RelayChatRunner) handleMessage(ctx context.Context, message string) error {
	r.conversation.AddUserMessage(message)

	msgCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprint(r.out, tutorLabelStyle.Render("tutor> "))

	printed := 0
	state, err := r.client.StreamInto(msgCtx, r.path, r.conversation,
		func(msg chatclient.ChatUIMessage) {
			fmt.Fprint(r.out, msg.Content[printed:])
			printed = len(msg.Content)
		})
	fmt.Fprintln(r.out)

	switch state {
	case chatclient.StateCancelled:
		fmt.Fprintln(r.out, dimStyle.Render("(reply interrupted, partial answer kept)"))
		return nil
	case chatclient.StateErrored:
		return err
	default:
		return nil
	}
}

// Close releases resources held by the runner. Safe to call multiple
// times.
func (r *RelayChatRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return nil
}

var _ ChatRunner = (*RelayChatRunner)(nil)
