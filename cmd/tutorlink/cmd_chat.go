// Copyright (C) 2025 TutorLink (engineering@tutorlink.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tutorlink/tutorlink/pkg/chatclient"
	"github.com/tutorlink/tutorlink/services/relay/datatypes"
)

func runChatCommand(cmd *cobra.Command, args []string) {
	runner := NewRelayChatRunner(RelayChatRunnerConfig{
		BaseURL:  serverURL,
		Teaching: teachingMode,
	})
	defer runner.Close()

	// Set up graceful shutdown with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := runner.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("chat session failed", "error", err)
		fmt.Fprintln(os.Stderr, "Chat error:", err)
		os.Exit(1)
	}
}

func runAskCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")
	client := chatclient.NewClient(serverURL)

	path := chatclient.ChatPath
	if teachingMode {
		path = chatclient.TeachingChatPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messages := []datatypes.ChatMessage{
		{Role: "user", Content: question},
	}

	if noStream {
		answer, err := client.Send(ctx, path, messages)
		if err != nil {
			logger.Error("ask failed", "error", err)
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		fmt.Println(answer)
		return
	}

	_, state, err := client.Stream(ctx, path, messages, func(delta string) {
		fmt.Print(delta)
	})
	fmt.Println()

	switch state {
	case chatclient.StateErrored:
		logger.Error("ask failed", "error", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	case chatclient.StateCancelled:
		fmt.Fprintln(os.Stderr, "(interrupted)")
	}
}

func runHealthCommand(cmd *cobra.Command, args []string) {
	client := chatclient.NewClient(serverURL)

	if err := client.Health(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Relay at %s is unhealthy: %v\n", serverURL, err)
		os.Exit(1)
	}
	fmt.Printf("Relay at %s is healthy.\n", serverURL)
}
