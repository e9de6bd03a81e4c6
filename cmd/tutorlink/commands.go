// Copyright (C) 2025 TutorLink (engineering@tutorlink.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tutorlink/tutorlink/pkg/logging"
)

// --- Global Command Variables ---
var (
	serverURL    string
	teachingMode bool
	noStream     bool
	verbose      bool
	logDir       string

	logger = logging.Default()

	rootCmd = &cobra.Command{
		Use:   "tutorlink",
		Short: "A cli to talk to the TutorLink chat relay",
		Long: `TutorLink is the command line client for the TutorLink chat relay.
It streams tutor replies token by token and supports the dedicated
step-by-step teaching mode.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := logging.LevelInfo
			if verbose {
				level = logging.LevelDebug
			}
			logger = logging.New(logging.Config{
				Level:   level,
				LogDir:  logDir,
				Service: "cli",
				Quiet:   !verbose,
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
	}

	// --- Chat ---
	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Starts an interactive chat session with a tutor",
		Run:   runChatCommand, // Defined in cmd_chat.go
	}

	// --- Ask ---
	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Asks a single question and prints the reply",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand, // Defined in cmd_chat.go
	}

	// --- Health ---
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check whether the relay and its model backend are reachable",
		Run:   runHealthCommand, // Defined in cmd_chat.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(),
		"Base URL of the chat relay")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false,
		"Enable debug logging to stderr")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "",
		"Directory for rotating log files (e.g. ~/.tutorlink/logs)")

	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().BoolVar(&teachingMode, "teaching", false,
		"Use the step-by-step teaching prompt instead of the default tutor")

	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&teachingMode, "teaching", false,
		"Use the step-by-step teaching prompt instead of the default tutor")
	askCmd.Flags().BoolVar(&noStream, "no-stream", false,
		"Wait for the complete reply instead of streaming tokens")

	rootCmd.AddCommand(healthCmd)
}

func defaultServerURL() string {
	if url := os.Getenv("TUTORLINK_SERVER_URL"); url != "" {
		return url
	}
	return "http://localhost:8787"
}
