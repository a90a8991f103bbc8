// Package cmd contains the lumichat CLI entry points.
//
// Following the pattern used by kubectl, hugo, and other standard Go CLI
// tools, all application logic lives here and main.go stays a minimal
// entry point.
package cmd

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lumichat/lumichat/internal/config"
	"github.com/lumichat/lumichat/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "lumichat",
	Short: "Lumichat - streaming chat backend",
	Long: `Lumichat is a chat backend that persists conversation history in
PostgreSQL and streams Gemini responses to clients as they are generated.

Run "lumichat serve" to start the HTTP server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger from configuration.
func newLogger(cfg *config.Config) log.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return log.New(log.Config{Level: level, JSON: cfg.LogJSON})
}
