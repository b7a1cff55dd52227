package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "langfuse-mcp",
	Short: "langfuse-mcp - Langfuse tools for MCP clients",
	Long: "langfuse-mcp exposes a Langfuse project as Model Context Protocol tools: traces, observations, " +
		"sessions, cost and usage analytics, prompts, datasets, comments and scores. It runs read-only " +
		"unless started in readwrite mode.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: environment only)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger writes JSON to stderr. stdout carries the stdio protocol and
// must never see a log line.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
