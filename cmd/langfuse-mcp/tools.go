package main

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alecgard/langfuse-mcp/internal/analytics"
	"github.com/alecgard/langfuse-mcp/internal/config"
	"github.com/alecgard/langfuse-mcp/internal/dispatch"
	"github.com/alecgard/langfuse-mcp/internal/langfuse"
	"github.com/alecgard/langfuse-mcp/internal/mode"
	"github.com/alecgard/langfuse-mcp/internal/tools"
)

var toolsMode string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the operations visible in a mode",
	Long:  "tools prints the operation catalog as an MCP client would see it. No Langfuse call is made.",
	RunE:  runTools,
}

func init() {
	toolsCmd.Flags().StringVar(&toolsMode, "mode", "", "readonly or readwrite (default: configured mode)")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	modeName := cfg.Mode
	if toolsMode != "" {
		modeName = toolsMode
	}
	m, err := mode.Parse(modeName)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := langfuse.NewClient(langfuse.Endpoint{BaseURL: cfg.Langfuse.BaseURL}, langfuse.WithLogger(logger))
	catalog := dispatch.New(mode.NewGate(m), dispatch.WithLogger(logger))
	set := tools.New(tools.Deps{
		API:       client,
		Analytics: analytics.NewService(client, client, logger),
		Version:   version,
		Mode:      string(m),
	})
	if err := set.Register(catalog); err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tDESCRIPTION")
	for _, op := range catalog.List() {
		kind := "read"
		switch {
		case op.Destructive:
			kind = "destructive"
		case op.Mutating:
			kind = "write"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", op.Name, kind, op.Description)
	}
	return w.Flush()
}
