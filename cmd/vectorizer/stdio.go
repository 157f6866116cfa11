package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/helixml/vectorizer"
	"github.com/helixml/vectorizer/internal/mcp"
)

func mcpCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server on stdio",
		Long: `Start the MCP (Model Context Protocol) server on stdio.

AI assistants can list vectorizers, inspect queue backlog and process batches.
Logs go to stderr so stdout stays reserved for the protocol.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(load, func(_ context.Context, client *vectorizer.Client) error {
				logger := client.Logger()
				logger.Info("starting MCP server", slog.String("version", version))
				return mcp.NewServer(client.Vectorizers, client.Status, version, logger).ServeStdio()
			})
		},
	}
}
