package cmd

import (
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/issues/internal/daemon"
	"github.com/joescharf/issues/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an agent list and edit issues through the same rules as the
REST API. Configure in Claude Code with:

  {
    "mcpServers": {
      "issues": { "command": "issues", "args": ["mcp"] }
    }
  }

Available tools: issues_list, issues_create, issues_update, issues_delete`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), daemon.ShutdownSignals()...)
		defer stop()

		svc, err := getService(ctx)
		if err != nil {
			return err
		}
		return mcp.NewServer(svc, buildVersion).ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
