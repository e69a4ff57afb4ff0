package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/joescharf/pmdash/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client query the board and move tasks. Configure it with:

  {
    "mcpServers": {
      "pmdash": { "command": "pmdash", "args": ["mcp"] }
    }
  }

Mutations are attributed to service.user_id.

Available tools: pmdash_list_projects, pmdash_board, pmdash_create_task,
pmdash_move_task, pmdash_list_qa_issues, pmdash_team_workload`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		// stdout carries the protocol; logs go to stderr.
		logger := slog.New(slog.NewTextHandler(ui.ErrOut, nil))
		return mcp.NewServer(s, cliIdentity(), logger).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
