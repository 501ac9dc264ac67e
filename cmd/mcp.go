package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/coderev/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for coding agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets coding agents request reviews of their own output. Configure in
Claude Code with:

  {
    "mcpServers": {
      "coderev": { "command": "coderev", "args": ["mcp"] }
    }
  }

Available tools: coderev_submit_review, coderev_review_status,
coderev_review_result, coderev_review_file`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newReviewServices()
		if err != nil {
			return err
		}

		// Archive access is optional; status tools work without it.
		st, err := getStore()
		if err != nil {
			ui.Warning("Archive unavailable: %v", err)
			st = nil
		}

		srv := mcp.NewServer(svc.controller, svc.registry, st)
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
