package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/constantino-dev/sentbench/internal/core"
	"github.com/constantino-dev/sentbench/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start MCP server for agent integration",
	Long: `Start the Model Context Protocol (MCP) server.

This lets AI agents embed sentences, compare them and inspect runs.

The server communicates over stdio using JSON-RPC.

Example client configuration:
  {
    "mcpServers": {
      "sentbench": {
        "command": "sentbench",
        "args": ["serve", "-p", "/path/to/project"]
      }
    }
  }`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	engine, err := core.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer engine.Close()

	server := mcp.NewServer(engine, cmd.InOrStdin(), cmd.OutOrStdout(), log)
	return server.Run(cmd.Context())
}
