package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	gpmcp "github.com/jgutierrezgil/guardiapass/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Start the password tools as an MCP server (stdio)",
		Long: `Start a Model Context Protocol server exposing the password generator
and strength tools. Communicates over stdin/stdout using JSON-RPC.
No vault data is reachable through it.

The tool policy is read from ~/.gpass/mcp-policy.yaml when present.

Configure in .claude/settings.local.json:
  {
    "mcpServers": {
      "gpass": {
        "command": "gpass",
        "args": ["mcp-server"]
      }
    }
  }`,
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE:   runMCPServer,
	}
	cmd.Flags().String("policy", "", "policy file (default ~/.gpass/mcp-policy.yaml)")
	return cmd
}

func policyPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("policy"); p != "" {
		return p
	}
	return filepath.Join(getConfigDir(), "mcp-policy.yaml")
}

func loadToolPolicy(cmd *cobra.Command) (*gpmcp.ToolPolicy, error) {
	path := policyPath(cmd)
	policy, err := gpmcp.LoadPolicy(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load MCP policy %s: %w", path, err)
	}
	if policy == nil {
		policy = gpmcp.DefaultPolicy()
	}
	return policy, nil
}

func runMCPServer(cmd *cobra.Command, _ []string) error {
	policy, err := loadToolPolicy(cmd)
	if err != nil {
		return err
	}

	srv := gpmcp.NewToolServer(policy, version)
	return srv.Run(cmd.Context())
}
