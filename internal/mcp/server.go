// Package mcp exposes the password generator and strength evaluator as
// Model Context Protocol tools.
package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool names.
const (
	ToolGeneratePassword = "generate_password"
	ToolMeasureStrength  = "measure_strength"
	ToolValidatePassword = "validate_password"
)

// ToolServer is an MCP server offering the password tools a policy allows.
type ToolServer struct {
	server *sdkmcp.Server
	policy *ToolPolicy
}

// NewToolServer creates a new MCP server restricted by policy.
func NewToolServer(policy *ToolPolicy, version string) *ToolServer {
	if policy == nil {
		policy = DefaultPolicy()
	}

	s := &ToolServer{policy: policy}

	s.server = sdkmcp.NewServer(
		&sdkmcp.Implementation{
			Name:    "guardiapass",
			Version: version,
		},
		&sdkmcp.ServerOptions{
			Instructions: "GuardiaPass generates random passwords and rates password strength. " +
				"Nothing passed to these tools is stored or logged.",
		},
	)

	s.registerGeneratorTools()
	s.registerStrengthTools()

	return s
}

// Run starts the MCP server on the stdio transport.
func (s *ToolServer) Run(ctx context.Context) error {
	return s.server.Run(ctx, &sdkmcp.StdioTransport{})
}
