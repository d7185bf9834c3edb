package mcp

import (
	"context"
	"errors"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jgutierrezgil/guardiapass/internal/strength"
)

type passwordInput struct {
	Password string `json:"password" jsonschema:"The password to evaluate. It is not stored."`
}

// measureOutput is strength.Result with the rating as text.
type measureOutput struct {
	Score    int      `json:"score"`
	Strength string   `json:"strength"`
	Feedback []string `json:"feedback"`
}

type validateOutput struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

func (s *ToolServer) registerStrengthTools() {
	if s.policy.CanUse(ToolMeasureStrength) {
		sdkmcp.AddTool(s.server, &sdkmcp.Tool{
			Name: ToolMeasureStrength,
			Description: "Score a password's strength. Returns a numeric score, a rating " +
				"(Weak, Moderate, Strong, VeryStrong) and feedback notes.",
		}, s.handleMeasure)
	}

	if s.policy.CanUse(ToolValidatePassword) {
		sdkmcp.AddTool(s.server, &sdkmcp.Tool{
			Name:        ToolValidatePassword,
			Description: "Check a password against the master password policy. Returns every rule it breaks.",
		}, s.handleValidate)
	}
}

func (s *ToolServer) handleMeasure(_ context.Context, _ *sdkmcp.CallToolRequest, input passwordInput) (*sdkmcp.CallToolResult, measureOutput, error) {
	if input.Password == "" {
		return nil, measureOutput{}, errors.New("password is required")
	}
	result := strength.Measure(input.Password)
	return nil, measureOutput{
		Score:    result.Score,
		Strength: result.Label.String(),
		Feedback: result.Feedback,
	}, nil
}

func (s *ToolServer) handleValidate(_ context.Context, _ *sdkmcp.CallToolRequest, input passwordInput) (*sdkmcp.CallToolResult, validateOutput, error) {
	valid, problems := strength.Validate(input.Password)
	if problems == nil {
		problems = []string{}
	}
	return nil, validateOutput{Valid: valid, Errors: problems}, nil
}
