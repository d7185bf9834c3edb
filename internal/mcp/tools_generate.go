package mcp

import (
	"context"
	"errors"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jgutierrezgil/guardiapass/internal/metrics"
	"github.com/jgutierrezgil/guardiapass/internal/passgen"
	"github.com/jgutierrezgil/guardiapass/internal/strength"
)

type generateInput struct {
	Length      int   `json:"length,omitempty" jsonschema:"Password length in characters. Default: 16."`
	Count       int   `json:"count,omitempty" jsonschema:"Number of passwords to generate. Default: 1."`
	UseLower    *bool `json:"use_lower,omitempty" jsonschema:"Include lowercase letters. Default: true."`
	UseUpper    *bool `json:"use_upper,omitempty" jsonschema:"Include uppercase letters. Default: true."`
	UseDigits   *bool `json:"use_digits,omitempty" jsonschema:"Include digits. Default: true."`
	UseSpecial  *bool `json:"use_special,omitempty" jsonschema:"Include special characters. Default: true."`
	UseExtended *bool `json:"use_extended,omitempty" jsonschema:"Include extended symbols. Default: false."`
}

type generatedPassword struct {
	Password string `json:"password"`
	Score    int    `json:"score"`
	Strength string `json:"strength"`
}

type generateOutput struct {
	Passwords []generatedPassword `json:"passwords"`
}

var errPolicy = errors.New("not allowed by policy")

func (s *ToolServer) registerGeneratorTools() {
	if !s.policy.CanUse(ToolGeneratePassword) {
		return
	}
	sdkmcp.AddTool(s.server, &sdkmcp.Tool{
		Name: ToolGeneratePassword,
		Description: "Generate random passwords from a cryptographic source. " +
			"Every enabled character class appears at least once. Returns each password with its strength rating.",
	}, s.handleGenerate)
}

// options resolves input against the generator defaults and the policy.
func (s *ToolServer) options(input generateInput) (passgen.Options, error) {
	opts := passgen.DefaultOptions()
	if input.Length != 0 {
		opts.Length = input.Length
	}
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&opts.Lower, input.UseLower)
	set(&opts.Upper, input.UseUpper)
	set(&opts.Digits, input.UseDigits)
	set(&opts.Special, input.UseSpecial)
	set(&opts.Extended, input.UseExtended)

	if opts.Length > s.policy.MaxLength {
		return opts, fmt.Errorf("length %d exceeds the policy maximum of %d: %w", opts.Length, s.policy.MaxLength, errPolicy)
	}
	if opts.Extended && !s.policy.AllowExtended {
		return opts, fmt.Errorf("extended characters: %w", errPolicy)
	}
	return opts, opts.Validate()
}

func (s *ToolServer) handleGenerate(_ context.Context, _ *sdkmcp.CallToolRequest, input generateInput) (*sdkmcp.CallToolResult, generateOutput, error) {
	count := input.Count
	if count == 0 {
		count = 1
	}
	if count < 0 || count > s.policy.MaxCount {
		return nil, generateOutput{}, fmt.Errorf("count must be between 1 and %d", s.policy.MaxCount)
	}

	opts, err := s.options(input)
	if err != nil {
		return nil, generateOutput{}, err
	}

	gen := passgen.New(opts)
	out := generateOutput{Passwords: make([]generatedPassword, 0, count)}
	for i := 0; i < count; i++ {
		password, err := gen.Generate()
		if err != nil {
			return nil, generateOutput{}, fmt.Errorf("generate: %w", err)
		}
		result := strength.Measure(password)
		metrics.PasswordsGenerated.WithLabelValues("mcp").Inc()
		metrics.StrengthScores.Observe(float64(result.Score))

		out.Passwords = append(out.Passwords, generatedPassword{
			Password: password,
			Score:    result.Score,
			Strength: result.Label.String(),
		})
	}

	return nil, out, nil
}
