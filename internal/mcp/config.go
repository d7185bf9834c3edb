package mcp

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/jgutierrezgil/guardiapass/internal/passgen"
)

// ToolPolicy controls which tools the MCP server exposes and how far
// generation requests may go.
type ToolPolicy struct {
	ToolsAllow    []string `yaml:"tools_allow"`
	ToolsDeny     []string `yaml:"tools_deny"`
	MaxLength     int      `yaml:"max_length"`
	MaxCount      int      `yaml:"max_count"`
	AllowExtended bool     `yaml:"allow_extended"`
}

// DefaultPolicy returns a permissive default policy.
func DefaultPolicy() *ToolPolicy {
	return &ToolPolicy{
		ToolsAllow:    []string{"*"},
		MaxLength:     passgen.MaxLength,
		MaxCount:      10,
		AllowExtended: true,
	}
}

// LoadPolicy reads a tool policy from a YAML file. Fields the file omits
// keep their defaults.
// Returns nil, nil if the file does not exist.
func LoadPolicy(path string) (*ToolPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	policy := DefaultPolicy()
	if err := yaml.Unmarshal(data, policy); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return policy, nil
}

// Validate checks the numeric limits.
func (p *ToolPolicy) Validate() error {
	if p.MaxLength < passgen.MinLength || p.MaxLength > passgen.MaxLength {
		return fmt.Errorf("max_length must be between %d and %d, got %d", passgen.MinLength, passgen.MaxLength, p.MaxLength)
	}
	if p.MaxCount < 1 {
		return fmt.Errorf("max_count must be positive, got %d", p.MaxCount)
	}
	return nil
}

// CanUse reports whether the policy exposes the named tool.
func (p *ToolPolicy) CanUse(tool string) bool {
	if matchesAny(tool, p.ToolsDeny) {
		return false
	}
	if len(p.ToolsAllow) == 0 {
		return true
	}
	return matchesAny(tool, p.ToolsAllow)
}

// matchesAny returns true if name matches any of the glob patterns.
func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}
