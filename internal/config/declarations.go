package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/rule/entity"
)

var (
	ErrUnsupportedFormat = errors.New("config: unsupported declarations format")
	ErrScriptMissing     = errors.New("config: rule needs script or script_file")
	ErrScriptConflict    = errors.New("config: rule sets both script and script_file")
)

type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// RuleDeclaration is one declared rule. Enabled defaults to true.
type RuleDeclaration struct {
	Enabled    *bool  `toml:"enabled" yaml:"enabled"`
	Order      *int   `toml:"order" yaml:"order"`
	Script     string `toml:"script" yaml:"script"`
	ScriptFile string `toml:"script_file" yaml:"script_file"`
}

// Declarations is the desired provider state: rules keyed by name and
// rule-config values keyed by key.
type Declarations struct {
	Rules       map[string]RuleDeclaration `toml:"rules" yaml:"rules"`
	RuleConfigs map[string]any             `toml:"rule_configs" yaml:"rule_configs"`
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// LoadDeclarations reads path and resolves script_file entries relative to
// its directory.
func LoadDeclarations(path string) (*Declarations, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read declarations: %w", err)
	}
	return ParseDeclarations(b, format, filepath.Dir(path))
}

// ParseDeclarations decodes b and inlines script files found under baseDir.
func ParseDeclarations(b []byte, format Format, baseDir string) (*Declarations, error) {
	var d Declarations
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(b, &d); err != nil {
			return nil, fmt.Errorf("parse toml declarations: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(b, &d); err != nil {
			return nil, fmt.Errorf("parse yaml declarations: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if d.Rules == nil {
		d.Rules = map[string]RuleDeclaration{}
	}
	if d.RuleConfigs == nil {
		d.RuleConfigs = map[string]any{}
	}
	for name, r := range d.Rules {
		switch {
		case r.Script != "" && r.ScriptFile != "":
			return nil, fmt.Errorf("%w: %s", ErrScriptConflict, name)
		case r.ScriptFile != "":
			p := r.ScriptFile
			if !filepath.IsAbs(p) {
				p = filepath.Join(baseDir, p)
			}
			script, err := os.ReadFile(p)
			if err != nil {
				return nil, fmt.Errorf("rule %s: read script: %w", name, err)
			}
			r.Script = string(script)
			d.Rules[name] = r
		case r.Script == "":
			return nil, fmt.Errorf("%w: %s", ErrScriptMissing, name)
		}
	}
	return &d, nil
}

// DesiredRules converts the rule declarations for reconciliation.
func (d *Declarations) DesiredRules() map[string]entity.DesiredRule {
	out := make(map[string]entity.DesiredRule, len(d.Rules))
	for name, r := range d.Rules {
		enabled := true
		if r.Enabled != nil {
			enabled = *r.Enabled
		}
		out[name] = entity.DesiredRule{Enabled: enabled, Order: r.Order, Script: r.Script}
	}
	return out
}

// RuleNames returns declared rule names, sorted.
func (d *Declarations) RuleNames() []string {
	names := make([]string, 0, len(d.Rules))
	for name := range d.Rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RuleConfigKeys returns declared rule-config keys, sorted.
func (d *Declarations) RuleConfigKeys() []string {
	keys := make([]string, 0, len(d.RuleConfigs))
	for k := range d.RuleConfigs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
