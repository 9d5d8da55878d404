// Package profile loads instrument profiles: YAML documents tuning one
// driver instance without touching its code. A profile carries caching
// permissions (fed into component construction) and per-property retry
// overrides (applied through the proxy mechanism, so the shared spec is
// untouched).
//
//	driver: yokogawa.7651
//	caching:
//	  allowed: true
//	  permissions:
//	    voltage: true
//	    trigger:
//	      source: true
//	retries:
//	  voltage: 3
package profile

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/instrkit/instrkit-go/pkg/component"
	"github.com/instrkit/instrkit-go/pkg/property"
)

// Profile tunes one instrument instance.
type Profile struct {
	// Driver is the registered driver name the profile targets.
	Driver string `yaml:"driver"`

	// Caching configures the value cache.
	Caching Caching `yaml:"caching"`

	// Retries overrides the retry budget of named properties. Dotted
	// names reach into sub-components.
	Retries map[string]int `yaml:"retries"`
}

// Caching configures the value cache of a component tree.
type Caching struct {
	// Allowed turns caching on or off for the whole tree. Defaults to
	// true when omitted.
	Allowed *bool `yaml:"allowed"`

	// Permissions holds per-name permissions: a bool for one property
	// or a whole sub-component/channel, a nested block for per-name
	// control inside one.
	Permissions PermissionSet `yaml:"permissions"`
}

// PermissionSet is a tree of caching permissions: bools at the leaves,
// nested sets for sub-components and channels.
type PermissionSet map[string]any

// UnmarshalYAML accepts bools and nested permission blocks.
func (p *PermissionSet) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("permissions must be a mapping, got %s at line %d",
			nodeKind(node), node.Line)
	}

	out := PermissionSet{}
	for i := 0; i < len(node.Content)-1; i += 2 {
		key, val := node.Content[i], node.Content[i+1]

		switch val.Kind {
		case yaml.ScalarNode:
			var b bool
			if err := val.Decode(&b); err != nil {
				return fmt.Errorf("permission %s must be a bool: %w", key.Value, err)
			}
			out[key.Value] = b
		case yaml.MappingNode:
			var nested PermissionSet
			if err := val.Decode(&nested); err != nil {
				return err
			}
			out[key.Value] = map[string]any(nested)
		default:
			return fmt.Errorf("permission %s must be a bool or a mapping", key.Value)
		}
	}
	*p = out
	return nil
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	default:
		return "node"
	}
}

// Parse parses a profile from YAML bytes.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}
	for name, n := range p.Retries {
		if n < 0 {
			return nil, fmt.Errorf("profile retries for %s must be >= 0, got %d", name, n)
		}
	}
	return &p, nil
}

// Load loads and parses a profile from a file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Config converts the caching section into a component configuration.
func (p *Profile) Config() component.Config {
	cfg := component.Config{}
	if p.Caching.Allowed != nil && !*p.Caching.Allowed {
		cfg.DisableCaching = true
	}
	if len(p.Caching.Permissions) > 0 {
		cfg.Permissions = map[string]any(p.Caching.Permissions)
	}
	return cfg
}

// Apply installs the profile's retry overrides on an instance through
// per-instance proxies. Dotted names resolve through sub-components.
func (p *Profile) Apply(inst *component.Instance) error {
	for name, retries := range p.Retries {
		target := inst
		rest := name
		for {
			head, tail, nested := strings.Cut(rest, ".")
			if !nested {
				break
			}
			sub, err := target.Sub(head)
			if err != nil {
				return fmt.Errorf("profile retries: %w", err)
			}
			target, rest = sub, tail
		}
		err := target.PatchProperty(rest, map[string]any{property.AttrRetries: retries})
		if err != nil {
			return fmt.Errorf("profile retries for %s: %w", name, err)
		}
	}
	return nil
}
