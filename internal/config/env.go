package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/bootstrap-env/internal/envplan"
)

// Env is the extra environment from the config file. It decodes from a
// YAML mapping and keeps the file's key order.
type Env []envplan.Assignment

// UnmarshalYAML decodes a mapping node in document order.
func (e *Env) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: env must be a mapping", node.Line)
	}
	out := make(Env, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: env value for %q must be a scalar", v.Line, k.Value)
		}
		out = append(out, envplan.Assignment{Key: k.Value, Value: v.Value})
	}
	*e = out
	return nil
}

// MarshalYAML encodes Env as a mapping in order.
func (e Env) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, a := range e {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: a.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: a.Value},
		)
	}
	return node, nil
}
