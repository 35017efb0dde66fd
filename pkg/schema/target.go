package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Column is a single target column: a name and its type descriptor.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TargetSchema is the ordered list of columns a table is conformed to.
// Order is significant: it is the projection order of the output.
type TargetSchema []Column

// Names returns the column names in schema order.
func (s TargetSchema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Resolve resolves every descriptor in the schema.
// The first failure is returned with the offending column attached.
func (s TargetSchema) Resolve() ([]DataType, error) {
	types := make([]DataType, len(s))
	for i, c := range s {
		t, err := Resolve(c.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		types[i] = t
	}
	return types, nil
}

// UnmarshalYAML decodes a mapping of column name to descriptor, keeping the
// order in which the columns appear in the document. A sequence of
// {name, type} entries is accepted as well.
func (s *TargetSchema) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		cols := make(TargetSchema, 0, len(node.Content)/2)
		seen := make(map[string]bool, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			if val.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: type of column %q must be a string", val.Line, key.Value)
			}
			if seen[key.Value] {
				return fmt.Errorf("line %d: duplicate column %q", key.Line, key.Value)
			}
			seen[key.Value] = true
			cols = append(cols, Column{Name: key.Value, Type: val.Value})
		}
		*s = cols
		return nil
	case yaml.SequenceNode:
		var cols []Column
		if err := node.Decode(&cols); err != nil {
			return err
		}
		*s = cols
		return nil
	default:
		return fmt.Errorf("line %d: schema must be a mapping of column to type", node.Line)
	}
}

// MarshalYAML encodes the schema as an ordered mapping.
func (s TargetSchema) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, c := range s {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: c.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: c.Type},
		)
	}
	return node, nil
}
