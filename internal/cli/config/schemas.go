package config

import (
	"fmt"
	"os"

	"github.com/leapstack-labs/lookpipe/internal/pipeline"
	"github.com/leapstack-labs/lookpipe/pkg/core"
	"github.com/leapstack-labs/lookpipe/pkg/schema"
	"gopkg.in/yaml.v3"
)

// LoadSchemas reads target schemas from the processing.schemas block of
// configFile and from the top-level mapping of schemasFile. Tables and
// columns keep the order they are written in. Either path may be empty.
func LoadSchemas(configFile, schemasFile string) ([]pipeline.TableSchema, error) {
	var out []pipeline.TableSchema
	seen := make(map[string]string)

	add := func(source string, node *yaml.Node) error {
		if node == nil {
			return nil
		}
		if node.Kind != yaml.MappingNode {
			return &core.ConfigurationError{Key: "processing.schemas", Reason: fmt.Sprintf("%s: expected a mapping of table to columns", source)}
		}
		for i := 0; i+1 < len(node.Content); i += 2 {
			table := node.Content[i].Value
			if prev, dup := seen[table]; dup {
				return &core.ConfigurationError{Key: "processing.schemas." + table, Reason: fmt.Sprintf("defined in both %s and %s", prev, source)}
			}
			var ts schema.TargetSchema
			if err := node.Content[i+1].Decode(&ts); err != nil {
				return &core.ConfigurationError{Key: "processing.schemas." + table, Err: err}
			}
			seen[table] = source
			out = append(out, pipeline.TableSchema{Table: table, Schema: ts})
		}
		return nil
	}

	if configFile != "" {
		root, err := readYAML("config", configFile)
		if err != nil {
			return nil, err
		}
		if err := add(configFile, lookup(root, "processing", "schemas")); err != nil {
			return nil, err
		}
	}

	if schemasFile != "" {
		root, err := readYAML("processing.schemas_file", schemasFile)
		if err != nil {
			return nil, err
		}
		if err := add(schemasFile, root); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// readYAML returns the root node of the document at path, or nil for an
// empty document.
func readYAML(key, path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, &core.ConfigurationError{Key: key, Err: err}
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &core.ConfigurationError{Key: key, Reason: "invalid YAML in " + path, Err: err}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}
	return doc.Content[0], nil
}

// lookup walks mapping keys from node.
func lookup(node *yaml.Node, keys ...string) *yaml.Node {
	for _, key := range keys {
		if node == nil || node.Kind != yaml.MappingNode {
			return nil
		}
		var next *yaml.Node
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == key {
				next = node.Content[i+1]
				break
			}
		}
		node = next
	}
	return node
}
