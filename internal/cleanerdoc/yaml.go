package cleanerdoc

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// singleKeyTag extracts a sum type's variant tag and payload from a mapping
// node shaped {"VariantName": payload}, or treats a bare scalar node as a
// variant name with no payload (the "string_or_struct" shorthand for
// all-default variants, e.g. "None", "Lowercase").
func singleKeyTag(node *yaml.Node) (string, *yaml.Node, error) {
	if node == nil || node.Kind == yaml.DocumentNode {
		return "", nil, fmt.Errorf("cleanerdoc: empty node")
	}
	if node.Kind == yaml.ScalarNode && node.Tag != "!!null" {
		return node.Value, nil, nil
	}
	if node.Kind == yaml.MappingNode {
		if len(node.Content) != 2 {
			return "", nil, fmt.Errorf("cleanerdoc: tagged union must have exactly one key, got %d", len(node.Content)/2)
		}
		return node.Content[0].Value, node.Content[1], nil
	}
	return "", nil, fmt.Errorf("cleanerdoc: expected a variant tag string or a single-key mapping, got kind %v", node.Kind)
}

func decodePayload(node *yaml.Node, out interface{}) error {
	if node == nil {
		return nil
	}
	return node.Decode(out)
}

// rawNode is a small struct field type used inside variant payload structs
// for recursive sum-type children: the payload's Decode() call fills it
// with the child's raw node, which is then dispatched through the owning
// family's Decode* function.
type rawNode = yaml.Node
