package query

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes a single YAML document into a Value.
func ParseYAML(data []byte) (Value, error) {
	var v Value
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Value{}, err
	}
	return v, nil
}

// UnmarshalYAML implements yaml.Unmarshaler. Mapping order is preserved.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var r yamlReader
	out, err := r.value(node, 0)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

const (
	// maxYAMLAliasDepth bounds how deeply aliases may refer to anchors
	// that themselves contain aliases.
	maxYAMLAliasDepth = 32
	// maxYAMLAliasValues bounds the number of values produced by expanding
	// aliases in one document. Each alias copies its anchor, so a few
	// nested anchors can otherwise expand to billions of values.
	maxYAMLAliasValues = 10000
)

// ErrYAMLAliasExpansion is returned for a YAML document whose aliases
// expand to more than maxYAMLAliasValues values.
var ErrYAMLAliasExpansion = errors.New("query: yaml document has excessive aliasing")

type yamlReader struct {
	expanded int
}

func (r *yamlReader) value(node *yaml.Node, aliases int) (Value, error) {
	if aliases > 0 {
		r.expanded++
		if r.expanded > maxYAMLAliasValues {
			return Value{}, ErrYAMLAliasExpansion
		}
	}
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return Null(), nil
		}
		return r.value(node.Content[0], aliases)
	case yaml.AliasNode:
		if aliases >= maxYAMLAliasDepth {
			return Value{}, fmt.Errorf("query: yaml alias nesting too deep at line %d", node.Line)
		}
		return r.value(node.Alias, aliases+1)
	case yaml.SequenceNode:
		arr := make([]Value, 0, len(node.Content))
		for _, c := range node.Content {
			e, err := r.value(c, aliases)
			if err != nil {
				return Value{}, err
			}
			arr = append(arr, e)
		}
		return Value{kind: KindArray, arr: arr}, nil
	case yaml.MappingNode:
		members := make([]Member, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			k, val := node.Content[i], node.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return Value{}, fmt.Errorf("query: yaml mapping key at line %d must be a scalar", k.Line)
			}
			e, err := r.value(val, aliases)
			if err != nil {
				return Value{}, err
			}
			members = append(members, Member{Key: k.Value, Value: e})
		}
		return Object(members...), nil
	case yaml.ScalarNode:
		return fromYAMLScalar(node)
	}
	return Value{}, fmt.Errorf("query: unsupported yaml node kind %d at line %d", node.Kind, node.Line)
}

func fromYAMLScalar(node *yaml.Node) (Value, error) {
	switch node.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case "!!int", "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return Value{}, err
		}
		return Number(f), nil
	default:
		return String(node.Value), nil
	}
}

// MarshalYAML implements yaml.Marshaler, keeping object key order.
func (v Value) MarshalYAML() (any, error) {
	return v.yamlNode(), nil
}

func (v Value) yamlNode() *yaml.Node {
	switch v.kind {
	case KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v.b)}
	case KindNumber:
		if v.n == math.Trunc(v.n) && math.Abs(v.n) < 1<<53 {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(int64(v.n), 10)}
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: yamlFloat(v.n)}
	case KindString:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.s}
	case KindArray:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, e := range v.arr {
			n.Content = append(n.Content, e.yamlNode())
		}
		return n
	case KindObject:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for i, k := range v.obj.keys {
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				v.obj.vals[i].yamlNode())
		}
		return n
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
}

func yamlFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
