package spec

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is the parsed OpenAPI specification. It is loaded once at
// startup and treated as read-only afterwards, so it is safe for
// concurrent use without locking.
type Document struct {
	raw map[string]interface{}
}

// Load reads and parses the OpenAPI document at path
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read specification: %w", err)
	}
	return Parse(data)
}

// Parse parses an OpenAPI document from YAML bytes
func Parse(data []byte) (*Document, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse specification: %w", err)
	}

	doc, ok := normalize(raw).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("specification root is not a mapping")
	}
	return &Document{raw: doc}, nil
}

// normalize rewrites every mapping to string keys so that numeric YAML keys
// (unquoted status codes) resolve the same way as quoted ones.
func normalize(v interface{}) interface{} {
	switch node := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(node))
		for key, value := range node {
			out[key] = normalize(value)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(node))
		for key, value := range node {
			out[fmt.Sprint(key)] = normalize(value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(node))
		for i, value := range node {
			out[i] = normalize(value)
		}
		return out
	default:
		return v
	}
}

// Raw returns the underlying document mapping
func (d *Document) Raw() map[string]interface{} {
	return d.raw
}

// Paths returns the path-template to path-object mapping
func (d *Document) Paths() map[string]interface{} {
	paths, _ := d.raw["paths"].(map[string]interface{})
	return paths
}

// Resolve walks a "#/a/b/c" reference and returns the sub-document, or nil
// when the reference does not point at anything.
func (d *Document) Resolve(ref string) map[string]interface{} {
	if !strings.HasPrefix(ref, "#/") {
		return nil
	}

	current := interface{}(d.raw)
	for _, segment := range strings.Split(strings.TrimPrefix(ref, "#/"), "/") {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = node[segment]
		if !ok {
			return nil
		}
	}

	result, _ := current.(map[string]interface{})
	return result
}

// resolveIfRef replaces an object carrying a $ref with its referent
func (d *Document) resolveIfRef(obj map[string]interface{}) map[string]interface{} {
	if ref, ok := obj["$ref"].(string); ok {
		return d.Resolve(ref)
	}
	return obj
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}

// getIn walks a map along the given keys, returning nil when any segment
// is missing.
func getIn(m map[string]interface{}, keys ...string) interface{} {
	current := interface{}(m)
	for _, key := range keys {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = node[key]
		if !ok {
			return nil
		}
	}
	return current
}
