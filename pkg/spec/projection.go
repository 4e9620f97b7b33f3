package spec

import (
	"strings"
)

// Project walks a schema's properties and produces the projection tree used
// for entity parsing and response shaping. Returns nil when the schema has
// no usable properties.
func (d *Document) Project(schema map[string]interface{}) Tree {
	if schema == nil {
		return nil
	}

	properties := asMap(schema["properties"])
	if len(properties) == 0 {
		return nil
	}

	required := map[string]bool{}
	for _, name := range asSlice(schema["required"]) {
		required[asString(name)] = true
	}

	tree := Tree{}
	for field, raw := range properties {
		prop := asMap(raw)
		if prop == nil {
			continue
		}

		target := targetSegments(prop, field)

		if node := d.projectProperty(field, prop, target); node != nil {
			if leaf, ok := node.(*Leaf); ok {
				leaf.Required = required[field]
			}
			tree[field] = node
		}
	}

	if len(tree) == 0 {
		return nil
	}
	return tree
}

// projectProperty builds the node for a single schema property
func (d *Document) projectProperty(field string, prop map[string]interface{}, target []string) Node {
	// Direct reference to another schema
	if ref, ok := prop["$ref"].(string); ok {
		nested := d.Resolve(ref)
		if nested == nil {
			return nil
		}
		if innerTree := d.Project(nested); innerTree != nil {
			if t := asString(nested["x-target-field"]); t != "" && asString(prop["x-target-field"]) == "" {
				target = strings.Split(t, ".")
			}
			return &Inner{Target: target, Properties: innerTree}
		}
		return nil
	}

	// Array or dict containing a reference
	propType := asString(prop["type"])
	if propType == "array" || propType == "dict" {
		for _, value := range prop {
			entry := asMap(value)
			if entry == nil {
				continue
			}
			if ref, ok := entry["$ref"].(string); ok {
				nested := d.Resolve(ref)
				if innerTree := d.Project(nested); innerTree != nil {
					return &Inner{Target: target, Properties: innerTree}
				}
				return nil
			}
		}
	}

	return &Leaf{
		Target: target,
		Type:   propType,
		Format: asString(prop["format"]),
	}
}

// SchemaID returns the primary-key field named by x-db-table-id, descending
// into the first structured child when the schema itself does not carry one.
func (d *Document) SchemaID(schema map[string]interface{}) string {
	if schema == nil {
		return ""
	}

	if id := asString(schema["x-db-table-id"]); id != "" {
		return id
	}

	for _, raw := range asMap(schema["properties"]) {
		prop := asMap(raw)
		if prop == nil {
			continue
		}

		if ref, ok := prop["$ref"].(string); ok {
			if id := d.SchemaID(d.Resolve(ref)); id != "" {
				return id
			}
			continue
		}

		propType := asString(prop["type"])
		if propType != "array" && propType != "dict" {
			continue
		}
		for _, value := range prop {
			entry := asMap(value)
			if entry == nil {
				continue
			}
			if ref, ok := entry["$ref"].(string); ok {
				if id := d.SchemaID(d.Resolve(ref)); id != "" {
					return id
				}
			}
		}
	}

	return ""
}

// targetSegments computes the storage-facing path of a property: the
// dot-separated x-target-field when present, the field name otherwise.
func targetSegments(prop map[string]interface{}, field string) []string {
	if t := asString(prop["x-target-field"]); t != "" {
		return strings.Split(t, ".")
	}
	return []string{field}
}
