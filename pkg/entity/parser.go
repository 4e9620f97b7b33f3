package entity

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bitechdev/ServeSpec/pkg/apierror"
	"github.com/bitechdev/ServeSpec/pkg/spec"
	"github.com/tidwall/sjson"
)

// Parse converts between external JSON entities and storage-facing records
// using a projection tree.
//
// For method "get" it projects a stored record into the external shape:
// every leaf is read from the record at its target path, the primary-key
// field is filled from id, and missing optional fields become null.
//
// For "put"/"post" it consumes an external body, validates required fields,
// and produces a storage-shaped update: the tree is flattened to dotted
// external paths and each present value is placed into a nested object along
// the leaf's target segments.
func Parse(keys spec.Tree, ent map[string]interface{}, method string, id interface{}, tableID string) (map[string]interface{}, error) {
	if method == "get" {
		return projectObject(keys, ent, id, tableID), nil
	}

	bound, err := bindObject(keys, ent, id, tableID)
	if err != nil {
		return nil, err
	}
	return updateObject(keys, bound)
}

// projectObject shapes a stored record for the response. Leaf targets are
// rooted at the record, so renamed fields resolve against the storage layout
// no matter how deep their external position is.
func projectObject(keys spec.Tree, record map[string]interface{}, id interface{}, tableID string) map[string]interface{} {
	out := map[string]interface{}{}
	for key, node := range keys {
		if key == tableID {
			out[key] = id
			continue
		}

		switch n := node.(type) {
		case *spec.Inner:
			child := projectObject(n.Properties, record, id, tableID)
			if len(child) > 0 {
				out[key] = child
			}
		case *spec.Leaf:
			value, _ := lookup(record, n.Target...)
			out[key] = value
		}
	}
	return out
}

// bindObject validates an external request body against the tree. Missing
// required fields fail; missing optional fields are omitted.
func bindObject(keys spec.Tree, body map[string]interface{}, id interface{}, tableID string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	for key, node := range keys {
		if key == tableID {
			if id != nil && id != "" {
				out[key] = id
			}
			continue
		}

		switch n := node.(type) {
		case *spec.Inner:
			var nested map[string]interface{}
			if body != nil {
				nested, _ = body[key].(map[string]interface{})
			}
			child, err := bindObject(n.Properties, nested, id, tableID)
			if err != nil {
				return nil, err
			}
			if len(child) > 0 {
				out[key] = child
			}
		case *spec.Leaf:
			var value interface{}
			present := false
			if body != nil {
				value, present = body[key]
			}
			if !present || value == nil {
				if n.Required {
					return nil, apierror.NewBadRequest("Property '%s' is required", key)
				}
				continue
			}
			out[key] = value
		}
	}
	return out, nil
}

// updateObject flattens the tree to dotted external paths and rebuilds the
// bound values into a nested object following each leaf's target segments.
func updateObject(keys spec.Tree, bound map[string]interface{}) (map[string]interface{}, error) {
	flat := flatten(keys, "")

	raw := []byte(`{}`)
	for externalPath, target := range flat {
		value, ok := lookup(bound, strings.Split(externalPath, ".")...)
		if !ok {
			continue
		}

		var err error
		raw, err = sjson.SetBytes(raw, strings.Join(target, "."), value)
		if err != nil {
			return nil, fmt.Errorf("failed to place value at '%s': %w", strings.Join(target, "."), err)
		}
	}

	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode update object: %w", err)
	}
	return out, nil
}

// flatten maps dotted external paths to leaf target segments
func flatten(keys spec.Tree, prefix string) map[string][]string {
	out := map[string][]string{}
	for key, node := range keys {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		switch n := node.(type) {
		case *spec.Inner:
			for k, v := range flatten(n.Properties, path) {
				out[k] = v
			}
		case *spec.Leaf:
			out[path] = n.Target
		}
	}
	return out
}

// lookup walks a nested map along path segments
func lookup(m map[string]interface{}, path ...string) (interface{}, bool) {
	current := interface{}(m)
	for _, segment := range path {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
