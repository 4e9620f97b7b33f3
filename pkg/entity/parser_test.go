package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/ServeSpec/pkg/apierror"
	"github.com/bitechdev/ServeSpec/pkg/spec"
)

func widgetKeys() spec.Tree {
	return spec.Tree{
		"widget_id": &spec.Leaf{Target: []string{"widget_id"}, Type: "string"},
		"name":      &spec.Leaf{Target: []string{"name"}, Required: true, Type: "string"},
		"size":      &spec.Leaf{Target: []string{"dimensions", "size"}, Type: "integer"},
		"vendor": &spec.Inner{
			Target: []string{"vendor"},
			Properties: spec.Tree{
				"vendor_name": &spec.Leaf{Target: []string{"vendor", "name"}, Type: "string"},
			},
		},
	}
}

func TestParseGetProjectsStoredRecord(t *testing.T) {
	record := map[string]interface{}{
		"name": "gear",
		"dimensions": map[string]interface{}{
			"size": float64(7),
		},
		"vendor": map[string]interface{}{
			"name": "acme",
		},
	}

	out, err := Parse(widgetKeys(), record, "get", "w-1", "widget_id")
	require.NoError(t, err)

	assert.Equal(t, "w-1", out["widget_id"])
	assert.Equal(t, "gear", out["name"])
	assert.Equal(t, float64(7), out["size"])

	vendor, ok := out["vendor"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "acme", vendor["vendor_name"])
}

func TestParseGetMissingOptionalIsNull(t *testing.T) {
	record := map[string]interface{}{"name": "gear"}

	out, err := Parse(widgetKeys(), record, "get", "w-1", "widget_id")
	require.NoError(t, err)

	assert.Contains(t, out, "size")
	assert.Nil(t, out["size"])
}

func TestParsePutBuildsNestedUpdate(t *testing.T) {
	body := map[string]interface{}{
		"name": "gear",
		"size": 9,
		"vendor": map[string]interface{}{
			"vendor_name": "acme",
		},
	}

	out, err := Parse(widgetKeys(), body, "put", "w-1", "widget_id")
	require.NoError(t, err)

	assert.Equal(t, "gear", out["name"])

	dimensions, ok := out["dimensions"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(9), dimensions["size"])

	vendor, ok := out["vendor"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "acme", vendor["name"])

	assert.Equal(t, "w-1", out["widget_id"])
}

func TestParsePutMissingRequired(t *testing.T) {
	body := map[string]interface{}{"size": 9}

	_, err := Parse(widgetKeys(), body, "put", "w-1", "widget_id")
	require.Error(t, err)
	assert.True(t, apierror.IsBadRequest(err))
	assert.Equal(t, "Property 'name' is required", err.Error())
}

func TestParsePostOmitsAbsentOptionals(t *testing.T) {
	body := map[string]interface{}{"name": "gear"}

	out, err := Parse(widgetKeys(), body, "post", nil, "widget_id")
	require.NoError(t, err)

	assert.Equal(t, "gear", out["name"])
	assert.NotContains(t, out, "dimensions")
	assert.NotContains(t, out, "widget_id")
}

func TestRoundTrip(t *testing.T) {
	body := map[string]interface{}{
		"name": "gear",
		"size": 9,
	}

	stored, err := Parse(widgetKeys(), body, "post", nil, "widget_id")
	require.NoError(t, err)

	projected, err := Parse(widgetKeys(), stored, "get", "w-1", "widget_id")
	require.NoError(t, err)

	assert.Equal(t, "gear", projected["name"])
	assert.Equal(t, float64(9), projected["size"])
	assert.Equal(t, "w-1", projected["widget_id"])
}
