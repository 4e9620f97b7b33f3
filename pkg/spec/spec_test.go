package spec

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDocument = `
openapi: "3.0.0"
info:
  title: Widget API
  version: "1.0"
paths:
  /widgets:
    x-db-table-name: widgets
    get:
      parameters:
        - name: size
          in: query
          schema:
            type: integer
          x-query-filter-field: dimensions.size
          x-query-filter-comparison: greater_than_or_equal_to
        - name: created
          in: query
          schema:
            type: string
            format: date-time
          x-query-filter-field: created_at
          x-query-filter-comparison: less_than
        - name: broken
          in: query
          schema:
            type: string
        - name: _FORCED_FILTER
          in: query
          schema:
            type: string
          x-query-filter-field: owner
          x-query-filter-comparison: equal_to
          x-query-filter-value: _UPN
      responses:
        200:
          description: widget list
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/WidgetList'
            text/csv:
              schema:
                $ref: '#/components/schemas/WidgetList'
    post:
      requestBody:
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/Widget'
      responses:
        201:
          description: created widget
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Widget'
  /widgets/{widget_id}:
    x-db-table-name: widgets
    get:
      parameters:
        - name: widget_id
          in: path
          required: true
          schema:
            type: string
      responses:
        200:
          description: one widget
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Widget'
    put:
      parameters:
        - name: widget_id
          in: path
          required: true
          schema:
            type: string
      requestBody:
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/Widget'
      responses:
        201:
          description: updated widget
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Widget'
  /widgets/pages/{page_cursor}:
    x-db-table-name: widgets
    get:
      parameters:
        - name: page_cursor
          in: path
          schema:
            type: string
      responses:
        200:
          description: one page of widgets
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/WidgetList'
components:
  schemas:
    Widget:
      type: object
      x-db-table-id: widget_id
      required:
        - name
      properties:
        widget_id:
          type: string
        name:
          type: string
        size:
          type: integer
          x-target-field: dimensions.size
        owner:
          type: string
        vendor:
          $ref: '#/components/schemas/Vendor'
    Vendor:
      type: object
      properties:
        vendor_name:
          type: string
          x-target-field: vendor.name
    WidgetList:
      type: object
      properties:
        widgets:
          type: array
          items:
            $ref: '#/components/schemas/Widget'
`

func loadTestDocument(t *testing.T) *Document {
	t.Helper()
	doc, err := Parse([]byte(testDocument))
	require.NoError(t, err)
	return doc
}

func TestParseNormalizesNumericKeys(t *testing.T) {
	doc := loadTestDocument(t)

	// 200 is unquoted in the document; it must still resolve as a string key
	operation := asMap(asMap(doc.Paths()["/widgets"])["get"])
	require.NotNil(t, operation)
	responses := asMap(operation["responses"])
	assert.NotNil(t, responses["200"])
}

func TestResolveReference(t *testing.T) {
	doc := loadTestDocument(t)

	schema := doc.Resolve("#/components/schemas/Widget")
	require.NotNil(t, schema)
	assert.Equal(t, "widget_id", asString(schema["x-db-table-id"]))

	assert.Nil(t, doc.Resolve("#/components/schemas/Missing"))
	assert.Nil(t, doc.Resolve(""))
}

func TestProjectWidget(t *testing.T) {
	doc := loadTestDocument(t)
	tree := doc.Project(doc.Resolve("#/components/schemas/Widget"))
	require.NotNil(t, tree)

	name, ok := tree["name"].(*Leaf)
	require.True(t, ok)
	assert.True(t, name.Required)
	assert.Equal(t, []string{"name"}, name.Target)

	size, ok := tree["size"].(*Leaf)
	require.True(t, ok)
	assert.False(t, size.Required)
	assert.Equal(t, []string{"dimensions", "size"}, size.Target)
	assert.Equal(t, "integer", size.Type)

	vendor, ok := tree["vendor"].(*Inner)
	require.True(t, ok)
	vendorName, ok := vendor.Properties["vendor_name"].(*Leaf)
	require.True(t, ok)
	assert.Equal(t, []string{"vendor", "name"}, vendorName.Target)
}

func TestProjectListSchema(t *testing.T) {
	doc := loadTestDocument(t)
	tree := doc.Project(doc.Resolve("#/components/schemas/WidgetList"))
	require.NotNil(t, tree)

	widgets, ok := tree["widgets"].(*Inner)
	require.True(t, ok)
	assert.Contains(t, widgets.Properties, "widget_id")
}

func TestSchemaIDDescendsIntoChildren(t *testing.T) {
	doc := loadTestDocument(t)

	assert.Equal(t, "widget_id", doc.SchemaID(doc.Resolve("#/components/schemas/Widget")))
	// The list schema has no x-db-table-id itself; it is discovered through
	// the array items reference.
	assert.Equal(t, "widget_id", doc.SchemaID(doc.Resolve("#/components/schemas/WidgetList")))
	assert.Equal(t, "", doc.SchemaID(nil))
}

func TestNormalizeRule(t *testing.T) {
	assert.Equal(t, "/widgets/{widget_id}", NormalizeRule("/widgets/<int:widget_id>"))
	assert.Equal(t, "/widgets/{widget_id}", NormalizeRule("/widgets/{widget_id}"))
}

func TestResolveContextSingleGet(t *testing.T) {
	doc := loadTestDocument(t)

	rc, err := doc.ResolveContext("GET", "/widgets/{widget_id}", url.Values{}, "")
	require.NoError(t, err)
	require.True(t, rc.Complete())

	assert.Equal(t, "widgets", rc.TableName)
	assert.Equal(t, "widget_id", rc.TableID)
	assert.Equal(t, "widget_id", rc.RequestID)
	assert.Equal(t, "application/json", rc.ContentType)
	assert.NotNil(t, rc.ResponseKeys)
	assert.Nil(t, rc.DBKeys)
}

func TestResolveContextPut(t *testing.T) {
	doc := loadTestDocument(t)

	rc, err := doc.ResolveContext("PUT", "/widgets/{widget_id}", url.Values{}, "")
	require.NoError(t, err)
	require.True(t, rc.Complete())

	assert.NotNil(t, rc.DBKeys)
	assert.Equal(t, "widget_id", rc.TableID)
}

func TestResolveContextListFilters(t *testing.T) {
	doc := loadTestDocument(t)

	query := url.Values{"size": []string{"5"}}
	rc, err := doc.ResolveContext("GET", "/widgets", query, "")
	require.NoError(t, err)

	// "broken" lacks the filter extensions and is skipped
	require.Len(t, rc.QueryFilters, 2)

	byName := map[string]QueryFilter{}
	for _, f := range rc.QueryFilters {
		byName[f.Name] = f
	}

	size := byName["size"]
	assert.Equal(t, "dimensions.size", size.Field)
	assert.Equal(t, ">=", size.Comparison)
	assert.True(t, size.HasValue)
	assert.Equal(t, "5", size.Value)

	created := byName["created"]
	assert.Equal(t, "<", created.Comparison)
	assert.Equal(t, "date-time", created.Format)
	assert.False(t, created.HasValue)

	require.Len(t, rc.ForcedFilters, 1)
	assert.Equal(t, "owner", rc.ForcedFilters[0].Field)
	assert.Equal(t, DirectiveUPN, rc.ForcedFilters[0].Value)
}

func TestResolveContextContentNegotiation(t *testing.T) {
	doc := loadTestDocument(t)

	rc, err := doc.ResolveContext("GET", "/widgets", url.Values{}, "text/csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", rc.ContentType)

	_, err = doc.ResolveContext("GET", "/widgets", url.Values{}, "application/pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "The content-type 'application/pdf' is not found within the specification")
}

func TestResolveContextUnknownRoute(t *testing.T) {
	doc := loadTestDocument(t)

	rc, err := doc.ResolveContext("GET", "/nope", url.Values{}, "")
	require.NoError(t, err)
	assert.False(t, rc.Complete())
}

func TestResultsTree(t *testing.T) {
	doc := loadTestDocument(t)

	rc, err := doc.ResolveContext("GET", "/widgets", url.Values{}, "")
	require.NoError(t, err)

	tree, name := rc.ResultsTree()
	require.NotNil(t, tree)
	assert.Equal(t, "widgets", name)

	single, err := doc.ResolveContext("GET", "/widgets/{widget_id}", url.Values{}, "")
	require.NoError(t, err)
	// The single-entity schema nests the vendor object, which must not be
	// mistaken for a results array.
	_, singleName := single.ResultsTree()
	assert.Equal(t, "vendor", singleName)
}
