package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/ServeSpec/pkg/apierror"
	"github.com/bitechdev/ServeSpec/pkg/cursor"
	"github.com/bitechdev/ServeSpec/pkg/security"
	"github.com/bitechdev/ServeSpec/pkg/spec"
	"github.com/bitechdev/ServeSpec/pkg/storage"
)

const testDocument = `
openapi: "3.0.0"
paths:
  /widgets:
    x-db-table-name: widgets
    get:
      responses:
        200:
          content:
            application/json:
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
          schema:
            type: string
      responses:
        200:
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Widget'
    put:
      parameters:
        - name: widget_id
          in: path
          schema:
            type: string
      requestBody:
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/Widget'
      responses:
        201:
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
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/WidgetList'
  /orphans:
    get:
      responses:
        200:
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
    WidgetList:
      type: object
      properties:
        widgets:
          type: array
          items:
            $ref: '#/components/schemas/Widget'
`

// fakeAdapter scripts adapter responses and records the request context it
// was called with.
type fakeAdapter struct {
	single     map[string]interface{}
	multiple   map[string]interface{}
	page       *storage.Page
	err        error
	lastOp     string
	lastID     string
	lastPage   storage.PageRequest
	lastRC     *spec.RequestContext
	lastEntity map[string]interface{}
}

func (f *fakeAdapter) GetSingle(ctx context.Context, id string, rc *spec.RequestContext, principal *security.Principal) (map[string]interface{}, error) {
	f.lastOp, f.lastID, f.lastRC = "get_single", id, rc
	return f.single, f.err
}

func (f *fakeAdapter) PutSingle(ctx context.Context, id string, body map[string]interface{}, rc *spec.RequestContext, principal *security.Principal) (map[string]interface{}, error) {
	f.lastOp, f.lastID, f.lastRC, f.lastEntity = "put_single", id, rc, body
	return f.single, f.err
}

func (f *fakeAdapter) PostSingle(ctx context.Context, body map[string]interface{}, rc *spec.RequestContext, principal *security.Principal) (map[string]interface{}, error) {
	f.lastOp, f.lastRC, f.lastEntity = "post_single", rc, body
	return f.single, f.err
}

func (f *fakeAdapter) GetMultiple(ctx context.Context, rc *spec.RequestContext, principal *security.Principal) (map[string]interface{}, error) {
	f.lastOp, f.lastRC = "get_multiple", rc
	return f.multiple, f.err
}

func (f *fakeAdapter) GetMultiplePage(ctx context.Context, rc *spec.RequestContext, principal *security.Principal, page storage.PageRequest) (*storage.Page, error) {
	f.lastOp, f.lastRC, f.lastPage = "get_multiple_page", rc, page
	return f.page, f.err
}

func (f *fakeAdapter) ProcessAuditLogging(ctx context.Context, oldData, newData map[string]interface{}, entityID string, rc *spec.RequestContext, principal *security.Principal) {
}

func newTestRouter(t *testing.T, adapter storage.Adapter) *mux.Router {
	t.Helper()

	doc, err := spec.Parse([]byte(testDocument))
	require.NoError(t, err)

	h := New(doc, adapter, cursor.NewCodec(nil), "")
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return router
}

func doRequest(router *mux.Router, method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) apierror.Problem {
	t.Helper()
	var problem apierror.Problem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	return problem
}

func TestGetSingle(t *testing.T) {
	adapter := &fakeAdapter{single: map[string]interface{}{"widget_id": "w-1", "name": "gear"}}
	router := newTestRouter(t, adapter)

	rr := doRequest(router, "GET", "http://example.com/widgets/w-1", "", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "get_single", adapter.lastOp)
	assert.Equal(t, "w-1", adapter.lastID)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "gear", body["name"])
}

func TestGetSingleNotFound(t *testing.T) {
	router := newTestRouter(t, &fakeAdapter{})

	rr := doRequest(router, "GET", "http://example.com/widgets/w-1", "", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	problem := decodeProblem(t, rr)
	assert.Equal(t, "Not Found", problem.Title)
	assert.Equal(t, "about:blank", problem.Type)
}

func TestGetSingleUnauthorized(t *testing.T) {
	adapter := &fakeAdapter{err: apierror.NewUnauthorized("Unauthorized request")}
	router := newTestRouter(t, adapter)

	rr := doRequest(router, "GET", "http://example.com/widgets/w-1", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	problem := decodeProblem(t, rr)
	assert.Equal(t, "Unauthorized request", problem.Detail)
	assert.Equal(t, 401, problem.Status)
}

func TestGetListEmpty(t *testing.T) {
	router := newTestRouter(t, &fakeAdapter{})

	rr := doRequest(router, "GET", "http://example.com/widgets", "", nil)

	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestGetList(t *testing.T) {
	adapter := &fakeAdapter{multiple: map[string]interface{}{
		"widgets": []map[string]interface{}{{"widget_id": "w-1", "name": "gear"}},
	}}
	router := newTestRouter(t, adapter)

	rr := doRequest(router, "GET", "http://example.com/widgets", "", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "gear")
}

func TestGetListBadAccept(t *testing.T) {
	router := newTestRouter(t, &fakeAdapter{})

	rr := doRequest(router, "GET", "http://example.com/widgets", "", map[string]string{"Accept": "text/xml"})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	problem := decodeProblem(t, rr)
	assert.Equal(t, "The content-type 'text/xml' is not found within the specification", problem.Detail)
}

func TestPostMissingRequired(t *testing.T) {
	adapter := &fakeAdapter{err: apierror.NewBadRequest("Property 'name' is required")}
	router := newTestRouter(t, adapter)

	rr := doRequest(router, "POST", "http://example.com/widgets", `{"color":"red"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	problem := decodeProblem(t, rr)
	assert.Equal(t, "Property 'name' is required", problem.Detail)
	assert.Equal(t, "Bad Request", problem.Title)
}

func TestPostCreated(t *testing.T) {
	adapter := &fakeAdapter{single: map[string]interface{}{"widget_id": "w-9", "name": "gear"}}
	router := newTestRouter(t, adapter)

	rr := doRequest(router, "POST", "http://example.com/widgets", `{"name":"gear"}`, nil)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "post_single", adapter.lastOp)
	assert.Equal(t, map[string]interface{}{"name": "gear"}, adapter.lastEntity)
}

func TestPostInvalidBody(t *testing.T) {
	router := newTestRouter(t, &fakeAdapter{})

	rr := doRequest(router, "POST", "http://example.com/widgets", "not-json", nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPutNotFound(t *testing.T) {
	router := newTestRouter(t, &fakeAdapter{})

	rr := doRequest(router, "PUT", "http://example.com/widgets/w-1", `{"name":"gear"}`, nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPutUpdated(t *testing.T) {
	adapter := &fakeAdapter{single: map[string]interface{}{"widget_id": "w-1", "name": "sprocket"}}
	router := newTestRouter(t, adapter)

	rr := doRequest(router, "PUT", "http://example.com/widgets/w-1", `{"name":"sprocket"}`, nil)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "put_single", adapter.lastOp)
	assert.Equal(t, "w-1", adapter.lastID)
}

func TestGetPage(t *testing.T) {
	adapter := &fakeAdapter{page: &storage.Page{
		Results:  []map[string]interface{}{{"widget_id": "w-5"}, {"widget_id": "w-4"}},
		Status:   "success",
		PageSize: 2,
		NextPage: "c1",
	}}
	router := newTestRouter(t, adapter)

	rr := doRequest(router, "GET", "http://example.com/widgets/pages/c0?page_size=2", "", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, storage.PageRequest{Cursor: "c0", Size: 2, Action: "next"}, adapter.lastPage)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))

	assert.Equal(t, "success", body["status"])
	assert.Equal(t, float64(2), body["page_size"])
	// Request-derived page URLs always carry the https scheme
	assert.Equal(t, "https://example.com/widgets/pages/c1?page_size=2&page_action=next", body["next_page"])
	// The request carried a cursor, so a prev URL is emitted from it
	assert.Equal(t, "https://example.com/widgets/pages/c0?page_size=2&page_action=prev", body["prev_page"])
}

func TestGetPageNoContinuation(t *testing.T) {
	adapter := &fakeAdapter{page: &storage.Page{
		Results:  []map[string]interface{}{{"widget_id": "w-1"}},
		Status:   "success",
		PageSize: 50,
	}}
	router := newTestRouter(t, adapter)

	rr := doRequest(router, "GET", "http://example.com/widgets/pages/c9", "", nil)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Nil(t, body["next_page"])
}

func TestGetPageBadSize(t *testing.T) {
	router := newTestRouter(t, &fakeAdapter{})

	rr := doRequest(router, "GET", "http://example.com/widgets/pages/c0?page_size=huge", "", nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	problem := decodeProblem(t, rr)
	assert.Equal(t, "value huge for query param page_size is not of type integer", problem.Detail)
}

func TestIncompleteRouteConfiguration(t *testing.T) {
	router := newTestRouter(t, &fakeAdapter{})

	// /orphans has no x-db-table-name
	rr := doRequest(router, "GET", "http://example.com/orphans", "", nil)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	problem := decodeProblem(t, rr)
	assert.Equal(t, "Internal Server Error", problem.Title)
}

func TestStripTemplateSegments(t *testing.T) {
	assert.Equal(t, "/widgets", stripTemplateSegments("/widgets/{widget_id}"))
	assert.Equal(t, "/widgets", stripTemplateSegments("/widgets"))
	assert.Equal(t, "/a/{b}/c", stripTemplateSegments("/a/{b}/c"))
}
