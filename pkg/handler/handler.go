// Package handler serves every declared route with one generic handler.
// There is no per-route code: the loaded API document decides which table a
// request touches, how entities are projected, and which filters apply.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bitechdev/ServeSpec/pkg/apierror"
	"github.com/bitechdev/ServeSpec/pkg/content"
	"github.com/bitechdev/ServeSpec/pkg/cursor"
	"github.com/bitechdev/ServeSpec/pkg/logger"
	"github.com/bitechdev/ServeSpec/pkg/metrics"
	"github.com/bitechdev/ServeSpec/pkg/security"
	"github.com/bitechdev/ServeSpec/pkg/spec"
	"github.com/bitechdev/ServeSpec/pkg/storage"
	"github.com/bitechdev/ServeSpec/pkg/tracing"
)

// Handler dispatches requests for every route in the API document to the
// active storage adapter. It is stateless per request; the document and the
// adapter are the only process-wide state.
type Handler struct {
	doc        *spec.Document
	adapter    storage.Adapter
	codec      *cursor.Codec
	baseURL    string
	formatters map[string]content.Formatter
}

// New creates a generic handler. baseURL overrides the request host when
// building pagination URLs; empty derives it from each request.
func New(doc *spec.Document, adapter storage.Adapter, codec *cursor.Codec, baseURL string) *Handler {
	return &Handler{
		doc:        doc,
		adapter:    adapter,
		codec:      codec,
		baseURL:    baseURL,
		formatters: map[string]content.Formatter{},
	}
}

// RegisterFormatter adds a non-JSON response formatter for list results
func (h *Handler) RegisterFormatter(f content.Formatter) {
	h.formatters[f.ContentType()] = f
}

func (h *Handler) serve(method, rule string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc, err := h.doc.ResolveContext(method, rule, r.URL.Query(), r.Header.Get("Accept"))
		if err != nil {
			h.writeError(w, err)
			return
		}

		if !rc.Complete() {
			h.writeError(w, apierror.NewConfigError("Route '%s' is missing its database configuration", rule))
			return
		}

		principal := security.PrincipalFromContext(r.Context())
		vars := mux.Vars(r)

		switch rc.Method {
		case "get":
			switch {
			case isPagedRule(rc.Rule):
				h.getMultiplePage(w, r, rc, principal, vars)
			case rc.RequestID != "":
				h.getSingle(w, r, rc, principal, vars)
			default:
				h.getMultiple(w, r, rc, principal)
			}
		case "post":
			h.postSingle(w, r, rc, principal)
		case "put", "patch":
			h.putSingle(w, r, rc, principal, vars)
		default:
			h.writeError(w, apierror.NewConfigError("Method '%s' is not supported", rc.Method))
		}
	}
}

func (h *Handler) getSingle(w http.ResponseWriter, r *http.Request, rc *spec.RequestContext, principal *security.Principal, vars map[string]string) {
	id := vars[rc.RequestID]
	if id == "" {
		h.writeError(w, apierror.NewConfigError("Identifier '%s' was not found in the request path", rc.RequestID))
		return
	}

	result, err := h.storageOp(r.Context(), "get_single", rc, func(ctx context.Context) (map[string]interface{}, error) {
		return h.adapter.GetSingle(ctx, id, rc, principal)
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if result == nil {
		h.writeError(w, apierror.ErrNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getMultiple(w http.ResponseWriter, r *http.Request, rc *spec.RequestContext, principal *security.Principal) {
	result, err := h.storageOp(r.Context(), "get_multiple", rc, func(ctx context.Context) (map[string]interface{}, error) {
		return h.adapter.GetMultiple(ctx, rc, principal)
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if result == nil {
		h.writeJSON(w, http.StatusNoContent, []interface{}{})
		return
	}

	if formatter, ok := h.formatters[rc.ContentType]; ok && rc.ContentType != "application/json" {
		_, name := rc.ResultsTree()
		results, _ := result[name].([]map[string]interface{})
		if err := formatter.Format(w, rc.TableName, results); err != nil {
			logger.Error("Failed to format '%s' response: %v", rc.ContentType, err)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getMultiplePage(w http.ResponseWriter, r *http.Request, rc *spec.RequestContext, principal *security.Principal, vars map[string]string) {
	query := r.URL.Query()

	size := storage.DefaultPageSize
	if raw := query.Get(spec.ParamPageSize); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, apierror.NewBadRequest("value %s for query param %s is not of type integer", raw, spec.ParamPageSize))
			return
		}
		size = n
	}

	action := storage.ActionNext
	if query.Get(spec.ParamPageAction) == storage.ActionPrev {
		action = storage.ActionPrev
	}

	token := vars[spec.ParamPageCursor]
	if token == "" {
		token = query.Get(spec.ParamPageCursor)
	}
	rawCursor := h.codec.Decrypt(r.Context(), token)

	var page *storage.Page
	_, err := h.storageOp(r.Context(), "get_multiple_page", rc, func(ctx context.Context) (map[string]interface{}, error) {
		var opErr error
		page, opErr = h.adapter.GetMultiplePage(ctx, rc, principal, storage.PageRequest{
			Cursor: rawCursor,
			Size:   size,
			Action: action,
		})
		return nil, opErr
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if page == nil {
		h.writeError(w, apierror.NewConfigError("The storage adapter returned no page"))
		return
	}

	results := page.Results
	if results == nil {
		results = []map[string]interface{}{}
	}

	response := map[string]interface{}{
		"results":   results,
		"status":    page.Status,
		"page_size": page.PageSize,
		"next_page": nil,
	}

	if page.NextPage != "" {
		if encrypted := h.codec.Encrypt(r.Context(), page.NextPage); encrypted != "" {
			response["next_page"] = h.pageURL(r, rc.Rule, encrypted, page.PageSize, storage.ActionNext)
		}
	}
	if rawCursor != "" {
		if encrypted := h.codec.Encrypt(r.Context(), rawCursor); encrypted != "" {
			response["prev_page"] = h.pageURL(r, rc.Rule, encrypted, page.PageSize, storage.ActionPrev)
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) postSingle(w http.ResponseWriter, r *http.Request, rc *spec.RequestContext, principal *security.Principal) {
	body, err := decodeBody(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.storageOp(r.Context(), "post_single", rc, func(ctx context.Context) (map[string]interface{}, error) {
		return h.adapter.PostSingle(ctx, body, rc, principal)
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if result == nil {
		h.writeError(w, apierror.NewBadRequest("The entity could not be created"))
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) putSingle(w http.ResponseWriter, r *http.Request, rc *spec.RequestContext, principal *security.Principal, vars map[string]string) {
	id := vars[rc.RequestID]
	if id == "" {
		h.writeError(w, apierror.NewConfigError("Identifier '%s' was not found in the request path", rc.RequestID))
		return
	}

	body, err := decodeBody(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.storageOp(r.Context(), "put_single", rc, func(ctx context.Context) (map[string]interface{}, error) {
		return h.adapter.PutSingle(ctx, id, body, rc, principal)
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if result == nil {
		h.writeError(w, apierror.ErrNotFound)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) storageOp(ctx context.Context, operation string, rc *spec.RequestContext, fn func(context.Context) (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx, span := tracing.StartSpan(ctx, "storage."+operation,
		attribute.String("table", rc.TableName))
	defer span.End()

	start := time.Now()
	result, err := fn(ctx)
	metrics.GetProvider().RecordStorageOp(operation, rc.TableName, time.Since(start), err)
	tracing.RecordError(ctx, err)
	return result, err
}

func decodeBody(r *http.Request) (map[string]interface{}, error) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, apierror.NewBadRequest("The request body is not a valid JSON object")
	}
	return body, nil
}

// writeError is the single place where internal errors become HTTP problem
// responses. Problem objects are emitted as JSON regardless of Accept.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var status int
	var title, detail string

	switch {
	case apierror.IsBadRequest(err):
		status, title, detail = http.StatusBadRequest, "Bad Request", err.Error()
	case apierror.IsUnauthorized(err):
		status, title, detail = http.StatusUnauthorized, "Unauthorized", err.Error()
	case errors.Is(err, apierror.ErrNotFound):
		status, title, detail = http.StatusNotFound, "Not Found", "The requested entity was not found"
	case apierror.IsConfigError(err):
		status, title, detail = http.StatusInternalServerError, "Internal Server Error", err.Error()
		logger.Error("Route configuration error: %v", err)
	default:
		status, title, detail = http.StatusInternalServerError, "Internal Server Error", "Internal server error"
		logger.Error("Request failed: %v", err)
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apierror.NewProblem(status, title, detail)); err != nil {
		logger.Warn("Failed to write response. %v", err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status == http.StatusNoContent {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Failed to write response. %v", err)
	}
}
