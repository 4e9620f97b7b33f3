package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/bitechdev/ServeSpec/pkg/spec"
)

var knownMethods = []string{"get", "put", "post", "patch"}

// RegisterRoutes mounts one generic route per path and method the API
// document declares. OpenAPI {name} templates map directly onto mux
// placeholders, so the document's paths are usable as-is.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	for rule, raw := range h.doc.Paths() {
		pathObject, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		for _, method := range knownMethods {
			if _, declared := pathObject[method]; !declared {
				continue
			}
			r.HandleFunc(rule, h.serve(method, rule)).Methods(strings.ToUpper(method))
		}
	}
}

// isPagedRule reports whether a rule serves paginated results
func isPagedRule(rule string) bool {
	return strings.Contains(rule, "/pages")
}

// pageURL builds the navigation URL for one page of results. The rule is
// reduced to its collection prefix, a /pages segment is ensured, and the
// encrypted cursor becomes the final path segment. URLs derived from the
// request host always carry the https scheme.
func (h *Handler) pageURL(r *http.Request, rule, token string, size int, action string) string {
	base := h.baseURL
	if base == "" {
		base = "https://" + r.Host
	}

	path := rule
	if i := strings.Index(path, "/pages"); i >= 0 {
		path = path[:i]
	} else {
		path = stripTemplateSegments(path)
	}

	return fmt.Sprintf("%s%s/pages/%s?%s=%d&%s=%s",
		strings.TrimRight(base, "/"), path, token,
		spec.ParamPageSize, size,
		spec.ParamPageAction, action)
}

// stripTemplateSegments removes trailing {placeholder} path segments
func stripTemplateSegments(path string) string {
	segments := strings.Split(strings.TrimRight(path, "/"), "/")
	for len(segments) > 0 {
		last := segments[len(segments)-1]
		if !strings.HasPrefix(last, "{") {
			break
		}
		segments = segments[:len(segments)-1]
	}
	return strings.Join(segments, "/")
}
