package spec

import (
	"net/url"
	"strings"

	"github.com/bitechdev/ServeSpec/pkg/apierror"
)

// statusPreference is the order in which response status codes are searched
// for a response schema.
var statusPreference = []string{"200", "201", "202", "203", "204"}

// NormalizeRule converts a routing rule into the path-template form used by
// the specification: type modifiers are stripped and <name> placeholders
// become {name}.
func NormalizeRule(rule string) string {
	rule = strings.ReplaceAll(rule, "int:", "")
	rule = strings.ReplaceAll(rule, "<", "{")
	rule = strings.ReplaceAll(rule, ">", "}")
	return rule
}

// ResolveContext derives the request context for one operation: target
// table, primary-key field, projection schemas, query filters and forced
// filters. An unknown path or method yields an incomplete context, which the
// handler reports as a configuration error. A declared path whose response
// cannot satisfy the requested content type yields a BadRequestError.
func (d *Document) ResolveContext(method, rule string, query url.Values, accept string) (*RequestContext, error) {
	rc := &RequestContext{
		Method: strings.ToLower(method),
		Rule:   NormalizeRule(rule),
	}

	pathObject := asMap(d.Paths()[rc.Rule])
	if pathObject == nil {
		return rc, nil
	}

	operation := asMap(pathObject[rc.Method])
	if operation == nil {
		return rc, nil
	}

	rc.TableName = asString(pathObject["x-db-table-name"])
	rc.RequestID = d.requestID(operation)
	rc.QueryFilters, rc.ForcedFilters = d.queryFilters(operation, query)

	var dbSchema map[string]interface{}
	switch rc.Method {
	case "put", "post", "patch":
		dbSchema = d.Resolve(d.requestBodyRef(operation))
	}

	contentType := negotiateContentType(accept)
	responseRef, err := d.responseRef(operation, contentType)
	if err != nil {
		return rc, err
	}
	responseSchema := d.Resolve(responseRef)

	rc.ContentType = contentType
	rc.DBKeys = d.Project(dbSchema)
	rc.ResponseKeys = d.Project(responseSchema)

	if rc.Method == "get" {
		rc.TableID = d.SchemaID(responseSchema)
	} else {
		rc.TableID = d.SchemaID(dbSchema)
	}

	return rc, nil
}

// requestID returns the name of the first path parameter that is not a
// reserved pagination parameter.
func (d *Document) requestID(operation map[string]interface{}) string {
	for _, raw := range asSlice(operation["parameters"]) {
		param := d.resolveIfRef(asMap(raw))
		if param == nil {
			continue
		}
		name := asString(param["name"])
		if asString(param["in"]) != "path" || isReservedParam(name) {
			continue
		}
		return name
	}
	return ""
}

// requestBodyRef returns the schema reference of the JSON request body
func (d *Document) requestBodyRef(operation map[string]interface{}) string {
	return asString(getIn(operation, "requestBody", "content", "application/json", "schema", "$ref"))
}

// responseRef returns the schema reference for the preferred response status
// code and the negotiated content type. A response that exists but does not
// declare the negotiated content type is a client error.
func (d *Document) responseRef(operation map[string]interface{}, contentType string) (string, error) {
	responses := asMap(operation["responses"])
	if responses == nil {
		return "", nil
	}

	for _, code := range statusPreference {
		response := asMap(responses[code])
		if response == nil {
			continue
		}

		ref := asString(getIn(response, "content", contentType, "schema", "$ref"))
		if ref == "" {
			return "", apierror.NewBadRequest("The content-type '%s' is not found within the specification", contentType)
		}
		return ref, nil
	}

	return "", nil
}

// negotiateContentType picks the response content type from an Accept
// header, defaulting to JSON.
func negotiateContentType(accept string) string {
	accept = strings.TrimSpace(strings.SplitN(accept, ",", 2)[0])
	accept = strings.TrimSpace(strings.SplitN(accept, ";", 2)[0])
	if accept == "" || accept == "*/*" {
		return "application/json"
	}
	return accept
}

func isReservedParam(name string) bool {
	switch name {
	case ParamPageCursor, ParamPageSize, ParamPageAction:
		return true
	}
	return false
}
