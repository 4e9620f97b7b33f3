package spec

import (
	"net/url"

	"github.com/bitechdev/ServeSpec/pkg/logger"
)

// queryFilters parses the operation's query parameters into user filters and
// forced filters. Malformed parameters are logged and skipped rather than
// failing the request: they are a specification authoring problem, not a
// client one.
func (d *Document) queryFilters(operation map[string]interface{}, query url.Values) ([]QueryFilter, []ForcedFilter) {
	var filters []QueryFilter
	var forced []ForcedFilter

	for _, raw := range asSlice(operation["parameters"]) {
		param := d.resolveIfRef(asMap(raw))
		if param == nil {
			continue
		}

		name := asString(param["name"])
		if asString(param["in"]) != "query" || isReservedParam(name) {
			continue
		}

		field := asString(param["x-query-filter-field"])
		comparison := asString(param["x-query-filter-comparison"])
		schema := asMap(param["schema"])

		if schema == nil || field == "" || comparison == "" {
			logger.Info("query param '%s' is missing one of 'schema', 'x-query-filter-comparison', 'x-query-filter-field'", name)
			continue
		}

		symbol, ok := comparisons[comparison]
		if !ok {
			logger.Info("query param '%s' has a not supported comparison: '%s'", name, comparison)
			continue
		}

		if name == ForcedFilterName {
			forced = append(forced, ForcedFilter{
				Field:      field,
				Comparison: symbol,
				Value:      param["x-query-filter-value"],
			})
			continue
		}

		schemaType := asString(schema["type"])
		if !filterTypes[schemaType] {
			logger.Info("query param '%s' has a not supported type: '%s'", name, schemaType)
			continue
		}

		filter := QueryFilter{
			Name:       name,
			Field:      field,
			Comparison: symbol,
			Type:       schemaType,
			Format:     asString(schema["format"]),
		}
		if required, ok := param["required"].(bool); ok {
			filter.Required = required
		}
		if query != nil && query.Has(name) {
			filter.Value = query.Get(name)
			filter.HasValue = true
		}

		filters = append(filters, filter)
	}

	return filters, forced
}
