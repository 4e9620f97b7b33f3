package storage

import (
	"strconv"
	"time"

	"github.com/bitechdev/ServeSpec/pkg/apierror"
	"github.com/bitechdev/ServeSpec/pkg/security"
	"github.com/bitechdev/ServeSpec/pkg/spec"
)

// Filter is one store-level predicate, ready for translation into the
// adapter's native query language. NotExisting marks an absence check,
// where Value is meaningless.
type Filter struct {
	Field       string
	Comparison  string
	Value       interface{}
	NotExisting bool
}

// BuildFilters merges the caller's query filters with the server-imposed
// forced filters into one predicate list. Directive values resolve against
// the principal; a directive with no principal value still produces a
// predicate, so that it can never match accidentally.
func BuildFilters(rc *spec.RequestContext, principal *security.Principal) ([]Filter, error) {
	if principal == nil {
		principal = &security.Principal{}
	}

	var filters []Filter
	for _, qf := range rc.QueryFilters {
		if !qf.HasValue {
			continue
		}
		value, err := CoerceValue(qf.Value, qf.Type, qf.Format, qf.Name)
		if err != nil {
			return nil, err
		}
		filters = append(filters, Filter{Field: qf.Field, Comparison: qf.Comparison, Value: value})
	}

	for _, ff := range rc.ForcedFilters {
		f := Filter{Field: ff.Field, Comparison: ff.Comparison}
		switch ff.Value {
		case spec.DirectiveUPN:
			f.Value = principal.UPN
		case spec.DirectiveIP:
			f.Value = principal.IP
		case spec.DirectiveNotExisting:
			f.NotExisting = true
		default:
			f.Value = ff.Value
		}
		filters = append(filters, f)
	}

	return filters, nil
}

// CoerceValue converts a raw query-parameter string to the declared schema
// type. Dates come back as time.Time in UTC.
func CoerceValue(raw, typ, format, name string) (interface{}, error) {
	switch typ {
	case "integer":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, coerceError(raw, name, typ)
		}
		return n, nil

	case "number":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, coerceError(raw, name, typ)
		}
		return f, nil

	case "boolean":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, coerceError(raw, name, typ)
		}
		return b, nil

	case "string":
		switch format {
		case "date-time":
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, coerceError(raw, name, format)
			}
			return t.UTC(), nil
		case "date":
			t, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return nil, coerceError(raw, name, format)
			}
			return t.UTC(), nil
		}
		return raw, nil
	}

	return raw, nil
}

func coerceError(raw, name, typ string) error {
	return apierror.NewBadRequest("value %s for query param %s is not of type %s", raw, name, typ)
}
