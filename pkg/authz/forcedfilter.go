package authz

import (
	"encoding/json"
	"reflect"

	"github.com/bitechdev/ServeSpec/pkg/apierror"
	"github.com/bitechdev/ServeSpec/pkg/logger"
	"github.com/bitechdev/ServeSpec/pkg/security"
	"github.com/bitechdev/ServeSpec/pkg/spec"
	"github.com/tidwall/gjson"
)

// Validate applies forced filters to a stored entity after it has been
// fetched. Directives resolve against the request principal; anything else
// is a literal equality check. Any mismatch denies the request.
func Validate(filters []spec.ForcedFilter, ent map[string]interface{}, principal *security.Principal) error {
	if len(filters) == 0 {
		return nil
	}

	if ent == nil {
		return apierror.NewBadRequest("requested entity has no value")
	}

	raw, err := json.Marshal(ent)
	if err != nil {
		return apierror.NewBadRequest("requested entity has no value")
	}

	if principal == nil {
		principal = &security.Principal{}
	}

	for _, filter := range filters {
		result := gjson.GetBytes(raw, filter.Field)

		switch filter.Value {
		case spec.DirectiveUPN:
			if principal.UPN == "" || result.String() != principal.UPN {
				return unauthorized(filter.Field)
			}
		case spec.DirectiveIP:
			if principal.IP == "" || result.String() != principal.IP {
				return unauthorized(filter.Field)
			}
		case spec.DirectiveNotExisting:
			if result.Exists() {
				return unauthorized(filter.Field)
			}
		default:
			if !result.Exists() || !literalEqual(result.Value(), filter.Value) {
				return unauthorized(filter.Field)
			}
		}
	}

	return nil
}

func unauthorized(field string) error {
	logger.Debug("Forced filter on '%s' denied the request", field)
	return apierror.NewUnauthorized("Unauthorized request")
}

// literalEqual compares a stored value with a filter literal, normalizing
// both through JSON so that YAML integers and JSON float64 numbers compare
// equal.
func literalEqual(stored, expected interface{}) bool {
	if reflect.DeepEqual(stored, expected) {
		return true
	}

	storedRaw, err1 := json.Marshal(stored)
	expectedRaw, err2 := json.Marshal(expected)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(storedRaw) == string(expectedRaw)
}
