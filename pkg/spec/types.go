package spec

// Node is a single entry in a projection tree. A Leaf describes a scalar
// property and its storage-facing target path; an Inner describes a nested
// object with its own projection tree.
type Node interface {
	TargetPath() []string
}

// Leaf is a scalar projection node
type Leaf struct {
	Target   []string
	Required bool
	Type     string
	Format   string
}

func (l *Leaf) TargetPath() []string { return l.Target }

// Inner is a nested-object projection node
type Inner struct {
	Target     []string
	Properties Tree
}

func (i *Inner) TargetPath() []string { return i.Target }

// Tree maps external field names to projection nodes
type Tree map[string]Node

// QueryFilter is a user-settable filter bound to a query parameter
type QueryFilter struct {
	Name       string
	Field      string
	Comparison string
	Type       string
	Format     string
	Required   bool
	Value      string
	HasValue   bool
}

// ForcedFilter is a server-imposed row-level predicate. Value may be a
// literal, or one of the _UPN / _IP / _NOT_EXISTING directives.
type ForcedFilter struct {
	Field      string
	Comparison string
	Value      interface{}
}

// Forced filter value directives
const (
	DirectiveUPN         = "_UPN"
	DirectiveIP          = "_IP"
	DirectiveNotExisting = "_NOT_EXISTING"
)

// ForcedFilterName is the reserved parameter name that marks a forced filter
const ForcedFilterName = "_FORCED_FILTER"

// Reserved pagination parameter names
const (
	ParamPageCursor = "page_cursor"
	ParamPageSize   = "page_size"
	ParamPageAction = "page_action"
)

// RequestContext is the normalized per-request view of the specification:
// everything the generic handler and the storage adapters need to serve
// one operation.
type RequestContext struct {
	Method        string
	Rule          string
	TableName     string
	TableID       string
	RequestID     string
	DBKeys        Tree
	ResponseKeys  Tree
	QueryFilters  []QueryFilter
	ForcedFilters []ForcedFilter
	ContentType   string
}

// Complete reports whether the context carries enough configuration for the
// generic handler to dispatch a storage operation.
func (rc *RequestContext) Complete() bool {
	if rc == nil || rc.TableName == "" || rc.TableID == "" {
		return false
	}
	switch rc.Method {
	case "put", "post", "patch":
		return rc.DBKeys != nil
	default:
		return rc.ResponseKeys != nil
	}
}

// ResultsTree locates the array property of a list response schema and
// returns its element projection. The second return is the external name of
// the results field.
func (rc *RequestContext) ResultsTree() (Tree, string) {
	for name, node := range rc.ResponseKeys {
		if inner, ok := node.(*Inner); ok {
			return inner.Properties, name
		}
	}
	return nil, ""
}

var comparisons = map[string]string{
	"equal_to":                 "==",
	"not_equal_to":             "!=",
	"less_than":                "<",
	"less_than_or_equal_to":    "<=",
	"greater_than":             ">",
	"greater_than_or_equal_to": ">=",
}

var filterTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"integer": true,
	"boolean": true,
}
