package storage

import (
	"context"
	"strconv"

	"github.com/bitechdev/ServeSpec/pkg/security"
	"github.com/bitechdev/ServeSpec/pkg/spec"
)

// DefaultPageSize is used when a pagination request does not name a size
const DefaultPageSize = 50

// Pagination actions
const (
	ActionNext = "next"
	ActionPrev = "prev"
)

// PageRequest carries the pagination inputs for GetMultiplePage. Cursor is
// the raw store cursor, already decrypted by the caller; an empty cursor
// means "start from the beginning".
type PageRequest struct {
	Cursor string
	Size   int
	Action string
}

// Normalize fills defaults for zero-valued pagination inputs. Walking
// backwards needs an anchor, so prev without a cursor degrades to a plain
// first page.
func (p PageRequest) Normalize() PageRequest {
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Cursor == "" || p.Action != ActionPrev {
		p.Action = ActionNext
	}
	return p
}

// Page is one page of projected results. NextPage is the raw store cursor
// for the following page; the handler encrypts it and turns it into a URL.
type Page struct {
	Results  []map[string]interface{}
	Status   string
	PageSize int
	NextPage string
}

// Adapter is the uniform contract over the active document store. All
// implementations must be safe for concurrent use; the single instance is
// shared across requests.
type Adapter interface {
	// GetSingle loads one entity by id and projects it for the response.
	// A missing entity is (nil, nil); forced filters may deny with 401.
	GetSingle(ctx context.Context, id string, rc *spec.RequestContext, principal *security.Principal) (map[string]interface{}, error)

	// PutSingle applies a request body to an existing entity and returns
	// the projected updated entity. Audit logging runs on a non-empty diff.
	PutSingle(ctx context.Context, id string, body map[string]interface{}, rc *spec.RequestContext, principal *security.Principal) (map[string]interface{}, error)

	// PostSingle creates an entity from a request body and returns the
	// projected created entity including its assigned id.
	PostSingle(ctx context.Context, body map[string]interface{}, rc *spec.RequestContext, principal *security.Principal) (map[string]interface{}, error)

	// GetMultiple returns the full projected result set keyed by the
	// response's results field, or nil when the table is empty.
	GetMultiple(ctx context.Context, rc *spec.RequestContext, principal *security.Principal) (map[string]interface{}, error)

	// GetMultiplePage returns one page of projected results
	GetMultiplePage(ctx context.Context, rc *spec.RequestContext, principal *security.Principal, page PageRequest) (*Page, error)

	// ProcessAuditLogging records an attribute diff out of band. It never
	// fails the calling operation; errors are logged and swallowed.
	ProcessAuditLogging(ctx context.Context, oldData, newData map[string]interface{}, entityID string, rc *spec.RequestContext, principal *security.Principal)
}

// NormalizeID converts a path identifier to the type the response schema
// declares for the primary-key field. Stores key entities by string; an
// integer-typed id surfaces as a number in responses.
func NormalizeID(rc *spec.RequestContext, id string) interface{} {
	keys := rc.ResponseKeys
	if keys == nil {
		keys = rc.DBKeys
	}

	if leaf := findLeaf(keys, rc.TableID); leaf != nil && leaf.Type == "integer" {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			return n
		}
	}
	return id
}

func findLeaf(keys spec.Tree, field string) *spec.Leaf {
	for name, node := range keys {
		switch n := node.(type) {
		case *spec.Leaf:
			if name == field {
				return n
			}
		case *spec.Inner:
			if leaf := findLeaf(n.Properties, field); leaf != nil {
				return leaf
			}
		}
	}
	return nil
}
