// Package keystore persists entities in a relational key/kind table through
// bun. Every entity is one row: the table name becomes the kind, the entity
// body lives in a JSON document column, and pagination is keyset-based over
// the row id.
package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/bitechdev/ServeSpec/pkg/apierror"
	"github.com/bitechdev/ServeSpec/pkg/authz"
	"github.com/bitechdev/ServeSpec/pkg/entity"
	"github.com/bitechdev/ServeSpec/pkg/logger"
	"github.com/bitechdev/ServeSpec/pkg/security"
	"github.com/bitechdev/ServeSpec/pkg/spec"
	"github.com/bitechdev/ServeSpec/pkg/storage"
)

// Row is one stored entity. Kind partitions the table per entity type, so
// one physical table serves every route.
type Row struct {
	bun.BaseModel `bun:"table:entities,alias:e"`

	Kind string                 `bun:"kind,pk"`
	ID   string                 `bun:"id,pk"`
	Doc  map[string]interface{} `bun:"doc,type:jsonb"`
}

// Adapter implements storage.Adapter over a bun database handle
type Adapter struct {
	db         *bun.DB
	auditTable string
}

// New creates a keystore adapter. auditTable is the kind audit records are
// written under; empty disables audit logging.
func New(db *bun.DB, auditTable string) *Adapter {
	return &Adapter{db: db, auditTable: auditTable}
}

// Init creates the entities table when it does not exist yet
func (a *Adapter) Init(ctx context.Context) error {
	if _, err := a.db.NewCreateTable().Model((*Row)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create entities table: %w", err)
	}
	return nil
}

// GetSingle implements storage.Adapter
func (a *Adapter) GetSingle(ctx context.Context, id string, rc *spec.RequestContext, principal *security.Principal) (map[string]interface{}, error) {
	row, err := a.fetch(ctx, rc.TableName, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		if err := authz.Validate(rc.ForcedFilters, nil, principal); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err := authz.Validate(rc.ForcedFilters, row.Doc, principal); err != nil {
		return nil, err
	}

	return entity.Parse(rc.ResponseKeys, row.Doc, "get", storage.NormalizeID(rc, id), rc.TableID)
}

// PutSingle implements storage.Adapter
func (a *Adapter) PutSingle(ctx context.Context, id string, body map[string]interface{}, rc *spec.RequestContext, principal *security.Principal) (map[string]interface{}, error) {
	row, err := a.fetch(ctx, rc.TableName, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}

	if err := authz.Validate(rc.ForcedFilters, row.Doc, principal); err != nil {
		return nil, err
	}

	update, err := entity.Parse(rc.DBKeys, body, rc.Method, storage.NormalizeID(rc, id), rc.TableID)
	if err != nil {
		return nil, err
	}

	oldDoc := deepCopy(row.Doc)
	row.Doc = deepMerge(row.Doc, update)

	if _, err := a.db.NewUpdate().Model(row).WherePK().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to update entity '%s': %w", id, err)
	}

	a.ProcessAuditLogging(ctx, oldDoc, row.Doc, id, rc, principal)

	return entity.Parse(a.projectionKeys(rc), row.Doc, "get", storage.NormalizeID(rc, id), rc.TableID)
}

// PostSingle implements storage.Adapter
func (a *Adapter) PostSingle(ctx context.Context, body map[string]interface{}, rc *spec.RequestContext, principal *security.Principal) (map[string]interface{}, error) {
	update, err := entity.Parse(rc.DBKeys, body, rc.Method, nil, rc.TableID)
	if err != nil {
		return nil, err
	}

	row := &Row{Kind: rc.TableName, ID: uuid.NewString(), Doc: update}
	if _, err := a.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create entity: %w", err)
	}

	a.ProcessAuditLogging(ctx, map[string]interface{}{}, row.Doc, row.ID, rc, principal)

	return entity.Parse(a.projectionKeys(rc), row.Doc, "get", storage.NormalizeID(rc, row.ID), rc.TableID)
}

// GetMultiple implements storage.Adapter
func (a *Adapter) GetMultiple(ctx context.Context, rc *spec.RequestContext, principal *security.Principal) (map[string]interface{}, error) {
	keys, name := rc.ResultsTree()
	if keys == nil {
		return nil, nil
	}

	q, err := a.listQuery(rc, principal)
	if err != nil {
		return nil, err
	}

	var rows []Row
	if err := q.Order("id DESC").Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	results, err := a.projectRows(rows, keys, rc)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{name: results}, nil
}

// GetMultiplePage implements storage.Adapter. Cursors are keyset markers:
// the raw cursor is the row id the previous page ended on.
func (a *Adapter) GetMultiplePage(ctx context.Context, rc *spec.RequestContext, principal *security.Principal, page storage.PageRequest) (*storage.Page, error) {
	keys, _ := rc.ResultsTree()
	if keys == nil {
		return nil, apierror.NewBadRequest("Results key is missing from the specification")
	}

	page = page.Normalize()

	q, err := a.listQuery(rc, principal)
	if err != nil {
		return nil, err
	}

	if page.Cursor != "" {
		if page.Action == storage.ActionPrev {
			// The cursor is the id the prior page ended on, so the anchor row
			// belongs to the page being re-read.
			q = q.Where("id >= ?", page.Cursor)
		} else {
			q = q.Where("id < ?", page.Cursor)
		}
	}

	order := "id DESC"
	limit := page.Size
	if page.Action == storage.ActionPrev {
		order = "id ASC"
	} else {
		// One extra row decides whether a further page exists
		limit++
	}

	var rows []Row
	if err := q.Order(order).Limit(limit).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	nextCursor := ""
	if page.Action == storage.ActionPrev {
		// Walking backwards keeps the page order stable and the incoming
		// cursor valid for the following "next" request.
		sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })
		nextCursor = page.Cursor
	} else if len(rows) > page.Size {
		rows = rows[:page.Size]
		nextCursor = rows[page.Size-1].ID
	}

	results, err := a.projectRows(rows, keys, rc)
	if err != nil {
		return nil, err
	}

	return &storage.Page{
		Results:  results,
		Status:   "success",
		PageSize: page.Size,
		NextPage: nextCursor,
	}, nil
}

// ProcessAuditLogging implements storage.Adapter. Failures are logged and
// never surfaced to the caller.
func (a *Adapter) ProcessAuditLogging(ctx context.Context, oldData, newData map[string]interface{}, entityID string, rc *spec.RequestContext, principal *security.Principal) {
	if a.auditTable == "" {
		return
	}

	record, changed := storage.NewAuditRecord(oldData, newData, entityID, rc.TableName, principal)
	if !changed {
		return
	}

	row := &Row{Kind: a.auditTable, ID: uuid.NewString(), Doc: record.AsMap()}
	if _, err := a.db.NewInsert().Model(row).Exec(ctx); err != nil {
		logger.Error("Failed to write audit record for '%s/%s': %v", rc.TableName, entityID, err)
	}
}

func (a *Adapter) fetch(ctx context.Context, kind, id string) (*Row, error) {
	row := new(Row)
	err := a.db.NewSelect().Model(row).
		Where("kind = ?", kind).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entity '%s/%s': %w", kind, id, err)
	}
	return row, nil
}

func (a *Adapter) listQuery(rc *spec.RequestContext, principal *security.Principal) (*bun.SelectQuery, error) {
	filters, err := storage.BuildFilters(rc, principal)
	if err != nil {
		return nil, err
	}

	q := a.db.NewSelect().Model((*Row)(nil)).Where("kind = ?", rc.TableName)
	for _, f := range filters {
		q = a.applyFilter(q, f)
	}
	return q, nil
}

func (a *Adapter) projectRows(rows []Row, keys spec.Tree, rc *spec.RequestContext) ([]map[string]interface{}, error) {
	results := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		projected, err := entity.Parse(keys, row.Doc, "get", storage.NormalizeID(rc, row.ID), rc.TableID)
		if err != nil {
			return nil, err
		}
		results = append(results, projected)
	}
	return results, nil
}

// applyFilter translates one predicate into dialect-native SQL over the JSON
// document column. Filter fields come out of the loaded API document, never
// from the caller, so interpolating them into the expression is safe.
func (a *Adapter) applyFilter(q *bun.SelectQuery, f storage.Filter) *bun.SelectQuery {
	pg := a.db.Dialect().Name() == dialect.PG

	expr := fmt.Sprintf("json_extract(doc, '$.%s')", f.Field)
	if pg {
		expr = fmt.Sprintf("doc #>> '{%s}'", strings.ReplaceAll(f.Field, ".", ","))
	}

	if f.NotExisting {
		return q.Where(expr + " IS NULL")
	}

	op := f.Comparison
	if op == "==" {
		op = "="
	}

	switch v := f.Value.(type) {
	case int64, float64:
		if pg {
			expr = "(" + expr + ")::numeric"
		}
		return q.Where(fmt.Sprintf("%s %s ?", expr, op), v)
	case bool:
		if pg {
			return q.Where(fmt.Sprintf("%s %s ?", expr, op), fmt.Sprintf("%t", v))
		}
		return q.Where(fmt.Sprintf("%s %s ?", expr, op), v)
	case time.Time:
		// RFC 3339 UTC strings order lexicographically, so text comparison
		// is sufficient for date ranges.
		return q.Where(fmt.Sprintf("%s %s ?", expr, op), v.Format(time.RFC3339))
	default:
		return q.Where(fmt.Sprintf("%s %s ?", expr, op), v)
	}
}

func (a *Adapter) projectionKeys(rc *spec.RequestContext) spec.Tree {
	if rc.ResponseKeys != nil {
		return rc.ResponseKeys
	}
	return rc.DBKeys
}

func deepCopy(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = deepCopy(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func deepMerge(base, update map[string]interface{}) map[string]interface{} {
	out := deepCopy(base)
	for k, v := range update {
		nestedUpdate, updateIsMap := v.(map[string]interface{})
		nestedBase, baseIsMap := out[k].(map[string]interface{})
		if updateIsMap && baseIsMap {
			out[k] = deepMerge(nestedBase, nestedUpdate)
			continue
		}
		out[k] = v
	}
	return out
}
