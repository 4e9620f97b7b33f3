// Package collectionstore persists entities in MongoDB collections. Each
// table maps to a collection, entity attributes live at the document root,
// and pagination is a snapshot walk anchored on the cursor document.
package collectionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bitechdev/ServeSpec/pkg/apierror"
	"github.com/bitechdev/ServeSpec/pkg/authz"
	"github.com/bitechdev/ServeSpec/pkg/entity"
	"github.com/bitechdev/ServeSpec/pkg/logger"
	"github.com/bitechdev/ServeSpec/pkg/security"
	"github.com/bitechdev/ServeSpec/pkg/spec"
	"github.com/bitechdev/ServeSpec/pkg/storage"
)

// Adapter implements storage.Adapter over a mongo database
type Adapter struct {
	db              *mongo.Database
	auditCollection string
}

// New creates a collectionstore adapter. auditCollection is where audit
// records are written; empty disables audit logging.
func New(db *mongo.Database, auditCollection string) *Adapter {
	return &Adapter{db: db, auditCollection: auditCollection}
}

// GetSingle implements storage.Adapter
func (a *Adapter) GetSingle(ctx context.Context, id string, rc *spec.RequestContext, principal *security.Principal) (map[string]interface{}, error) {
	doc, err := a.fetch(ctx, rc.TableName, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		if err := authz.Validate(rc.ForcedFilters, nil, principal); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err := authz.Validate(rc.ForcedFilters, doc, principal); err != nil {
		return nil, err
	}

	return entity.Parse(rc.ResponseKeys, doc, "get", storage.NormalizeID(rc, id), rc.TableID)
}

// PutSingle implements storage.Adapter
func (a *Adapter) PutSingle(ctx context.Context, id string, body map[string]interface{}, rc *spec.RequestContext, principal *security.Principal) (map[string]interface{}, error) {
	doc, err := a.fetch(ctx, rc.TableName, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}

	if err := authz.Validate(rc.ForcedFilters, doc, principal); err != nil {
		return nil, err
	}

	update, err := entity.Parse(rc.DBKeys, body, rc.Method, storage.NormalizeID(rc, id), rc.TableID)
	if err != nil {
		return nil, err
	}

	set := bson.M{}
	flattenInto(set, "", update)
	if len(set) > 0 {
		_, err = a.db.Collection(rc.TableName).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
		if err != nil {
			return nil, fmt.Errorf("failed to update entity '%s': %w", id, err)
		}
	}

	updated, err := a.fetch(ctx, rc.TableName, id)
	if err != nil {
		return nil, err
	}

	a.ProcessAuditLogging(ctx, doc, updated, id, rc, principal)

	return entity.Parse(a.projectionKeys(rc), updated, "get", storage.NormalizeID(rc, id), rc.TableID)
}

// PostSingle implements storage.Adapter
func (a *Adapter) PostSingle(ctx context.Context, body map[string]interface{}, rc *spec.RequestContext, principal *security.Principal) (map[string]interface{}, error) {
	update, err := entity.Parse(rc.DBKeys, body, rc.Method, nil, rc.TableID)
	if err != nil {
		return nil, err
	}

	id := primitive.NewObjectID().Hex()
	doc := bson.M{"_id": id}
	for k, v := range update {
		doc[k] = v
	}

	if _, err := a.db.Collection(rc.TableName).InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create entity: %w", err)
	}

	a.ProcessAuditLogging(ctx, map[string]interface{}{}, update, id, rc, principal)

	return entity.Parse(a.projectionKeys(rc), update, "get", storage.NormalizeID(rc, id), rc.TableID)
}

// GetMultiple implements storage.Adapter
func (a *Adapter) GetMultiple(ctx context.Context, rc *spec.RequestContext, principal *security.Principal) (map[string]interface{}, error) {
	keys, name := rc.ResultsTree()
	if keys == nil {
		return nil, nil
	}

	filter, err := a.listFilter(rc, principal)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	docs, err := a.findAll(ctx, rc.TableName, filter, opts)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	results, err := a.projectDocs(docs, keys, rc)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{name: results}, nil
}

// GetMultiplePage implements storage.Adapter. The raw cursor is the id of
// the document the previous page ended on; an unknown id means the snapshot
// has moved on and the cursor is rejected.
func (a *Adapter) GetMultiplePage(ctx context.Context, rc *spec.RequestContext, principal *security.Principal, page storage.PageRequest) (*storage.Page, error) {
	keys, _ := rc.ResultsTree()
	if keys == nil {
		return nil, apierror.NewBadRequest("Results key is missing from the specification")
	}

	page = page.Normalize()

	filter, err := a.listFilter(rc, principal)
	if err != nil {
		return nil, err
	}

	pageFilter := copyFilter(filter)
	if page.Cursor != "" {
		anchor, err := a.fetch(ctx, rc.TableName, page.Cursor)
		if err != nil {
			return nil, err
		}
		if anchor == nil {
			return nil, apierror.NewBadRequest("Cursor is not valid")
		}
		pageFilter["_id"] = cursorPredicate(page.Action, page.Cursor)
	}

	sortDir := -1
	if page.Action == storage.ActionPrev {
		sortDir = 1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: sortDir}}).
		SetLimit(int64(page.Size))

	docs, err := a.findAll(ctx, rc.TableName, pageFilter, opts)
	if err != nil {
		return nil, err
	}

	if page.Action == storage.ActionPrev {
		for i, j := 0, len(docs)-1; i < j; i, j = i+1, j-1 {
			docs[i], docs[j] = docs[j], docs[i]
		}
	}

	nextCursor := ""
	if len(docs) > 0 {
		lastID, _ := docs[len(docs)-1]["_id"].(string)
		if lastID != "" {
			more, err := a.hasMore(ctx, rc.TableName, filter, lastID)
			if err != nil {
				return nil, err
			}
			if more {
				nextCursor = lastID
			}
		}
	}

	results, err := a.projectDocs(docs, keys, rc)
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
	if a.auditCollection == "" {
		return
	}

	record, changed := storage.NewAuditRecord(oldData, newData, entityID, rc.TableName, principal)
	if !changed {
		return
	}

	if _, err := a.db.Collection(a.auditCollection).InsertOne(ctx, record.AsMap()); err != nil {
		logger.Error("Failed to write audit record for '%s/%s': %v", rc.TableName, entityID, err)
	}
}

func (a *Adapter) fetch(ctx context.Context, collection, id string) (map[string]interface{}, error) {
	var doc bson.M
	err := a.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entity '%s/%s': %w", collection, id, err)
	}
	return normalize(doc).(map[string]interface{}), nil
}

func (a *Adapter) findAll(ctx context.Context, collection string, filter bson.M, opts *options.FindOptions) ([]map[string]interface{}, error) {
	cur, err := a.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities in '%s': %w", collection, err)
	}
	defer cur.Close(ctx)

	var docs []map[string]interface{}
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode entity: %w", err)
		}
		docs = append(docs, normalize(doc).(map[string]interface{}))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entities from '%s': %w", collection, err)
	}
	return docs, nil
}

func (a *Adapter) hasMore(ctx context.Context, collection string, filter bson.M, afterID string) (bool, error) {
	probe := copyFilter(filter)
	probe["_id"] = bson.M{"$lt": afterID}

	err := a.db.Collection(collection).FindOne(ctx, probe).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to probe for the next page: %w", err)
	}
	return true, nil
}

func (a *Adapter) listFilter(rc *spec.RequestContext, principal *security.Principal) (bson.M, error) {
	filters, err := storage.BuildFilters(rc, principal)
	if err != nil {
		return nil, err
	}

	out := bson.M{}
	for _, f := range filters {
		if f.NotExisting {
			out[f.Field] = bson.M{"$exists": false}
			continue
		}
		switch f.Comparison {
		case "==":
			out[f.Field] = f.Value
		case "!=":
			out[f.Field] = bson.M{"$ne": f.Value}
		case "<":
			out[f.Field] = bson.M{"$lt": f.Value}
		case "<=":
			out[f.Field] = bson.M{"$lte": f.Value}
		case ">":
			out[f.Field] = bson.M{"$gt": f.Value}
		case ">=":
			out[f.Field] = bson.M{"$gte": f.Value}
		}
	}
	return out, nil
}

func (a *Adapter) projectDocs(docs []map[string]interface{}, keys spec.Tree, rc *spec.RequestContext) ([]map[string]interface{}, error) {
	results := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		id, _ := doc["_id"].(string)
		projected, err := entity.Parse(keys, doc, "get", storage.NormalizeID(rc, id), rc.TableID)
		if err != nil {
			return nil, err
		}
		results = append(results, projected)
	}
	return results, nil
}

func (a *Adapter) projectionKeys(rc *spec.RequestContext) spec.Tree {
	if rc.ResponseKeys != nil {
		return rc.ResponseKeys
	}
	return rc.DBKeys
}

// flattenInto turns a nested update into dotted $set paths, so that a PUT
// only touches the attributes it names.
func flattenInto(set bson.M, prefix string, update map[string]interface{}) {
	for k, v := range update {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok {
			flattenInto(set, path, nested)
			continue
		}
		set[path] = v
	}
}

// normalize converts decoded BSON values into plain Go maps and slices so
// the projection layer sees the same shapes as the JSON path.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case bson.M:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(val))
		for _, item := range val {
			out[item.Key] = normalize(item.Value)
		}
		return out
	case bson.A:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339)
	case primitive.ObjectID:
		return val.Hex()
	case int32:
		return int64(val)
	default:
		return v
	}
}

// cursorPredicate bounds a page at its cursor document. The cursor is the id
// the prior page ended on, so walking backwards keeps the anchor inclusive to
// reproduce that page.
func cursorPredicate(action, cursor string) bson.M {
	if action == storage.ActionPrev {
		return bson.M{"$gte": cursor}
	}
	return bson.M{"$lt": cursor}
}

func copyFilter(filter bson.M) bson.M {
	out := make(bson.M, len(filter))
	for k, v := range filter {
		out[k] = v
	}
	return out
}
