package storage

import (
	"encoding/json"
	"time"

	"github.com/bitechdev/ServeSpec/pkg/security"
)

// AuditRecord is one audit-table row describing a write. AttributesChanged
// is a JSON document mapping each changed attribute to its old and new
// value; an attribute that appeared for the first time carries only "new".
type AuditRecord struct {
	AttributesChanged string `json:"attributes_changed"`
	TableID           string `json:"table_id"`
	TableName         string `json:"table_name"`
	Timestamp         string `json:"timestamp"`
	User              string `json:"user"`
}

// NewAuditRecord diffs the entity before and after a write. The second
// return is false when nothing changed, in which case no row should be
// written.
func NewAuditRecord(oldData, newData map[string]interface{}, entityID, tableName string, principal *security.Principal) (*AuditRecord, bool) {
	changed := diffAttributes(oldData, newData)
	if len(changed) == 0 {
		return nil, false
	}

	raw, err := json.Marshal(changed)
	if err != nil {
		return nil, false
	}

	user := ""
	if principal != nil {
		user = principal.UPN
		if user == "" {
			user = principal.IP
		}
	}

	return &AuditRecord{
		AttributesChanged: string(raw),
		TableID:           entityID,
		TableName:         tableName,
		Timestamp:         time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		User:              user,
	}, true
}

// AsMap returns the record as a generic document for storing
func (r *AuditRecord) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"attributes_changed": r.AttributesChanged,
		"table_id":           r.TableID,
		"table_name":         r.TableName,
		"timestamp":          r.Timestamp,
		"user":               r.User,
	}
}

func diffAttributes(oldData, newData map[string]interface{}) map[string]map[string]interface{} {
	changed := map[string]map[string]interface{}{}

	for attr, newValue := range newData {
		oldValue, existed := oldData[attr]
		if !existed {
			changed[attr] = map[string]interface{}{"new": newValue}
			continue
		}
		if !jsonEqual(oldValue, newValue) {
			changed[attr] = map[string]interface{}{"old": oldValue, "new": newValue}
		}
	}

	for attr, oldValue := range oldData {
		if _, stillThere := newData[attr]; !stillThere {
			changed[attr] = map[string]interface{}{"old": oldValue, "new": nil}
		}
	}

	return changed
}

func jsonEqual(a, b interface{}) bool {
	rawA, errA := json.Marshal(a)
	rawB, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(rawA) == string(rawB)
}
