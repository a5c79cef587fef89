package engine

import (
	"encoding/json"

	"anchor-backend/internal/registry"
)

// storesAsJSON reports whether values of the field type are kept as
// serialized JSON text in the database (JSONB on PostgreSQL, TEXT on SQLite).
func storesAsJSON(fieldType string) bool {
	return fieldType == registry.FieldMultiSelect || fieldType == "json"
}

// encodeStorageValues returns a copy of the payload with composite values
// serialized for binding. Slices and maps cannot be bound as SQL parameters
// directly.
func encodeStorageValues(entity *registry.Entity, payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		f := entity.GetField(k)
		if f != nil && v != nil && storesAsJSON(f.Type) {
			if b, err := json.Marshal(v); err == nil {
				out[k] = string(b)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// decodeStorageValues reverses encodeStorageValues on a row read back from
// the database, in place.
func decodeStorageValues(entity *registry.Entity, row map[string]any) {
	for _, f := range entity.Fields {
		if !storesAsJSON(f.Type) {
			continue
		}
		s, ok := row[f.Name].(string)
		if !ok {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			row[f.Name] = decoded
		}
	}
}
