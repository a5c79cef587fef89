package registry

// Field types understood by the engine's payload validator. Types outside
// this set (email, url, date, json, ...) pass through without format checks;
// format validation for those is a caller responsibility.
const (
	FieldText        = "text"
	FieldNumber      = "number"
	FieldBoolean     = "boolean"
	FieldSelect      = "select"
	FieldMultiSelect = "multiselect"
)

// Option is one admissible value of a select or multiselect field.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Field struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Required   bool     `json:"required,omitempty"`
	Searchable bool     `json:"searchable,omitempty"`
	Options    []Option `json:"options,omitempty"`
}

// HasOption reports whether v is one of the field's declared option values.
func (f *Field) HasOption(v string) bool {
	for _, o := range f.Options {
		if o.Value == v {
			return true
		}
	}
	return false
}

// Entity is one declarative entity definition, loaded from the _entities
// system table and treated as immutable afterwards. Every Name and Table
// must pass ValidateIdentifier before any query referencing them is built.
type Entity struct {
	Slug   string  `json:"slug"`
	Table  string  `json:"table,omitempty"` // defaults to Slug
	Fields []Field `json:"fields"`
}

// TableName returns the backing table, defaulting to the slug.
func (e *Entity) TableName() string {
	if e.Table != "" {
		return e.Table
	}
	return e.Slug
}

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity declares a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// FieldNames returns all declared field names.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// SearchableFields returns the fields the list search predicate may touch.
func (e *Entity) SearchableFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.Searchable {
			fields = append(fields, f)
		}
	}
	return fields
}

// SystemColumns are present on every entity table and are owned by the
// engine, never by caller payloads.
var SystemColumns = []string{"id", "user_id", "team_id", "created_at", "updated_at"}

// IsSystemColumn reports whether name is an engine-owned column.
func IsSystemColumn(name string) bool {
	for _, c := range SystemColumns {
		if c == name {
			return true
		}
	}
	return false
}

// Columns returns the full SELECT column list: system columns followed by
// the declared fields.
func (e *Entity) Columns() []string {
	cols := make([]string, 0, len(SystemColumns)+len(e.Fields))
	cols = append(cols, SystemColumns...)
	for _, f := range e.Fields {
		if !IsSystemColumn(f.Name) {
			cols = append(cols, f.Name)
		}
	}
	return cols
}

// SortableColumn reports whether name may appear in an ORDER BY clause:
// either a declared field or a system column.
func (e *Entity) SortableColumn(name string) bool {
	return IsSystemColumn(name) || e.HasField(name)
}

// Validate checks that the table name and every field name are safe SQL
// identifiers. Called once at load time; a failure means a misconfigured
// registry, not a user error.
func (e *Entity) Validate() error {
	if err := ValidateIdentifier(e.Slug); err != nil {
		return err
	}
	if err := ValidateIdentifier(e.TableName()); err != nil {
		return err
	}
	for _, f := range e.Fields {
		if err := ValidateIdentifier(f.Name); err != nil {
			return err
		}
	}
	return nil
}
