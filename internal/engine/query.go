package engine

import (
	"fmt"
	"sort"
	"strings"

	"anchor-backend/internal/apperr"
	"anchor-backend/internal/registry"
	"anchor-backend/internal/store"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ListOptions controls filtering, search, ordering and pagination for List.
type ListOptions struct {
	// Where is an exact-match filter map; every value is bound as a
	// parameter, never interpolated.
	Where map[string]any
	// Search adds a case-insensitive pattern predicate over the fields
	// marked searchable.
	Search   string
	OrderBy  string
	OrderDir string
	Limit    int
	Offset   int
}

// ListResult is the fixed pagination envelope returned to callers.
type ListResult struct {
	Data   []map[string]any `json:"data"`
	Total  int64            `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// buildScope returns the security-context predicates included in every
// query. The caller's own filters are additive; these are never overridable.
func buildScope(sec registry.SecurityContext, pb store.ParamBuilder) []string {
	clauses := []string{fmt.Sprintf("user_id = %s", pb.Add(sec.UserID))}
	if sec.TeamID != "" {
		clauses = append(clauses, fmt.Sprintf("team_id = %s", pb.Add(sec.TeamID)))
	}
	return clauses
}

// buildFilters turns the exact-match where map into predicates, validating
// every key against the entity definition. Keys iterate in sorted order so
// generated SQL is deterministic.
func buildFilters(entity *registry.Entity, where map[string]any, pb store.ParamBuilder) ([]string, error) {
	if len(where) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	for _, k := range keys {
		if !entity.SortableColumn(k) {
			return nil, apperr.New("UNKNOWN_FIELD", 400, fmt.Sprintf("Unknown filter field: %s", k))
		}
		clauses = append(clauses, fmt.Sprintf("%s = %s", k, pb.Add(where[k])))
	}
	return clauses, nil
}

// buildSearch returns a grouped pattern predicate over the searchable
// fields, or "" when the entity declares none.
func buildSearch(d store.Dialect, entity *registry.Entity, term string, pb store.ParamBuilder) string {
	fields := entity.SearchableFields()
	if term == "" || len(fields) == 0 {
		return ""
	}
	pattern := "%" + term + "%"
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s %s %s", f.Name, d.LikeOperator(), pb.Add(pattern))
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func buildOrder(entity *registry.Entity, opts ListOptions) (string, error) {
	if opts.OrderBy == "" {
		return "ORDER BY created_at DESC", nil
	}
	if !entity.SortableColumn(opts.OrderBy) {
		return "", apperr.New("UNKNOWN_FIELD", 400, fmt.Sprintf("Unknown sort field: %s", opts.OrderBy))
	}
	dir := strings.ToUpper(opts.OrderDir)
	if dir != "ASC" && dir != "DESC" {
		dir = "ASC"
	}
	return fmt.Sprintf("ORDER BY %s %s", opts.OrderBy, dir), nil
}

// whereClauses assembles scope + filters + search for both the page and the
// count query, so pagination metadata always reflects the same predicate set.
func whereClauses(d store.Dialect, entity *registry.Entity, sec registry.SecurityContext, opts ListOptions, pb store.ParamBuilder) ([]string, error) {
	where := buildScope(sec, pb)
	filters, err := buildFilters(entity, opts.Where, pb)
	if err != nil {
		return nil, err
	}
	where = append(where, filters...)
	if clause := buildSearch(d, entity, opts.Search, pb); clause != "" {
		where = append(where, clause)
	}
	return where, nil
}

// BuildSelectSQL builds the parameterized page query for List.
func BuildSelectSQL(d store.Dialect, entity *registry.Entity, sec registry.SecurityContext, opts ListOptions) (string, []any, error) {
	pb := d.NewParamBuilder()
	where, err := whereClauses(d, entity, sec, opts, pb)
	if err != nil {
		return "", nil, err
	}
	order, err := buildOrder(entity, opts)
	if err != nil {
		return "", nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s %s LIMIT %s OFFSET %s",
		strings.Join(entity.Columns(), ", "), entity.TableName(),
		strings.Join(where, " AND "), order, pb.Add(limit), pb.Add(offset))
	return sql, pb.Params(), nil
}

// BuildCountSQL builds the COUNT query with the same predicates as the page
// query. The two run outside a shared transaction, so under concurrent
// writes total and data may be momentarily inconsistent; accepted.
func BuildCountSQL(d store.Dialect, entity *registry.Entity, sec registry.SecurityContext, opts ListOptions) (string, []any, error) {
	pb := d.NewParamBuilder()
	where, err := whereClauses(d, entity, sec, opts, pb)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("SELECT COUNT(*) AS count FROM %s WHERE %s",
		entity.TableName(), strings.Join(where, " AND "))
	return sql, pb.Params(), nil
}

// BuildGetSQL builds the single-row fetch scoped to (id, security context).
func BuildGetSQL(d store.Dialect, entity *registry.Entity, sec registry.SecurityContext, id string) (string, []any) {
	pb := d.NewParamBuilder()
	where := append([]string{fmt.Sprintf("id = %s", pb.Add(id))}, buildScope(sec, pb)...)
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(entity.Columns(), ", "), entity.TableName(), strings.Join(where, " AND "))
	return sql, pb.Params()
}

// BuildInsertSQL builds a single parameterized INSERT returning the new row.
// The engine owns id, user_id, team_id and the timestamps; payload holds the
// already-validated declared fields.
func BuildInsertSQL(d store.Dialect, entity *registry.Entity, sec registry.SecurityContext, id string, payload map[string]any) (string, []any) {
	pb := d.NewParamBuilder()

	columns := []string{"id", "user_id", "team_id"}
	values := []string{pb.Add(id), pb.Add(sec.UserID), pb.Add(sec.TeamID)}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		columns = append(columns, k)
		values = append(values, pb.Add(payload[k]))
	}

	columns = append(columns, "created_at", "updated_at")
	values = append(values, d.NowExpr(), d.NowExpr())

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		entity.TableName(), strings.Join(columns, ", "), strings.Join(values, ", "),
		strings.Join(entity.Columns(), ", "))
	return sql, pb.Params()
}

// BuildUpdateSQL builds a scoped UPDATE. updated_at is always refreshed
// regardless of the caller-supplied fields.
func BuildUpdateSQL(d store.Dialect, entity *registry.Entity, sec registry.SecurityContext, id string, payload map[string]any) (string, []any) {
	pb := d.NewParamBuilder()

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		sets = append(sets, fmt.Sprintf("%s = %s", k, pb.Add(payload[k])))
	}
	sets = append(sets, fmt.Sprintf("updated_at = %s", d.NowExpr()))

	where := append([]string{fmt.Sprintf("id = %s", pb.Add(id))}, buildScope(sec, pb)...)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING %s",
		entity.TableName(), strings.Join(sets, ", "), strings.Join(where, " AND "),
		strings.Join(entity.Columns(), ", "))
	return sql, pb.Params()
}

// BuildDeleteSQL builds a scoped single-row DELETE.
func BuildDeleteSQL(d store.Dialect, entity *registry.Entity, sec registry.SecurityContext, id string) (string, []any) {
	pb := d.NewParamBuilder()
	where := append([]string{fmt.Sprintf("id = %s", pb.Add(id))}, buildScope(sec, pb)...)
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s", entity.TableName(), strings.Join(where, " AND "))
	return sql, pb.Params()
}

// BuildDeleteManySQL builds one batched DELETE over a set of ids.
func BuildDeleteManySQL(d store.Dialect, entity *registry.Entity, sec registry.SecurityContext, ids []string) (string, []any) {
	pb := d.NewParamBuilder()
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	where := append([]string{d.InExpr("id", pb, values)}, buildScope(sec, pb)...)
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s", entity.TableName(), strings.Join(where, " AND "))
	return sql, pb.Params()
}
