package engine

import (
	"context"
	"errors"
	"fmt"

	"anchor-backend/internal/apperr"
	"anchor-backend/internal/registry"
	"anchor-backend/internal/store"
)

// Engine performs validated, security-scoped CRUD over registry-defined
// entities. It holds no per-call state; all state lives in the store.
type Engine struct {
	store    *store.Store
	registry *registry.Registry
	hooks    *HookRegistry
}

func New(s *store.Store, reg *registry.Registry, hooks *HookRegistry) *Engine {
	if hooks == nil {
		hooks = NewHookRegistry()
	}
	return &Engine{store: s, registry: reg, hooks: hooks}
}

// Hooks exposes the hook registry for callers wiring extensions.
func (e *Engine) Hooks() *HookRegistry {
	return e.hooks
}

// resolve looks up the entity definition and re-checks its identifiers.
// Both failures are configuration errors, fatal for this call.
func (e *Engine) resolve(slug string) (*registry.Entity, error) {
	entity := e.registry.Get(slug)
	if entity == nil {
		return nil, apperr.UnknownEntity(slug)
	}
	if err := entity.Validate(); err != nil {
		return nil, err
	}
	return entity, nil
}

// rejectUnknownKeys returns one detail per payload key that is neither a
// declared field nor engine-owned.
func rejectUnknownKeys(entity *registry.Entity, payload map[string]any) []apperr.ErrorDetail {
	var errs []apperr.ErrorDetail
	for k := range payload {
		if entity.HasField(k) {
			continue
		}
		errs = append(errs, apperr.ErrorDetail{
			Field:   k,
			Rule:    "unknown",
			Message: fmt.Sprintf("Unknown field: %s", k),
		})
	}
	return errs
}

// mapRow converts a storage row for callers: NULLs become absent keys, and
// SQLite integer booleans become bools. This is the single place storage
// null is translated; the rest of the engine never re-checks for it.
func (e *Engine) mapRow(entity *registry.Entity, row map[string]any) map[string]any {
	if row == nil {
		return nil
	}
	if e.store.Dialect.NeedsBoolFix() {
		var boolFields []string
		for _, f := range entity.Fields {
			if f.Type == registry.FieldBoolean {
				boolFields = append(boolFields, f.Name)
			}
		}
		store.NormalizeBooleans([]map[string]any{row}, boolFields)
	}
	decodeStorageValues(entity, row)
	for k, v := range row {
		if v == nil {
			delete(row, k)
		}
	}
	return row
}

// GetByID returns the row scoped to (id, security context), or nil when no
// such row is visible. Absence is a normal outcome, not an error.
func (e *Engine) GetByID(ctx context.Context, sec registry.SecurityContext, slug, id string) (map[string]any, error) {
	if !sec.Valid() || id == "" {
		return nil, nil
	}
	entity, err := e.resolve(slug)
	if err != nil {
		return nil, err
	}

	sql, params := BuildGetSQL(e.store.Dialect, entity, sec, id)
	row, err := store.QueryRow(ctx, e.store.DB, sql, params...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", slug, id, err)
	}
	return e.mapRow(entity, row), nil
}

// List returns one page of rows plus the total count under the same
// predicates. The count query runs first, outside a shared transaction
// with the page query.
func (e *Engine) List(ctx context.Context, sec registry.SecurityContext, slug string, opts ListOptions) (*ListResult, error) {
	if !sec.Valid() {
		return nil, apperr.InvalidArgument("userId is required")
	}
	entity, err := e.resolve(slug)
	if err != nil {
		return nil, err
	}

	countSQL, countParams, err := BuildCountSQL(e.store.Dialect, entity, sec, opts)
	if err != nil {
		return nil, err
	}
	countRow, err := store.QueryRow(ctx, e.store.DB, countSQL, countParams...)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", slug, err)
	}
	total := toInt64(countRow["count"])

	pageSQL, pageParams, err := BuildSelectSQL(e.store.Dialect, entity, sec, opts)
	if err != nil {
		return nil, err
	}
	rows, err := store.QueryRows(ctx, e.store.DB, pageSQL, pageParams...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", slug, err)
	}

	data := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		data = append(data, e.mapRow(entity, row))
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

	return &ListResult{Data: data, Total: total, Limit: limit, Offset: offset}, nil
}

// Create validates the payload, runs before-hooks, and inserts a new row
// with engine-assigned id and timestamps. Requires both a user and a team
// in the security context.
func (e *Engine) Create(ctx context.Context, sec registry.SecurityContext, slug string, payload map[string]any) (map[string]any, error) {
	if sec.UserID == "" {
		return nil, apperr.InvalidArgument("userId is required")
	}
	if sec.TeamID == "" {
		return nil, apperr.InvalidArgument("teamId is required")
	}
	entity, err := e.resolve(slug)
	if err != nil {
		return nil, err
	}

	if errs := rejectUnknownKeys(entity, payload); len(errs) > 0 {
		return nil, apperr.Validation(errs)
	}
	if errs := ValidateFields(entity, payload, false); len(errs) > 0 {
		return nil, apperr.Validation(errs)
	}

	hc := &HookContext{Entity: entity, Operation: OpCreate, Security: sec, Record: payload}
	if d := e.hooks.ExecuteBefore(ctx, hc); !d.Continue {
		return nil, apperr.HookRejected(d.Reason)
	}

	id := store.GenerateUUID()
	sql, params := BuildInsertSQL(e.store.Dialect, entity, sec, id, encodeStorageValues(entity, payload))
	row, err := store.QueryRow(ctx, e.store.DB, sql, params...)
	if errors.Is(err, store.ErrNotFound) {
		// Defensive: an INSERT ... RETURNING that returns no row
		return nil, apperr.CreateFailed(slug)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", slug, e.store.Dialect.MapError(err))
	}

	record := e.mapRow(entity, row)
	hc.Record = record
	e.hooks.ExecuteAfter(ctx, hc)
	return record, nil
}

// Update applies a partial payload to an existing row. The row must be
// visible under the security context before the write is attempted; absence
// raises NOT_FOUND so callers can distinguish it from success.
func (e *Engine) Update(ctx context.Context, sec registry.SecurityContext, slug, id string, payload map[string]any) (map[string]any, error) {
	if sec.UserID == "" {
		return nil, apperr.InvalidArgument("userId is required")
	}
	if len(payload) == 0 {
		return nil, apperr.NoFieldsToUpdate()
	}
	entity, err := e.resolve(slug)
	if err != nil {
		return nil, err
	}

	if errs := rejectUnknownKeys(entity, payload); len(errs) > 0 {
		return nil, apperr.Validation(errs)
	}
	if errs := ValidateFields(entity, payload, true); len(errs) > 0 {
		return nil, apperr.Validation(errs)
	}

	old, err := e.GetByID(ctx, sec, slug, id)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, apperr.NotFound(slug, id)
	}

	hc := &HookContext{Entity: entity, Operation: OpUpdate, Security: sec, Record: payload, Old: old}
	if d := e.hooks.ExecuteBefore(ctx, hc); !d.Continue {
		return nil, apperr.HookRejected(d.Reason)
	}

	sql, params := BuildUpdateSQL(e.store.Dialect, entity, sec, id, encodeStorageValues(entity, payload))
	row, err := store.QueryRow(ctx, e.store.DB, sql, params...)
	if errors.Is(err, store.ErrNotFound) {
		// Row vanished between the read and the write
		return nil, apperr.NotFound(slug, id)
	}
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", slug, id, e.store.Dialect.MapError(err))
	}

	record := e.mapRow(entity, row)
	hc.Record = record
	e.hooks.ExecuteAfter(ctx, hc)
	return record, nil
}

// Delete removes a row, reading it first so before-hooks can see the
// pre-delete state. Returns false when nothing matched; never errors on
// absence.
func (e *Engine) Delete(ctx context.Context, sec registry.SecurityContext, slug, id string) (bool, error) {
	if sec.UserID == "" {
		return false, apperr.InvalidArgument("userId is required")
	}
	entity, err := e.resolve(slug)
	if err != nil {
		return false, err
	}

	existing, err := e.GetByID(ctx, sec, slug, id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	hc := &HookContext{Entity: entity, Operation: OpDelete, Security: sec, Record: existing}
	if d := e.hooks.ExecuteBefore(ctx, hc); !d.Continue {
		return false, apperr.HookRejected(d.Reason)
	}

	sql, params := BuildDeleteSQL(e.store.Dialect, entity, sec, id)
	affected, err := store.Exec(ctx, e.store.DB, sql, params...)
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", slug, id, err)
	}
	if affected == 0 {
		return false, nil
	}

	e.hooks.ExecuteAfter(ctx, hc)
	return true, nil
}

// DeleteMany removes a set of rows and returns the count deleted. With
// executeHooks=false (the default path) it issues one batched DELETE for
// throughput; with executeHooks=true it degrades to sequential single-row
// deletes so hooks fire once per row.
func (e *Engine) DeleteMany(ctx context.Context, sec registry.SecurityContext, slug string, ids []string, executeHooks bool) (int, error) {
	if sec.UserID == "" {
		return 0, apperr.InvalidArgument("userId is required")
	}
	if len(ids) == 0 {
		return 0, nil
	}
	entity, err := e.resolve(slug)
	if err != nil {
		return 0, err
	}

	if executeHooks {
		deleted := 0
		for _, id := range ids {
			ok, err := e.Delete(ctx, sec, slug, id)
			if err != nil {
				return deleted, err
			}
			if ok {
				deleted++
			}
		}
		return deleted, nil
	}

	sql, params := BuildDeleteManySQL(e.store.Dialect, entity, sec, ids)
	affected, err := store.Exec(ctx, e.store.DB, sql, params...)
	if err != nil {
		return 0, fmt.Errorf("delete many %s: %w", slug, err)
	}
	return int(affected), nil
}

// Exists reports whether a row is visible under the security context.
// Empty id or user short-circuits to false without querying.
func (e *Engine) Exists(ctx context.Context, sec registry.SecurityContext, slug, id string) (bool, error) {
	if id == "" || !sec.Valid() {
		return false, nil
	}
	row, err := e.GetByID(ctx, sec, slug, id)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// Count returns the number of rows matching the exact-match filters under
// the security context.
func (e *Engine) Count(ctx context.Context, sec registry.SecurityContext, slug string, where map[string]any) (int64, error) {
	if !sec.Valid() {
		return 0, apperr.InvalidArgument("userId is required")
	}
	entity, err := e.resolve(slug)
	if err != nil {
		return 0, err
	}

	sql, params, err := BuildCountSQL(e.store.Dialect, entity, sec, ListOptions{Where: where})
	if err != nil {
		return 0, err
	}
	row, err := store.QueryRow(ctx, e.store.DB, sql, params...)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", slug, err)
	}
	return toInt64(row["count"]), nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
