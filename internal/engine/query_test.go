package engine

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"anchor-backend/internal/apperr"
	"anchor-backend/internal/registry"
	"anchor-backend/internal/store"
)

func secCtx() registry.SecurityContext {
	return registry.SecurityContext{UserID: "u1", TeamID: "t1"}
}

func TestBuildSelectSQL_Postgres(t *testing.T) {
	d := store.NewDialect("postgres")
	entity := testEntity()

	sql, params, err := BuildSelectSQL(d, entity, secCtx(), ListOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "SELECT id, user_id, team_id, created_at, updated_at, title, amount, done, status, tags, notes " +
		"FROM test_entities WHERE user_id = $1 AND team_id = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4"
	if sql != want {
		t.Errorf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
	wantParams := []any{"u1", "t1", DefaultLimit, 0}
	if !reflect.DeepEqual(params, wantParams) {
		t.Errorf("params = %v, want %v", params, wantParams)
	}
}

func TestBuildSelectSQL_NoTeamOmitsTeamPredicate(t *testing.T) {
	d := store.NewDialect("sqlite")
	entity := testEntity()
	sec := registry.SecurityContext{UserID: "u1"}

	sql, params, err := BuildSelectSQL(d, entity, sec, ListOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(sql, "team_id =") {
		t.Errorf("no-team scope must not filter on team_id: %s", sql)
	}
	if !strings.Contains(sql, "user_id = ?1") {
		t.Errorf("user scope predicate missing: %s", sql)
	}
	if params[0] != "u1" {
		t.Errorf("first param = %v, want u1", params[0])
	}
}

func TestBuildSelectSQL_FiltersSortedAndParameterized(t *testing.T) {
	d := store.NewDialect("postgres")
	entity := testEntity()

	opts := ListOptions{Where: map[string]any{"status": "active", "done": true}}
	sql, params, err := BuildSelectSQL(d, entity, secCtx(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Filter keys sort alphabetically so the SQL is deterministic.
	if !strings.Contains(sql, "done = $3 AND status = $4") {
		t.Errorf("expected sorted filter predicates, got: %s", sql)
	}
	if params[2] != true || params[3] != "active" {
		t.Errorf("filter values bound out of order: %v", params)
	}
}

func TestBuildSelectSQL_UnknownFilterField(t *testing.T) {
	d := store.NewDialect("postgres")
	entity := testEntity()

	_, _, err := BuildSelectSQL(d, entity, secCtx(), ListOptions{
		Where: map[string]any{"nope": 1},
	})
	var appErr *apperr.AppError
	if !errors.As(err, &appErr) || appErr.Code != "UNKNOWN_FIELD" {
		t.Fatalf("expected UNKNOWN_FIELD, got %v", err)
	}
}

func TestBuildSelectSQL_SearchCoversSearchableOnly(t *testing.T) {
	d := store.NewDialect("postgres")
	entity := testEntity()

	sql, params, err := BuildSelectSQL(d, entity, secCtx(), ListOptions{Search: "report"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Only title is searchable; notes is plain text without the flag.
	if !strings.Contains(sql, "(title ILIKE $3)") {
		t.Errorf("expected search over title only, got: %s", sql)
	}
	if strings.Contains(sql, "notes ILIKE") {
		t.Errorf("search must not cover non-searchable fields: %s", sql)
	}
	if params[2] != "%report%" {
		t.Errorf("search pattern = %v, want %%report%%", params[2])
	}
}

func TestBuildSelectSQL_OrderValidation(t *testing.T) {
	d := store.NewDialect("postgres")
	entity := testEntity()

	sql, _, err := BuildSelectSQL(d, entity, secCtx(), ListOptions{OrderBy: "title", OrderDir: "desc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sql, "ORDER BY title DESC") {
		t.Errorf("expected normalized ORDER BY, got: %s", sql)
	}

	// Invalid direction falls back to ASC rather than reaching the SQL.
	sql, _, err = BuildSelectSQL(d, entity, secCtx(), ListOptions{OrderBy: "title", OrderDir: "sideways"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sql, "ORDER BY title ASC") {
		t.Errorf("bad direction should normalize to ASC, got: %s", sql)
	}

	_, _, err = BuildSelectSQL(d, entity, secCtx(), ListOptions{OrderBy: "title; DROP TABLE x"})
	var appErr *apperr.AppError
	if !errors.As(err, &appErr) || appErr.Code != "UNKNOWN_FIELD" {
		t.Fatalf("expected UNKNOWN_FIELD for hostile sort column, got %v", err)
	}
}

func TestBuildSelectSQL_LimitClamping(t *testing.T) {
	d := store.NewDialect("postgres")
	entity := testEntity()

	cases := []struct {
		in, want int
	}{
		{0, DefaultLimit},
		{-5, DefaultLimit},
		{50, 50},
		{500, MaxLimit},
	}
	for _, tc := range cases {
		_, params, err := BuildSelectSQL(d, entity, secCtx(), ListOptions{Limit: tc.in})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// limit is the second-to-last bound parameter
		got := params[len(params)-2]
		if got != tc.want {
			t.Errorf("limit %d clamped to %v, want %d", tc.in, got, tc.want)
		}
	}
}

func TestBuildCountSQL_SamePredicatesAsPage(t *testing.T) {
	d := store.NewDialect("postgres")
	entity := testEntity()
	opts := ListOptions{Where: map[string]any{"done": true}, Search: "x"}

	countSQL, countParams, err := BuildCountSQL(d, entity, secCtx(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(countSQL, "SELECT COUNT(*) AS count FROM test_entities WHERE user_id = $1 AND team_id = $2") {
		t.Errorf("unexpected count SQL: %s", countSQL)
	}

	pageSQL, pageParams, err := BuildSelectSQL(d, entity, secCtx(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Count binds everything the page query binds except limit and offset.
	if !reflect.DeepEqual(countParams, pageParams[:len(pageParams)-2]) {
		t.Errorf("count params %v diverge from page params %v", countParams, pageParams)
	}
	if !strings.Contains(pageSQL, "done = $3") || !strings.Contains(countSQL, "done = $3") {
		t.Errorf("filter predicate missing from one of the queries")
	}
}

func TestBuildGetSQL_ScopedByIDAndContext(t *testing.T) {
	d := store.NewDialect("sqlite")
	entity := testEntity()

	sql, params := BuildGetSQL(d, entity, secCtx(), "abc")
	if !strings.Contains(sql, "WHERE id = ?1 AND user_id = ?2 AND team_id = ?3") {
		t.Errorf("unexpected get SQL: %s", sql)
	}
	if !reflect.DeepEqual(params, []any{"abc", "u1", "t1"}) {
		t.Errorf("params = %v", params)
	}
}

func TestBuildInsertSQL(t *testing.T) {
	d := store.NewDialect("postgres")
	entity := testEntity()

	sql, params := BuildInsertSQL(d, entity, secCtx(), "id-1", map[string]any{
		"title": "hello",
		"done":  false,
	})
	want := "INSERT INTO test_entities (id, user_id, team_id, done, title, created_at, updated_at) " +
		"VALUES ($1, $2, $3, $4, $5, NOW(), NOW()) " +
		"RETURNING id, user_id, team_id, created_at, updated_at, title, amount, done, status, tags, notes"
	if sql != want {
		t.Errorf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
	if !reflect.DeepEqual(params, []any{"id-1", "u1", "t1", false, "hello"}) {
		t.Errorf("params = %v", params)
	}
}

func TestBuildUpdateSQL(t *testing.T) {
	d := store.NewDialect("sqlite")
	entity := testEntity()

	sql, params := BuildUpdateSQL(d, entity, secCtx(), "id-1", map[string]any{"title": "new"})
	if !strings.Contains(sql, "SET title = ?1, updated_at = datetime('now')") {
		t.Errorf("unexpected SET clause: %s", sql)
	}
	if !strings.Contains(sql, "WHERE id = ?2 AND user_id = ?3 AND team_id = ?4") {
		t.Errorf("update must stay scoped: %s", sql)
	}
	if !strings.Contains(sql, "RETURNING ") {
		t.Errorf("update must return the row: %s", sql)
	}
	if !reflect.DeepEqual(params, []any{"new", "id-1", "u1", "t1"}) {
		t.Errorf("params = %v", params)
	}
}

func TestBuildDeleteManySQL(t *testing.T) {
	entity := testEntity()

	// PostgreSQL binds the whole set as one array parameter.
	pg := store.NewDialect("postgres")
	sql, params := BuildDeleteManySQL(pg, entity, secCtx(), []string{"a", "b"})
	if !strings.Contains(sql, "id = ANY($1)") {
		t.Errorf("unexpected pg delete-many SQL: %s", sql)
	}
	if len(params) != 3 {
		t.Errorf("pg params = %v, want array + scope", params)
	}

	// SQLite expands the set into individual placeholders.
	lite := store.NewDialect("sqlite")
	sql, params = BuildDeleteManySQL(lite, entity, secCtx(), []string{"a", "b"})
	if !strings.Contains(sql, "id IN (?1, ?2)") {
		t.Errorf("unexpected sqlite delete-many SQL: %s", sql)
	}
	if !reflect.DeepEqual(params, []any{"a", "b", "u1", "t1"}) {
		t.Errorf("sqlite params = %v", params)
	}

	// Empty set can never match.
	sql, _ = BuildDeleteManySQL(lite, entity, secCtx(), nil)
	if !strings.Contains(sql, "1 = 0") {
		t.Errorf("empty id set should be unsatisfiable: %s", sql)
	}
}
