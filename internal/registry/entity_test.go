package registry

import (
	"reflect"
	"testing"
)

func TestEntity_TableNameDefaultsToSlug(t *testing.T) {
	e := &Entity{Slug: "customers"}
	if got := e.TableName(); got != "customers" {
		t.Fatalf("expected table name customers, got %s", got)
	}

	e.Table = "crm_customers"
	if got := e.TableName(); got != "crm_customers" {
		t.Fatalf("expected table name crm_customers, got %s", got)
	}
}

func TestEntity_Columns(t *testing.T) {
	e := &Entity{
		Slug: "tasks",
		Fields: []Field{
			{Name: "title", Type: FieldText},
			{Name: "done", Type: FieldBoolean},
		},
	}
	want := []string{"id", "user_id", "team_id", "created_at", "updated_at", "title", "done"}
	if got := e.Columns(); !reflect.DeepEqual(got, want) {
		t.Fatalf("columns mismatch:\n got %v\nwant %v", got, want)
	}
}

func TestEntity_SortableColumn(t *testing.T) {
	e := &Entity{
		Slug:   "tasks",
		Fields: []Field{{Name: "title", Type: FieldText}},
	}

	for _, col := range []string{"title", "id", "created_at", "user_id"} {
		if !e.SortableColumn(col) {
			t.Errorf("expected %s to be sortable", col)
		}
	}
	if e.SortableColumn("nope") {
		t.Error("expected unknown column to not be sortable")
	}
}

func TestEntity_ValidateRejectsBadFieldName(t *testing.T) {
	e := &Entity{
		Slug:   "tasks",
		Fields: []Field{{Name: "title; DROP TABLE tasks", Type: FieldText}},
	}
	if err := e.Validate(); err == nil {
		t.Fatal("expected validation error for injected field name")
	}
}

func TestRegistry_LoadAndGet(t *testing.T) {
	reg := New()
	reg.Load([]*Entity{
		{Slug: "customers"},
		{Slug: "orders"},
	})

	if reg.Get("customers") == nil {
		t.Fatal("expected customers to be registered")
	}
	if reg.Get("missing") != nil {
		t.Fatal("expected missing to return nil")
	}
	if len(reg.All()) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(reg.All()))
	}

	// Load replaces the whole set
	reg.Load([]*Entity{{Slug: "invoices"}})
	if reg.Get("customers") != nil {
		t.Fatal("expected customers to be gone after reload")
	}
}
