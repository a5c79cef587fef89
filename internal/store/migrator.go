package store

import (
	"context"
	"fmt"
	"strings"

	"anchor-backend/internal/registry"
)

// Migrator provisions entity tables from their registry definitions.
type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// Migrate ensures the table matches the entity definition: creates it if
// missing, or adds missing columns. Never drops or retypes columns.
func (m *Migrator) Migrate(ctx context.Context, entity *registry.Entity) error {
	if err := entity.Validate(); err != nil {
		return fmt.Errorf("validate %s: %w", entity.Slug, err)
	}

	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, entity.TableName())
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}

	if !exists {
		return m.createTable(ctx, entity)
	}
	return m.alterTable(ctx, entity)
}

func (m *Migrator) createTable(ctx context.Context, entity *registry.Entity) error {
	d := m.store.Dialect

	cols := []string{
		"id TEXT PRIMARY KEY",
		"user_id TEXT NOT NULL",
		"team_id TEXT",
		fmt.Sprintf("created_at %s", d.ColumnType("date")),
		fmt.Sprintf("updated_at %s", d.ColumnType("date")),
	}
	for _, f := range entity.Fields {
		if registry.IsSystemColumn(f.Name) {
			continue
		}
		cols = append(cols, fmt.Sprintf("%s %s", f.Name, d.ColumnType(f.Type)))
	}

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", entity.TableName(), strings.Join(cols, ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", entity.TableName(), err)
	}

	// Scoping predicates hit these on every query
	for _, col := range []string{"user_id", "team_id"} {
		idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
			entity.TableName(), col, entity.TableName(), col)
		if _, err := m.store.DB.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create index on %s.%s: %w", entity.TableName(), col, err)
		}
	}
	return nil
}

func (m *Migrator) alterTable(ctx context.Context, entity *registry.Entity) error {
	existing, err := m.store.Dialect.GetColumns(ctx, m.store.DB, entity.TableName())
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", entity.TableName(), err)
	}

	for _, f := range entity.Fields {
		if registry.IsSystemColumn(f.Name) {
			continue
		}
		if _, ok := existing[f.Name]; ok {
			continue
		}
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			entity.TableName(), f.Name, m.store.Dialect.ColumnType(f.Type))
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("add column %s.%s: %w", entity.TableName(), f.Name, err)
		}
	}
	return nil
}
