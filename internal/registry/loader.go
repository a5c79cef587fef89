package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
)

// LoadAll reads all entity definitions from the _entities system table and
// populates the registry. Definitions that fail identifier validation are
// skipped with a warning rather than poisoning the whole registry.
func LoadAll(ctx context.Context, db *sql.DB, reg *Registry) error {
	rows, err := db.QueryContext(ctx, "SELECT slug, definition FROM _entities ORDER BY slug")
	if err != nil {
		return fmt.Errorf("load entities: %w", err)
	}
	defer rows.Close()

	var entities []*Entity
	for rows.Next() {
		var slug string
		var defJSON []byte
		if err := rows.Scan(&slug, &defJSON); err != nil {
			return fmt.Errorf("scan entity row: %w", err)
		}

		var entity Entity
		if err := json.Unmarshal(defJSON, &entity); err != nil {
			log.Printf("WARN: skipping entity %s (invalid JSON): %v", slug, err)
			continue
		}
		if entity.Slug == "" {
			entity.Slug = slug
		}
		if err := entity.Validate(); err != nil {
			log.Printf("WARN: skipping entity %s (bad identifier): %v", slug, err)
			continue
		}
		entities = append(entities, &entity)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate entities: %w", err)
	}

	reg.Load(entities)
	log.Printf("Loaded %d entities into registry", len(entities))
	return nil
}

// Reload is an alias for LoadAll, called after admin mutations.
func Reload(ctx context.Context, db *sql.DB, reg *Registry) error {
	return LoadAll(ctx, db, reg)
}
