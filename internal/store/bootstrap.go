package store

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Bootstrap creates the system tables if they don't exist.
// Idempotent: safe to run on every startup.
func (s *Store) Bootstrap(ctx context.Context) error {
	ddl := s.Dialect.SystemTablesSQL()

	// SQLite's driver executes one statement at a time
	if s.driver == "sqlite" {
		for _, stmt := range splitStatements(ddl) {
			if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("bootstrap statement: %w", err)
			}
		}
	} else {
		if _, err := s.DB.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("bootstrap system tables: %w", err)
		}
	}

	log.Printf("System tables ready (%s)", s.Dialect.Name())
	return nil
}

// splitStatements breaks a DDL script into individual statements on ";"
// at end of line. Good enough for our own DDL, which contains no string
// literals with semicolons.
func splitStatements(script string) []string {
	var stmts []string
	for _, part := range strings.Split(script, ";") {
		stmt := strings.TrimSpace(part)
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
