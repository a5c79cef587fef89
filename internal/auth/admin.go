package auth

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"anchor-backend/internal/apperr"
	"anchor-backend/internal/store"
)

// RequireAdmin guards routes that mutate the entity registry. Must run
// after Middleware.
func RequireAdmin(s *store.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sec := GetSecurityContext(c)
		if sec.UserID == "" {
			return apperr.Unauthorized("")
		}

		pb := s.Dialect.NewParamBuilder()
		sql := fmt.Sprintf("SELECT is_admin FROM _users WHERE id = %s", pb.Add(sec.UserID))
		row, err := store.QueryRow(c.Context(), s.DB, sql, pb.Params()...)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.Forbidden("Admin access required")
		}
		if err != nil {
			return fmt.Errorf("check admin: %w", err)
		}

		if !boolVal(row["is_admin"]) {
			return apperr.Forbidden("Admin access required")
		}
		return c.Next()
	}
}

func boolVal(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case float64:
		return b != 0
	default:
		return false
	}
}
