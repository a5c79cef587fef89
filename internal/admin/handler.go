// Package admin exposes management of the entity registry: the _entities
// system table, table provisioning, and registry reload. The engine itself
// never writes here; definitions are trusted configuration.
package admin

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"anchor-backend/internal/apperr"
	"anchor-backend/internal/registry"
	"anchor-backend/internal/store"
)

type Handler struct {
	store    *store.Store
	registry *registry.Registry
	migrator *store.Migrator
}

func NewHandler(s *store.Store, reg *registry.Registry, mig *store.Migrator) *Handler {
	return &Handler{store: s, registry: reg, migrator: mig}
}

func RegisterRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	admin := app.Group("/api/_admin", middleware...)

	admin.Get("/entities", h.ListEntities)
	admin.Get("/entities/:slug", h.GetEntity)
	admin.Post("/entities", h.CreateEntity)
	admin.Put("/entities/:slug", h.UpdateEntity)
	admin.Delete("/entities/:slug", h.DeleteEntity)
}

// ListEntities handles GET /api/_admin/entities
func (h *Handler) ListEntities(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		"SELECT slug, table_name, definition, created_at, updated_at FROM _entities ORDER BY slug")
	if err != nil {
		return fmt.Errorf("list entities: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

// GetEntity handles GET /api/_admin/entities/:slug
func (h *Handler) GetEntity(c *fiber.Ctx) error {
	slug := c.Params("slug")
	pb := h.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT slug, table_name, definition, created_at, updated_at FROM _entities WHERE slug = %s",
		pb.Add(slug))
	row, err := store.QueryRow(c.Context(), h.store.DB, sql, pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.UnknownEntity(slug)
	}
	if err != nil {
		return fmt.Errorf("get entity %s: %w", slug, err)
	}
	return c.JSON(fiber.Map{"data": row})
}

// CreateEntity handles POST /api/_admin/entities: persists the definition,
// provisions its table, and reloads the registry.
func (h *Handler) CreateEntity(c *fiber.Ctx) error {
	var entity registry.Entity
	if err := c.BodyParser(&entity); err != nil {
		return apperr.InvalidArgument("Invalid JSON body")
	}
	if err := entity.Validate(); err != nil {
		return err
	}

	defJSON, err := json.Marshal(&entity)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	d := h.store.Dialect
	pb := d.NewParamBuilder()
	sql := fmt.Sprintf("INSERT INTO _entities (slug, table_name, definition) VALUES (%s, %s, %s)",
		pb.Add(entity.Slug), pb.Add(entity.TableName()), pb.Add(string(defJSON)))
	if _, err := store.Exec(c.Context(), h.store.DB, sql, pb.Params()...); err != nil {
		if errors.Is(d.MapError(err), store.ErrUniqueViolation) {
			return apperr.Conflict(fmt.Sprintf("Entity %s already exists", entity.Slug))
		}
		return fmt.Errorf("create entity %s: %w", entity.Slug, err)
	}

	if err := h.migrator.Migrate(c.Context(), &entity); err != nil {
		return fmt.Errorf("provision table for %s: %w", entity.Slug, err)
	}
	if err := registry.Reload(c.Context(), h.store.DB, h.registry); err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": entity})
}

// UpdateEntity handles PUT /api/_admin/entities/:slug: replaces the
// definition, adds any new columns, and reloads the registry.
func (h *Handler) UpdateEntity(c *fiber.Ctx) error {
	slug := c.Params("slug")

	var entity registry.Entity
	if err := c.BodyParser(&entity); err != nil {
		return apperr.InvalidArgument("Invalid JSON body")
	}
	entity.Slug = slug
	if err := entity.Validate(); err != nil {
		return err
	}

	defJSON, err := json.Marshal(&entity)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	d := h.store.Dialect
	pb := d.NewParamBuilder()
	sql := fmt.Sprintf("UPDATE _entities SET definition = %s, updated_at = %s WHERE slug = %s",
		pb.Add(string(defJSON)), d.NowExpr(), pb.Add(slug))
	affected, err := store.Exec(c.Context(), h.store.DB, sql, pb.Params()...)
	if err != nil {
		return fmt.Errorf("update entity %s: %w", slug, err)
	}
	if affected == 0 {
		return apperr.UnknownEntity(slug)
	}

	if err := h.migrator.Migrate(c.Context(), &entity); err != nil {
		return fmt.Errorf("provision table for %s: %w", slug, err)
	}
	if err := registry.Reload(c.Context(), h.store.DB, h.registry); err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}

	return c.JSON(fiber.Map{"data": entity})
}

// DeleteEntity handles DELETE /api/_admin/entities/:slug. Removes the
// definition only; the backing table and its data are left in place.
func (h *Handler) DeleteEntity(c *fiber.Ctx) error {
	slug := c.Params("slug")

	pb := h.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("DELETE FROM _entities WHERE slug = %s", pb.Add(slug))
	affected, err := store.Exec(c.Context(), h.store.DB, sql, pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete entity %s: %w", slug, err)
	}
	if affected == 0 {
		return apperr.UnknownEntity(slug)
	}

	if err := registry.Reload(c.Context(), h.store.DB, h.registry); err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"slug": slug, "deleted": true}})
}
