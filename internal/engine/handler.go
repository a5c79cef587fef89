package engine

import (
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"anchor-backend/internal/apperr"
	"anchor-backend/internal/auth"
)

// Handler exposes the engine over HTTP. It is a thin translation layer:
// all semantics live in the Engine.
type Handler struct {
	engine *Engine
}

func NewHandler(e *Engine) *Handler {
	return &Handler{engine: e}
}

// List handles GET /api/:entity
func (h *Handler) List(c *fiber.Ctx) error {
	sec := auth.GetSecurityContext(c)
	opts := parseListOptions(c)

	result, err := h.engine.List(c.Context(), sec, c.Params("entity"), opts)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// GetByID handles GET /api/:entity/:id
func (h *Handler) GetByID(c *fiber.Ctx) error {
	sec := auth.GetSecurityContext(c)
	slug := c.Params("entity")
	id := c.Params("id")

	row, err := h.engine.GetByID(c.Context(), sec, slug, id)
	if err != nil {
		return err
	}
	if row == nil {
		return apperr.NotFound(slug, id)
	}
	return c.JSON(fiber.Map{"data": row})
}

// Create handles POST /api/:entity
func (h *Handler) Create(c *fiber.Ctx) error {
	sec := auth.GetSecurityContext(c)

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return apperr.InvalidArgument("Invalid JSON body")
	}

	record, err := h.engine.Create(c.Context(), sec, c.Params("entity"), body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": record})
}

// Update handles PUT /api/:entity/:id
func (h *Handler) Update(c *fiber.Ctx) error {
	sec := auth.GetSecurityContext(c)

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return apperr.InvalidArgument("Invalid JSON body")
	}

	record, err := h.engine.Update(c.Context(), sec, c.Params("entity"), c.Params("id"), body)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": record})
}

// Delete handles DELETE /api/:entity/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	sec := auth.GetSecurityContext(c)
	slug := c.Params("entity")
	id := c.Params("id")

	deleted, err := h.engine.Delete(c.Context(), sec, slug, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.NotFound(slug, id)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "deleted": true}})
}

// DeleteMany handles POST /api/:entity/_bulk_delete
func (h *Handler) DeleteMany(c *fiber.Ctx) error {
	sec := auth.GetSecurityContext(c)

	var body struct {
		IDs          []string `json:"ids"`
		ExecuteHooks bool     `json:"execute_hooks"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperr.InvalidArgument("Invalid JSON body")
	}

	count, err := h.engine.DeleteMany(c.Context(), sec, c.Params("entity"), body.IDs, body.ExecuteHooks)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": count}})
}

// Count handles GET /api/:entity/_count
func (h *Handler) Count(c *fiber.Ctx) error {
	sec := auth.GetSecurityContext(c)
	opts := parseListOptions(c)

	total, err := h.engine.Count(c.Context(), sec, c.Params("entity"), opts.Where)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"count": total}})
}

// parseListOptions maps query parameters onto ListOptions:
// filter[field]=value, search, sort=-created_at, limit, offset.
func parseListOptions(c *fiber.Ctx) ListOptions {
	opts := ListOptions{Search: c.Query("search")}

	for key, val := range c.Queries() {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		field := key[7 : len(key)-1]
		if opts.Where == nil {
			opts.Where = make(map[string]any)
		}
		opts.Where[field] = val
	}

	if sortParam := strings.TrimSpace(c.Query("sort")); sortParam != "" {
		if strings.HasPrefix(sortParam, "-") {
			opts.OrderBy = sortParam[1:]
			opts.OrderDir = "DESC"
		} else {
			opts.OrderBy = sortParam
			opts.OrderDir = "ASC"
		}
	}

	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		opts.Limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		opts.Offset = v
	}
	return opts
}

// ErrorHandler is the central Fiber error handler translating typed errors
// into HTTP responses.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(apperr.ErrorResponse{Error: appErr})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(apperr.ErrorResponse{
			Error: apperr.New("HTTP_ERROR", fiberErr.Code, fiberErr.Message),
		})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(apperr.ErrorResponse{
		Error: apperr.New("INTERNAL_ERROR", 500, "Internal server error"),
	})
}
