package engine

import "github.com/gofiber/fiber/v2"

// RegisterRoutes wires the dynamic entity routes. The static segments must
// register before the parameterized ones.
func RegisterRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	api := app.Group("/api", middleware...)

	api.Get("/:entity/_count", h.Count)
	api.Post("/:entity/_bulk_delete", h.DeleteMany)

	api.Get("/:entity", h.List)
	api.Post("/:entity", h.Create)
	api.Get("/:entity/:id", h.GetByID)
	api.Put("/:entity/:id", h.Update)
	api.Delete("/:entity/:id", h.Delete)
}
