package team

import "github.com/gofiber/fiber/v2"

// RegisterRoutes wires the team membership routes. Registered before the
// dynamic /api/:entity routes so "teams" is never treated as an entity slug.
func RegisterRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	teams := app.Group("/api/teams", middleware...)

	teams.Post("/", h.CreateTeam)
	teams.Get("/:teamId/members", h.ListMembers)
	teams.Post("/:teamId/members", h.AddMember)
	teams.Put("/:teamId/members/:userId", h.UpdateRole)
	teams.Delete("/:teamId/members/:userId", h.RemoveMember)
	teams.Post("/:teamId/transfer-ownership", h.TransferOwnership)
}
