package team

import (
	"github.com/gofiber/fiber/v2"

	"anchor-backend/internal/apperr"
	"anchor-backend/internal/auth"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// CreateTeam handles POST /api/teams
func (h *Handler) CreateTeam(c *fiber.Ctx) error {
	sec := auth.GetSecurityContext(c)

	var body struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperr.InvalidArgument("Invalid JSON body")
	}

	t, err := h.service.Create(c.Context(), body.Name, sec.UserID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": t})
}

// ListMembers handles GET /api/teams/:teamId/members
func (h *Handler) ListMembers(c *fiber.Ctx) error {
	teamID := c.Params("teamId")

	sec := auth.GetSecurityContext(c)
	ok, err := h.service.IsMember(c.Context(), teamID, sec.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("Only team members can list members")
	}

	members, err := h.service.ListMembers(c.Context(), teamID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": members})
}

// AddMember handles POST /api/teams/:teamId/members
func (h *Handler) AddMember(c *fiber.Ctx) error {
	teamID := c.Params("teamId")
	sec := auth.GetSecurityContext(c)

	ok, err := h.service.HasPermission(c.Context(), sec.UserID, teamID, RoleOwner, RoleAdmin)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("Only owners and admins can add members")
	}

	var body struct {
		UserID string `json:"user_id"`
		Role   Role   `json:"role"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperr.InvalidArgument("Invalid JSON body")
	}
	if body.Role == "" {
		body.Role = RoleMember
	}
	if body.Role == RoleOwner {
		return apperr.InvalidArgument("use ownership transfer to assign the owner role")
	}

	member, err := h.service.Add(c.Context(), teamID, body.UserID, body.Role, sec.UserID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": member})
}

// RemoveMember handles DELETE /api/teams/:teamId/members/:userId
func (h *Handler) RemoveMember(c *fiber.Ctx) error {
	teamID := c.Params("teamId")
	userID := c.Params("userId")
	sec := auth.GetSecurityContext(c)

	// Members may leave on their own; removing anyone else needs owner/admin.
	if userID != sec.UserID {
		ok, err := h.service.HasPermission(c.Context(), sec.UserID, teamID, RoleOwner, RoleAdmin)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Forbidden("Only owners and admins can remove members")
		}
	}

	if err := h.service.Remove(c.Context(), teamID, userID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"removed": true}})
}

// UpdateRole handles PUT /api/teams/:teamId/members/:userId
func (h *Handler) UpdateRole(c *fiber.Ctx) error {
	teamID := c.Params("teamId")
	userID := c.Params("userId")
	sec := auth.GetSecurityContext(c)

	ok, err := h.service.HasPermission(c.Context(), sec.UserID, teamID, RoleOwner, RoleAdmin)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("Only owners and admins can change roles")
	}

	var body struct {
		Role Role `json:"role"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperr.InvalidArgument("Invalid JSON body")
	}

	member, err := h.service.UpdateRole(c.Context(), teamID, userID, body.Role)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": member})
}

// TransferOwnership handles POST /api/teams/:teamId/transfer-ownership
// The requester must be the current owner; the service enforces it.
func (h *Handler) TransferOwnership(c *fiber.Ctx) error {
	teamID := c.Params("teamId")
	sec := auth.GetSecurityContext(c)

	var body struct {
		NewOwnerUserID string `json:"new_owner_user_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperr.InvalidArgument("Invalid JSON body")
	}

	if err := h.service.TransferOwnership(c.Context(), teamID, body.NewOwnerUserID, sec.UserID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"transferred": true}})
}
