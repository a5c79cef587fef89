package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"anchor-backend/internal/apperr"
	"anchor-backend/internal/store"
)

type Handler struct {
	store  *store.Store
	secret string
}

func NewHandler(s *store.Store, secret string) *Handler {
	return &Handler{store: s, secret: secret}
}

func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Post("/auth/register", h.Register)
	app.Post("/auth/login", h.Login)
	app.Post("/auth/refresh", h.Refresh)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /auth/register
func (h *Handler) Register(c *fiber.Ctx) error {
	var body credentials
	if err := c.BodyParser(&body); err != nil {
		return apperr.InvalidArgument("Invalid JSON body")
	}
	body.Email = strings.TrimSpace(strings.ToLower(body.Email))
	if body.Email == "" || len(body.Password) < 8 {
		return apperr.InvalidArgument("Email and a password of at least 8 characters are required")
	}

	hash, err := HashPassword(body.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	d := h.store.Dialect
	pb := d.NewParamBuilder()
	sql := fmt.Sprintf("INSERT INTO _users (id, email, password_hash) VALUES (%s, %s, %s) RETURNING id, email",
		pb.Add(store.GenerateUUID()), pb.Add(body.Email), pb.Add(hash))
	row, err := store.QueryRow(c.Context(), h.store.DB, sql, pb.Params()...)
	if err != nil {
		if errors.Is(d.MapError(err), store.ErrUniqueViolation) {
			return apperr.Conflict("An account with this email already exists")
		}
		return fmt.Errorf("register: %w", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": row})
}

// Login handles POST /auth/login
func (h *Handler) Login(c *fiber.Ctx) error {
	var body credentials
	if err := c.BodyParser(&body); err != nil {
		return apperr.InvalidArgument("Invalid JSON body")
	}
	body.Email = strings.TrimSpace(strings.ToLower(body.Email))

	pb := h.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT id, password_hash FROM _users WHERE email = %s AND active = %s",
		pb.Add(body.Email), pb.Add(activeFlag(h.store)))
	row, err := store.QueryRow(c.Context(), h.store.DB, sql, pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Unauthorized("Invalid email or password")
	}
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	userID, _ := row["id"].(string)
	hash, _ := row["password_hash"].(string)
	if !CheckPassword(body.Password, hash) {
		return apperr.Unauthorized("Invalid email or password")
	}

	pair, err := h.issueTokens(c, userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /auth/refresh
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil || body.RefreshToken == "" {
		return apperr.InvalidArgument("refresh_token is required")
	}

	pb := h.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT id, user_id, expires_at FROM _refresh_tokens WHERE token = %s", pb.Add(body.RefreshToken))
	row, err := store.QueryRow(c.Context(), h.store.DB, sql, pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Unauthorized("Invalid refresh token")
	}
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	if expires, ok := row["expires_at"].(time.Time); ok && time.Now().After(expires) {
		return apperr.Unauthorized("Refresh token expired")
	}

	// Rotate: the presented token is spent either way
	pb = h.store.Dialect.NewParamBuilder()
	del := fmt.Sprintf("DELETE FROM _refresh_tokens WHERE id = %s", pb.Add(row["id"]))
	if _, err := store.Exec(c.Context(), h.store.DB, del, pb.Params()...); err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}

	userID, _ := row["user_id"].(string)
	pair, err := h.issueTokens(c, userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

func (h *Handler) issueTokens(c *fiber.Ctx, userID string) (*TokenPair, error) {
	access, err := GenerateAccessToken(userID, h.secret)
	if err != nil {
		return nil, err
	}

	refresh := GenerateRefreshToken()
	expires := time.Now().Add(RefreshTokenTTL).UTC().Format(time.RFC3339)
	pb := h.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("INSERT INTO _refresh_tokens (id, user_id, token, expires_at) VALUES (%s, %s, %s, %s)",
		pb.Add(store.GenerateUUID()), pb.Add(userID), pb.Add(refresh), pb.Add(expires))
	if _, err := store.Exec(c.Context(), h.store.DB, sql, pb.Params()...); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func activeFlag(s *store.Store) any {
	if s.Dialect.NeedsBoolFix() {
		return 1
	}
	return true
}
