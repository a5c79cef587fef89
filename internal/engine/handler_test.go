package engine

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"anchor-backend/internal/apperr"
	"anchor-backend/internal/auth"
	"anchor-backend/internal/registry"
	"anchor-backend/internal/store"
)

// newTestApp wires the entity routes with a stub security context instead of
// the JWT middleware. No database sits behind it, so the cases below only
// exercise paths that fail before any query runs.
func newTestApp(sec registry.SecurityContext) *fiber.App {
	reg := registry.New()
	reg.Load([]*registry.Entity{testEntity()})

	s := &store.Store{Dialect: store.NewDialect("sqlite")}
	h := NewHandler(New(s, reg, nil))

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, h, func(c *fiber.Ctx) error {
		auth.SetSecurityContext(c, sec)
		return c.Next()
	})
	return app
}

func decodeError(t *testing.T, resp *http.Response) *apperr.AppError {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	var envelope apperr.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decoding error envelope from %q: %v", body, err)
	}
	if envelope.Error == nil {
		t.Fatalf("response %q carries no error", body)
	}
	return envelope.Error
}

func TestHandler_UnknownEntity(t *testing.T) {
	app := newTestApp(secCtx())

	req := httptest.NewRequest(http.MethodGet, "/api/no_such_entity", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != "UNKNOWN_ENTITY" {
		t.Errorf("code = %s, want UNKNOWN_ENTITY", e.Code)
	}
}

func TestHandler_CreateRejectsUnknownFields(t *testing.T) {
	app := newTestApp(secCtx())

	req := httptest.NewRequest(http.MethodPost, "/api/test_entities",
		strings.NewReader(`{"title":"x","bogus":1}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	e := decodeError(t, resp)
	if e.Code != "VALIDATION_FAILED" {
		t.Errorf("code = %s, want VALIDATION_FAILED", e.Code)
	}
	if len(e.Details) != 1 || e.Details[0].Field != "bogus" || e.Details[0].Rule != "unknown" {
		t.Errorf("details = %+v", e.Details)
	}
}

func TestHandler_CreateRequiresTeamScope(t *testing.T) {
	app := newTestApp(registry.SecurityContext{UserID: "u1"})

	req := httptest.NewRequest(http.MethodPost, "/api/test_entities",
		strings.NewReader(`{"title":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != "INVALID_ARGUMENT" {
		t.Errorf("code = %s, want INVALID_ARGUMENT", e.Code)
	}
}

func TestHandler_CreateRejectsInvalidJSON(t *testing.T) {
	app := newTestApp(secCtx())

	req := httptest.NewRequest(http.MethodPost, "/api/test_entities",
		strings.NewReader(`{not json`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandler_UpdateEmptyPayload(t *testing.T) {
	app := newTestApp(secCtx())

	req := httptest.NewRequest(http.MethodPut, "/api/test_entities/some-id",
		strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != "NO_FIELDS_TO_UPDATE" {
		t.Errorf("code = %s, want NO_FIELDS_TO_UPDATE", e.Code)
	}
}

func TestHandler_ListRequiresUser(t *testing.T) {
	app := newTestApp(registry.SecurityContext{})

	req := httptest.NewRequest(http.MethodGet, "/api/test_entities", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestParseListOptions(t *testing.T) {
	app := fiber.New()
	var got ListOptions
	app.Get("/probe", func(c *fiber.Ctx) error {
		got = parseListOptions(c)
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet,
		"/probe?filter[status]=active&search=rep&sort=-created_at&limit=5&offset=10", nil)
	if _, err := app.Test(req, -1); err != nil {
		t.Fatalf("app.Test: %v", err)
	}

	if got.Where["status"] != "active" {
		t.Errorf("filter not parsed: %v", got.Where)
	}
	if got.Search != "rep" {
		t.Errorf("search = %q", got.Search)
	}
	if got.OrderBy != "created_at" || got.OrderDir != "DESC" {
		t.Errorf("sort = %s %s", got.OrderBy, got.OrderDir)
	}
	if got.Limit != 5 || got.Offset != 10 {
		t.Errorf("limit/offset = %d/%d", got.Limit, got.Offset)
	}
}
