// Package apperr defines the typed errors shared by the entity engine and
// the team membership service. Every error surfaced to a caller is an
// *AppError; storage-level failures propagate as plain wrapped errors.
package apperr

import "fmt"

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func New(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

// --- configuration errors (misconfigured registry, fatal per call) ---

func UnknownEntity(slug string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_ENTITY",
		Status:  404,
		Message: fmt.Sprintf("Unknown entity: %s", slug),
	}
}

func InvalidIdentifier(ident string) *AppError {
	return &AppError{
		Code:    "INVALID_IDENTIFIER",
		Status:  500,
		Message: fmt.Sprintf("Invalid SQL identifier: %q", ident),
	}
}

// --- input errors (recoverable, reported to the caller) ---

func Validation(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

func InvalidArgument(msg string) *AppError {
	return &AppError{Code: "INVALID_ARGUMENT", Status: 400, Message: msg}
}

func NoFieldsToUpdate() *AppError {
	return &AppError{Code: "NO_FIELDS_TO_UPDATE", Status: 400, Message: "Update payload contains no fields"}
}

func HookRejected(reason string) *AppError {
	if reason == "" {
		reason = "Operation rejected by hook"
	}
	return &AppError{Code: "HOOK_REJECTED", Status: 422, Message: reason}
}

// --- state errors ---

func NotFound(entity, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", entity, id),
	}
}

func CreateFailed(entity string) *AppError {
	return &AppError{
		Code:    "CREATE_FAILED",
		Status:  500,
		Message: fmt.Sprintf("Insert into %s returned no row", entity),
	}
}

func Conflict(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Status: 409, Message: msg}
}

// --- membership invariant violations ---

func AlreadyMember(teamID, userID string) *AppError {
	return &AppError{
		Code:    "ALREADY_MEMBER",
		Status:  409,
		Message: fmt.Sprintf("User %s is already a member of team %s", userID, teamID),
	}
}

func CannotRemoveOwner() *AppError {
	return &AppError{
		Code:    "CANNOT_REMOVE_OWNER",
		Status:  409,
		Message: "Cannot remove the team owner; transfer ownership first",
	}
}

func CannotChangeOwnerRole() *AppError {
	return &AppError{
		Code:    "CANNOT_CHANGE_OWNER_ROLE",
		Status:  409,
		Message: "Cannot change the owner's role; transfer ownership first",
	}
}

func NotOwner(userID string) *AppError {
	return &AppError{
		Code:    "NOT_OWNER",
		Status:  403,
		Message: fmt.Sprintf("User %s is not the team owner", userID),
	}
}

func NotATeamMember(userID string) *AppError {
	return &AppError{
		Code:    "NOT_A_TEAM_MEMBER",
		Status:  404,
		Message: fmt.Sprintf("User %s is not a member of the team", userID),
	}
}

// --- auth ---

func Unauthorized(msg string) *AppError {
	if msg == "" {
		msg = "Authentication required"
	}
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func Forbidden(msg string) *AppError {
	if msg == "" {
		msg = "Permission denied"
	}
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}
