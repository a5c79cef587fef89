package registry

// SecurityContext scopes every data-access call to an authenticated user
// and, when set, a team. It is set by the auth middleware and threaded
// explicitly through every engine call; no query runs without one.
type SecurityContext struct {
	UserID string `json:"user_id"`
	TeamID string `json:"team_id,omitempty"`
}

// Valid reports whether the context can scope a query at all.
func (s SecurityContext) Valid() bool {
	return s.UserID != ""
}
