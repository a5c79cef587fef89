package team

import "time"

// Member is one row of team_members: a user's membership in one team.
// A user has exactly one role per team, enforced by UNIQUE(team_id, user_id).
type Member struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	InvitedBy string    `json:"invited_by,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func memberFromRow(row map[string]any) *Member {
	m := &Member{
		ID:     stringVal(row["id"]),
		TeamID: stringVal(row["team_id"]),
		UserID: stringVal(row["user_id"]),
		Role:   Role(stringVal(row["role"])),
	}
	if v := stringVal(row["invited_by"]); v != "" {
		m.InvitedBy = v
	}
	if t, ok := row["joined_at"].(time.Time); ok {
		m.JoinedAt = t
	}
	if t, ok := row["updated_at"].(time.Time); ok {
		m.UpdatedAt = t
	}
	return m
}

func stringVal(v any) string {
	s, _ := v.(string)
	return s
}
