package team

import (
	"context"
	"fmt"
	"time"

	"anchor-backend/internal/apperr"
	"anchor-backend/internal/store"
)

// Team is one row of the teams table.
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Create inserts a team and its creator as owner in one transaction. This
// is the only path that inserts an owner row; every later owner change goes
// through TransferOwnership.
func (s *Service) Create(ctx context.Context, name, creatorUserID string) (*Team, error) {
	if name == "" || creatorUserID == "" {
		return nil, apperr.InvalidArgument("name and userId are required")
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	d := s.store.Dialect
	teamID := store.GenerateUUID()

	pb := d.NewParamBuilder()
	insertTeam := fmt.Sprintf(
		"INSERT INTO teams (id, name, created_by, created_at, updated_at) VALUES (%s, %s, %s, %s, %s) RETURNING id, name, created_by, created_at, updated_at",
		pb.Add(teamID), pb.Add(name), pb.Add(creatorUserID), d.NowExpr(), d.NowExpr())
	row, err := store.QueryRow(ctx, tx, insertTeam, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("create team: %w", err)
	}

	pb = d.NewParamBuilder()
	insertOwner := fmt.Sprintf(
		"INSERT INTO team_members (id, team_id, user_id, role, joined_at, updated_at) VALUES (%s, %s, %s, %s, %s, %s)",
		pb.Add(store.GenerateUUID()), pb.Add(teamID), pb.Add(creatorUserID), pb.Add(string(RoleOwner)),
		d.NowExpr(), d.NowExpr())
	if _, err := store.Exec(ctx, tx, insertOwner, pb.Params()...); err != nil {
		return nil, fmt.Errorf("add owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit team creation: %w", err)
	}

	t := &Team{
		ID:        stringVal(row["id"]),
		Name:      stringVal(row["name"]),
		CreatedBy: stringVal(row["created_by"]),
	}
	if ts, ok := row["created_at"].(time.Time); ok {
		t.CreatedAt = ts
	}
	if ts, ok := row["updated_at"].(time.Time); ok {
		t.UpdatedAt = ts
	}
	return t, nil
}
