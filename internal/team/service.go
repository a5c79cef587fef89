package team

import (
	"context"
	"errors"
	"fmt"

	"anchor-backend/internal/apperr"
	"anchor-backend/internal/store"
)

// Service is the team membership store. Stateless; every operation runs
// against team_members and checks the role invariants before writing.
type Service struct {
	store *store.Store
}

func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

const memberColumns = "id, team_id, user_id, role, invited_by, joined_at, updated_at"

// Add inserts a new membership. Fails with ALREADY_MEMBER when the user
// already belongs to the team.
func (s *Service) Add(ctx context.Context, teamID, userID string, role Role, invitedBy string) (*Member, error) {
	if teamID == "" || userID == "" {
		return nil, apperr.InvalidArgument("teamId and userId are required")
	}
	if !role.Valid() {
		return nil, apperr.InvalidArgument(fmt.Sprintf("invalid role: %s", role))
	}

	existing, err := s.getMember(ctx, s.store.DB, teamID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.AlreadyMember(teamID, userID)
	}

	d := s.store.Dialect
	pb := d.NewParamBuilder()
	var inviter any
	if invitedBy != "" {
		inviter = invitedBy
	}
	sql := fmt.Sprintf(
		`INSERT INTO team_members (id, team_id, user_id, role, invited_by, joined_at, updated_at)
		 VALUES (%s, %s, %s, %s, %s, %s, %s) RETURNING %s`,
		pb.Add(store.GenerateUUID()), pb.Add(teamID), pb.Add(userID), pb.Add(string(role)),
		pb.Add(inviter), d.NowExpr(), d.NowExpr(), memberColumns)

	row, err := store.QueryRow(ctx, s.store.DB, sql, pb.Params()...)
	if err != nil {
		if errors.Is(d.MapError(err), store.ErrUniqueViolation) {
			return nil, apperr.AlreadyMember(teamID, userID)
		}
		return nil, fmt.Errorf("add member: %w", err)
	}
	return memberFromRow(row), nil
}

// Remove deletes a membership. The owner can never be removed directly;
// ownership must be transferred first.
func (s *Service) Remove(ctx context.Context, teamID, userID string) error {
	member, err := s.getMember(ctx, s.store.DB, teamID, userID)
	if err != nil {
		return err
	}
	if member == nil {
		return apperr.NotATeamMember(userID)
	}
	if member.Role == RoleOwner {
		return apperr.CannotRemoveOwner()
	}

	pb := s.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("DELETE FROM team_members WHERE team_id = %s AND user_id = %s",
		pb.Add(teamID), pb.Add(userID))
	if _, err := store.Exec(ctx, s.store.DB, sql, pb.Params()...); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

// UpdateRole changes a member's role. The owner's role cannot be edited
// directly; ownership must be transferred first. Promoting to owner goes
// through TransferOwnership as well, so the single-owner invariant has a
// single write path.
func (s *Service) UpdateRole(ctx context.Context, teamID, userID string, newRole Role) (*Member, error) {
	if !newRole.Valid() {
		return nil, apperr.InvalidArgument(fmt.Sprintf("invalid role: %s", newRole))
	}
	if newRole == RoleOwner {
		return nil, apperr.InvalidArgument("use ownership transfer to assign the owner role")
	}

	member, err := s.getMember(ctx, s.store.DB, teamID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, apperr.NotATeamMember(userID)
	}
	if member.Role == RoleOwner {
		return nil, apperr.CannotChangeOwnerRole()
	}

	d := s.store.Dialect
	pb := d.NewParamBuilder()
	sql := fmt.Sprintf(
		"UPDATE team_members SET role = %s, updated_at = %s WHERE team_id = %s AND user_id = %s RETURNING %s",
		pb.Add(string(newRole)), d.NowExpr(), pb.Add(teamID), pb.Add(userID), memberColumns)
	row, err := store.QueryRow(ctx, s.store.DB, sql, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	return memberFromRow(row), nil
}

// TransferOwnership atomically demotes the current owner to admin and
// promotes the target member to owner. Both writes run in one transaction:
// the team is never left without an owner or with two.
func (s *Service) TransferOwnership(ctx context.Context, teamID, newOwnerUserID, currentOwnerUserID string) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := s.getMember(ctx, tx, teamID, currentOwnerUserID)
	if err != nil {
		return err
	}
	if current == nil || current.Role != RoleOwner {
		return apperr.NotOwner(currentOwnerUserID)
	}

	target, err := s.getMember(ctx, tx, teamID, newOwnerUserID)
	if err != nil {
		return err
	}
	if target == nil {
		return apperr.NotATeamMember(newOwnerUserID)
	}
	if target.UserID == current.UserID {
		return apperr.InvalidArgument("cannot transfer ownership to the current owner")
	}

	d := s.store.Dialect

	// Demote first: the partial unique index on (team_id) WHERE role='owner'
	// would otherwise reject the promotion.
	pb := d.NewParamBuilder()
	demote := fmt.Sprintf("UPDATE team_members SET role = %s, updated_at = %s WHERE team_id = %s AND user_id = %s",
		pb.Add(string(RoleAdmin)), d.NowExpr(), pb.Add(teamID), pb.Add(currentOwnerUserID))
	if _, err := store.Exec(ctx, tx, demote, pb.Params()...); err != nil {
		return fmt.Errorf("demote owner: %w", err)
	}

	pb = d.NewParamBuilder()
	promote := fmt.Sprintf("UPDATE team_members SET role = %s, updated_at = %s WHERE team_id = %s AND user_id = %s",
		pb.Add(string(RoleOwner)), d.NowExpr(), pb.Add(teamID), pb.Add(newOwnerUserID))
	if _, err := store.Exec(ctx, tx, promote, pb.Params()...); err != nil {
		return fmt.Errorf("promote new owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ownership transfer: %w", err)
	}
	return nil
}

// GetRole returns the member's role, or "" when the user is not a member.
// Non-membership is a normal outcome, not an error.
func (s *Service) GetRole(ctx context.Context, teamID, userID string) (Role, error) {
	member, err := s.getMember(ctx, s.store.DB, teamID, userID)
	if err != nil {
		return "", err
	}
	if member == nil {
		return "", nil
	}
	return member.Role, nil
}

// IsMember reports whether the user belongs to the team.
func (s *Service) IsMember(ctx context.Context, teamID, userID string) (bool, error) {
	role, err := s.GetRole(ctx, teamID, userID)
	if err != nil {
		return false, err
	}
	return role != "", nil
}

// HasPermission loads the member's role and checks it against the allowed
// set. Returns false, not an error, for non-members.
func (s *Service) HasPermission(ctx context.Context, userID, teamID string, allowed ...Role) (bool, error) {
	role, err := s.GetRole(ctx, teamID, userID)
	if err != nil {
		return false, err
	}
	if role == "" {
		return false, nil
	}
	return role.In(allowed...), nil
}

// ListMembers returns all members of a team ordered by rank then join time.
func (s *Service) ListMembers(ctx context.Context, teamID string) ([]*Member, error) {
	pb := s.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf(
		`SELECT %s FROM team_members WHERE team_id = %s
		 ORDER BY CASE role WHEN 'owner' THEN 0 WHEN 'admin' THEN 1 WHEN 'member' THEN 2 ELSE 3 END, joined_at`,
		memberColumns, pb.Add(teamID))
	rows, err := store.QueryRows(ctx, s.store.DB, sql, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	members := make([]*Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, memberFromRow(row))
	}
	return members, nil
}

func (s *Service) getMember(ctx context.Context, q store.Querier, teamID, userID string) (*Member, error) {
	pb := s.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT %s FROM team_members WHERE team_id = %s AND user_id = %s",
		memberColumns, pb.Add(teamID), pb.Add(userID))
	row, err := store.QueryRow(ctx, q, sql, pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return memberFromRow(row), nil
}
