// Package repository is the privileged membership store. It is internal to
// the organization module so that role and seat state can only be mutated
// through the orchestrator.
package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mailseat/internal/organization/domain"
	"github.com/smallbiznis/mailseat/pkg/db"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateOrganization(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organizations (id, name, slug, plan, seats, seats_used, billing_email, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		org.ID,
		org.Name,
		org.Slug,
		org.Plan,
		org.Seats,
		org.BillingEmail,
		org.CreatedAt,
		org.UpdatedAt,
	).Error
}

func (r *repository) GetOrganization(ctx context.Context, orgID snowflake.ID) (*domain.Organization, error) {
	return r.findOrganization(ctx, orgID, "")
}

func (r *repository) LockOrganization(ctx context.Context, orgID snowflake.ID) (*domain.Organization, error) {
	return r.findOrganization(ctx, orgID, db.ForUpdate(r.db))
}

func (r *repository) findOrganization(ctx context.Context, orgID snowflake.ID, lock string) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, name, slug, plan, seats, seats_used, billing_email, created_at, updated_at
		 FROM organizations WHERE id = ?`+lock,
		orgID,
	).Scan(&org).Error
	if err != nil {
		return nil, err
	}
	if org.ID == 0 {
		return nil, nil
	}
	return &org, nil
}

func (r *repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM organizations WHERE slug = ?`,
		slug,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) CreateUser(ctx context.Context, user domain.User) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO users (id, email, name, is_super_admin, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.Name,
		user.IsSuperAdmin,
		user.CreatedAt,
		user.UpdatedAt,
	).Error
}

func (r *repository) GetUser(ctx context.Context, userID snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, email, name, is_super_admin, created_at, updated_at FROM users WHERE id = ?`,
		userID,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, email, name, is_super_admin, created_at, updated_at FROM users WHERE email = ?`,
		email,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repository) AddMember(ctx context.Context, member domain.Member) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organization_members (id, org_id, user_id, role, joined_at)
		 VALUES (?, ?, ?, ?, ?)`,
		member.ID,
		member.OrgID,
		member.UserID,
		member.Role,
		member.JoinedAt,
	).Error
}

func (r *repository) GetMember(ctx context.Context, orgID, userID snowflake.ID) (*domain.Member, error) {
	return r.findMember(ctx, orgID, userID, "")
}

func (r *repository) LockMember(ctx context.Context, orgID, userID snowflake.ID) (*domain.Member, error) {
	return r.findMember(ctx, orgID, userID, db.ForUpdate(r.db))
}

func (r *repository) findMember(ctx context.Context, orgID, userID snowflake.ID, lock string) (*domain.Member, error) {
	var member domain.Member
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, user_id, role, joined_at
		 FROM organization_members WHERE org_id = ? AND user_id = ?`+lock,
		orgID,
		userID,
	).Scan(&member).Error
	if err != nil {
		return nil, err
	}
	if member.ID == 0 {
		return nil, nil
	}
	return &member, nil
}

func (r *repository) GetMemberByEmail(ctx context.Context, orgID snowflake.ID, email string) (*domain.Member, error) {
	var member domain.Member
	err := r.db.WithContext(ctx).Raw(
		`SELECT m.id, m.org_id, m.user_id, m.role, m.joined_at
		 FROM organization_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.org_id = ? AND u.email = ?`,
		orgID,
		email,
	).Scan(&member).Error
	if err != nil {
		return nil, err
	}
	if member.ID == 0 {
		return nil, nil
	}
	return &member, nil
}

func (r *repository) UpdateMemberRole(ctx context.Context, orgID, userID snowflake.ID, role domain.Role) error {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE organization_members SET role = ? WHERE org_id = ? AND user_id = ?`,
		role,
		orgID,
		userID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (r *repository) DeleteMember(ctx context.Context, orgID, userID snowflake.ID) error {
	res := r.db.WithContext(ctx).Exec(
		`DELETE FROM organization_members WHERE org_id = ? AND user_id = ?`,
		orgID,
		userID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

// LockOwners locks every OWNER row of the organization and returns their
// user IDs. Concurrent owner demotions queue behind this lock.
func (r *repository) LockOwners(ctx context.Context, orgID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := r.db.WithContext(ctx).Raw(
		`SELECT user_id FROM organization_members
		 WHERE org_id = ? AND role = ?
		 ORDER BY user_id ASC`+db.ForUpdate(r.db),
		orgID,
		domain.RoleOwner,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) ListMembers(ctx context.Context, orgID snowflake.ID) ([]domain.MemberView, error) {
	var items []domain.MemberView
	err := r.db.WithContext(ctx).Raw(
		`SELECT m.user_id, u.email, u.name, m.role, m.joined_at
		 FROM organization_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.org_id = ?
		 ORDER BY m.joined_at ASC, m.user_id ASC`,
		orgID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) CreateInvite(ctx context.Context, invite domain.Invite) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organization_invites (id, org_id, email, role, token_hash, invited_by, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		invite.ID,
		invite.OrgID,
		invite.Email,
		invite.Role,
		invite.TokenHash,
		invite.InvitedBy,
		invite.CreatedAt,
		invite.ExpiresAt,
	).Error
}

const inviteColumns = `id, org_id, email, role, token_hash, invited_by, created_at, expires_at, accepted_at, accepted_by, revoked_at`

func (r *repository) GetInvite(ctx context.Context, inviteID snowflake.ID) (*domain.Invite, error) {
	return r.findInvite(ctx, `id = ?`, inviteID, "")
}

func (r *repository) GetInviteByTokenHash(ctx context.Context, tokenHash string) (*domain.Invite, error) {
	return r.findInvite(ctx, `token_hash = ?`, tokenHash, "")
}

func (r *repository) LockInviteByTokenHash(ctx context.Context, tokenHash string) (*domain.Invite, error) {
	return r.findInvite(ctx, `token_hash = ?`, tokenHash, db.ForUpdate(r.db))
}

func (r *repository) findInvite(ctx context.Context, where string, arg any, lock string) (*domain.Invite, error) {
	var invite domain.Invite
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+inviteColumns+` FROM organization_invites WHERE `+where+lock,
		arg,
	).Scan(&invite).Error
	if err != nil {
		return nil, err
	}
	if invite.ID == 0 {
		return nil, nil
	}
	return &invite, nil
}

// ListOpenInvitesByEmail returns invites that are neither accepted nor
// revoked. Expiry is evaluated by the caller.
func (r *repository) ListOpenInvitesByEmail(ctx context.Context, orgID snowflake.ID, email string) ([]domain.Invite, error) {
	var items []domain.Invite
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+inviteColumns+` FROM organization_invites
		 WHERE org_id = ? AND email = ? AND accepted_at IS NULL AND revoked_at IS NULL`,
		orgID,
		email,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListInvites(ctx context.Context, orgID snowflake.ID) ([]domain.Invite, error) {
	var items []domain.Invite
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+inviteColumns+` FROM organization_invites
		 WHERE org_id = ?
		 ORDER BY created_at DESC, id DESC`,
		orgID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) MarkInviteAccepted(ctx context.Context, inviteID, userID snowflake.ID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE organization_invites SET accepted_at = ?, accepted_by = ?
		 WHERE id = ? AND accepted_at IS NULL AND revoked_at IS NULL`,
		at,
		userID,
		inviteID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkInviteRevoked(ctx context.Context, inviteID snowflake.ID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE organization_invites SET revoked_at = ?
		 WHERE id = ? AND accepted_at IS NULL AND revoked_at IS NULL`,
		at,
		inviteID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
