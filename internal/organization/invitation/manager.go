// Package invitation issues and resolves invite tokens. Accepting an invite
// is driven by the organization service, which owns the transaction.
package invitation

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mailseat/internal/clock"
	"github.com/smallbiznis/mailseat/internal/config"
	"github.com/smallbiznis/mailseat/internal/organization/domain"
	"github.com/smallbiznis/mailseat/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Clock  clock.Clock
	GenID  *snowflake.Node
	Policy *config.MembershipPolicyHolder
}

type Manager struct {
	log    *zap.Logger
	clock  clock.Clock
	genID  *snowflake.Node
	policy *config.MembershipPolicyHolder
}

func NewManager(p Params) *Manager {
	return &Manager{
		log:    p.Log.Named("organization.invitation"),
		clock:  p.Clock,
		genID:  p.GenID,
		policy: p.Policy,
	}
}

type IssueRequest struct {
	OrgID     snowflake.ID
	Email     string
	Role      domain.Role
	InvitedBy snowflake.ID
}

// Issue creates a pending invite and returns it with the plaintext token.
// store must be bound to a transaction that holds the organization lock so
// that two pending invites for the same address cannot be created.
func (m *Manager) Issue(ctx context.Context, store domain.Repository, req IssueRequest) (*domain.Invite, string, error) {
	email, err := domain.NormalizeEmail(req.Email)
	if err != nil {
		return nil, "", err
	}
	if !req.Role.Valid() {
		return nil, "", domain.ErrInvalidRole
	}

	member, err := store.GetMemberByEmail(ctx, req.OrgID, email)
	if err != nil {
		return nil, "", err
	}
	if member != nil {
		return nil, "", domain.ErrAlreadyMember
	}

	now := m.clock.Now()
	open, err := store.ListOpenInvitesByEmail(ctx, req.OrgID, email)
	if err != nil {
		return nil, "", err
	}
	for _, existing := range open {
		if existing.StatusAt(now) == domain.InviteStatusPending {
			return nil, "", domain.ErrDuplicateInvite
		}
	}

	token, err := GenerateToken()
	if err != nil {
		return nil, "", err
	}

	invite := domain.Invite{
		ID:        m.genID.Generate(),
		OrgID:     req.OrgID,
		Email:     email,
		Role:      req.Role,
		TokenHash: FingerprintToken(token),
		InvitedBy: req.InvitedBy,
		CreatedAt: now,
		ExpiresAt: now.Add(m.policy.Get().InviteTTL),
	}
	if err := store.CreateInvite(ctx, invite); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, "", domain.ErrDuplicateInvite
		}
		return nil, "", fmt.Errorf("create invite: %w", err)
	}

	m.log.Info("invite issued",
		zap.String("org_id", req.OrgID.String()),
		zap.String("invite_id", invite.ID.String()),
		zap.String("role", invite.Role.String()),
	)
	return &invite, token, nil
}

// Validate resolves a token without side effects. It fails with
// domain.ErrInviteNotFound, domain.ErrInviteExpired or
// domain.ErrAlreadyAccepted.
func (m *Manager) Validate(ctx context.Context, store domain.Repository, token string) (*domain.Invite, error) {
	hash, err := hashToken(token)
	if err != nil {
		return nil, err
	}
	invite, err := store.GetInviteByTokenHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	return invite, m.check(invite)
}

// Claim resolves a token and locks the invite row for the rest of the
// transaction so that concurrent accepts of the same token serialize.
func (m *Manager) Claim(ctx context.Context, store domain.Repository, token string) (*domain.Invite, error) {
	hash, err := hashToken(token)
	if err != nil {
		return nil, err
	}
	invite, err := store.LockInviteByTokenHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if err := m.check(invite); err != nil {
		return nil, err
	}
	return invite, nil
}

// MarkAccepted moves a pending invite to ACCEPTED.
func (m *Manager) MarkAccepted(ctx context.Context, store domain.Repository, invite *domain.Invite, userID snowflake.ID) error {
	now := m.clock.Now()
	updated, err := store.MarkInviteAccepted(ctx, invite.ID, userID, now)
	if err != nil {
		return err
	}
	if !updated {
		return domain.ErrAlreadyAccepted
	}
	invite.AcceptedAt = &now
	invite.AcceptedBy = &userID
	return nil
}

// Revoke moves an invite to REVOKED. Accepted invites cannot be revoked and
// revoking twice reports domain.ErrInviteNotFound.
func (m *Manager) Revoke(ctx context.Context, store domain.Repository, invite *domain.Invite) error {
	switch invite.StatusAt(m.clock.Now()) {
	case domain.InviteStatusAccepted:
		return domain.ErrAlreadyAccepted
	case domain.InviteStatusRevoked:
		return domain.ErrInviteNotFound
	}

	now := m.clock.Now()
	updated, err := store.MarkInviteRevoked(ctx, invite.ID, now)
	if err != nil {
		return err
	}
	if !updated {
		return domain.ErrInviteNotFound
	}
	invite.RevokedAt = &now
	return nil
}

func (m *Manager) check(invite *domain.Invite) error {
	if invite == nil {
		return domain.ErrInviteNotFound
	}
	switch invite.StatusAt(m.clock.Now()) {
	case domain.InviteStatusRevoked:
		return domain.ErrInviteNotFound
	case domain.InviteStatusAccepted:
		return domain.ErrAlreadyAccepted
	case domain.InviteStatusExpired:
		return domain.ErrInviteExpired
	}
	return nil
}

func hashToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", domain.ErrInvalidToken
	}
	return FingerprintToken(token), nil
}
