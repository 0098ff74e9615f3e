package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mailseat/internal/notification"
	"github.com/smallbiznis/mailseat/internal/organization/domain"
	"github.com/smallbiznis/mailseat/internal/organization/invitation"
	"github.com/smallbiznis/mailseat/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InviteMember issues an invite for an email address. The plaintext token is
// returned once and mailed to the invitee.
func (s *Service) InviteMember(ctx context.Context, callerID snowflake.ID, req domain.InviteRequest) (issued *domain.IssuedInvite, err error) {
	ctx, done := s.track(ctx, "invite_member", req.OrgID)
	defer func() { done(err) }()

	email, err := domain.NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if !req.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	effects := &sideEffects{}
	err = s.inTx(ctx, func(ctx context.Context, tx *gorm.DB, store domain.Repository) error {
		// The organization row lock serializes issuance so at most one
		// pending invite exists per address.
		org, err := lockOrganization(ctx, store, req.OrgID)
		if err != nil {
			return err
		}
		caller, actor, err := s.loadCaller(ctx, store, callerID, org.ID)
		if err != nil {
			return err
		}
		if err := s.authority.Authorize(caller, domain.ActionInviteMember); err != nil {
			return err
		}
		if req.Role == domain.RoleOwner {
			if err := s.authority.Authorize(caller, domain.ActionManageOwnerRole); err != nil {
				return err
			}
		}
		if s.limiter != nil && !s.limiter.Allow(ctx, org.ID) {
			return domain.ErrRateLimited
		}

		invite, token, err := s.invites.Issue(ctx, store, invitation.IssueRequest{
			OrgID:     org.ID,
			Email:     email,
			Role:      req.Role,
			InvitedBy: caller.UserID,
		})
		if err != nil {
			return err
		}

		issued = &domain.IssuedInvite{Invite: *invite, Token: token}
		effects.audit(org.ID, caller.UserID, "invite.issued", "invite", invite.ID.String(), map[string]any{
			"email":      email,
			"role":       req.Role.String(),
			"expires_at": invite.ExpiresAt,
		})
		effects.notify(notification.Message{
			Kind:             notification.KindInviteIssued,
			To:               email,
			OrganizationName: org.Name,
			Role:             req.Role.String(),
			Actor:            actor.Email,
			InviteToken:      token,
			ExpiresAt:        invite.ExpiresAt,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, effects)
	return issued, nil
}

// ValidateInvite resolves a token without side effects.
func (s *Service) ValidateInvite(ctx context.Context, token string) (view *domain.InviteView, err error) {
	ctx, done := s.track(ctx, "validate_invite", 0)
	defer func() { done(err) }()

	invite, err := s.invites.Validate(ctx, s.repo, token)
	if err != nil {
		return nil, err
	}
	org, err := requireOrganization(ctx, s.repo, invite.OrgID)
	if err != nil {
		return nil, err
	}

	resolved := domain.NewInviteView(*invite, org.Name, s.clock.Now())
	return &resolved, nil
}

// AcceptInvite turns a pending invite into a membership for the caller. The
// invite must be addressed to the caller's account email. Accepting while
// already a member marks the invite accepted and takes no seat.
func (s *Service) AcceptInvite(ctx context.Context, userID snowflake.ID, token string) (result *domain.AcceptResult, err error) {
	ctx, done := s.track(ctx, "accept_invite", 0)
	defer func() { done(err) }()

	effects := &sideEffects{}
	err = s.inTx(ctx, func(ctx context.Context, tx *gorm.DB, store domain.Repository) error {
		if userID == 0 {
			return domain.ErrUnauthorized
		}
		user, err := store.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrUnauthorized
		}
		pending, err := s.invites.Validate(ctx, store, token)
		if err != nil {
			return err
		}
		org, err := lockOrganization(ctx, store, pending.OrgID)
		if err != nil {
			return err
		}
		invite, err := s.invites.Claim(ctx, store, token)
		if err != nil {
			return err
		}
		if invite.Email != user.Email {
			return domain.ErrEmailMismatch
		}

		existing, err := store.LockMember(ctx, org.ID, user.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := s.invites.MarkAccepted(ctx, store, invite, user.ID); err != nil {
				return err
			}
			result = &domain.AcceptResult{OrgID: org.ID, Role: existing.Role, AlreadyMember: true}
			effects.audit(org.ID, user.ID, "invite.accepted", "invite", invite.ID.String(), map[string]any{
				"email":          invite.Email,
				"role":           existing.Role.String(),
				"already_member": true,
			})
			return nil
		}

		if invite.Role.ConsumesSeat() {
			if err := s.seats.Reserve(ctx, tx, org.ID); err != nil {
				return err
			}
		}
		member := domain.Member{
			ID:       s.genID.Generate(),
			OrgID:    org.ID,
			UserID:   user.ID,
			Role:     invite.Role,
			JoinedAt: s.clock.Now(),
		}
		if err := store.AddMember(ctx, member); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrAlreadyMember
			}
			return fmt.Errorf("add member: %w", err)
		}
		if err := s.invites.MarkAccepted(ctx, store, invite, user.ID); err != nil {
			return err
		}

		result = &domain.AcceptResult{OrgID: org.ID, Role: invite.Role}
		effects.audit(org.ID, user.ID, "invite.accepted", "invite", invite.ID.String(), map[string]any{
			"email": invite.Email,
			"role":  invite.Role.String(),
		})
		effects.audit(org.ID, user.ID, "member.added", "user", user.ID.String(), map[string]any{
			"email":     invite.Email,
			"role":      invite.Role.String(),
			"source":    "invite",
			"invite_id": invite.ID.String(),
		})
		effects.notify(notification.Message{
			Kind:             notification.KindMemberAdded,
			To:               user.Email,
			OrganizationName: org.Name,
			Role:             invite.Role.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invite accepted",
		zap.String("org_id", result.OrgID.String()),
		zap.String("user_id", userID.String()),
		zap.Bool("already_member", result.AlreadyMember),
	)
	s.flush(ctx, effects)
	return result, nil
}

// RevokeInvite cancels a pending invite.
func (s *Service) RevokeInvite(ctx context.Context, callerID, inviteID snowflake.ID) (err error) {
	ctx, done := s.track(ctx, "revoke_invite", 0)
	defer func() { done(err) }()

	effects := &sideEffects{}
	err = s.inTx(ctx, func(ctx context.Context, tx *gorm.DB, store domain.Repository) error {
		invite, err := store.GetInvite(ctx, inviteID)
		if err != nil {
			return err
		}
		if invite == nil {
			return domain.ErrInviteNotFound
		}
		if _, err := lockOrganization(ctx, store, invite.OrgID); err != nil {
			return err
		}
		// Re-read under the organization lock; a concurrent accept may
		// have finished in between.
		if invite, err = store.GetInvite(ctx, inviteID); err != nil {
			return err
		}
		if invite == nil {
			return domain.ErrInviteNotFound
		}
		caller, _, err := s.loadCaller(ctx, store, callerID, invite.OrgID)
		if err != nil {
			return err
		}
		if err := s.authority.Authorize(caller, domain.ActionRevokeInvite); err != nil {
			return err
		}
		if err := s.invites.Revoke(ctx, store, invite); err != nil {
			return err
		}

		effects.audit(invite.OrgID, caller.UserID, "invite.revoked", "invite", invite.ID.String(), map[string]any{
			"email": invite.Email,
			"role":  invite.Role.String(),
		})
		return nil
	})
	if err != nil {
		return err
	}

	s.flush(ctx, effects)
	return nil
}

// ListInvites returns every invite of the organization with its status
// evaluated now.
func (s *Service) ListInvites(ctx context.Context, callerID, orgID snowflake.ID) (views []domain.InviteView, err error) {
	ctx, done := s.track(ctx, "list_invites", orgID)
	defer func() { done(err) }()

	org, err := requireOrganization(ctx, s.repo, orgID)
	if err != nil {
		return nil, err
	}
	caller, _, err := s.loadCaller(ctx, s.repo, callerID, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.authority.Authorize(caller, domain.ActionListInvites); err != nil {
		return nil, err
	}

	invites, err := s.repo.ListInvites(ctx, orgID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	views = make([]domain.InviteView, 0, len(invites))
	for _, invite := range invites {
		views = append(views, domain.NewInviteView(invite, org.Name, now))
	}
	return views, nil
}
