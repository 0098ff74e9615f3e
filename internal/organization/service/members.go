package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mailseat/internal/notification"
	"github.com/smallbiznis/mailseat/internal/organization/authority"
	"github.com/smallbiznis/mailseat/internal/organization/domain"
	"github.com/smallbiznis/mailseat/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AddUserDirect adds a user by email without an invite, creating the user
// when the address is unknown. MEMBER additions reserve a seat.
func (s *Service) AddUserDirect(ctx context.Context, callerID snowflake.ID, req domain.AddUserRequest) (result *domain.AddUserResult, err error) {
	ctx, done := s.track(ctx, "add_user_direct", req.OrgID)
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
		org, err := lockOrganization(ctx, store, req.OrgID)
		if err != nil {
			return err
		}
		caller, actor, err := s.loadCaller(ctx, store, callerID, org.ID)
		if err != nil {
			return err
		}
		if err := s.authority.Authorize(caller, domain.ActionAddUserDirect); err != nil {
			return err
		}
		if req.Role == domain.RoleOwner {
			if err := s.authority.Authorize(caller, domain.ActionManageOwnerRole); err != nil {
				return err
			}
		}

		now := s.clock.Now()
		user, err := store.GetUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		isNewUser := false
		if user == nil {
			user = &domain.User{
				ID:        s.genID.Generate(),
				Email:     email,
				Name:      displayName(req.Name, email),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := store.CreateUser(ctx, *user); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return domain.ErrAlreadyMember
				}
				return fmt.Errorf("create user: %w", err)
			}
			isNewUser = true
		}

		existing, err := store.LockMember(ctx, org.ID, user.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrAlreadyMember
		}

		if req.Role.ConsumesSeat() {
			if err := s.seats.Reserve(ctx, tx, org.ID); err != nil {
				return err
			}
		}

		member := domain.Member{
			ID:       s.genID.Generate(),
			OrgID:    org.ID,
			UserID:   user.ID,
			Role:     req.Role,
			JoinedAt: now,
		}
		if err := store.AddMember(ctx, member); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrAlreadyMember
			}
			return fmt.Errorf("add member: %w", err)
		}

		result = &domain.AddUserResult{Member: member, User: *user, IsNewUser: isNewUser}
		effects.audit(org.ID, caller.UserID, "member.added", "user", user.ID.String(), map[string]any{
			"email":       email,
			"role":        req.Role.String(),
			"source":      "direct",
			"is_new_user": isNewUser,
		})
		effects.notify(notification.Message{
			Kind:             notification.KindMemberAdded,
			To:               email,
			OrganizationName: org.Name,
			Role:             req.Role.String(),
			Actor:            actor.Email,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("member added",
		zap.String("org_id", req.OrgID.String()),
		zap.String("user_id", result.User.ID.String()),
		zap.String("role", req.Role.String()),
	)
	s.flush(ctx, effects)
	return result, nil
}

// RemoveMember deletes a membership. Removing a MEMBER releases its seat;
// removing the last OWNER is refused.
func (s *Service) RemoveMember(ctx context.Context, callerID, orgID, targetUserID snowflake.ID) (err error) {
	ctx, done := s.track(ctx, "remove_member", orgID)
	defer func() { done(err) }()

	effects := &sideEffects{}
	err = s.inTx(ctx, func(ctx context.Context, tx *gorm.DB, store domain.Repository) error {
		org, err := lockOrganization(ctx, store, orgID)
		if err != nil {
			return err
		}
		caller, actor, err := s.loadCaller(ctx, store, callerID, orgID)
		if err != nil {
			return err
		}
		if err := s.authority.Authorize(caller, domain.ActionRemoveMember); err != nil {
			return err
		}

		target, err := store.LockMember(ctx, orgID, targetUserID)
		if err != nil {
			return err
		}
		if target == nil {
			return domain.ErrMemberNotFound
		}
		if target.Role == domain.RoleOwner {
			if err := s.authority.Authorize(caller, domain.ActionManageOwnerRole); err != nil {
				return err
			}
			if err := authority.AssertNotLastOwner(ctx, store, orgID, targetUserID); err != nil {
				return err
			}
		}

		if err := store.DeleteMember(ctx, orgID, targetUserID); err != nil {
			return err
		}
		if target.Role.ConsumesSeat() {
			if err := s.seats.Release(ctx, tx, orgID); err != nil {
				return err
			}
		}

		targetUser, err := store.GetUser(ctx, targetUserID)
		if err != nil {
			return err
		}
		effects.audit(orgID, caller.UserID, "member.removed", "user", targetUserID.String(), map[string]any{
			"role": target.Role.String(),
		})
		if targetUser != nil {
			effects.notify(notification.Message{
				Kind:             notification.KindMemberRemoved,
				To:               targetUser.Email,
				OrganizationName: org.Name,
				Role:             target.Role.String(),
				Actor:            actor.Email,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.flush(ctx, effects)
	return nil
}

// ChangeRole moves a member to another role. Crossing the MEMBER boundary
// reserves or releases a seat in the same transaction.
func (s *Service) ChangeRole(ctx context.Context, callerID, orgID, targetUserID snowflake.ID, role domain.Role) (member *domain.Member, err error) {
	ctx, done := s.track(ctx, "change_role", orgID)
	defer func() { done(err) }()

	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	effects := &sideEffects{}
	err = s.inTx(ctx, func(ctx context.Context, tx *gorm.DB, store domain.Repository) error {
		org, err := lockOrganization(ctx, store, orgID)
		if err != nil {
			return err
		}
		caller, actor, err := s.loadCaller(ctx, store, callerID, orgID)
		if err != nil {
			return err
		}
		if err := s.authority.Authorize(caller, domain.ActionChangeRole); err != nil {
			return err
		}

		target, err := store.LockMember(ctx, orgID, targetUserID)
		if err != nil {
			return err
		}
		if target == nil {
			return domain.ErrMemberNotFound
		}
		if target.Role == role {
			member = target
			return nil
		}

		if role == domain.RoleOwner || target.Role == domain.RoleOwner {
			if err := s.authority.Authorize(caller, domain.ActionManageOwnerRole); err != nil {
				return err
			}
		}
		if target.Role == domain.RoleOwner {
			if err := authority.AssertNotLastOwner(ctx, store, orgID, targetUserID); err != nil {
				return err
			}
		}

		if err := s.moveRole(ctx, tx, store, orgID, targetUserID, target.Role, role); err != nil {
			return err
		}

		previous := target.Role
		target.Role = role
		member = target

		targetUser, err := store.GetUser(ctx, targetUserID)
		if err != nil {
			return err
		}
		effects.audit(orgID, caller.UserID, "member.role_changed", "user", targetUserID.String(), map[string]any{
			"previous_role": previous.String(),
			"role":          role.String(),
		})
		if targetUser != nil {
			effects.notify(notification.Message{
				Kind:             notification.KindRoleChanged,
				To:               targetUser.Email,
				OrganizationName: org.Name,
				Role:             role.String(),
				PreviousRole:     previous.String(),
				Actor:            actor.Email,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, effects)
	return member, nil
}

// moveRole writes a role change and keeps seats_used in step with it.
func (s *Service) moveRole(ctx context.Context, tx *gorm.DB, store domain.Repository, orgID, userID snowflake.ID, from, to domain.Role) error {
	switch {
	case !from.ConsumesSeat() && to.ConsumesSeat():
		if err := s.seats.Reserve(ctx, tx, orgID); err != nil {
			return err
		}
	case from.ConsumesSeat() && !to.ConsumesSeat():
		if err := s.seats.Release(ctx, tx, orgID); err != nil {
			return err
		}
	}
	return store.UpdateMemberRole(ctx, orgID, userID, to)
}

// TransferOwnership promotes a member to OWNER and demotes the caller to
// ADMIN atomically. A super admin who is not an owner demotes every
// current owner instead.
func (s *Service) TransferOwnership(ctx context.Context, callerID, orgID, newOwnerID snowflake.ID) (err error) {
	ctx, done := s.track(ctx, "transfer_ownership", orgID)
	defer func() { done(err) }()

	if newOwnerID == 0 || newOwnerID == callerID {
		return domain.ErrInvalidTransferTarget
	}

	effects := &sideEffects{}
	err = s.inTx(ctx, func(ctx context.Context, tx *gorm.DB, store domain.Repository) error {
		org, err := lockOrganization(ctx, store, orgID)
		if err != nil {
			return err
		}
		caller, actor, err := s.loadCaller(ctx, store, callerID, orgID)
		if err != nil {
			return err
		}
		if err := s.authority.Authorize(caller, domain.ActionTransferOwnership); err != nil {
			return err
		}

		owners, err := store.LockOwners(ctx, orgID)
		if err != nil {
			return err
		}
		target, err := store.LockMember(ctx, orgID, newOwnerID)
		if err != nil {
			return err
		}
		if target == nil {
			return domain.ErrMemberNotFound
		}
		if target.Role == domain.RoleOwner {
			return domain.ErrInvalidTransferTarget
		}

		demoted := owners
		if caller.Role == domain.RoleOwner {
			demoted = []snowflake.ID{caller.UserID}
		}

		// Promote first so the organization never has zero owners, even
		// inside the transaction.
		if err := s.moveRole(ctx, tx, store, orgID, newOwnerID, target.Role, domain.RoleOwner); err != nil {
			return err
		}
		for _, userID := range demoted {
			if err := store.UpdateMemberRole(ctx, orgID, userID, domain.RoleAdmin); err != nil {
				return err
			}
		}

		newOwner, err := store.GetUser(ctx, newOwnerID)
		if err != nil {
			return err
		}
		newOwnerEmail := ""
		if newOwner != nil {
			newOwnerEmail = newOwner.Email
		}

		demotedIDs := make([]string, 0, len(demoted))
		for _, userID := range demoted {
			demotedIDs = append(demotedIDs, userID.String())
		}
		effects.audit(orgID, caller.UserID, "organization.ownership_transferred", "organization", orgID.String(), map[string]any{
			"new_owner_id":      newOwnerID.String(),
			"previous_owner_id": strings.Join(demotedIDs, ","),
		})
		effects.audit(orgID, caller.UserID, "member.role_changed", "user", newOwnerID.String(), map[string]any{
			"previous_role": target.Role.String(),
			"role":          domain.RoleOwner.String(),
		})
		if newOwnerEmail != "" {
			effects.notify(notification.Message{
				Kind:             notification.KindOwnershipTransferred,
				To:               newOwnerEmail,
				OrganizationName: org.Name,
				Role:             domain.RoleOwner.String(),
				Actor:            newOwnerEmail,
			})
		}

		for _, userID := range demoted {
			effects.audit(orgID, caller.UserID, "member.role_changed", "user", userID.String(), map[string]any{
				"previous_role": domain.RoleOwner.String(),
				"role":          domain.RoleAdmin.String(),
			})
			to := ""
			if userID == caller.UserID {
				to = actor.Email
			} else if demotedUser, err := store.GetUser(ctx, userID); err != nil {
				return err
			} else if demotedUser != nil {
				to = demotedUser.Email
			}
			if to != "" {
				effects.notify(notification.Message{
					Kind:             notification.KindOwnershipTransferred,
					To:               to,
					OrganizationName: org.Name,
					Role:             domain.RoleAdmin.String(),
					Actor:            newOwnerEmail,
				})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.flush(ctx, effects)
	return nil
}

func displayName(name, email string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
