// Package authority decides whether a caller's role permits an action and
// guards the last-owner invariant.
package authority

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/mailseat/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

// Caller is the authenticated principal acting on an organization.
// Role is empty when the caller has no membership.
type Caller struct {
	UserID       snowflake.ID
	Role         domain.Role
	IsSuperAdmin bool
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type Authority struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds the rule table. With a nil db the rules live only in
// memory; otherwise they are persisted through the gorm adapter.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}

	var enforcer *casbin.SyncedEnforcer
	if db == nil {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err != nil {
			return nil, err
		}
	} else {
		adapter, err := gormadapter.NewAdapterByDB(db)
		if err != nil {
			return nil, err
		}
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
		if err != nil {
			return nil, err
		}
		enforcer.EnableAutoSave(true)
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	}

	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func New(p Params) *Authority {
	return &Authority{
		log:      p.Log.Named("organization.authority"),
		enforcer: p.Enforcer,
	}
}

// Can reports whether the caller may perform action. Super admins bypass the
// rule table.
func (a *Authority) Can(caller Caller, action domain.Action) (bool, error) {
	if caller.IsSuperAdmin {
		return true, nil
	}
	if caller.Role == "" {
		return false, nil
	}
	return a.enforcer.Enforce(subject(caller.Role), objectOf(action), string(action))
}

// Authorize returns domain.ErrForbidden when the caller may not perform action.
func (a *Authority) Authorize(caller Caller, action domain.Action) error {
	allowed, err := a.Can(caller, action)
	if err != nil {
		return err
	}
	if !allowed {
		a.log.Debug("authorization denied",
			zap.String("user_id", caller.UserID.String()),
			zap.String("role", caller.Role.String()),
			zap.String("action", string(action)),
		)
		return domain.ErrForbidden
	}
	return nil
}

// AssertNotLastOwner fails with domain.ErrLastOwner when target is the only
// OWNER of the organization. The owner rows stay locked until the enclosing
// transaction ends, so concurrent demotions cannot both pass.
func AssertNotLastOwner(ctx context.Context, store domain.Repository, orgID, targetUserID snowflake.ID) error {
	owners, err := store.LockOwners(ctx, orgID)
	if err != nil {
		return err
	}

	isOwner := false
	for _, id := range owners {
		if id == targetUserID {
			isOwner = true
			break
		}
	}
	if isOwner && len(owners) <= 1 {
		return domain.ErrLastOwner
	}
	return nil
}

func subject(role domain.Role) string {
	return fmt.Sprintf("role:%s", strings.ToLower(string(role)))
}

func objectOf(action domain.Action) string {
	raw := string(action)
	if idx := strings.Index(raw, "."); idx > 0 {
		return raw[:idx]
	}
	return raw
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	admin := []domain.Action{
		domain.ActionViewOrganization,
		domain.ActionInviteMember,
		domain.ActionAddUserDirect,
		domain.ActionRemoveMember,
		domain.ActionChangeRole,
		domain.ActionRevokeInvite,
		domain.ActionListInvites,
		domain.ActionViewAuditLog,
	}
	owner := append([]domain.Action{
		domain.ActionManageOwnerRole,
		domain.ActionTransferOwnership,
		domain.ActionUpdateSeats,
	}, admin...)
	member := []domain.Action{
		domain.ActionViewOrganization,
	}

	var policies [][]string
	for role, actions := range map[domain.Role][]domain.Action{
		domain.RoleOwner:  owner,
		domain.RoleAdmin:  admin,
		domain.RoleMember: member,
	} {
		for _, action := range actions {
			policies = append(policies, []string{subject(role), objectOf(action), string(action)})
		}
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
