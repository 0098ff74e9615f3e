package domain

import "strings"

type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// ParseRole normalizes and validates a role name.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", ErrInvalidRole
	}
	return role, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

// ConsumesSeat reports whether a member with this role occupies a paid seat.
func (r Role) ConsumesSeat() bool {
	return r == RoleMember
}

func (r Role) String() string { return string(r) }

// Action is an operation checked by the role authority.
type Action string

const (
	ActionInviteMember      Action = "member.invite"
	ActionAddUserDirect     Action = "member.add_direct"
	ActionRemoveMember      Action = "member.remove"
	ActionChangeRole        Action = "member.change_role"
	ActionTransferOwnership Action = "organization.transfer_ownership"
	ActionViewAuditLog      Action = "audit_log.view"

	// ActionManageOwnerRole guards granting or taking away the OWNER role,
	// including removing an owner and inviting someone as owner.
	ActionManageOwnerRole  Action = "member.manage_owner"
	ActionRevokeInvite     Action = "invite.revoke"
	ActionListInvites      Action = "invite.list"
	ActionUpdateSeats      Action = "organization.update_seats"
	ActionViewOrganization Action = "organization.view"
)
