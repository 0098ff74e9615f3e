package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/mailseat/internal/audit/domain"
)

// Service orchestrates membership mutations. Every mutation runs in a single
// transaction and emits audit and notification side effects after commit.
type Service interface {
	CreateOrganization(ctx context.Context, callerID snowflake.ID, req CreateOrganizationRequest) (*Organization, error)
	GetOrganization(ctx context.Context, callerID, orgID snowflake.ID) (*Organization, error)
	UpdateSeats(ctx context.Context, callerID, orgID snowflake.ID, seats int) (*Organization, error)
	ListMembers(ctx context.Context, callerID, orgID snowflake.ID) ([]MemberView, error)

	AddUserDirect(ctx context.Context, callerID snowflake.ID, req AddUserRequest) (*AddUserResult, error)
	RemoveMember(ctx context.Context, callerID, orgID, targetUserID snowflake.ID) error
	ChangeRole(ctx context.Context, callerID, orgID, targetUserID snowflake.ID, role Role) (*Member, error)
	TransferOwnership(ctx context.Context, callerID, orgID, newOwnerID snowflake.ID) error

	InviteMember(ctx context.Context, callerID snowflake.ID, req InviteRequest) (*IssuedInvite, error)
	ValidateInvite(ctx context.Context, token string) (*InviteView, error)
	AcceptInvite(ctx context.Context, userID snowflake.ID, token string) (*AcceptResult, error)
	RevokeInvite(ctx context.Context, callerID, inviteID snowflake.ID) error
	ListInvites(ctx context.Context, callerID, orgID snowflake.ID) ([]InviteView, error)

	ListAuditLogs(ctx context.Context, callerID snowflake.ID, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error)
}

type CreateOrganizationRequest struct {
	Name         string
	Seats        int
	Plan         string
	BillingEmail string
}

type AddUserRequest struct {
	OrgID snowflake.ID
	Email string
	Name  string
	Role  Role
}

type AddUserResult struct {
	Member    Member `json:"member"`
	User      User   `json:"user"`
	IsNewUser bool   `json:"is_new_user"`
}

type InviteRequest struct {
	OrgID snowflake.ID
	Email string
	Role  Role
}

// IssuedInvite carries the plaintext token. It is never persisted.
type IssuedInvite struct {
	Invite Invite `json:"invite"`
	Token  string `json:"token"`
}

type InviteView struct {
	ID               snowflake.ID `json:"id"`
	OrgID            snowflake.ID `json:"org_id"`
	OrganizationName string       `json:"organization_name,omitempty"`
	Email            string       `json:"email"`
	Role             Role         `json:"role"`
	Status           InviteStatus `json:"status"`
	InvitedBy        snowflake.ID `json:"invited_by"`
	CreatedAt        time.Time    `json:"created_at"`
	ExpiresAt        time.Time    `json:"expires_at"`
}

type AcceptResult struct {
	OrgID         snowflake.ID `json:"org_id"`
	Role          Role         `json:"role"`
	AlreadyMember bool         `json:"already_member"`
}

// NewInviteView builds the read model of an invite at the given instant.
func NewInviteView(invite Invite, orgName string, now time.Time) InviteView {
	return InviteView{
		ID:               invite.ID,
		OrgID:            invite.OrgID,
		OrganizationName: orgName,
		Email:            invite.Email,
		Role:             invite.Role,
		Status:           invite.StatusAt(now),
		InvitedBy:        invite.InvitedBy,
		CreatedAt:        invite.CreatedAt,
		ExpiresAt:        invite.ExpiresAt,
	}
}
