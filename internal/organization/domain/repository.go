package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the membership store. Lookups return (nil, nil) when the
// row does not exist. seats_used is not writable through this interface.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrganization(ctx context.Context, org Organization) error
	GetOrganization(ctx context.Context, orgID snowflake.ID) (*Organization, error)
	LockOrganization(ctx context.Context, orgID snowflake.ID) (*Organization, error)
	SlugExists(ctx context.Context, slug string) (bool, error)

	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, userID snowflake.ID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	AddMember(ctx context.Context, member Member) error
	GetMember(ctx context.Context, orgID, userID snowflake.ID) (*Member, error)
	LockMember(ctx context.Context, orgID, userID snowflake.ID) (*Member, error)
	GetMemberByEmail(ctx context.Context, orgID snowflake.ID, email string) (*Member, error)
	UpdateMemberRole(ctx context.Context, orgID, userID snowflake.ID, role Role) error
	DeleteMember(ctx context.Context, orgID, userID snowflake.ID) error
	LockOwners(ctx context.Context, orgID snowflake.ID) ([]snowflake.ID, error)
	ListMembers(ctx context.Context, orgID snowflake.ID) ([]MemberView, error)

	CreateInvite(ctx context.Context, invite Invite) error
	GetInvite(ctx context.Context, inviteID snowflake.ID) (*Invite, error)
	LockInviteByTokenHash(ctx context.Context, tokenHash string) (*Invite, error)
	GetInviteByTokenHash(ctx context.Context, tokenHash string) (*Invite, error)
	ListOpenInvitesByEmail(ctx context.Context, orgID snowflake.ID, email string) ([]Invite, error)
	ListInvites(ctx context.Context, orgID snowflake.ID) ([]Invite, error)
	MarkInviteAccepted(ctx context.Context, inviteID, userID snowflake.ID, at time.Time) (bool, error)
	MarkInviteRevoked(ctx context.Context, inviteID snowflake.ID, at time.Time) (bool, error)
}
