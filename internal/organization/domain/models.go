// Package domain contains the persistence models and contracts of the
// organization membership subsystem.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Organization is a billing account holding paid seats.
type Organization struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Name         string       `gorm:"type:text;not null" json:"name"`
	Slug         string       `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	Plan         string       `gorm:"type:text;not null;default:'free'" json:"plan"`
	Seats        int          `gorm:"not null;check:chk_organizations_seats,seats >= 1" json:"seats"`
	SeatsUsed    int          `gorm:"column:seats_used;not null;default:0;check:chk_organizations_seats_used,seats_used >= 0 AND seats_used <= seats" json:"seats_used"`
	BillingEmail string       `gorm:"type:text;column:billing_email" json:"billing_email"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// SeatsAvailable reports the remaining headroom.
func (o Organization) SeatsAvailable() int {
	if o.SeatsUsed >= o.Seats {
		return 0
	}
	return o.Seats - o.SeatsUsed
}

// Member is the membership of a user in an organization.
type Member struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID    snowflake.ID `gorm:"column:org_id;not null;uniqueIndex:ux_org_user,priority:1" json:"org_id"`
	UserID   snowflake.ID `gorm:"not null;index;uniqueIndex:ux_org_user,priority:2" json:"user_id"`
	Role     Role         `gorm:"type:text;not null" json:"role"`
	JoinedAt time.Time    `gorm:"not null" json:"joined_at"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "organization_members" }

// User is a person that can belong to organizations.
type User struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Email        string       `gorm:"type:text;not null;uniqueIndex:ux_users_email" json:"email"`
	Name         string       `gorm:"type:text;not null" json:"name"`
	IsSuperAdmin bool         `gorm:"column:is_super_admin;not null;default:false" json:"is_super_admin"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Invite is a time-boxed, single-use grant for an email to join an organization.
// Only the SHA-256 fingerprint of the token is stored.
type Invite struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID  `gorm:"column:org_id;not null;index:ix_invites_org_email,priority:1" json:"org_id"`
	Email      string        `gorm:"type:text;not null;index:ix_invites_org_email,priority:2" json:"email"`
	Role       Role          `gorm:"type:text;not null" json:"role"`
	TokenHash  string        `gorm:"type:text;not null;uniqueIndex:ux_invites_token_hash" json:"-"`
	InvitedBy  snowflake.ID  `gorm:"column:invited_by;not null" json:"invited_by"`
	CreatedAt  time.Time     `gorm:"not null" json:"created_at"`
	ExpiresAt  time.Time     `gorm:"not null" json:"expires_at"`
	AcceptedAt *time.Time    `json:"accepted_at,omitempty"`
	AcceptedBy *snowflake.ID `gorm:"column:accepted_by" json:"accepted_by,omitempty"`
	RevokedAt  *time.Time    `json:"revoked_at,omitempty"`
}

// TableName sets the database table name.
func (Invite) TableName() string { return "organization_invites" }

type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "PENDING"
	InviteStatusExpired  InviteStatus = "EXPIRED"
	InviteStatusAccepted InviteStatus = "ACCEPTED"
	InviteStatusRevoked  InviteStatus = "REVOKED"
)

// StatusAt computes the lifecycle state. EXPIRED is never written.
func (i Invite) StatusAt(now time.Time) InviteStatus {
	switch {
	case i.AcceptedAt != nil:
		return InviteStatusAccepted
	case i.RevokedAt != nil:
		return InviteStatusRevoked
	case !now.Before(i.ExpiresAt):
		return InviteStatusExpired
	default:
		return InviteStatusPending
	}
}

// MemberView joins a membership with its user.
type MemberView struct {
	UserID   snowflake.ID `json:"user_id"`
	Email    string       `json:"email"`
	Name     string       `json:"name"`
	Role     Role         `json:"role"`
	JoinedAt time.Time    `json:"joined_at"`
}
