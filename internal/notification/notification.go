// Package notification delivers membership emails after a change commits.
// Delivery is best-effort: failures are logged and never roll back or fail
// the operation that produced them.
package notification

//go:generate mockgen -destination=mock_notification/dispatcher.go -package=mock_notification github.com/smallbiznis/mailseat/internal/notification Dispatcher

import (
	"context"
	"time"
)

type Kind string

const (
	KindInviteIssued         Kind = "invite_member"
	KindMemberAdded          Kind = "member_added"
	KindMemberRemoved        Kind = "member_removed"
	KindRoleChanged          Kind = "role_changed"
	KindOwnershipTransferred Kind = "ownership_transferred"
)

type Message struct {
	Kind             Kind
	To               string
	OrganizationName string
	Role             string
	PreviousRole     string
	Actor            string
	InviteToken      string
	ExpiresAt        time.Time
}

// Dispatcher sends one notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// NoopDispatcher discards every message.
type NoopDispatcher struct{}

func (NoopDispatcher) Dispatch(context.Context, Message) error { return nil }
