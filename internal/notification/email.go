package notification

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/mailseat/internal/providers/email"
)

var ErrNoRecipient = errors.New("notification: no recipient")

// EmailDispatcher renders a message with the email provider templates.
type EmailDispatcher struct {
	provider email.Provider
	appURL   string
}

func NewEmailDispatcher(provider email.Provider, appURL string) *EmailDispatcher {
	return &EmailDispatcher{
		provider: provider,
		appURL:   strings.TrimRight(appURL, "/"),
	}
}

func (d *EmailDispatcher) Dispatch(ctx context.Context, msg Message) error {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return ErrNoRecipient
	}

	data := map[string]any{
		"org_name":      msg.OrganizationName,
		"role":          msg.Role,
		"previous_role": msg.PreviousRole,
		"inviter":       msg.Actor,
		"new_owner":     msg.Actor,
	}
	if msg.InviteToken != "" {
		data["invite_url"] = d.InviteURL(msg.InviteToken)
	}
	if !msg.ExpiresAt.IsZero() {
		data["expires_at"] = msg.ExpiresAt.UTC().Format(time.RFC1123)
	}

	return d.provider.SendTemplate(ctx, []string{to}, string(msg.Kind), data)
}

// InviteURL is the link the invitee follows to accept.
func (d *EmailDispatcher) InviteURL(token string) string {
	return d.appURL + "/invites/" + token
}
