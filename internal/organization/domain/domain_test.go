package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" admin ")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	_, err = ParseRole("FINOPS")
	assert.ErrorIs(t, err, ErrInvalidRole)

	assert.True(t, RoleMember.ConsumesSeat())
	assert.False(t, RoleAdmin.ConsumesSeat())
	assert.False(t, RoleOwner.ConsumesSeat())
}

func TestNormalizeEmail(t *testing.T) {
	email, err := NormalizeEmail("  Ada@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", email)

	for _, raw := range []string{"", "nope", "Ada <ada@example.com>", "a@b@c"} {
		_, err := NormalizeEmail(raw)
		assert.ErrorIs(t, err, ErrInvalidEmail, raw)
	}
}

func TestInviteStatusAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	invite := Invite{ExpiresAt: now.Add(time.Hour)}

	assert.Equal(t, InviteStatusPending, invite.StatusAt(now))
	assert.Equal(t, InviteStatusExpired, invite.StatusAt(now.Add(time.Hour)))

	accepted := now
	invite.AcceptedAt = &accepted
	assert.Equal(t, InviteStatusAccepted, invite.StatusAt(now.Add(2*time.Hour)))

	revoked := Invite{ExpiresAt: now.Add(time.Hour), RevokedAt: &accepted}
	assert.Equal(t, InviteStatusRevoked, revoked.StatusAt(now))
}

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("add member: %w", ErrSeatsExhausted)

	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, "seats_exhausted", CodeOf(wrapped))
	assert.ErrorIs(t, wrapped, ErrSeatsExhausted)

	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("boom")))
	assert.Equal(t, "internal_error", CodeOf(fmt.Errorf("boom")))
	assert.Equal(t, KindExpired, KindOf(ErrInviteExpired))
	assert.Equal(t, KindForbidden, KindOf(ErrEmailMismatch))
}

func TestSeatsAvailable(t *testing.T) {
	assert.Equal(t, 3, Organization{Seats: 5, SeatsUsed: 2}.SeatsAvailable())
	assert.Equal(t, 0, Organization{Seats: 2, SeatsUsed: 2}.SeatsAvailable())
}
