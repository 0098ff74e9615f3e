package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/mailseat/internal/audit/domain"
	"github.com/smallbiznis/mailseat/internal/audit/repository"
	"github.com/smallbiznis/mailseat/internal/auditcontext"
	"github.com/smallbiznis/mailseat/internal/orgcontext"
	"github.com/smallbiznis/mailseat/pkg/db"
	"github.com/smallbiznis/mailseat/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(Params{
		DB:    conn,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Repo:  repository.Provide(),
	}).(*Service)
}

func TestAuditLogPersistsContextAndMasksSecrets(t *testing.T) {
	svc := newTestService(t)
	orgID := snowflake.ID(1001)

	ctx := auditcontext.WithRequestID(context.Background(), "req-1")
	ctx = auditcontext.WithIPAddress(ctx, "10.0.0.1")
	ctx = auditcontext.WithActor(ctx, "user", "77")

	err := svc.AuditLog(ctx, &orgID, "", nil, "invite.issued", "invite", nil, map[string]any{
		"email": "ada@example.com",
		"token": "abcdefghijkl",
	})
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{OrgID: orgID})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "invite.issued", entry.Action)
	assert.Equal(t, "user", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "77", *entry.ActorID)
	require.NotNil(t, entry.IPAddress)
	assert.Equal(t, "10.0.0.1", *entry.IPAddress)
	assert.Equal(t, "ada@example.com", entry.Metadata["email"])
	assert.Equal(t, "****ijkl", entry.Metadata["token"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
}

func TestAuditLogRejectsEmptyAction(t *testing.T) {
	svc := newTestService(t)
	err := svc.AuditLog(context.Background(), nil, "system", nil, " ", "", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc := newTestService(t)
	orgID := snowflake.ID(2002)
	other := snowflake.ID(3003)

	for _, action := range []string{"member.added", "member.role_changed", "member.removed"} {
		require.NoError(t, svc.AuditLog(context.Background(), &orgID, "system", nil, action, "member", nil, nil))
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, svc.AuditLog(context.Background(), &other, "system", nil, "member.added", "member", nil, nil))

	first, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		OrgID:      orgID,
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "member.removed", first.AuditLogs[0].Action)
	assert.Equal(t, "member.role_changed", first.AuditLogs[1].Action)

	second, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		OrgID:      orgID,
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, "member.added", second.AuditLogs[0].Action)
}

func TestListResolvesOrgFromContext(t *testing.T) {
	svc := newTestService(t)
	orgID := snowflake.ID(4004)
	require.NoError(t, svc.AuditLog(context.Background(), &orgID, "system", nil, "organization.created", "organization", nil, nil))

	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))
	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 1)

	_, err = svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidOrganization)

	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageToken: "not-a-token"}})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}

func TestListFiltersByCategoryAndActor(t *testing.T) {
	svc := newTestService(t)
	orgID := snowflake.ID(5005)
	owner, admin := "11", "12"

	require.NoError(t, svc.AuditLog(context.Background(), &orgID, "user", &owner, "invite.issued", "invite", nil, nil))
	require.NoError(t, svc.AuditLog(context.Background(), &orgID, "user", &admin, "invite.revoked", "invite", nil, nil))
	require.NoError(t, svc.AuditLog(context.Background(), &orgID, "user", &owner, "member.added", "user", nil, nil))
	// A prefix that only looks like a category must not match.
	require.NoError(t, svc.AuditLog(context.Background(), &orgID, "user", &owner, "invitee.noted", "user", nil, nil))

	invites, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{OrgID: orgID, Action: "invite"})
	require.NoError(t, err)
	actions := make([]string, 0, len(invites.AuditLogs))
	for _, entry := range invites.AuditLogs {
		actions = append(actions, entry.Action)
	}
	assert.ElementsMatch(t, []string{"invite.issued", "invite.revoked"}, actions)

	exact, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{OrgID: orgID, Action: "invite.revoked"})
	require.NoError(t, err)
	require.Len(t, exact.AuditLogs, 1)

	byOwner, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{OrgID: orgID, ActorID: owner})
	require.NoError(t, err)
	assert.Len(t, byOwner.AuditLogs, 3)
}

func TestAuditLogRequiresOrganization(t *testing.T) {
	svc := newTestService(t)

	err := svc.AuditLog(context.Background(), nil, "system", nil, "member.added", "user", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidOrganization)
}
