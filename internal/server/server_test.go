package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	auditdomain "github.com/smallbiznis/mailseat/internal/audit/domain"
	"github.com/smallbiznis/mailseat/internal/observability"
	obsmetrics "github.com/smallbiznis/mailseat/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/mailseat/internal/organization/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errNotStubbed = errors.New("not stubbed")

// fakeOrgService records the last call and returns whatever the test stubs.
type fakeOrgService struct {
	callerID snowflake.ID
	orgID    snowflake.ID
	targetID snowflake.ID
	role     orgdomain.Role
	email    string
	token    string

	addResult    *orgdomain.AddUserResult
	issued       *orgdomain.IssuedInvite
	view         *orgdomain.InviteView
	acceptResult *orgdomain.AcceptResult
	org          *orgdomain.Organization
	err          error
}

func (f *fakeOrgService) CreateOrganization(ctx context.Context, callerID snowflake.ID, req orgdomain.CreateOrganizationRequest) (*orgdomain.Organization, error) {
	f.callerID = callerID
	if f.err != nil {
		return nil, f.err
	}
	return &orgdomain.Organization{ID: 10, Name: req.Name, Slug: "acme", Plan: "free", Seats: 1}, nil
}

func (f *fakeOrgService) GetOrganization(ctx context.Context, callerID, orgID snowflake.ID) (*orgdomain.Organization, error) {
	f.callerID, f.orgID = callerID, orgID
	if f.err != nil {
		return nil, f.err
	}
	return f.org, nil
}

func (f *fakeOrgService) UpdateSeats(ctx context.Context, callerID, orgID snowflake.ID, seats int) (*orgdomain.Organization, error) {
	f.callerID, f.orgID = callerID, orgID
	if f.err != nil {
		return nil, f.err
	}
	return &orgdomain.Organization{ID: orgID, Seats: seats}, nil
}

func (f *fakeOrgService) ListMembers(ctx context.Context, callerID, orgID snowflake.ID) ([]orgdomain.MemberView, error) {
	f.callerID, f.orgID = callerID, orgID
	return nil, f.err
}

func (f *fakeOrgService) AddUserDirect(ctx context.Context, callerID snowflake.ID, req orgdomain.AddUserRequest) (*orgdomain.AddUserResult, error) {
	f.callerID, f.orgID, f.role, f.email = callerID, req.OrgID, req.Role, req.Email
	if f.err != nil {
		return nil, f.err
	}
	return f.addResult, nil
}

func (f *fakeOrgService) RemoveMember(ctx context.Context, callerID, orgID, targetUserID snowflake.ID) error {
	f.callerID, f.orgID, f.targetID = callerID, orgID, targetUserID
	return f.err
}

func (f *fakeOrgService) ChangeRole(ctx context.Context, callerID, orgID, targetUserID snowflake.ID, role orgdomain.Role) (*orgdomain.Member, error) {
	f.callerID, f.orgID, f.targetID, f.role = callerID, orgID, targetUserID, role
	if f.err != nil {
		return nil, f.err
	}
	return &orgdomain.Member{OrgID: orgID, UserID: targetUserID, Role: role}, nil
}

func (f *fakeOrgService) TransferOwnership(ctx context.Context, callerID, orgID, newOwnerID snowflake.ID) error {
	f.callerID, f.orgID, f.targetID = callerID, orgID, newOwnerID
	return f.err
}

func (f *fakeOrgService) InviteMember(ctx context.Context, callerID snowflake.ID, req orgdomain.InviteRequest) (*orgdomain.IssuedInvite, error) {
	f.callerID, f.orgID, f.role, f.email = callerID, req.OrgID, req.Role, req.Email
	if f.err != nil {
		return nil, f.err
	}
	return f.issued, nil
}

func (f *fakeOrgService) ValidateInvite(ctx context.Context, token string) (*orgdomain.InviteView, error) {
	f.token = token
	if f.err != nil {
		return nil, f.err
	}
	return f.view, nil
}

func (f *fakeOrgService) AcceptInvite(ctx context.Context, userID snowflake.ID, token string) (*orgdomain.AcceptResult, error) {
	f.callerID, f.token = userID, token
	if f.err != nil {
		return nil, f.err
	}
	return f.acceptResult, nil
}

func (f *fakeOrgService) RevokeInvite(ctx context.Context, callerID, inviteID snowflake.ID) error {
	f.callerID, f.targetID = callerID, inviteID
	return f.err
}

func (f *fakeOrgService) ListInvites(ctx context.Context, callerID, orgID snowflake.ID) ([]orgdomain.InviteView, error) {
	f.callerID, f.orgID = callerID, orgID
	return nil, f.err
}

func (f *fakeOrgService) ListAuditLogs(ctx context.Context, callerID snowflake.ID, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	f.callerID, f.orgID = callerID, req.OrgID
	if f.err != nil {
		return auditdomain.ListAuditLogResponse{}, f.err
	}
	return auditdomain.ListAuditLogResponse{}, errNotStubbed
}

func newTestServer(t *testing.T, svc *fakeOrgService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	engine := NewEngine(observability.Config{Environment: "test"}, obsmetrics.NewHTTPMetrics(reg), reg)
	NewServer(ServerParams{
		Gin:             engine,
		Log:             zaptest.NewLogger(t),
		OrganizationSvc: svc,
	})
	return engine
}

func do(t *testing.T, engine *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestMapErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{orgdomain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{orgdomain.ErrForbidden, http.StatusForbidden, "forbidden"},
		{orgdomain.ErrEmailMismatch, http.StatusForbidden, "email_mismatch"},
		{orgdomain.ErrOrganizationNotFound, http.StatusNotFound, "organization_not_found"},
		{orgdomain.ErrInviteNotFound, http.StatusNotFound, "invite_not_found"},
		{orgdomain.ErrMemberNotFound, http.StatusNotFound, "member_not_found"},
		{orgdomain.ErrSeatsExhausted, http.StatusConflict, "seats_exhausted"},
		{orgdomain.ErrDuplicateInvite, http.StatusConflict, "duplicate_invite"},
		{orgdomain.ErrAlreadyMember, http.StatusConflict, "already_member"},
		{orgdomain.ErrAlreadyAccepted, http.StatusConflict, "already_accepted"},
		{orgdomain.ErrLastOwner, http.StatusConflict, "last_owner"},
		{orgdomain.ErrSeatsBelowUsage, http.StatusConflict, "seats_below_usage"},
		{orgdomain.ErrInviteExpired, http.StatusBadRequest, "invite_expired"},
		{orgdomain.ErrInvalidEmail, http.StatusBadRequest, "invalid_email"},
		{orgdomain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{auditdomain.ErrInvalidPageToken, http.StatusBadRequest, "invalid_page_token"},
		{ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, payload.Code)
			assert.NotEmpty(t, payload.Message)
		})
	}
}

func TestMapErrorUnwrapsWrappedDomainErrors(t *testing.T) {
	status, payload := mapError(errors.Join(errors.New("tx"), orgdomain.ErrSeatsExhausted))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "seats_exhausted", payload.Code)
}

func TestCallerRequired(t *testing.T) {
	engine := newTestServer(t, &fakeOrgService{})

	rec := do(t, engine, http.MethodGet, "/api/organizations/10/members", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Code)

	rec = do(t, engine, http.MethodGet, "/api/organizations/10/members", "not-a-number", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAddUserDirectHandler(t *testing.T) {
	svc := &fakeOrgService{
		addResult: &orgdomain.AddUserResult{
			User:      orgdomain.User{ID: 77, Email: "new@example.com"},
			Member:    orgdomain.Member{OrgID: 10, UserID: 77, Role: orgdomain.RoleMember},
			IsNewUser: true,
		},
	}
	engine := newTestServer(t, svc)

	rec := do(t, engine, http.MethodPost, "/api/members", "5", map[string]string{
		"org_id": "10",
		"email":  "new@example.com",
		"role":   "member",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, snowflake.ID(5), svc.callerID)
	assert.Equal(t, snowflake.ID(10), svc.orgID)
	assert.Equal(t, orgdomain.RoleMember, svc.role)

	var body struct {
		UserID    string `json:"user_id"`
		IsNewUser bool   `json:"is_new_user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "77", body.UserID)
	assert.True(t, body.IsNewUser)
}

func TestAddUserDirectHandlerRejections(t *testing.T) {
	engine := newTestServer(t, &fakeOrgService{})

	rec := do(t, engine, http.MethodPost, "/api/members", "5", map[string]string{
		"org_id": "10",
		"email":  "new@example.com",
		"role":   "guest",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_role", decodeError(t, rec).Code)

	rec = do(t, engine, http.MethodPost, "/api/members", "5", map[string]string{"org_id": "10"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Code)

	engine = newTestServer(t, &fakeOrgService{err: orgdomain.ErrSeatsExhausted})
	rec = do(t, engine, http.MethodPost, "/api/members", "5", map[string]string{
		"org_id": "10",
		"email":  "new@example.com",
		"role":   "MEMBER",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "conflict", payload.Type)
	assert.Equal(t, "seats_exhausted", payload.Code)
}

func TestRemoveMemberHandler(t *testing.T) {
	svc := &fakeOrgService{err: orgdomain.ErrLastOwner}
	engine := newTestServer(t, svc)

	rec := do(t, engine, http.MethodDelete, "/api/members/10/5", "5", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "last_owner", decodeError(t, rec).Code)
	assert.Equal(t, snowflake.ID(5), svc.targetID)

	rec = do(t, engine, http.MethodDelete, "/api/members/abc/5", "5", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_organization", decodeError(t, rec).Code)
}

func TestChangeRoleHandler(t *testing.T) {
	svc := &fakeOrgService{}
	engine := newTestServer(t, svc)

	rec := do(t, engine, http.MethodPatch, "/api/members/10/6", "5", map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, orgdomain.RoleAdmin, svc.role)
	assert.Equal(t, snowflake.ID(6), svc.targetID)
}

func TestUpdateSeatsRequiresSeats(t *testing.T) {
	engine := newTestServer(t, &fakeOrgService{})

	rec := do(t, engine, http.MethodPatch, "/api/organizations/10/seats", "5", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, engine, http.MethodPatch, "/api/organizations/10/seats", "5", map[string]int{"seats": 12})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body organizationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 12, body.Seats)
	assert.Equal(t, 12, body.SeatsAvailable)
}

func TestTransferOwnershipHandler(t *testing.T) {
	svc := &fakeOrgService{}
	engine := newTestServer(t, svc)

	rec := do(t, engine, http.MethodPost, "/api/organizations/10/transfer-ownership", "5", map[string]string{"new_owner_user_id": "6"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, snowflake.ID(6), svc.targetID)

	svc.err = orgdomain.ErrMemberNotFound
	rec = do(t, engine, http.MethodPost, "/api/organizations/10/transfer-ownership", "5", map[string]string{"new_owner_user_id": "7"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInviteHandlers(t *testing.T) {
	expires := time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)
	svc := &fakeOrgService{
		issued: &orgdomain.IssuedInvite{
			Invite: orgdomain.Invite{ID: 90, OrgID: 10, Email: "guest@example.com", Role: orgdomain.RoleMember, ExpiresAt: expires},
			Token:  "raw-token",
		},
		view: &orgdomain.InviteView{
			ID:               90,
			OrgID:            10,
			OrganizationName: "Acme",
			Email:            "guest@example.com",
			Role:             orgdomain.RoleMember,
			Status:           orgdomain.InviteStatusPending,
			ExpiresAt:        expires,
		},
		acceptResult: &orgdomain.AcceptResult{OrgID: 10, Role: orgdomain.RoleMember},
	}
	engine := newTestServer(t, svc)

	rec := do(t, engine, http.MethodPost, "/api/invites", "5", map[string]string{
		"org_id": "10",
		"email":  "guest@example.com",
		"role":   "MEMBER",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var issued issuedInviteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	assert.Equal(t, "raw-token", issued.Token)
	assert.Equal(t, orgdomain.InviteStatusPending, issued.Status)
	assert.NotContains(t, rec.Body.String(), "token_hash")

	// Token lookup is public.
	rec = do(t, engine, http.MethodGet, "/api/invites/raw-token", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "raw-token", svc.token)
	assert.Contains(t, rec.Body.String(), `"organization_name":"Acme"`)

	rec = do(t, engine, http.MethodPost, "/api/invites/raw-token/accept", "8", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, snowflake.ID(8), svc.callerID)
	assert.Contains(t, rec.Body.String(), `"organization_id":"10"`)

	// A body naming another address is ignored; the account email decides.
	svc.email = ""
	rec = do(t, engine, http.MethodPost, "/api/invites/raw-token/accept", "9", map[string]string{"email": "guest@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, snowflake.ID(9), svc.callerID)
	assert.Equal(t, "raw-token", svc.token)
	assert.Empty(t, svc.email)

	rec = do(t, engine, http.MethodDelete, "/api/invites/90", "5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, snowflake.ID(90), svc.targetID)
}

func TestInviteHandlerErrors(t *testing.T) {
	svc := &fakeOrgService{err: orgdomain.ErrInviteExpired}
	engine := newTestServer(t, svc)

	rec := do(t, engine, http.MethodGet, "/api/invites/old", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invite_expired", decodeError(t, rec).Code)

	svc.err = orgdomain.ErrEmailMismatch
	rec = do(t, engine, http.MethodPost, "/api/invites/old/accept", "8", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "email_mismatch", decodeError(t, rec).Code)

	svc.err = orgdomain.ErrRateLimited
	rec = do(t, engine, http.MethodPost, "/api/invites", "5", map[string]string{
		"org_id": "10",
		"email":  "guest@example.com",
		"role":   "MEMBER",
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestAuditLogQueryValidation(t *testing.T) {
	engine := newTestServer(t, &fakeOrgService{})

	rec := do(t, engine, http.MethodGet, "/api/organizations/10/audit-logs?page_size=500", "5", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, engine, http.MethodGet, "/api/organizations/10/audit-logs?start_at=yesterday", "5", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_start_at", decodeError(t, rec).Code)
}

func TestHealthMetricsAndFallback(t *testing.T) {
	engine := newTestServer(t, &fakeOrgService{})

	rec := do(t, engine, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, engine, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, engine, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Code)
}
