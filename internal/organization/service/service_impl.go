package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/mailseat/internal/audit/domain"
	"github.com/smallbiznis/mailseat/internal/clock"
	"github.com/smallbiznis/mailseat/internal/config"
	"github.com/smallbiznis/mailseat/internal/notification"
	"github.com/smallbiznis/mailseat/internal/observability/metrics"
	"github.com/smallbiznis/mailseat/internal/orgcontext"
	"github.com/smallbiznis/mailseat/internal/organization/authority"
	"github.com/smallbiznis/mailseat/internal/organization/domain"
	"github.com/smallbiznis/mailseat/internal/organization/invitation"
	"github.com/smallbiznis/mailseat/internal/organization/seat"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InviteLimiter throttles invite issuance per organization.
type InviteLimiter interface {
	Allow(ctx context.Context, orgID snowflake.ID) bool
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Policy    *config.MembershipPolicyHolder
	Repo      domain.Repository
	Authority *authority.Authority
	Seats     *seat.Accountant
	Invites   *invitation.Manager
	AuditSvc  auditdomain.Service
	Notifier  notification.Dispatcher
	Limiter   InviteLimiter              `optional:"true"`
	Metrics   *metrics.MembershipMetrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	policy    *config.MembershipPolicyHolder
	repo      domain.Repository
	authority *authority.Authority
	seats     *seat.Accountant
	invites   *invitation.Manager
	auditSvc  auditdomain.Service
	notifier  notification.Dispatcher
	limiter   InviteLimiter
	metrics   *metrics.MembershipMetrics
	tracer    trace.Tracer
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("organization.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		policy:    p.Policy,
		repo:      p.Repo,
		authority: p.Authority,
		seats:     p.Seats,
		invites:   p.Invites,
		auditSvc:  p.AuditSvc,
		notifier:  p.Notifier,
		limiter:   p.Limiter,
		metrics:   p.Metrics,
		tracer:    otel.Tracer("github.com/smallbiznis/mailseat/internal/organization/service"),
	}
}

// txFunc runs inside a membership transaction. store is bound to tx.
type txFunc func(ctx context.Context, tx *gorm.DB, store domain.Repository) error

// inTx runs fn in one transaction bounded by the configured timeout.
func (s *Service) inTx(ctx context.Context, fn txFunc) error {
	timeout := s.policy.Get().TransactionTimeout
	txCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return s.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		return fn(txCtx, tx, s.repo.WithTx(tx))
	})
}

// track opens a span for op and records its outcome when the returned func
// is called with the operation's final error.
func (s *Service) track(ctx context.Context, op string, orgID snowflake.ID) (context.Context, func(error)) {
	if orgID != 0 {
		ctx = orgcontext.WithOrgID(ctx, int64(orgID))
	}
	ctx, span := s.tracer.Start(ctx, "organization."+op, trace.WithAttributes(
		attribute.String("org_id", orgID.String()),
	))
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = domain.CodeOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			if domain.KindOf(err) == domain.KindInternal {
				s.log.Error("membership operation failed", zap.String("operation", op), zap.Error(err))
			}
		}
		s.metrics.ObserveOperation(op, outcome)
		span.End()
	}
}

// loadCaller resolves the acting user and their membership in orgID.
func (s *Service) loadCaller(ctx context.Context, store domain.Repository, callerID, orgID snowflake.ID) (authority.Caller, *domain.User, error) {
	if callerID == 0 {
		return authority.Caller{}, nil, domain.ErrUnauthorized
	}
	user, err := store.GetUser(ctx, callerID)
	if err != nil {
		return authority.Caller{}, nil, err
	}
	if user == nil {
		return authority.Caller{}, nil, domain.ErrUnauthorized
	}

	caller := authority.Caller{UserID: user.ID, IsSuperAdmin: user.IsSuperAdmin}
	member, err := store.GetMember(ctx, orgID, callerID)
	if err != nil {
		return authority.Caller{}, nil, err
	}
	if member != nil {
		caller.Role = member.Role
	}
	return caller, user, nil
}

// lockOrganization loads and locks the organization row or fails with
// NotFound. Mutations take this lock before any member, owner or invite row
// lock, so every transaction acquires row locks in the same order.
func lockOrganization(ctx context.Context, store domain.Repository, orgID snowflake.ID) (*domain.Organization, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	org, err := store.LockOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	return org, nil
}

// requireOrganization loads the organization or fails with NotFound.
func requireOrganization(ctx context.Context, store domain.Repository, orgID snowflake.ID) (*domain.Organization, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	org, err := store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	return org, nil
}

func (s *Service) CreateOrganization(ctx context.Context, callerID snowflake.ID, req domain.CreateOrganizationRequest) (org *domain.Organization, err error) {
	ctx, done := s.track(ctx, "create_organization", 0)
	defer func() { done(err) }()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	seats := req.Seats
	if seats == 0 {
		seats = s.policy.Get().DefaultSeats
	}
	if seats < 1 {
		return nil, domain.ErrInvalidSeats
	}
	plan := strings.TrimSpace(req.Plan)
	if plan == "" {
		plan = "free"
	}
	billingEmail := ""
	if strings.TrimSpace(req.BillingEmail) != "" {
		billingEmail, err = domain.NormalizeEmail(req.BillingEmail)
		if err != nil {
			return nil, err
		}
	}

	effects := &sideEffects{}
	err = s.inTx(ctx, func(ctx context.Context, tx *gorm.DB, store domain.Repository) error {
		user, err := store.GetUser(ctx, callerID)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrUnauthorized
		}
		if billingEmail == "" {
			billingEmail = user.Email
		}

		now := s.clock.Now()
		orgID := s.genID.Generate()
		orgSlug, err := s.uniqueSlug(ctx, store, name, orgID)
		if err != nil {
			return err
		}

		created := domain.Organization{
			ID:           orgID,
			Name:         name,
			Slug:         orgSlug,
			Plan:         plan,
			Seats:        seats,
			BillingEmail: billingEmail,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := store.CreateOrganization(ctx, created); err != nil {
			return fmt.Errorf("create organization: %w", err)
		}
		if err := store.AddMember(ctx, domain.Member{
			ID:       s.genID.Generate(),
			OrgID:    orgID,
			UserID:   user.ID,
			Role:     domain.RoleOwner,
			JoinedAt: now,
		}); err != nil {
			return fmt.Errorf("add owner: %w", err)
		}

		org = &created
		effects.audit(orgID, user.ID, "organization.created", "organization", orgID.String(), map[string]any{
			"name":  name,
			"slug":  orgSlug,
			"seats": seats,
			"plan":  plan,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, effects)
	return org, nil
}

func (s *Service) uniqueSlug(ctx context.Context, store domain.Repository, name string, orgID snowflake.ID) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "org"
	}
	taken, err := store.SlugExists(ctx, base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}
	return base + "-" + strings.ToLower(orgID.Base36()), nil
}

func (s *Service) GetOrganization(ctx context.Context, callerID, orgID snowflake.ID) (org *domain.Organization, err error) {
	ctx, done := s.track(ctx, "get_organization", orgID)
	defer func() { done(err) }()

	org, err = requireOrganization(ctx, s.repo, orgID)
	if err != nil {
		return nil, err
	}
	caller, _, err := s.loadCaller(ctx, s.repo, callerID, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.authority.Authorize(caller, domain.ActionViewOrganization); err != nil {
		return nil, err
	}
	return org, nil
}

func (s *Service) UpdateSeats(ctx context.Context, callerID, orgID snowflake.ID, seats int) (org *domain.Organization, err error) {
	ctx, done := s.track(ctx, "update_seats", orgID)
	defer func() { done(err) }()

	if seats < 1 {
		return nil, domain.ErrInvalidSeats
	}

	effects := &sideEffects{}
	err = s.inTx(ctx, func(ctx context.Context, tx *gorm.DB, store domain.Repository) error {
		current, err := lockOrganization(ctx, store, orgID)
		if err != nil {
			return err
		}
		caller, _, err := s.loadCaller(ctx, store, callerID, orgID)
		if err != nil {
			return err
		}
		if err := s.authority.Authorize(caller, domain.ActionUpdateSeats); err != nil {
			return err
		}

		if err := s.seats.Resize(ctx, tx, orgID, seats); err != nil {
			return err
		}
		org, err = requireOrganization(ctx, store, orgID)
		if err != nil {
			return err
		}

		effects.audit(orgID, caller.UserID, "organization.seats_updated", "organization", orgID.String(), map[string]any{
			"previous_seats": current.Seats,
			"seats":          seats,
			"seats_used":     org.SeatsUsed,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, effects)
	return org, nil
}

func (s *Service) ListMembers(ctx context.Context, callerID, orgID snowflake.ID) (members []domain.MemberView, err error) {
	ctx, done := s.track(ctx, "list_members", orgID)
	defer func() { done(err) }()

	if _, err := requireOrganization(ctx, s.repo, orgID); err != nil {
		return nil, err
	}
	caller, _, err := s.loadCaller(ctx, s.repo, callerID, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.authority.Authorize(caller, domain.ActionViewOrganization); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, orgID)
}

func (s *Service) ListAuditLogs(ctx context.Context, callerID snowflake.ID, req auditdomain.ListAuditLogRequest) (resp auditdomain.ListAuditLogResponse, err error) {
	ctx, done := s.track(ctx, "list_audit_logs", req.OrgID)
	defer func() { done(err) }()

	if _, err := requireOrganization(ctx, s.repo, req.OrgID); err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}
	caller, _, err := s.loadCaller(ctx, s.repo, callerID, req.OrgID)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}
	if err := s.authority.Authorize(caller, domain.ActionViewAuditLog); err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}
	return s.auditSvc.List(ctx, req)
}
