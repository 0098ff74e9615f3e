package organization

import (
	"github.com/smallbiznis/mailseat/internal/organization/authority"
	"github.com/smallbiznis/mailseat/internal/organization/internal/repository"
	"github.com/smallbiznis/mailseat/internal/organization/invitation"
	"github.com/smallbiznis/mailseat/internal/organization/seat"
	"github.com/smallbiznis/mailseat/internal/organization/service"
	"github.com/smallbiznis/mailseat/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	authority.Module,
	seat.Module,
	invitation.Module,
	fx.Provide(repository.NewRepository),
	fx.Provide(func(l *ratelimit.InviteLimiter) service.InviteLimiter { return l }),
	fx.Provide(service.NewService),
)
