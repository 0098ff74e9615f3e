package notification

import (
	"context"
	"time"

	"github.com/smallbiznis/mailseat/internal/config"
	"github.com/smallbiznis/mailseat/internal/observability/metrics"
	"github.com/smallbiznis/mailseat/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(NewDispatcher),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Policy    *config.MembershipPolicyHolder
	Provider  email.Provider
	Log       *zap.Logger
	Metrics   *metrics.MembershipMetrics `optional:"true"`
}

func NewDispatcher(p Params) Dispatcher {
	async := NewAsyncDispatcher(
		NewEmailDispatcher(p.Provider, p.Config.Email.AppURL),
		p.Log,
		p.Metrics,
		func() time.Duration { return p.Policy.Get().NotifyTimeout },
	)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return async.Wait(ctx)
		},
	})
	return async
}
