package seat

import "go.uber.org/fx"

var Module = fx.Module("organization.seat",
	fx.Provide(New),
)
