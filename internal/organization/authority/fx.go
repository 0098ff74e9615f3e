package authority

import (
	"go.uber.org/fx"
)

var Module = fx.Module("organization.authority",
	fx.Provide(NewEnforcer),
	fx.Provide(New),
)
