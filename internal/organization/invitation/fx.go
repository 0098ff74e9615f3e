package invitation

import "go.uber.org/fx"

var Module = fx.Module("organization.invitation",
	fx.Provide(NewManager),
)
