package recovery

import (
	"github.com/smallbiznis/netbill/internal/recovery/service"
	"go.uber.org/fx"
)

var Module = fx.Module("recovery",
	fx.Provide(
		service.NewService,
	),
)
