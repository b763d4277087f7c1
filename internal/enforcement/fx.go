package enforcement

import (
	"github.com/smallbiznis/netbill/internal/enforcement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("enforcement.service",
	fx.Provide(service.NewService),
)
