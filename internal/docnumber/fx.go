package docnumber

import (
	"github.com/smallbiznis/netbill/internal/docnumber/service"
	"go.uber.org/fx"
)

var Module = fx.Module("docnumber",
	fx.Provide(service.NewGenerator),
)
