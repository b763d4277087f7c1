package providers

import (
	"github.com/smallbiznis/netbill/internal/providers/notify"
	"github.com/smallbiznis/netbill/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	notify.Module,
	pdf.Module,
)
