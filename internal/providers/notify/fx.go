package notify

import (
	"github.com/smallbiznis/netbill/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.notify",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Dispatcher {
	if cfg.SMTPHost == "" {
		return NoOpDispatcher{}
	}
	return NewSMTP(Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
}
