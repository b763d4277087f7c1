// Scheduler-only deployment: runs the sweeps without the HTTP server. The
// redis lease keeps it safe to run alongside the monolith.
package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/netbill/internal/billing"
	"github.com/smallbiznis/netbill/internal/billingevent"
	"github.com/smallbiznis/netbill/internal/clock"
	"github.com/smallbiznis/netbill/internal/config"
	"github.com/smallbiznis/netbill/internal/customer"
	"github.com/smallbiznis/netbill/internal/docnumber"
	"github.com/smallbiznis/netbill/internal/enforcement"
	"github.com/smallbiznis/netbill/internal/logger"
	"github.com/smallbiznis/netbill/internal/payment"
	"github.com/smallbiznis/netbill/internal/plan"
	"github.com/smallbiznis/netbill/internal/providers"
	"github.com/smallbiznis/netbill/internal/scheduler"
	"github.com/smallbiznis/netbill/internal/subscription"
	"github.com/smallbiznis/netbill/internal/tenant"
	"github.com/smallbiznis/netbill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		providers.Module,
		billingevent.Module,
		tenant.Module,
		plan.Module,
		customer.Module,
		docnumber.Module,
		billing.Module,
		payment.Module,
		enforcement.Module,
		subscription.Module,

		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
