package billingevent

import (
	"context"

	"github.com/smallbiznis/netbill/internal/billingevent/domain"
	"github.com/smallbiznis/netbill/internal/providers/notify"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type DispatcherParams struct {
	fx.In

	Log      *zap.Logger
	Notifier notify.Dispatcher
}

// Dispatcher fans emitted domain events out to the notification provider.
// Delivery failures never affect the ledger mutation that produced the event;
// they are logged and reported back so the caller can retry delivery.
type Dispatcher struct {
	log      *zap.Logger
	notifier notify.Dispatcher
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		log:      p.Log.Named("billingevent.dispatcher"),
		notifier: p.Notifier,
	}
}

var templates = map[domain.EventType]string{
	domain.EventBillCreated:           "bill_created",
	domain.EventPaymentApplied:        "payment_receipt",
	domain.EventBillOverdue:           "bill_overdue",
	domain.EventCustomerSuspended:     "service_suspended",
	domain.EventCustomerReactivated:   "service_reactivated",
	domain.EventSubscriptionExpiring:  "subscription_expiring",
	domain.EventSubscriptionSuspended: "subscription_suspended",
}

// Dispatch delivers each event and returns those that failed delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, events []domain.Event) []domain.Event {
	var failed []domain.Event
	for _, event := range events {
		template, ok := templates[event.Type]
		if !ok {
			continue
		}
		payload := map[string]any{
			"tenant_id":   event.TenantID.String(),
			"customer_id": event.CustomerID.String(),
			"bill_id":     event.BillID.String(),
			"amount":      event.Amount,
			"occurred_at": event.OccurredAt,
		}
		for k, v := range event.Metadata {
			payload[k] = v
		}
		if err := d.notifier.Notify(ctx, event.CustomerID.String(), template, payload); err != nil {
			d.log.Warn("event delivery failed",
				zap.String("event_type", string(event.Type)),
				zap.String("bill_id", event.BillID.String()),
				zap.Error(err),
			)
			failed = append(failed, event)
		}
	}
	return failed
}
