// Package notify is the narrow interface the billing core uses to hand off
// notifications. Delivery is a collaborator concern; the core only reports
// whether the hand-off succeeded.
package notify

import "context"

type Dispatcher interface {
	Notify(ctx context.Context, recipient string, template string, payload map[string]any) error
}

type NoOpDispatcher struct{}

func (NoOpDispatcher) Notify(ctx context.Context, recipient string, template string, payload map[string]any) error {
	return nil
}
