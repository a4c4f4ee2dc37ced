package workerpresentation

import (
	"context"

	domorder "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability/logctx"
)

const workerAudit = "order-audit"

// AuditWorker writes one log line per order event and counts them by name.
type AuditWorker struct {
	log    observability.Logger
	events observability.Counter // order_events_total{event}
}

func NewAuditWorker(tel observability.Observability) *AuditWorker {
	return &AuditWorker{
		log:    tel.Logger().With(observability.F("worker", workerAudit)),
		events: tel.Metrics().Counter(observability.MOrderEvents),
	}
}

func (w *AuditWorker) Start(sub domoutbox.Subscriber) {
	sub.Subscribe(domoutbox.AllEvents, w.Handle)
}

func (w *AuditWorker) Handle(ctx context.Context, e domoutbox.Event) error {
	name := e.EventName()
	ctx = WithEventContext(ctx, w.log, map[string]string{"event": name})
	logger := logctx.FromOr(ctx, w.log)
	w.events.Add(1, observability.L("event", name))

	switch evt := e.(type) {
	case domorder.CreatedEvent:
		logger.Info("order_event",
			observability.F("order_id", evt.OrderID),
			observability.F("user_id", evt.UserID),
			observability.F("status", string(evt.Status)),
			observability.F("total", evt.TotalAmount.String()),
			observability.F("cancel_reason", evt.CancelReason),
		)
	case domorder.StatusChangedEvent:
		logger.Info("order_event",
			observability.F("order_id", evt.OrderID),
			observability.F("old_status", string(evt.OldStatus)),
			observability.F("new_status", string(evt.NewStatus)),
			observability.F("reason", evt.Reason),
		)
	case domorder.CancelledEvent:
		fields := []observability.Field{
			observability.F("order_id", evt.OrderID),
			observability.F("previous_status", string(evt.PreviousStatus)),
			observability.F("status", string(evt.Status)),
			observability.F("refunded", evt.Refunded),
		}
		if evt.RefundError != "" {
			logger.Warn("order_event_needs_reconciliation",
				append(fields, observability.F("refund_error", evt.RefundError))...)
			return nil
		}
		logger.Info("order_event", fields...)
	default:
		logger.Debug("order_event_unknown")
	}
	return nil
}
