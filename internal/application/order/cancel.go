package order

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-saga/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability/logctx"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// CancelOrder cancels, releases stock and, for a confirmed order, refunds.
// A failed refund is not an error: the order stays CANCELLED with
// RefundError set and NeedsReconciliation reports true.
func (o *Orchestrator) CancelOrder(ctx context.Context, orderID, reason string) (_ *domain.Order, err error) {
	ctx, r := o.begin(ctx, useCaseCancel, "CancelOrder", attribute.String("order.id", orderID))
	r.note(observability.F("order_id", orderID))
	defer func() { r.end(err) }()

	entity, _, err := o.cancel(ctx, r, orderID, reason)
	return entity, err
}

func (o *Orchestrator) cancel(ctx context.Context, r *run, orderID, reason string) (*domain.Order, domain.Status, error) {
	entity, err := o.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.fail("ORDER_NOT_FOUND")
		} else {
			r.fail("REPO_GET_FAILED")
		}
		return nil, "", wrapRepositoryError(err)
	}

	prev, err := entity.Cancel(reason)
	if err != nil {
		r.fail("NOT_CANCELLABLE")
		return nil, prev, newDomainState("order %s cannot be cancelled from %s", orderID, prev)
	}
	// Committing CANCELLED first makes this call the only one allowed to
	// release the stock.
	if err := o.orders.Update(ctx, entity); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			r.fail("CONCURRENT_MODIFICATION")
		} else {
			r.fail("REPO_UPDATE_FAILED")
		}
		return nil, prev, wrapRepositoryError(err)
	}

	ctx = context.WithoutCancel(ctx)
	dirty := false

	if err := o.ledger.Release(ctx, linesOf(entity.Items)); err != nil {
		r.logger.Error("compensation_failed",
			observability.F("order_id", entity.ID),
			observability.F("error", err.Error()),
		)
		entity.CompensationFailed(err.Error())
		dirty = true
	}

	if entity.PaymentID != "" && prev == domain.StatusConfirmed {
		refund, rerr := o.refund(ctx, entity.PaymentID, entity.TotalAmount, reason)
		if rerr != nil {
			r.status = "REFUND_FAILED"
			o.refundFailed(ctx, entity, rerr)
		} else if terr := entity.Refunded(refund.ID); terr != nil {
			r.fail("STATE_TRANSITION_FAILED")
			return nil, prev, fmt.Errorf("order: refunded: %w", terr)
		} else {
			r.note(observability.F("refund_id", refund.ID))
		}
		dirty = true
	}

	if dirty {
		if err := o.orders.Update(ctx, entity); err != nil {
			r.fail("REPO_UPDATE_FAILED")
			r.logger.Error("cancel_outcome_not_recorded",
				observability.F("order_id", entity.ID),
				observability.F("status", string(entity.Status)),
				observability.F("refund_id", entity.RefundID),
				observability.F("error", err.Error()),
			)
			return nil, prev, wrapRepositoryError(err)
		}
	}

	r.span.SetAttributes(attribute.String("order.status", string(entity.Status)))
	o.publish(ctx, domain.NewCancelledEvent(entity, prev))
	return entity, prev, nil
}

// UpdateStatus applies a manual status change. Moving to CANCELLED runs the
// full cancellation; statuses the saga owns cannot be set by hand.
func (o *Orchestrator) UpdateStatus(ctx context.Context, orderID, status, reason string) (_ *domain.Order, err error) {
	ctx, r := o.begin(ctx, useCaseUpdate, "UpdateStatus",
		attribute.String("order.id", orderID),
		attribute.String("order.target_status", status),
	)
	r.note(observability.F("order_id", orderID), observability.F("target_status", status))
	defer func() { r.end(err) }()

	target, perr := domain.ParseStatus(status)
	if perr != nil {
		r.fail("STATUS_UNKNOWN")
		return nil, newDomainState("unknown status %q", status)
	}
	if target == domain.StatusCancelled {
		entity, prev, cerr := o.cancel(ctx, r, orderID, reason)
		if cerr != nil {
			return nil, cerr
		}
		o.publish(ctx, domain.NewStatusChangedEvent(entity, prev, reason))
		return entity, nil
	}
	if target.SagaOwned() {
		r.fail("STATUS_NOT_SETTABLE")
		return nil, newDomainState("status %s is set by the order workflow", target)
	}

	entity, gerr := o.orders.Get(ctx, orderID)
	if gerr != nil {
		if errors.Is(gerr, domain.ErrNotFound) {
			r.fail("ORDER_NOT_FOUND")
		} else {
			r.fail("REPO_GET_FAILED")
		}
		return nil, wrapRepositoryError(gerr)
	}

	old := entity.Status
	if terr := entity.Progress(target); terr != nil {
		r.fail("INVALID_TRANSITION")
		return nil, newDomainState("order %s cannot move from %s to %s", orderID, old, target)
	}
	if uerr := o.orders.Update(ctx, entity); uerr != nil {
		if errors.Is(uerr, domain.ErrConflict) {
			r.fail("CONCURRENT_MODIFICATION")
		} else {
			r.fail("REPO_UPDATE_FAILED")
		}
		return nil, wrapRepositoryError(uerr)
	}

	o.publish(ctx, domain.NewStatusChangedEvent(entity, old, reason))
	return entity, nil
}

func (o *Orchestrator) refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*dompayment.Refund, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.PaymentTimeout)
	defer cancel()

	refund, err := o.payments.Refund(ctx, dompayment.RefundRequest{
		PaymentID: paymentID,
		Amount:    amount,
		Reason:    reason,
	})
	if err != nil {
		return nil, err
	}
	if refund == nil || refund.ID == "" {
		return nil, &dompayment.RefundError{Reason: "empty refund response"}
	}
	return refund, nil
}

// refundFailed leaves the order CANCELLED and raises the reconciliation alarm.
func (o *Orchestrator) refundFailed(ctx context.Context, entity *domain.Order, cause error) {
	entity.RefundFailed(dompayment.Reason(cause))
	o.refundFailures.Add(1, observability.L("provider", entity.PaymentProvider))
	logctx.FromOr(ctx, o.log).Error("refund_failed_reconciliation_required",
		observability.F("order_id", entity.ID),
		observability.F("payment_id", entity.PaymentID),
		observability.F("amount", entity.TotalAmount.String()),
		observability.F("error", cause.Error()),
	)
}
