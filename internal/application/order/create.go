package order

import (
	"context"
	"errors"
	"fmt"

	domidentity "github.com/Zhima-Mochi/minishop-saga/internal/domain/identity"
	dominventory "github.com/Zhima-Mochi/minishop-saga/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-saga/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	reasonPaymentDeclined    = "payment declined"
	reasonPaymentUnavailable = "payment service unavailable"
	reasonStoreUnavailable   = "order store unavailable"
)

type LineInput struct {
	ProductID string
	Quantity  int
}

type CreateOrderInput struct {
	UserID          string
	Items           []LineInput
	ShippingAddress domain.Address
	// Provider defaults to Config.DefaultProvider when empty.
	Provider string
}

// CreateOrder runs the creation saga. A failed or unreachable payment is not
// an error: the order comes back CANCELLED with its stock released. Errors are
// reserved for rejected input (ErrValidation) and storage failures.
func (o *Orchestrator) CreateOrder(ctx context.Context, in CreateOrderInput) (_ *domain.Order, err error) {
	ctx, r := o.begin(ctx, useCaseCreate, "CreateOrder",
		attribute.String("order.user_id", in.UserID),
		attribute.Int("order.lines", len(in.Items)),
	)
	defer func() { r.end(err) }()

	if in.UserID == "" {
		r.fail("USER_ID_REQUIRED")
		return nil, newValidation("user id is required")
	}
	if len(in.Items) == 0 {
		r.fail("ITEMS_REQUIRED")
		return nil, wrapValidation(domain.ErrNoItems)
	}
	lines := make([]dominventory.Line, len(in.Items))
	for i, it := range in.Items {
		if it.ProductID == "" {
			r.fail("PRODUCT_ID_REQUIRED")
			return nil, newValidation(fmt.Sprintf("item %d: product id is required", i))
		}
		if it.Quantity <= 0 {
			r.fail("QUANTITY_INVALID")
			return nil, newValidation(fmt.Sprintf("item %d (%s): quantity must be greater than zero", i, it.ProductID))
		}
		lines[i] = dominventory.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	batch, aerr := dominventory.Aggregate(lines)
	if aerr != nil {
		r.fail("ITEMS_INVALID")
		return nil, wrapValidation(aerr)
	}

	user, verr := o.verifyUser(ctx, in.UserID)
	if verr != nil {
		if errors.Is(verr, domidentity.ErrNotFound) {
			r.fail("USER_NOT_FOUND")
		} else {
			r.fail("IDENTITY_UNAVAILABLE")
		}
		return nil, wrapValidation(verr)
	}

	items, perr := o.priceItems(ctx, lines, batch)
	if perr != nil {
		if errors.Is(perr, dominventory.ErrNotFound) {
			r.fail("PRODUCT_NOT_FOUND")
			return nil, wrapValidation(perr)
		}
		r.fail("CATALOG_LOOKUP_FAILED")
		return nil, wrapRepositoryError(perr)
	}

	if rerr := o.ledger.Reserve(ctx, batch); rerr != nil {
		switch {
		case errors.Is(rerr, dominventory.ErrInsufficientStock):
			r.fail("INSUFFICIENT_STOCK")
			return nil, wrapValidation(rerr)
		case errors.Is(rerr, dominventory.ErrNotFound):
			r.fail("PRODUCT_NOT_FOUND")
			return nil, wrapValidation(rerr)
		default:
			r.fail("RESERVATION_FAILED")
			return nil, wrapRepositoryError(rerr)
		}
	}
	trace.SpanFromContext(ctx).AddEvent("inventory.reserved")

	// Stock is held from here on. Every exit below either hands the
	// reservation to a persisted order or releases it.
	provider := in.Provider
	if provider == "" {
		provider = o.cfg.DefaultProvider
	}
	entity, derr := domain.New(o.ids.NewID(), user.ID, items, o.cfg.Currency, provider, in.ShippingAddress)
	if derr != nil {
		o.release(ctx, batch, "")
		r.fail("DOMAIN_CONSTRUCTION_FAILED")
		return nil, wrapValidation(derr)
	}
	r.note(observability.F("order_id", entity.ID))
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("order.id", entity.ID))

	if ierr := o.orders.Insert(ctx, entity); ierr != nil {
		o.release(ctx, batch, entity.ID)
		r.fail("REPO_INSERT_FAILED")
		return nil, wrapRepositoryError(ierr)
	}

	if serr := entity.StartPayment(); serr != nil {
		r.fail("STATE_TRANSITION_FAILED")
		return nil, fmt.Errorf("order: start payment: %w", serr)
	}
	if uerr := o.orders.Update(ctx, entity); uerr != nil {
		if errors.Is(uerr, domain.ErrConflict) {
			// cancelOrder won the race and has already released the stock.
			return o.settledElsewhere(ctx, r, entity.ID)
		}
		o.release(ctx, batch, entity.ID)
		r.fail("REPO_UPDATE_FAILED")
		return nil, wrapRepositoryError(uerr)
	}

	receipt, cerr := o.charge(ctx, entity)

	// The charge may have gone through; nothing after it may be abandoned
	// because the caller went away.
	ctx = context.WithoutCancel(ctx)

	if cerr == nil {
		err = o.confirm(ctx, r, entity, receipt)
	} else {
		err = o.compensate(ctx, r, entity, batch, cerr)
	}
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return o.settledElsewhere(ctx, r, entity.ID)
		}
		return nil, err
	}

	r.span.SetAttributes(attribute.String("order.status", string(entity.Status)))
	o.publish(ctx, domain.NewCreatedEvent(entity))
	return entity, nil
}

func (o *Orchestrator) verifyUser(ctx context.Context, userID string) (*domidentity.User, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.IdentityTimeout)
	defer cancel()

	user, err := o.identity.Verify(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("%w: %s", domidentity.ErrNotFound, userID)
	}
	return user, nil
}

// priceItems builds order items in the order products first appear in the
// request, one item per product with the merged quantity from batch.
func (o *Orchestrator) priceItems(ctx context.Context, lines, batch []dominventory.Line) ([]domain.Item, error) {
	merged := make(map[string]int, len(batch))
	for _, line := range batch {
		merged[line.ProductID] = line.Quantity
	}

	items := make([]domain.Item, 0, len(batch))
	for _, line := range lines {
		qty, pending := merged[line.ProductID]
		if !pending {
			continue
		}
		delete(merged, line.ProductID)

		p, err := o.ledger.Product(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		items = append(items, domain.Item{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  qty,
			UnitPrice: p.UnitPrice,
		})
	}
	return items, nil
}

func (o *Orchestrator) charge(ctx context.Context, entity *domain.Order) (*dompayment.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.PaymentTimeout)
	defer cancel()

	receipt, err := o.payments.Charge(ctx, dompayment.ChargeRequest{
		Amount:   entity.TotalAmount,
		Currency: entity.Currency,
		Provider: entity.PaymentProvider,
		Metadata: dompayment.Metadata{
			OrderID:     entity.ID,
			UserID:      entity.UserID,
			Description: fmt.Sprintf("order %s", entity.ID),
		},
	})
	if err != nil {
		return nil, err
	}
	if receipt == nil || receipt.PaymentID == "" {
		return nil, fmt.Errorf("%w: empty receipt", dompayment.ErrUnreachable)
	}
	return receipt, nil
}

func (o *Orchestrator) confirm(ctx context.Context, r *run, entity *domain.Order, receipt *dompayment.Receipt) error {
	if err := entity.PaymentSucceeded(receipt.PaymentID, receipt.TransactionID, receipt.Fee); err != nil {
		r.fail("STATE_TRANSITION_FAILED")
		return fmt.Errorf("order: confirm: %w", err)
	}
	r.note(observability.F("payment_id", receipt.PaymentID))
	trace.SpanFromContext(ctx).AddEvent("payment.succeeded")

	if err := o.orders.Update(ctx, entity); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Cancelled while the charge was in flight; that cancel saw no
			// payment, so the money goes back from here.
			o.refundOrphanedCharge(ctx, entity, receipt)
			return ErrConflict
		}
		r.fail("REPO_UPDATE_FAILED")
		r.logger.Error("order_persist_failed_after_charge",
			observability.F("order_id", entity.ID),
			observability.F("payment_id", receipt.PaymentID),
			observability.F("error", err.Error()),
		)
		return wrapRepositoryError(err)
	}
	return nil
}

// compensate records the payment failure and, once the CANCELLED state is
// committed, releases the reservation exactly once.
func (o *Orchestrator) compensate(ctx context.Context, r *run, entity *domain.Order, batch []dominventory.Line, cause error) error {
	reason := reasonPaymentUnavailable
	status := "PAYMENT_UNAVAILABLE"
	if errors.Is(cause, dompayment.ErrDeclined) {
		reason = reasonPaymentDeclined
		status = "PAYMENT_DECLINED"
	}
	r.status = status
	r.note(observability.F("payment_error", dompayment.Reason(cause)))
	trace.SpanFromContext(ctx).AddEvent("payment.failed", trace.WithAttributes(attribute.String("payment.error", dompayment.Reason(cause))))

	if err := entity.PaymentFailed(reason, dompayment.Reason(cause)); err != nil {
		r.fail("STATE_TRANSITION_FAILED")
		return fmt.Errorf("order: compensate: %w", err)
	}
	if err := o.orders.Update(ctx, entity); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return ErrConflict
		}
		o.release(ctx, batch, entity.ID)
		r.fail("REPO_UPDATE_FAILED")
		return wrapRepositoryError(err)
	}

	if err := o.ledger.Release(ctx, batch); err != nil {
		r.logger.Error("compensation_failed",
			observability.F("order_id", entity.ID),
			observability.F("error", err.Error()),
		)
		entity.CompensationFailed(err.Error())
		if uerr := o.orders.Update(ctx, entity); uerr != nil {
			r.logger.Warn("compensation_error_not_recorded",
				observability.F("order_id", entity.ID),
				observability.F("error", uerr.Error()),
			)
		}
	}
	trace.SpanFromContext(ctx).AddEvent("inventory.released")
	return nil
}

// release undoes a reservation that never made it into a committed order.
func (o *Orchestrator) release(ctx context.Context, batch []dominventory.Line, orderID string) {
	if err := o.ledger.Release(context.WithoutCancel(ctx), batch); err != nil {
		logctx.FromOr(ctx, o.log).Error("compensation_failed",
			observability.F("order_id", orderID),
			observability.F("error", err.Error()),
		)
	}
}

// refundOrphanedCharge returns money taken for an order that was cancelled
// concurrently, and records the refund on the stored order.
func (o *Orchestrator) refundOrphanedCharge(ctx context.Context, entity *domain.Order, receipt *dompayment.Receipt) {
	logger := logctx.FromOr(ctx, o.log).With(
		observability.F("order_id", entity.ID),
		observability.F("payment_id", receipt.PaymentID),
	)

	refund, err := o.refund(ctx, receipt.PaymentID, entity.TotalAmount, "order cancelled during payment")
	stored, gerr := o.orders.Get(ctx, entity.ID)
	if gerr != nil {
		logger.Error("orphaned_charge_not_recorded", observability.F("error", gerr.Error()))
		return
	}
	stored.PaymentID = receipt.PaymentID
	stored.TransactionID = receipt.TransactionID
	if err != nil {
		o.refundFailed(ctx, stored, err)
	} else if terr := stored.Refunded(refund.ID); terr != nil {
		logger.Warn("orphaned_refund_not_applied", observability.F("error", terr.Error()))
	}
	if uerr := o.orders.Update(ctx, stored); uerr != nil {
		logger.Error("orphaned_charge_not_recorded", observability.F("error", uerr.Error()))
	}
}

// settledElsewhere returns the stored order after a concurrent cancel took it
// over.
func (o *Orchestrator) settledElsewhere(ctx context.Context, r *run, id string) (*domain.Order, error) {
	r.status = "CANCELLED_CONCURRENTLY"
	stored, err := o.orders.Get(context.WithoutCancel(ctx), id)
	if err != nil {
		r.fail("REPO_GET_FAILED")
		return nil, wrapRepositoryError(err)
	}
	o.publish(ctx, domain.NewCreatedEvent(stored))
	return stored, nil
}
