package order

import (
	"context"
	"errors"

	dominventory "github.com/Zhima-Mochi/minishop-saga/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

func (o *Orchestrator) GetOrder(ctx context.Context, orderID string) (_ *domain.Order, err error) {
	ctx, r := o.begin(ctx, useCaseGet, "GetOrder", attribute.String("order.id", orderID))
	defer func() { r.end(err) }()

	entity, err := o.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.fail("ORDER_NOT_FOUND")
		} else {
			r.fail("REPO_GET_FAILED")
		}
		return nil, wrapRepositoryError(err)
	}
	return entity, nil
}

// ListOrders returns orders oldest first. An unknown status filter is a
// validation error rather than an empty result.
func (o *Orchestrator) ListOrders(ctx context.Context, filter domain.Filter) (_ []*domain.Order, err error) {
	ctx, r := o.begin(ctx, useCaseList, "ListOrders",
		attribute.String("filter.status", string(filter.Status)),
		attribute.String("filter.user_id", filter.UserID),
	)
	defer func() { r.end(err) }()

	if filter.Status != "" && !filter.Status.Valid() {
		r.fail("STATUS_UNKNOWN")
		return nil, wrapValidation(domain.ErrInvalidStatus)
	}

	orders, err := o.orders.List(ctx, filter)
	if err != nil {
		r.fail("REPO_LIST_FAILED")
		return nil, wrapRepositoryError(err)
	}
	r.note(observability.F("count", len(orders)))
	return orders, nil
}

func (o *Orchestrator) ListInventory(ctx context.Context) (_ []dominventory.Record, err error) {
	ctx, r := o.begin(ctx, useCaseListStock, "ListInventory")
	defer func() { r.end(err) }()

	records, err := o.ledger.List(ctx)
	if err != nil {
		r.fail("LEDGER_LIST_FAILED")
		return nil, wrapRepositoryError(err)
	}
	r.note(observability.F("count", len(records)))
	return records, nil
}
