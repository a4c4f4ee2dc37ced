package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = errors.New("order: not found")
	ErrConflict               = errors.New("order: concurrent modification")
	ErrNoItems                = errors.New("order: at least one item is required")
	ErrInvalidQuantity        = errors.New("order: quantity must be greater than zero")
	ErrInvalidPrice           = errors.New("order: unit price must be zero or greater")
	ErrInvalidStatus          = errors.New("order: unknown status")
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
)

// estimatedDeliveryWindow is added to shippedAt to produce EstimatedDelivery.
const estimatedDeliveryWindow = 72 * time.Hour

type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zip_code,omitempty"`
	Country string `json:"country,omitempty"`
}

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Items           []Item          `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency"`
	Status          Status          `json:"status"`
	ShippingAddress Address         `json:"shipping_address"`
	PaymentProvider string          `json:"payment_provider"`

	PaymentID     string           `json:"payment_id,omitempty"`
	TransactionID string           `json:"transaction_id,omitempty"`
	PaymentFee    *decimal.Decimal `json:"payment_fee,omitempty"`
	RefundID      string           `json:"refund_id,omitempty"`

	CancelReason      string `json:"cancel_reason,omitempty"`
	PaymentError      string `json:"payment_error,omitempty"`
	RefundError       string `json:"refund_error,omitempty"`
	CompensationError string `json:"compensation_error,omitempty"`

	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	ShippedAt         *time.Time `json:"shipped_at,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
	RefundedAt        *time.Time `json:"refunded_at,omitempty"`

	// Version is bumped by the store on every successful write.
	Version int64 `json:"version"`
}

// New builds a pending order. Items are copied and fixed from here on; the
// total is derived from them.
func New(id, userID string, items []Item, currency, provider string, addr Address) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	fixed := make([]Item, len(items))
	for i, it := range items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if it.UnitPrice.IsNegative() {
			return nil, ErrInvalidPrice
		}
		fixed[i] = it
	}

	now := time.Now().UTC()
	o := &Order{
		ID:              id,
		UserID:          userID,
		Items:           fixed,
		Currency:        currency,
		Status:          StatusPending,
		ShippingAddress: addr,
		PaymentProvider: provider,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	o.TotalAmount = o.Total()
	return o, nil
}

// Total recomputes sum(quantity * unitPrice) over the items.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// NeedsReconciliation reports a cancelled order whose refund could not be issued.
func (o *Order) NeedsReconciliation() bool {
	return o.Status == StatusCancelled && o.RefundError != ""
}

func (o *Order) StartPayment() error {
	return o.transition(StatusPaymentProcessing)
}

func (o *Order) PaymentSucceeded(paymentID, transactionID string, fee *decimal.Decimal) error {
	if err := o.transition(StatusConfirmed); err != nil {
		return err
	}
	now := o.UpdatedAt
	o.PaymentID = paymentID
	o.TransactionID = transactionID
	o.PaymentFee = fee
	o.PaidAt = &now
	o.PaymentError = ""
	return nil
}

func (o *Order) PaymentFailed(reason, paymentErr string) error {
	if err := o.transition(StatusCancelled); err != nil {
		return err
	}
	now := o.UpdatedAt
	o.CancelReason = reason
	o.PaymentError = paymentErr
	o.CancelledAt = &now
	return nil
}

// Cancel moves a cancellable order to cancelled and returns the status it left.
func (o *Order) Cancel(reason string) (Status, error) {
	prev := o.Status
	if !prev.Cancellable() {
		return prev, ErrInvalidStateTransition
	}
	if err := o.transition(StatusCancelled); err != nil {
		return prev, err
	}
	now := o.UpdatedAt
	o.CancelReason = reason
	o.CancelledAt = &now
	return prev, nil
}

func (o *Order) Refunded(refundID string) error {
	if err := o.transition(StatusRefunded); err != nil {
		return err
	}
	now := o.UpdatedAt
	o.RefundID = refundID
	o.RefundedAt = &now
	o.RefundError = ""
	return nil
}

func (o *Order) RefundFailed(reason string) {
	o.RefundError = reason
	o.touch()
}

func (o *Order) CompensationFailed(reason string) {
	o.CompensationError = reason
	o.touch()
}

// Progress applies a manual fulfilment status change. Re-applying the current
// status is rejected so shippedAt and deliveredAt are set once.
func (o *Order) Progress(to Status) error {
	if !to.Valid() {
		return ErrInvalidStatus
	}
	if !CanProgress(o.Status, to) {
		return ErrInvalidStateTransition
	}
	o.Status = to
	o.touch()
	now := o.UpdatedAt
	switch to {
	case StatusShipped:
		eta := now.Add(estimatedDeliveryWindow)
		o.ShippedAt = &now
		o.EstimatedDelivery = &eta
	case StatusDelivered:
		o.DeliveredAt = &now
	}
	return nil
}

func (o *Order) transition(to Status) error {
	if !CanTransition(o.Status, to) {
		return ErrInvalidStateTransition
	}
	o.Status = to
	o.touch()
	return nil
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	c.PaymentFee = cloneDecimal(o.PaymentFee)
	c.PaidAt = cloneTime(o.PaidAt)
	c.ShippedAt = cloneTime(o.ShippedAt)
	c.EstimatedDelivery = cloneTime(o.EstimatedDelivery)
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	c.CancelledAt = cloneTime(o.CancelledAt)
	c.RefundedAt = cloneTime(o.RefundedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
