package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventCreated       = "order.created"
	EventStatusChanged = "order.status_changed"
	EventCancelled     = "order.cancelled"
)

// CreatedEvent is emitted once per createOrder call, whichever way the
// payment went; Status tells consumers which.
type CreatedEvent struct {
	OrderID      string
	UserID       string
	Status       Status
	TotalAmount  decimal.Decimal
	Currency     string
	ItemCount    int
	CancelReason string
	OccurredAt   time.Time
}

func (CreatedEvent) EventName() string { return EventCreated }

func NewCreatedEvent(o *Order) CreatedEvent {
	return CreatedEvent{
		OrderID:      o.ID,
		UserID:       o.UserID,
		Status:       o.Status,
		TotalAmount:  o.TotalAmount,
		Currency:     o.Currency,
		ItemCount:    len(o.Items),
		CancelReason: o.CancelReason,
		OccurredAt:   time.Now().UTC(),
	}
}

type StatusChangedEvent struct {
	OrderID    string
	UserID     string
	OldStatus  Status
	NewStatus  Status
	Reason     string
	OccurredAt time.Time
}

func (StatusChangedEvent) EventName() string { return EventStatusChanged }

func NewStatusChangedEvent(o *Order, old Status, reason string) StatusChangedEvent {
	return StatusChangedEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		OldStatus:  old,
		NewStatus:  o.Status,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}

type CancelledEvent struct {
	OrderID        string
	UserID         string
	PreviousStatus Status
	Status         Status
	Reason         string
	TotalAmount    decimal.Decimal
	Refunded       bool
	RefundID       string
	RefundError    string
	OccurredAt     time.Time
}

func (CancelledEvent) EventName() string { return EventCancelled }

func NewCancelledEvent(o *Order, prev Status) CancelledEvent {
	return CancelledEvent{
		OrderID:        o.ID,
		UserID:         o.UserID,
		PreviousStatus: prev,
		Status:         o.Status,
		Reason:         o.CancelReason,
		TotalAmount:    o.TotalAmount,
		Refunded:       o.Status == StatusRefunded,
		RefundID:       o.RefundID,
		RefundError:    o.RefundError,
		OccurredAt:     time.Now().UTC(),
	}
}
