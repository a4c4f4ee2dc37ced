package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPending(t *testing.T) *Order {
	t.Helper()
	o, err := New("o-1", "u-1", []Item{
		{ProductID: "laptop", Quantity: 1, UnitPrice: decimal.RequireFromString("999.99")},
		{ProductID: "mouse", Quantity: 2, UnitPrice: decimal.RequireFromString("29.99")},
	}, "USD", "stripe", Address{City: "Taipei"})
	require.NoError(t, err)
	return o
}

func TestNewComputesTotal(t *testing.T) {
	o := newPending(t)

	assert.Equal(t, StatusPending, o.Status)
	assert.True(t, decimal.RequireFromString("1059.97").Equal(o.TotalAmount), o.TotalAmount.String())
}

func TestNewRejectsBadItems(t *testing.T) {
	_, err := New("o", "u", nil, "USD", "stripe", Address{})
	assert.ErrorIs(t, err, ErrNoItems)

	_, err = New("o", "u", []Item{{ProductID: "p", Quantity: 0, UnitPrice: decimal.NewFromInt(1)}}, "USD", "stripe", Address{})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = New("o", "u", []Item{{ProductID: "p", Quantity: 1, UnitPrice: decimal.NewFromInt(-1)}}, "USD", "stripe", Address{})
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestPaymentSucceeded(t *testing.T) {
	o := newPending(t)
	require.NoError(t, o.StartPayment())
	fee := decimal.RequireFromString("30.74")
	require.NoError(t, o.PaymentSucceeded("pay-1", "tx-1", &fee))

	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, "pay-1", o.PaymentID)
	assert.NotNil(t, o.PaidAt)

	assert.ErrorIs(t, o.StartPayment(), ErrInvalidStateTransition)
}

func TestPaymentFailedRecordsReason(t *testing.T) {
	o := newPending(t)
	require.NoError(t, o.StartPayment())
	require.NoError(t, o.PaymentFailed("payment declined", "card_declined"))

	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, "payment declined", o.CancelReason)
	assert.Equal(t, "card_declined", o.PaymentError)
	assert.NotNil(t, o.CancelledAt)
	assert.False(t, o.NeedsReconciliation())
}

func TestCancelFromEachStatus(t *testing.T) {
	cases := []struct {
		from Status
		ok   bool
	}{
		{StatusPending, true},
		{StatusPaymentProcessing, true},
		{StatusConfirmed, true},
		{StatusProcessing, true},
		{StatusShipped, false},
		{StatusDelivered, false},
		{StatusCancelled, false},
		{StatusRefunded, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from), func(t *testing.T) {
			o := newPending(t)
			o.Status = tc.from

			prev, err := o.Cancel("changed my mind")
			assert.Equal(t, tc.from, prev)
			if !tc.ok {
				assert.ErrorIs(t, err, ErrInvalidStateTransition)
				assert.Equal(t, tc.from, o.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusCancelled, o.Status)
			assert.Equal(t, "changed my mind", o.CancelReason)
		})
	}
}

func TestRefundFlow(t *testing.T) {
	o := newPending(t)
	o.Status = StatusConfirmed
	_, err := o.Cancel("")
	require.NoError(t, err)

	o.RefundFailed("gateway timeout")
	assert.True(t, o.NeedsReconciliation())

	require.NoError(t, o.Refunded("ref-1"))
	assert.Equal(t, StatusRefunded, o.Status)
	assert.Empty(t, o.RefundError)
	assert.False(t, o.NeedsReconciliation())
	assert.NotNil(t, o.RefundedAt)
}

func TestProgress(t *testing.T) {
	o := newPending(t)
	o.Status = StatusConfirmed

	require.NoError(t, o.Progress(StatusProcessing))
	assert.ErrorIs(t, o.Progress(StatusProcessing), ErrInvalidStateTransition)
	require.NoError(t, o.Progress(StatusShipped))
	require.NotNil(t, o.ShippedAt)
	shippedAt := *o.ShippedAt
	require.NotNil(t, o.EstimatedDelivery)
	assert.Equal(t, estimatedDeliveryWindow, o.EstimatedDelivery.Sub(*o.ShippedAt))

	assert.ErrorIs(t, o.Progress(StatusProcessing), ErrInvalidStateTransition)
	assert.ErrorIs(t, o.Progress(Status("lost")), ErrInvalidStatus)

	assert.ErrorIs(t, o.Progress(StatusShipped), ErrInvalidStateTransition)
	assert.Equal(t, shippedAt, *o.ShippedAt)

	require.NoError(t, o.Progress(StatusDelivered))
	assert.NotNil(t, o.DeliveredAt)
	assert.ErrorIs(t, o.Progress(StatusDelivered), ErrInvalidStateTransition)
}

func TestCanProgressFollowsTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusConfirmed, StatusProcessing, true},
		{StatusConfirmed, StatusShipped, true},
		{StatusConfirmed, StatusDelivered, true},
		{StatusProcessing, StatusDelivered, true},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusShipped, false},
		{StatusDelivered, StatusShipped, false},
		{StatusShipped, StatusProcessing, false},
		{StatusConfirmed, StatusCancelled, false},
		{StatusCancelled, StatusRefunded, false},
		{StatusPending, StatusConfirmed, false},
		{StatusCancelled, StatusShipped, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanProgress(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestProgressSkipsSteps(t *testing.T) {
	o := newPending(t)
	o.Status = StatusConfirmed
	require.NoError(t, o.Progress(StatusDelivered))

	closed := newPending(t)
	closed.Status = StatusCancelled
	assert.ErrorIs(t, closed.Progress(StatusShipped), ErrInvalidStateTransition)
}

func TestCloneIsDeep(t *testing.T) {
	o := newPending(t)
	fee := decimal.NewFromInt(3)
	o.PaymentFee = &fee

	c := o.Clone()
	c.Items[0].Quantity = 99
	*c.PaymentFee = decimal.NewFromInt(7)

	assert.Equal(t, 1, o.Items[0].Quantity)
	assert.True(t, o.PaymentFee.Equal(decimal.NewFromInt(3)))
	assert.Nil(t, (*Order)(nil).Clone())
}

func TestStatusClassification(t *testing.T) {
	_, err := ParseStatus("lost")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	st, err := ParseStatus("shipped")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, st)

	assert.True(t, StatusPending.SagaOwned())
	assert.True(t, StatusRefunded.SagaOwned())
	assert.False(t, StatusShipped.SagaOwned())
	assert.True(t, StatusPaymentProcessing.Transient())
	assert.False(t, StatusConfirmed.Transient())
}

func TestFilterMatch(t *testing.T) {
	o := newPending(t)

	assert.True(t, Filter{}.Match(o))
	assert.True(t, Filter{Status: StatusPending, UserID: "u-1"}.Match(o))
	assert.False(t, Filter{UserID: "u-2"}.Match(o))
	assert.False(t, Filter{Status: StatusConfirmed}.Match(o))
}
