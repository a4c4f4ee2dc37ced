package payment

import (
	"context"
	"testing"

	dompayment "github.com/Zhima-Mochi/minishop-saga/internal/domain/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatorChargeIsIdempotentPerOrder(t *testing.T) {
	s := NewSimulator(0, 1)
	first, err := s.Charge(context.Background(), chargeRequest())
	require.NoError(t, err)
	second, err := s.Charge(context.Background(), chargeRequest())
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.True(t, first.Fee.Equal(decimal.RequireFromString("1.48")))
}

func TestSimulatorAlwaysDeclines(t *testing.T) {
	s := NewSimulator(1, 1)
	_, err := s.Charge(context.Background(), chargeRequest())
	assert.ErrorIs(t, err, dompayment.ErrDeclined)
}

func TestSimulatorRefund(t *testing.T) {
	s := NewSimulator(0, 1)
	r, err := s.Charge(context.Background(), chargeRequest())
	require.NoError(t, err)

	_, err = s.Refund(context.Background(), dompayment.RefundRequest{PaymentID: r.PaymentID, Amount: decimal.NewFromInt(100)})
	assert.ErrorIs(t, err, dompayment.ErrRefundFailed)

	refund, err := s.Refund(context.Background(), dompayment.RefundRequest{PaymentID: r.PaymentID, Amount: decimal.NewFromInt(51)})
	require.NoError(t, err)
	assert.Equal(t, "succeeded", refund.Status)

	_, err = s.Refund(context.Background(), dompayment.RefundRequest{PaymentID: "pay_missing", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, dompayment.ErrRefundFailed)
}
