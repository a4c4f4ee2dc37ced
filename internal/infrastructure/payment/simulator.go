package payment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	dompayment "github.com/Zhima-Mochi/minishop-saga/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var _ dompayment.Gateway = (*Simulator)(nil)

// feeRate approximates a card processor's percentage fee.
var feeRate = decimal.RequireFromString("0.029")

// Simulator is an in-process gateway that declines a fixed share of charges.
type Simulator struct {
	mu          sync.Mutex
	random      *rand.Rand
	declineRate float64
	charges     map[string]*dompayment.Receipt // by order id
	payments    map[string]decimal.Decimal     // by payment id
	refunds     map[string]*dompayment.Refund  // by payment id
}

func NewSimulator(declineRate float64, seed int64) *Simulator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		random:      rand.New(rand.NewSource(seed)),
		declineRate: declineRate,
		charges:     make(map[string]*dompayment.Receipt),
		payments:    make(map[string]decimal.Decimal),
		refunds:     make(map[string]*dompayment.Refund),
	}
}

// Charge is idempotent per order id.
func (s *Simulator) Charge(ctx context.Context, req dompayment.ChargeRequest) (*dompayment.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", dompayment.ErrUnreachable, err)
	}
	if req.Amount.IsNegative() {
		return nil, &dompayment.DeclinedError{Reason: "invalid amount"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.charges[req.Metadata.OrderID]; ok {
		return r, nil
	}
	if s.random.Float64() < s.declineRate {
		return nil, &dompayment.DeclinedError{Reason: "card declined"}
	}

	fee := req.Amount.Mul(feeRate).Round(2)
	r := &dompayment.Receipt{
		PaymentID:     "pay_" + uuid.NewString(),
		TransactionID: "txn_" + uuid.NewString(),
		Fee:           &fee,
	}
	if req.Metadata.OrderID != "" {
		s.charges[req.Metadata.OrderID] = r
	}
	s.payments[r.PaymentID] = req.Amount
	return r, nil
}

func (s *Simulator) Refund(ctx context.Context, req dompayment.RefundRequest) (*dompayment.Refund, error) {
	if err := ctx.Err(); err != nil {
		return nil, &dompayment.RefundError{Reason: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.refunds[req.PaymentID]; ok {
		return r, nil
	}
	paid, ok := s.payments[req.PaymentID]
	if !ok {
		return nil, &dompayment.RefundError{Reason: "unknown payment " + req.PaymentID}
	}
	if req.Amount.GreaterThan(paid) {
		return nil, &dompayment.RefundError{Reason: "refund exceeds captured amount"}
	}

	r := &dompayment.Refund{
		ID:        "re_" + uuid.NewString(),
		PaymentID: req.PaymentID,
		Amount:    req.Amount,
		Status:    "succeeded",
	}
	s.refunds[req.PaymentID] = r
	return r, nil
}
