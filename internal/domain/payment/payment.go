package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrDeclined means the provider refused the charge; retrying will not help.
	ErrDeclined = errors.New("payment: declined")
	// ErrUnreachable covers timeouts, transport failures and exhausted retries.
	ErrUnreachable = errors.New("payment: service unreachable")
	// ErrRefundFailed means the refund was not issued.
	ErrRefundFailed = errors.New("payment: refund failed")
)

type Metadata struct {
	OrderID     string `json:"orderId"`
	UserID      string `json:"userId"`
	Description string `json:"description,omitempty"`
}

type ChargeRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Provider string          `json:"provider"`
	Metadata Metadata        `json:"metadata"`
}

// Receipt is the successful outcome of a charge.
type Receipt struct {
	PaymentID     string
	TransactionID string
	Fee           *decimal.Decimal
}

type RefundRequest struct {
	PaymentID string          `json:"paymentId"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
}

type Refund struct {
	ID        string
	PaymentID string
	Amount    decimal.Decimal
	Status    string
}

// Gateway is the boundary to the external payment service. Charge returns an
// error wrapping ErrDeclined or ErrUnreachable on failure; Refund returns one
// wrapping ErrRefundFailed.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*Receipt, error)
	Refund(ctx context.Context, req RefundRequest) (*Refund, error)
}

// Reason extracts a short failure reason from a wrapped gateway error.
func Reason(err error) string {
	var de *DeclinedError
	if errors.As(err, &de) {
		return de.Reason
	}
	var re *RefundError
	if errors.As(err, &re) {
		return re.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

type DeclinedError struct {
	Reason string
}

func (e *DeclinedError) Error() string { return "payment: declined: " + e.Reason }

func (e *DeclinedError) Is(target error) bool { return target == ErrDeclined }

type RefundError struct {
	Reason string
}

func (e *RefundError) Error() string { return "payment: refund failed: " + e.Reason }

func (e *RefundError) Is(target error) bool { return target == ErrRefundFailed }
