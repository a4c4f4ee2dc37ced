package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	dompayment "github.com/Zhima-Mochi/minishop-saga/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability/logctx"
	"github.com/Zhima-Mochi/minishop-saga/internal/pkg/retry"
	"github.com/shopspring/decimal"
)

const (
	peerPayment      = "payment"
	endpointCharge   = "payments.create"
	endpointRefund   = "refunds.create"
	maxResponseBytes = 1 << 20
)

var _ dompayment.Gateway = (*Client)(nil)

// errRetryable marks a transient answer (5xx, 408, 429) so the retry loop
// keeps going.
var errRetryable = errors.New("payment: transient failure")

type chargeBody struct {
	Amount   json.Number         `json:"amount"`
	Currency string              `json:"currency"`
	Provider string              `json:"provider"`
	Metadata dompayment.Metadata `json:"metadata"`
}

type refundBody struct {
	PaymentID string      `json:"paymentId"`
	Amount    json.Number `json:"amount"`
	Reason    string      `json:"reason"`
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

type chargeData struct {
	ID            string           `json:"id"`
	TransactionID string           `json:"transactionId"`
	Fee           *decimal.Decimal `json:"fee"`
}

type refundData struct {
	ID        string          `json:"id"`
	PaymentID string          `json:"paymentId"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
}

// Client talks to the payment service over HTTP. Charges carry the order id
// as Idempotency-Key so a retried charge is not taken twice.
type Client struct {
	baseURL string
	http    *http.Client
	policy  retry.Policy
	log     observability.Logger

	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func NewClient(baseURL string, httpClient *http.Client, policy retry.Policy, tel observability.Observability) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         httpClient,
		policy:       policy,
		log:          tel.Logger().With(observability.F("component", "payment_client")),
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

// Charge maps 4xx and success=false answers to a decline; 5xx, 408, 429,
// transport failures and timeouts are retried and end as ErrUnreachable.
func (c *Client) Charge(ctx context.Context, req dompayment.ChargeRequest) (*dompayment.Receipt, error) {
	body := chargeBody{
		Amount:   json.Number(req.Amount.String()),
		Currency: req.Currency,
		Provider: req.Provider,
		Metadata: req.Metadata,
	}

	var receipt *dompayment.Receipt
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		var out envelope[chargeData]
		status, err := c.post(ctx, endpointCharge, "/payments", req.Metadata.OrderID, body, &out)
		if err != nil {
			return err
		}
		if status >= 400 || !out.Success {
			reason := out.Error
			if reason == "" {
				reason = fmt.Sprintf("status %d", status)
			}
			return retry.Permanent(&dompayment.DeclinedError{Reason: reason})
		}
		receipt = &dompayment.Receipt{
			PaymentID:     out.Data.ID,
			TransactionID: out.Data.TransactionID,
			Fee:           out.Data.Fee,
		}
		return nil
	})
	switch {
	case err == nil:
		return receipt, nil
	case errors.Is(err, dompayment.ErrDeclined):
		return nil, err
	default:
		logctx.FromOr(ctx, c.log).Warn("payment_unreachable",
			observability.F("order_id", req.Metadata.OrderID),
			observability.F("error", err),
		)
		return nil, fmt.Errorf("%w: %w", dompayment.ErrUnreachable, err)
	}
}

func (c *Client) Refund(ctx context.Context, req dompayment.RefundRequest) (*dompayment.Refund, error) {
	body := refundBody{
		PaymentID: req.PaymentID,
		Amount:    json.Number(req.Amount.String()),
		Reason:    req.Reason,
	}

	var refund *dompayment.Refund
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		var out envelope[refundData]
		status, err := c.post(ctx, endpointRefund, "/refunds", "refund-"+req.PaymentID, body, &out)
		if err != nil {
			return err
		}
		if status >= 400 || !out.Success {
			reason := out.Error
			if reason == "" {
				reason = fmt.Sprintf("status %d", status)
			}
			return retry.Permanent(&dompayment.RefundError{Reason: reason})
		}
		refund = &dompayment.Refund{
			ID:        out.Data.ID,
			PaymentID: out.Data.PaymentID,
			Amount:    out.Data.Amount,
			Status:    out.Data.Status,
		}
		return nil
	})
	switch {
	case err == nil:
		return refund, nil
	case errors.Is(err, dompayment.ErrRefundFailed):
		return nil, err
	default:
		return nil, &dompayment.RefundError{Reason: "refund service unreachable: " + err.Error()}
	}
}

// post returns the status code for final answers; transient statuses and
// transport failures come back as retryable errors.
func (c *Client) post(ctx context.Context, endpoint, path, idempotencyKey string, in, out any) (_ int, err error) {
	start := time.Now()
	outcome := "success"
	defer func() {
		if err != nil {
			outcome = "error"
		}
		c.extCounter.Add(1,
			observability.L("peer", peerPayment),
			observability.L("endpoint", endpoint),
			observability.L("outcome", outcome),
		)
		c.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", peerPayment),
			observability.L("endpoint", endpoint),
		)
	}()

	raw, err := json.Marshal(in)
	if err != nil {
		return 0, retry.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if transientStatus(resp.StatusCode) {
		return resp.StatusCode, fmt.Errorf("%w: status %d", errRetryable, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil && resp.StatusCode < 400 {
		return resp.StatusCode, retry.Permanent(fmt.Errorf("payment: decode %s: %w", endpoint, err))
	}
	return resp.StatusCode, nil
}

func transientStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}
