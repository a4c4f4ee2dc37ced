package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Zhima-Mochi/minishop-saga/internal/application"
	appOrder "github.com/Zhima-Mochi/minishop-saga/internal/application/order"
	domainIdentity "github.com/Zhima-Mochi/minishop-saga/internal/domain/identity"
	domainInventory "github.com/Zhima-Mochi/minishop-saga/internal/domain/inventory"
	domainOrder "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/identity"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/payment"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, declineRate float64) *httptest.Server {
	t.Helper()

	ledger := memory.NewInventoryLedger()
	require.NoError(t, ledger.Seed(domainInventory.Product{ID: "laptop", Name: "Laptop", UnitPrice: decimal.NewFromInt(1000)}, 5))

	orch := appOrder.NewOrchestrator(appOrder.Deps{
		Orders:   memory.NewOrderRepository(),
		Ledger:   ledger,
		Identity: identity.NewDirectory(domainIdentity.User{ID: "user_1", Name: "Ada"}),
		Payments: payment.NewSimulator(declineRate, 1),
		IDs:      id.NewUUIDGenerator(),
	}, appOrder.Config{}, observability.Nop())

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) })
	srv := httptest.NewServer(NewHandler(NewUseCases(orch), metrics, observability.Nop()).Router())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

const createBody = `{"user_id":"user_1","items":[{"product_id":"laptop","quantity":1}],"shipping_address":{"city":"Taipei"}}`

func TestOrderLifecycleOverHTTP(t *testing.T) {
	srv := newServer(t, 0)

	resp, created := do(t, http.MethodPost, srv.URL+"/orders", createBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "confirmed", created["status"])
	assert.NotEmpty(t, resp.Header.Get(headerRequestID))
	orderID := created["id"].(string)

	resp, got := do(t, http.MethodGet, srv.URL+"/orders/"+orderID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, orderID, got["id"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/inventory", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, shipped := do(t, http.MethodPatch, srv.URL+"/orders/"+orderID+"/status", `{"status":"shipped"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "shipped", shipped["status"])
	assert.NotEmpty(t, shipped["estimated_delivery"])

	resp, body := do(t, http.MethodPost, srv.URL+"/orders/"+orderID+"/cancel", `{"reason":"too late"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["error"], "cannot be cancelled")

	resp, list := do(t, http.MethodGet, srv.URL+"/orders?status=shipped", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, list["count"])
}

func TestCancelRefundsOverHTTP(t *testing.T) {
	srv := newServer(t, 0)

	_, created := do(t, http.MethodPost, srv.URL+"/orders", createBody)
	orderID := created["id"].(string)

	resp, cancelled := do(t, http.MethodPost, srv.URL+"/orders/"+orderID+"/cancel", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "refunded", cancelled["status"])
	assert.Equal(t, false, cancelled["needs_reconciliation"])
}

func TestDeclinedPaymentIsStillCreated(t *testing.T) {
	srv := newServer(t, 1)

	resp, created := do(t, http.MethodPost, srv.URL+"/orders", createBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "cancelled", created["status"])
	assert.NotEmpty(t, created["cancel_reason"])
}

func TestErrorMapping(t *testing.T) {
	srv := newServer(t, 0)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"malformed body", http.MethodPost, "/orders", `{"user_id":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/orders", `{"customer":"x"}`, http.StatusBadRequest},
		{"insufficient stock", http.MethodPost, "/orders", `{"user_id":"user_1","items":[{"product_id":"laptop","quantity":9}]}`, http.StatusBadRequest},
		{"unknown user", http.MethodPost, "/orders", `{"user_id":"ghost","items":[{"product_id":"laptop","quantity":1}]}`, http.StatusBadRequest},
		{"missing order", http.MethodGet, "/orders/nope", "", http.StatusNotFound},
		{"bad status", http.MethodPatch, "/orders/nope/status", `{"status":"lost"}`, http.StatusConflict},
		{"bad filter", http.MethodGet, "/orders?status=lost", "", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := do(t, tc.method, srv.URL+tc.path, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestInternalErrorsAreMasked(t *testing.T) {
	uc := UseCases{
		GetOrder: application.Func[string, *domainOrder.Order](func(context.Context, string) (*domainOrder.Order, error) {
			return nil, fmt.Errorf("%w: %w", appOrder.ErrRepository, errors.New("dial tcp 10.0.0.7:5432"))
		}),
	}
	srv := httptest.NewServer(NewHandler(uc, nil, nil).Router())
	defer srv.Close()

	resp, body := do(t, http.MethodGet, srv.URL+"/orders/o-1", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal error", body["error"])
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newServer(t, 0)

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := newServer(t, 0)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/inventory", nil)
	require.NoError(t, err)
	req.Header.Set(headerRequestID, "req-42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get(headerRequestID))
}
