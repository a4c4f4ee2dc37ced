package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domidentity "github.com/Zhima-Mochi/minishop-saga/internal/domain/identity"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability/logctx"
	"github.com/Zhima-Mochi/minishop-saga/internal/pkg/retry"
)

const (
	peerIdentity     = "identity"
	endpointGetUser  = "users.get"
	maxResponseBytes = 1 << 20
)

var _ domidentity.Verifier = (*Client)(nil)

type userResponse struct {
	Success bool             `json:"success"`
	Data    domidentity.User `json:"data"`
	Error   string           `json:"error"`
}

// Client verifies users against the identity service over HTTP.
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
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         httpClient,
		policy:       policy,
		log:          tel.Logger().With(observability.F("component", "identity_client")),
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

// Verify retries timeouts and 5xx answers; a 404 is final.
func (c *Client) Verify(ctx context.Context, userID string) (*domidentity.User, error) {
	var user *domidentity.User
	attempt := 0
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		attempt++
		u, err := c.get(ctx, userID)
		if err != nil {
			logctx.FromOr(ctx, c.log).Debug("identity_attempt_failed",
				observability.F("user_id", userID),
				observability.F("attempt", attempt),
				observability.F("error", err),
			)
			return err
		}
		user = u
		return nil
	})
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, domidentity.ErrNotFound):
		return nil, err
	case errors.Is(err, domidentity.ErrUnreachable):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %w", domidentity.ErrUnreachable, err)
	}
}

func (c *Client) get(ctx context.Context, userID string) (_ *domidentity.User, err error) {
	start := time.Now()
	outcome := "success"
	defer func() {
		if err != nil {
			outcome = "error"
		}
		c.extCounter.Add(1,
			observability.L("peer", peerIdentity),
			observability.L("endpoint", endpointGetUser),
			observability.L("outcome", outcome),
		)
		c.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", peerIdentity),
			observability.L("endpoint", endpointGetUser),
		)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("%w: %w", domidentity.ErrUnreachable, err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, retry.Permanent(fmt.Errorf("%w: %s", domidentity.ErrNotFound, userID))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("identity: status %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return nil, retry.Permanent(fmt.Errorf("%w: status %d", domidentity.ErrUnreachable, resp.StatusCode))
	}

	var body userResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return nil, retry.Permanent(fmt.Errorf("%w: decode: %w", domidentity.ErrUnreachable, err))
	}
	if !body.Success || body.Data.ID == "" {
		return nil, retry.Permanent(fmt.Errorf("%w: %s", domidentity.ErrNotFound, userID))
	}
	return &body.Data, nil
}
