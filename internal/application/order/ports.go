package order

import "time"

type IDGenerator interface {
	NewID() string
}

// Config holds the orchestrator's per-deployment settings.
type Config struct {
	Currency        string
	DefaultProvider string
	IdentityTimeout time.Duration
	PaymentTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Currency == "" {
		c.Currency = "USD"
	}
	if c.DefaultProvider == "" {
		c.DefaultProvider = "stripe"
	}
	if c.IdentityTimeout <= 0 {
		c.IdentityTimeout = 2 * time.Second
	}
	if c.PaymentTimeout <= 0 {
		c.PaymentTimeout = 5 * time.Second
	}
	return c
}

type UpdateStatusInput struct {
	OrderID string
	Status  string
	Reason  string
}

type CancelOrderInput struct {
	OrderID string
	Reason  string
}
