package inventory

import "context"

// Ledger owns product stock. Reserve is all-or-nothing across the batch and
// performs its own availability check; StockOf is informational only.
// Release is not idempotent: callers release each reservation at most once.
type Ledger interface {
	Product(ctx context.Context, productID string) (Product, error)
	Reserve(ctx context.Context, lines []Line) error
	Release(ctx context.Context, lines []Line) error
	StockOf(ctx context.Context, productID string) (int, error)
	List(ctx context.Context) ([]Record, error)
}
