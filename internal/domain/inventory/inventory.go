package inventory

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("inventory: product not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be between 1 and MaxLineQuantity")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// InsufficientStockError names the first product a reservation could not cover.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for product %s (requested %d, available %d)",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// NotFoundError names a product the ledger does not carry.
type NotFoundError struct {
	ProductID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("inventory: product %s not found", e.ProductID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Record is a point-in-time view of one product's stock.
type Record struct {
	ProductID      string          `json:"product_id"`
	Name           string          `json:"name"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	AvailableStock int             `json:"available_stock"`
}

// Line is one product/quantity pair of a reservation batch.
type Line struct {
	ProductID string
	Quantity  int
}

// MaxLineQuantity caps the merged quantity of one product in a batch.
const MaxLineQuantity = math.MaxInt32

// Aggregate validates lines and merges duplicates, returning them sorted by
// product id. Ledgers lock in that order.
func Aggregate(lines []Line) ([]Line, error) {
	sums := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 || l.Quantity > MaxLineQuantity-sums[l.ProductID] {
			return nil, ErrInvalidQuantity
		}
		sums[l.ProductID] += l.Quantity
	}
	out := make([]Line, 0, len(sums))
	for id, qty := range sums {
		out = append(out, Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}
