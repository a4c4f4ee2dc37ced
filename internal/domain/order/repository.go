package order

import "context"

// Filter narrows List results; empty fields match everything.
type Filter struct {
	Status Status
	UserID string
}

func (f Filter) Match(o *Order) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.UserID != "" && o.UserID != f.UserID {
		return false
	}
	return true
}

// Repository is the OrderStore. Update fails with ErrConflict when the stored
// version differs from the one the caller loaded.
type Repository interface {
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, order *Order) error
	List(ctx context.Context, filter Filter) ([]*Order, error)
}
