package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/inventory"
)

type stockSlot struct {
	mu      sync.Mutex
	product inventory.Product
	stock   int
}

// InventoryLedger holds stock in memory with one mutex per product. A batch
// locks its products in id order, so unrelated products never contend and
// overlapping batches cannot deadlock.
type InventoryLedger struct {
	mu    sync.RWMutex
	slots map[string]*stockSlot
}

func NewInventoryLedger() *InventoryLedger {
	return &InventoryLedger{slots: make(map[string]*stockSlot)}
}

// Seed adds a product or overwrites its catalog data and stock.
func (l *InventoryLedger) Seed(p inventory.Product, stock int) error {
	if stock < 0 {
		return inventory.ErrInvalidQuantity
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.slots[p.ID]; ok {
		s.mu.Lock()
		s.product = p
		s.stock = stock
		s.mu.Unlock()
		return nil
	}
	l.slots[p.ID] = &stockSlot{product: p, stock: stock}
	return nil
}

func (l *InventoryLedger) Product(ctx context.Context, productID string) (inventory.Product, error) {
	_ = ctx
	s, ok := l.slot(productID)
	if !ok {
		return inventory.Product{}, &inventory.NotFoundError{ProductID: productID}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.product, nil
}

func (l *InventoryLedger) Reserve(ctx context.Context, lines []inventory.Line) error {
	_ = ctx
	batch, err := inventory.Aggregate(lines)
	if err != nil {
		return err
	}
	slots, err := l.lockAll(batch)
	if err != nil {
		return err
	}
	defer unlockAll(slots)

	for i, line := range batch {
		if slots[i].stock < line.Quantity {
			return &inventory.InsufficientStockError{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: slots[i].stock,
			}
		}
	}
	for i, line := range batch {
		slots[i].stock -= line.Quantity
	}
	return nil
}

func (l *InventoryLedger) Release(ctx context.Context, lines []inventory.Line) error {
	_ = ctx
	batch, err := inventory.Aggregate(lines)
	if err != nil {
		return err
	}
	slots, err := l.lockAll(batch)
	if err != nil {
		return err
	}
	defer unlockAll(slots)

	for i, line := range batch {
		slots[i].stock += line.Quantity
	}
	return nil
}

func (l *InventoryLedger) StockOf(ctx context.Context, productID string) (int, error) {
	_ = ctx
	s, ok := l.slot(productID)
	if !ok {
		return 0, &inventory.NotFoundError{ProductID: productID}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock, nil
}

func (l *InventoryLedger) List(ctx context.Context) ([]inventory.Record, error) {
	_ = ctx
	l.mu.RLock()
	slots := make([]*stockSlot, 0, len(l.slots))
	for _, s := range l.slots {
		slots = append(slots, s)
	}
	l.mu.RUnlock()

	out := make([]inventory.Record, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		out = append(out, inventory.Record{
			ProductID:      s.product.ID,
			Name:           s.product.Name,
			UnitPrice:      s.product.UnitPrice,
			AvailableStock: s.stock,
		})
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (l *InventoryLedger) slot(productID string) (*stockSlot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.slots[productID]
	return s, ok
}

// lockAll expects batch sorted by product id (inventory.Aggregate does that).
func (l *InventoryLedger) lockAll(batch []inventory.Line) ([]*stockSlot, error) {
	slots := make([]*stockSlot, 0, len(batch))
	for _, line := range batch {
		s, ok := l.slot(line.ProductID)
		if !ok {
			return nil, &inventory.NotFoundError{ProductID: line.ProductID}
		}
		slots = append(slots, s)
	}
	for _, s := range slots {
		s.mu.Lock()
	}
	return slots, nil
}

func unlockAll(slots []*stockSlot) {
	for i := len(slots) - 1; i >= 0; i-- {
		slots[i].mu.Unlock()
	}
}
