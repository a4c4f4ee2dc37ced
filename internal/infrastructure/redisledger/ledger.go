package redisledger

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/inventory"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	stockKeyPrefix   = "inventory:stock:"
	productKeyPrefix = "inventory:product:"
	productSetKey    = "inventory:products"
)

const (
	codeOK           = 0
	codeNotFound     = 1
	codeInsufficient = 2
)

// reserveScript checks every line before decrementing any, so the batch is
// all-or-nothing. Returns {code, 1-based line index, available}.
var reserveScript = redis.NewScript(`
for i, key in ipairs(KEYS) do
	local current = redis.call('GET', key)
	if not current then
		return {1, i, 0}
	end
	current = tonumber(current)
	if current < tonumber(ARGV[i]) then
		return {2, i, current}
	end
end
for i, key in ipairs(KEYS) do
	redis.call('DECRBY', key, ARGV[i])
end
return {0, 0, 0}
`)

var releaseScript = redis.NewScript(`
for i, key in ipairs(KEYS) do
	if redis.call('EXISTS', key) == 0 then
		return {1, i, 0}
	end
end
for i, key in ipairs(KEYS) do
	redis.call('INCRBY', key, ARGV[i])
end
return {0, 0, 0}
`)

// Ledger keeps stock counters in Redis. Atomicity comes from running each
// batch as a single Lua script.
type Ledger struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *Ledger {
	return &Ledger{client: client}
}

// Seed writes catalog data and sets the stock counter only when it does not
// exist yet, so restarting against a live Redis keeps outstanding reservations.
func (l *Ledger) Seed(ctx context.Context, p inventory.Product, stock int) error {
	if stock < 0 {
		return inventory.ErrInvalidQuantity
	}
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, productKeyPrefix+p.ID, "name", p.Name, "unit_price", p.UnitPrice.String())
		pipe.SetNX(ctx, stockKeyPrefix+p.ID, stock, 0)
		pipe.SAdd(ctx, productSetKey, p.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("inventory: seed %s: %w", p.ID, err)
	}
	return nil
}

func (l *Ledger) Product(ctx context.Context, productID string) (inventory.Product, error) {
	fields, err := l.client.HGetAll(ctx, productKeyPrefix+productID).Result()
	if err != nil {
		return inventory.Product{}, fmt.Errorf("inventory: load product %s: %w", productID, err)
	}
	if len(fields) == 0 {
		return inventory.Product{}, &inventory.NotFoundError{ProductID: productID}
	}
	return decodeProduct(productID, fields)
}

func (l *Ledger) Reserve(ctx context.Context, lines []inventory.Line) error {
	batch, err := inventory.Aggregate(lines)
	if err != nil {
		return err
	}
	return l.run(ctx, reserveScript, batch)
}

func (l *Ledger) Release(ctx context.Context, lines []inventory.Line) error {
	batch, err := inventory.Aggregate(lines)
	if err != nil {
		return err
	}
	return l.run(ctx, releaseScript, batch)
}

func (l *Ledger) StockOf(ctx context.Context, productID string) (int, error) {
	n, err := l.client.Get(ctx, stockKeyPrefix+productID).Int()
	if err == redis.Nil {
		return 0, &inventory.NotFoundError{ProductID: productID}
	}
	if err != nil {
		return 0, fmt.Errorf("inventory: stock of %s: %w", productID, err)
	}
	return n, nil
}

func (l *Ledger) List(ctx context.Context) ([]inventory.Record, error) {
	ids, err := l.client.SMembers(ctx, productSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("inventory: list products: %w", err)
	}
	sort.Strings(ids)

	out := make([]inventory.Record, 0, len(ids))
	for _, id := range ids {
		p, err := l.Product(ctx, id)
		if err != nil {
			return nil, err
		}
		stock, err := l.StockOf(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, inventory.Record{
			ProductID:      p.ID,
			Name:           p.Name,
			UnitPrice:      p.UnitPrice,
			AvailableStock: stock,
		})
	}
	return out, nil
}

func (l *Ledger) run(ctx context.Context, script *redis.Script, batch []inventory.Line) error {
	keys := make([]string, len(batch))
	args := make([]any, len(batch))
	for i, line := range batch {
		keys[i] = stockKeyPrefix + line.ProductID
		args[i] = line.Quantity
	}

	res, err := script.Run(ctx, l.client, keys, args...).Int64Slice()
	if err != nil {
		return fmt.Errorf("inventory: script: %w", err)
	}
	if len(res) != 3 {
		return fmt.Errorf("inventory: unexpected script reply %v", res)
	}

	switch res[0] {
	case codeOK:
		return nil
	case codeNotFound:
		return &inventory.NotFoundError{ProductID: batch[res[1]-1].ProductID}
	case codeInsufficient:
		line := batch[res[1]-1]
		return &inventory.InsufficientStockError{
			ProductID: line.ProductID,
			Requested: line.Quantity,
			Available: int(res[2]),
		}
	default:
		return fmt.Errorf("inventory: unexpected script code %d", res[0])
	}
}

func decodeProduct(id string, fields map[string]string) (inventory.Product, error) {
	price := decimal.Zero
	if raw := fields["unit_price"]; raw != "" {
		p, err := decimal.NewFromString(raw)
		if err != nil {
			return inventory.Product{}, fmt.Errorf("inventory: product %s price %s: %w", id, strconv.Quote(raw), err)
		}
		price = p
	}
	return inventory.Product{ID: id, Name: fields["name"], UnitPrice: price}, nil
}
