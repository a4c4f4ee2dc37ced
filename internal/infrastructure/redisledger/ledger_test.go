package redisledger

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/inventory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T) (*Ledger, *miniredis.Miniredis) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := New(client)
	ctx := context.Background()
	require.NoError(t, l.Seed(ctx, inventory.Product{ID: "laptop", Name: "Laptop", UnitPrice: decimal.RequireFromString("999.99")}, 5))
	require.NoError(t, l.Seed(ctx, inventory.Product{ID: "mouse", Name: "Mouse", UnitPrice: decimal.RequireFromString("25.50")}, 2))
	return l, m
}

func TestProductRoundTripsCatalogData(t *testing.T) {
	l, _ := newLedger(t)

	p, err := l.Product(context.Background(), "laptop")
	require.NoError(t, err)
	assert.Equal(t, "Laptop", p.Name)
	assert.True(t, p.UnitPrice.Equal(decimal.RequireFromString("999.99")))

	_, err = l.Product(context.Background(), "phone")
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestReserveAndRelease(t *testing.T) {
	l, m := newLedger(t)
	ctx := context.Background()
	lines := []inventory.Line{{ProductID: "laptop", Quantity: 2}, {ProductID: "mouse", Quantity: 1}}

	require.NoError(t, l.Reserve(ctx, lines))
	got, err := m.Get(stockKeyPrefix + "laptop")
	require.NoError(t, err)
	assert.Equal(t, "3", got)

	require.NoError(t, l.Release(ctx, lines))
	n, err := l.StockOf(ctx, "mouse")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestReserveLeavesStockUntouchedOnShortage(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	err := l.Reserve(ctx, []inventory.Line{{ProductID: "laptop", Quantity: 1}, {ProductID: "mouse", Quantity: 3}})

	var insufficient *inventory.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "mouse", insufficient.ProductID)
	assert.Equal(t, 2, insufficient.Available)

	n, _ := l.StockOf(ctx, "laptop")
	assert.Equal(t, 5, n)
}

func TestReserveUnknownProduct(t *testing.T) {
	l, _ := newLedger(t)
	err := l.Reserve(context.Background(), []inventory.Line{{ProductID: "phone", Quantity: 1}})

	var nf *inventory.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "phone", nf.ProductID)
}

func TestConcurrentReserveLastUnit(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Reserve(ctx, []inventory.Line{{ProductID: "mouse", Quantity: 1}})
			if err == nil {
				ok.Add(1)
			} else if !errors.Is(err, inventory.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 2, ok.Load())
	n, _ := l.StockOf(ctx, "mouse")
	assert.Equal(t, 0, n)
}

func TestListSortsByProduct(t *testing.T) {
	l, _ := newLedger(t)
	recs, err := l.List(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "laptop", recs[0].ProductID)
	assert.Equal(t, 5, recs[0].AvailableStock)
	assert.Equal(t, "mouse", recs[1].ProductID)
}

func TestReserveRejectsOverflowingDuplicateLines(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	err := l.Reserve(ctx, []inventory.Line{{ProductID: "laptop", Quantity: math.MaxInt}, {ProductID: "laptop", Quantity: math.MaxInt}})
	assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)

	n, err := l.StockOf(ctx, "laptop")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestSeedKeepsLiveStockAcrossRestarts(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Reserve(ctx, []inventory.Line{{ProductID: "laptop", Quantity: 2}}))

	repriced := inventory.Product{ID: "laptop", Name: "Laptop Pro", UnitPrice: decimal.RequireFromString("1099.00")}
	require.NoError(t, l.Seed(ctx, repriced, 5))

	n, err := l.StockOf(ctx, "laptop")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	p, err := l.Product(ctx, "laptop")
	require.NoError(t, err)
	assert.Equal(t, "Laptop Pro", p.Name)

	require.NoError(t, l.Release(ctx, []inventory.Line{{ProductID: "laptop", Quantity: 2}}))
	n, err = l.StockOf(ctx, "laptop")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}
