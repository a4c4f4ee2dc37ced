package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository stores each order as a jsonb document next to the columns
// the saga filters and versions on.
type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS orders (
  id         text PRIMARY KEY,
  user_id    text NOT NULL,
  status     text NOT NULL,
  version    bigint NOT NULL,
  payload    jsonb NOT NULL,
  created_at timestamptz NOT NULL,
  updated_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_user_id_idx ON orders (user_id);
CREATE INDEX IF NOT EXISTS orders_status_idx ON orders (status);`)
	return err
}

func (r *OrderRepository) Insert(ctx context.Context, o *order.Order) error {
	stored := o.Clone()
	stored.Version = 1
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("postgres: encode order %s: %w", o.ID, err)
	}

	tag, err := r.pool.Exec(ctx, `
INSERT INTO orders (id, user_id, status, version, payload, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING`,
		stored.ID, stored.UserID, string(stored.Status), stored.Version, raw, stored.CreatedAt, stored.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrConflict
	}
	o.Version = stored.Version
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT payload, version FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	stored := o.Clone()
	stored.Version = o.Version + 1
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("postgres: encode order %s: %w", o.ID, err)
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE orders
SET status = $2, version = $3, payload = $4, updated_at = $5
WHERE id = $1 AND version = $6`,
		stored.ID, string(stored.Status), stored.Version, raw, stored.UpdatedAt, o.Version)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 1 {
		o.Version = stored.Version
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrConflict
}

func (r *OrderRepository) List(ctx context.Context, filter order.Filter) ([]*order.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}

	query := `SELECT payload, version FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var out []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list orders: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		raw     []byte
		version int64
	)
	if err := row.Scan(&raw, &version); err != nil {
		return nil, err
	}
	var o order.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, err
	}
	o.Version = version
	return &o, nil
}
