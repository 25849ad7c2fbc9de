package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/example/ht-marketplace/internal/domain/cart"
)

// PostgresCartStore implements cart.Store.
type PostgresCartStore struct {
	db *sql.DB
}

func NewPostgresCartStore(db *sql.DB) *PostgresCartStore {
	return &PostgresCartStore{db: db}
}

func (s *PostgresCartStore) Get(ctx context.Context, ownerID string) (*cart.Cart, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, created_at, updated_at FROM carts WHERE owner_id = $1`, ownerID)

	c := &cart.Cart{Items: make(map[string]cart.Item)}
	err := row.Scan(&c.ID, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cart.ErrCartNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, name, price, quantity FROM cart_items WHERE cart_id = $1`, c.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item cart.Item
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Price, &item.Quantity); err != nil {
			return nil, err
		}
		c.Items[item.ProductID] = item
	}
	return c, rows.Err()
}

// Save upserts the cart row and rewrites its lines in one transaction.
func (s *PostgresCartStore) Save(ctx context.Context, c *cart.Cart) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO carts (id, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at`,
		c.ID, c.OwnerID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, c.ID); err != nil {
		return err
	}
	for _, item := range c.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cart_items (cart_id, product_id, name, price, quantity)
			VALUES ($1, $2, $3, $4, $5)`,
			c.ID, item.ProductID, item.Name, item.Price, item.Quantity)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *PostgresCartStore) Delete(ctx context.Context, ownerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM carts WHERE owner_id = $1`, ownerID)
	return err
}

// ExpireIdle sweeps carts untouched since before the cutoff, releasing
// their reservations and deleting them in one transaction. FOR UPDATE
// SKIP LOCKED leaves alone any cart currently locked by an in-flight
// checkout.
func (s *PostgresCartStore) ExpireIdle(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM carts WHERE updated_at < $1 FOR UPDATE SKIP LOCKED`, cutoff)
	if err != nil {
		return 0, err
	}
	var cartIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		cartIDs = append(cartIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(cartIDs) == 0 {
		return 0, tx.Commit()
	}

	// release exactly the quantities the swept carts held
	holds, err := tx.QueryContext(ctx, `
		SELECT product_id, SUM(quantity)
		FROM cart_items WHERE cart_id = ANY($1)
		GROUP BY product_id`, pq.Array(cartIDs))
	if err != nil {
		return 0, err
	}
	type hold struct {
		productID string
		qty       int
	}
	var held []hold
	for holds.Next() {
		var h hold
		if err := holds.Scan(&h.productID, &h.qty); err != nil {
			holds.Close()
			return 0, err
		}
		held = append(held, h)
	}
	holds.Close()
	if err := holds.Err(); err != nil {
		return 0, err
	}

	for _, h := range held {
		if err := releaseStock(ctx, tx, h.productID, h.qty); err != nil {
			return 0, err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE id = ANY($1)`, pq.Array(cartIDs)); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(cartIDs), nil
}
