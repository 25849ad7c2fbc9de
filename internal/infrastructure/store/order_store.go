package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/ht-marketplace/internal/domain/cart"
	"github.com/example/ht-marketplace/internal/domain/order"
)

// PostgresOrderStore implements order.Store. Every mutation is a single
// transaction; status updates are guarded on the expected current value
// so a concurrent transition cannot be overwritten.
type PostgresOrderStore struct {
	db *sql.DB
}

func NewPostgresOrderStore(db *sql.DB) *PostgresOrderStore {
	return &PostgresOrderStore{db: db}
}

func (s *PostgresOrderStore) CreateFromCart(ctx context.Context, o *order.Order, ownerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Lock the cart row for the duration of checkout; the expiry sweep
	// skips locked carts.
	var cartID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM carts WHERE owner_id = $1 FOR UPDATE`, ownerID).Scan(&cartID)
	if errors.Is(err, sql.ErrNoRows) {
		return cart.ErrExpired
	}
	if err != nil {
		return err
	}

	addr, err := json.Marshal(o.Address)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total, status, payment_method, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.UserID, o.Total, o.Status, o.PaymentMethod, addr, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	for _, item := range o.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, name, price, quantity)
			VALUES ($1, $2, $3, $4, $5)`,
			o.ID, item.ProductID, item.Name, item.Price, item.Quantity)
		if err != nil {
			return err
		}
	}

	if err := insertStatusLog(ctx, tx, o.ID, "", o.Status, o.UserID, ""); err != nil {
		return err
	}

	// Reservations carry over from the cart to the order untouched.
	if _, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PostgresOrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, total, status, payment_method, address, created_at, updated_at
		FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}

	items, err := s.orderItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (s *PostgresOrderStore) ListByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, total, status, payment_method, address, created_at, updated_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, o := range orders {
		items, err := s.orderItems(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		o.Items = items
	}
	return orders, nil
}

func (s *PostgresOrderStore) Transition(ctx context.Context, id string, from, to order.Status, actor, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, from, to, time.Now())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.transitionConflict(ctx, id, to)
	}

	if err := insertStatusLog(ctx, tx, id, from, to, actor, reason); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresOrderStore) ConfirmWithCommit(ctx context.Context, id, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	status, err := lockOrderStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if status != order.StatusPendingPayment {
		if status == order.StatusConfirmed {
			return order.ErrAlreadyConfirmed
		}
		return fmt.Errorf("%w: cannot transition from %s to %s", order.ErrInvalidTransition, status, order.StatusConfirmed)
	}

	items, err := orderItemsTx(ctx, tx, id)
	if err != nil {
		return err
	}
	for _, item := range items {
		ok, err := commitStock(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("stock commit failed for product %s on order %s", item.ProductID, id)
		}
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
		id, order.StatusConfirmed, now); err != nil {
		return err
	}
	if err := insertStatusLog(ctx, tx, id, status, order.StatusConfirmed, actor, ""); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresOrderStore) CancelWithRelease(ctx context.Context, id, actor, reason string, restock bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	status, err := lockOrderStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	switch status {
	case order.StatusPendingPayment, order.StatusConfirmed, order.StatusProcessing:
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", order.ErrInvalidTransition, status, order.StatusCancelled)
	}

	items, err := orderItemsTx(ctx, tx, id)
	if err != nil {
		return err
	}
	for _, item := range items {
		if restock {
			err = restockStock(ctx, tx, item.ProductID, item.Quantity)
		} else {
			err = releaseStock(ctx, tx, item.ProductID, item.Quantity)
		}
		if err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
		id, order.StatusCancelled, time.Now()); err != nil {
		return err
	}
	if err := insertStatusLog(ctx, tx, id, status, order.StatusCancelled, actor, reason); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresOrderStore) StatusLog(ctx context.Context, id string) ([]order.StatusChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, from_status, to_status, actor, reason, at
		FROM order_status_log WHERE order_id = $1 ORDER BY at ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var log []order.StatusChange
	for rows.Next() {
		var c order.StatusChange
		if err := rows.Scan(&c.OrderID, &c.From, &c.To, &c.Actor, &c.Reason, &c.At); err != nil {
			return nil, err
		}
		log = append(log, c)
	}
	return log, rows.Err()
}

// transitionConflict maps a guarded-update miss to the right error.
func (s *PostgresOrderStore) transitionConflict(ctx context.Context, id string, to order.Status) error {
	var current order.Status
	err := s.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return order.ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: cannot transition from %s to %s", order.ErrInvalidTransition, current, to)
}

func lockOrderStatus(ctx context.Context, tx *sql.Tx, id string) (order.Status, error) {
	var status order.Status
	err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", order.ErrOrderNotFound
	}
	return status, err
}

func insertStatusLog(ctx context.Context, tx *sql.Tx, orderID string, from, to order.Status, actor, reason string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_status_log (id, order_id, from_status, to_status, actor, reason, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), orderID, from, to, actor, reason, time.Now())
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var o order.Order
	var addr []byte
	err := row.Scan(&o.ID, &o.UserID, &o.Total, &o.Status, &o.PaymentMethod, &addr, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(addr, &o.Address); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PostgresOrderStore) orderItems(ctx context.Context, orderID string) ([]order.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, name, price, quantity
		FROM order_items WHERE order_id = $1 ORDER BY product_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrderItems(rows)
}

func orderItemsTx(ctx context.Context, tx *sql.Tx, orderID string) ([]order.Item, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, name, price, quantity
		FROM order_items WHERE order_id = $1 ORDER BY product_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrderItems(rows)
}

func scanOrderItems(rows *sql.Rows) ([]order.Item, error) {
	var items []order.Item
	for rows.Next() {
		var item order.Item
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Price, &item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
