package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/ht-marketplace/internal/domain/catalog"
)

// PostgresProductStore implements catalog.Store and stock.Store on the
// products table. Reservation operations are single conditional UPDATEs
// so two carts racing for the last unit serialize at the row.
type PostgresProductStore struct {
	db *sql.DB
}

func NewPostgresProductStore(db *sql.DB) *PostgresProductStore {
	return &PostgresProductStore{db: db}
}

// execer matches *sql.DB and *sql.Tx so the stock statements can run
// standalone or inside an order transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresProductStore) Insert(ctx context.Context, p *catalog.Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, seller_id, name, description, price, stock_quantity, reserved_quantity, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.SellerID, p.Name, p.Description, p.Price, p.StockQuantity, p.ReservedQuantity, p.Active, p.CreatedAt, p.UpdatedAt)
	return err
}

func (s *PostgresProductStore) Update(ctx context.Context, p *catalog.Product) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET name = $2, description = $3, price = $4, updated_at = $5
		WHERE id = $1`,
		p.ID, p.Name, p.Description, p.Price, p.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRow(res, catalog.ErrProductNotFound)
}

func (s *PostgresProductStore) Get(ctx context.Context, id string) (*catalog.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seller_id, name, description, price, stock_quantity, reserved_quantity, active, created_at, updated_at
		FROM products WHERE id = $1`, id)

	var p catalog.Product
	err := row.Scan(&p.ID, &p.SellerID, &p.Name, &p.Description, &p.Price,
		&p.StockQuantity, &p.ReservedQuantity, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresProductStore) List(ctx context.Context, sellerID string, activeOnly bool) ([]*catalog.Product, error) {
	query := `
		SELECT id, seller_id, name, description, price, stock_quantity, reserved_quantity, active, created_at, updated_at
		FROM products
		WHERE ($1 = '' OR seller_id = $1) AND (NOT $2 OR active)
		ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, sellerID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*catalog.Product
	for rows.Next() {
		var p catalog.Product
		if err := rows.Scan(&p.ID, &p.SellerID, &p.Name, &p.Description, &p.Price,
			&p.StockQuantity, &p.ReservedQuantity, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}

func (s *PostgresProductStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET active = $2, updated_at = $3 WHERE id = $1`,
		id, active, time.Now())
	if err != nil {
		return err
	}
	return requireRow(res, catalog.ErrProductNotFound)
}

func (s *PostgresProductStore) AddStock(ctx context.Context, id string, qty int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = $3 WHERE id = $1`,
		id, qty, time.Now())
	if err != nil {
		return err
	}
	return requireRow(res, catalog.ErrProductNotFound)
}

// stock.Store implementation

func (s *PostgresProductStore) Reserve(ctx context.Context, productID string, qty int) (bool, error) {
	ok, err := reserveStock(ctx, s.db, productID, qty)
	if err != nil {
		return false, err
	}
	if !ok {
		// distinguish a missing product from insufficient stock
		if _, gerr := s.Get(ctx, productID); gerr != nil {
			return false, gerr
		}
	}
	return ok, nil
}

func (s *PostgresProductStore) Release(ctx context.Context, productID string, qty int) error {
	return releaseStock(ctx, s.db, productID, qty)
}

func (s *PostgresProductStore) Commit(ctx context.Context, productID string, qty int) (bool, error) {
	return commitStock(ctx, s.db, productID, qty)
}

func (s *PostgresProductStore) Restock(ctx context.Context, productID string, qty int) error {
	return restockStock(ctx, s.db, productID, qty)
}

// The statements below also run inside order transactions, hence the
// execer parameter.

func reserveStock(ctx context.Context, ex execer, productID string, qty int) (bool, error) {
	res, err := ex.ExecContext(ctx, `
		UPDATE products
		SET reserved_quantity = reserved_quantity + $2, updated_at = $3
		WHERE id = $1 AND active AND stock_quantity - reserved_quantity >= $2`,
		productID, qty, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func releaseStock(ctx context.Context, ex execer, productID string, qty int) error {
	_, err := ex.ExecContext(ctx, `
		UPDATE products
		SET reserved_quantity = GREATEST(reserved_quantity - $2, 0), updated_at = $3
		WHERE id = $1`,
		productID, qty, time.Now())
	return err
}

func commitStock(ctx context.Context, ex execer, productID string, qty int) (bool, error) {
	res, err := ex.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2,
		    reserved_quantity = reserved_quantity - $2,
		    updated_at = $3
		WHERE id = $1 AND reserved_quantity >= $2 AND stock_quantity >= $2`,
		productID, qty, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func restockStock(ctx context.Context, ex execer, productID string, qty int) error {
	_, err := ex.ExecContext(ctx, `
		UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = $3 WHERE id = $1`,
		productID, qty, time.Now())
	return err
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
