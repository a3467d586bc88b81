package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/db"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// StockError reports a reservation that could not be satisfied.
type StockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d (%s): requested %d, available %d",
		e.ProductID, e.ProductName, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

// Ledger reserves and releases product stock. Reserve either decrements the
// stock by exactly qty or leaves it untouched.
type Ledger interface {
	Reserve(ctx context.Context, productID int64, qty int) error
	Release(ctx context.Context, productID int64, qty int) error
}

type postgresLedger struct {
	db db.DBTX
}

func NewLedger(db db.DBTX) Ledger {
	return &postgresLedger{db: db}
}

func (l *postgresLedger) Reserve(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	// Stock is an INTEGER column, so a larger request can never be covered.
	if qty <= math.MaxInt32 {
		tag, err := l.db.Exec(ctx,
			`UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1 AND stock >= $2`,
			productID, qty)
		if err != nil {
			return fmt.Errorf("ledger: failed to reserve product %d: %w", productID, err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}
	}

	var (
		name  string
		stock int
	)
	err := l.db.QueryRow(ctx, `SELECT name, stock FROM products WHERE id = $1`, productID).Scan(&name, &stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProductNotFound
		}
		return fmt.Errorf("ledger: failed to read stock of product %d: %w", productID, err)
	}

	return &StockError{ProductID: productID, ProductName: name, Requested: qty, Available: stock}
}

func (l *postgresLedger) Release(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	tag, err := l.db.Exec(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`,
		productID, qty)
	if err != nil {
		return fmt.Errorf("ledger: failed to release product %d: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}
