package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var ErrProductNotFound = errors.New("product not found")

type Repository interface {
	GetProductByID(ctx context.Context, id int64) (*Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]Product, error)
	ListProducts(ctx context.Context, filter CategoryFilter) ([]Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

type sqlRepository struct {
	db *sqlx.DB
}

// NewRepository returns a catalog reader backed by database/sql. The catalog
// is read-only here, so it does not need to join checkout transactions.
func NewRepository(db *sqlx.DB) Repository {
	return &sqlRepository{db: db}
}

const productColumns = `id, category_id, name, description, image, price, stock, created_at, updated_at`

func (r *sqlRepository) GetProductByID(ctx context.Context, id int64) (*Product, error) {
	var p Product
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to get product %d: %w", id, err)
	}
	return &p, nil
}

func (r *sqlRepository) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]Product, error) {
	result := make(map[int64]Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT `+productColumns+` FROM products WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to build products query: %w", err)
	}

	var products []Product
	if err := r.db.SelectContext(ctx, &products, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("repository: failed to get products by ids: %w", err)
	}

	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func (r *sqlRepository) ListProducts(ctx context.Context, filter CategoryFilter) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY id`
	var args []any

	if !filter.IsEmpty() {
		var err error
		query, args, err = sqlx.In(`SELECT `+productColumns+` FROM products WHERE category_id IN (?) ORDER BY id`, filter.IDs())
		if err != nil {
			return nil, fmt.Errorf("repository: failed to build products query: %w", err)
		}
		query = r.db.Rebind(query)
	}

	products := []Product{}
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, fmt.Errorf("repository: failed to list products: %w", err)
	}
	return products, nil
}

func (r *sqlRepository) ListCategories(ctx context.Context) ([]Category, error) {
	categories := []Category{}
	if err := r.db.SelectContext(ctx, &categories, `SELECT id, name, created_at FROM categories ORDER BY id`); err != nil {
		return nil, fmt.Errorf("repository: failed to list categories: %w", err)
	}
	return categories, nil
}
