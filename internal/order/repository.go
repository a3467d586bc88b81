package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/db"
)

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrEmptyOrder              = errors.New("order has no items")
	ErrTotalMismatch           = errors.New("order total does not match its items")
	ErrDuplicateIdempotencyKey = errors.New("order with this idempotency key already exists")
)

// Writer persists new orders. Implementations write the header and every
// item as one unit.
type Writer interface {
	Create(ctx context.Context, order *Order) error
}

type Repository interface {
	Writer
	ListByUserID(ctx context.Context, userID int64) ([]Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Order, error)
}

type postgresRepository struct {
	db db.DBTX
}

// NewRepository accepts the pool or an open transaction. Inside a
// transaction Create runs under a savepoint.
func NewRepository(db db.DBTX) Repository {
	return &postgresRepository{db: db}
}

// Validate checks the invariants every stored order must satisfy.
func Validate(o *Order) error {
	if len(o.Items) == 0 {
		return ErrEmptyOrder
	}
	if !ComputeTotal(o.Items).Equal(o.TotalPrice) {
		return fmt.Errorf("%w: total %s, items sum to %s", ErrTotalMismatch, o.TotalPrice, ComputeTotal(o.Items))
	}
	return nil
}

func (r *postgresRepository) Create(ctx context.Context, o *Order) (err error) {
	if err := Validate(o); err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Int64("user_id", o.UserID).Msg("Panic recovered during order create, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("Failed to rollback order transaction after panic")
			}
			panic(p)
		} else if err != nil {
			log.Warn().Err(err).Int64("user_id", o.UserID).Msg("Order create failed, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("Failed to rollback order transaction")
			}
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			log.Error().Err(commitErr).Int64("order_id", o.ID).Msg("Failed to commit order transaction")
			err = fmt.Errorf("repository: failed to commit order: %w", commitErr)
		}
	}()

	queryOrder := `
		INSERT INTO orders (user_id, total_price, idempotency_key)
		VALUES ($1, $2, NULLIF($3, ''))
		RETURNING id, created_at
	`
	err = tx.QueryRow(ctx, queryOrder, o.UserID, o.TotalPrice, o.IdempotencyKey).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "orders_idempotency_key_key") {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		if err = tx.QueryRow(ctx, queryItem, o.ID, item.ProductID, item.Quantity, item.Price).Scan(&item.ID); err != nil {
			return fmt.Errorf("repository: failed to insert item %d of order %d: %w", i, o.ID, err)
		}
	}

	return nil
}

func (r *postgresRepository) GetByIdempotencyKey(ctx context.Context, key string) (*Order, error) {
	if key == "" {
		return nil, ErrOrderNotFound
	}

	var o Order
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, total_price, created_at FROM orders WHERE idempotency_key = $1`, key).
		Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to get order by idempotency key: %w", err)
	}
	o.IdempotencyKey = key

	items, err := r.itemsFor(ctx, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	if o.Items == nil {
		o.Items = []OrderItem{}
	}
	return &o, nil
}

func (r *postgresRepository) ListByUserID(ctx context.Context, userID int64) ([]Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, total_price, COALESCE(idempotency_key, ''), created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for user %d: %w", userID, err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	var orderIDs []int64
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.IdempotencyKey, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order for user %d: %w", userID, err)
		}
		orders = append(orders, o)
		orderIDs = append(orderIDs, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders for user %d: %w", userID, err)
	}

	if len(orderIDs) == 0 {
		return orders, nil
	}

	items, err := r.itemsFor(ctx, orderIDs)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []OrderItem{}
		}
	}
	return orders, nil
}

func (r *postgresRepository) itemsFor(ctx context.Context, orderIDs []int64) (map[int64][]OrderItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price,
		       p.id, p.name, p.image, p.price, p.category_id
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.id
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	result := make(map[int64][]OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			item    OrderItem
			product ProductSummary
		)
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.Price,
			&product.ID,
			&product.Name,
			&product.Image,
			&product.Price,
			&product.CategoryID,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		item.Product = &product
		result[item.OrderID] = append(result[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating order items: %w", err)
	}
	return result, nil
}
