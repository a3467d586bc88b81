package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductSummary is the live product data shown next to a historical line.
// The line's own Price stays the snapshot taken at checkout.
type ProductSummary struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Image      string          `json:"image"`
	Price      decimal.Decimal `json:"price"`
	CategoryID *int64          `json:"category_id"`
}

type OrderItem struct {
	ID        int64           `json:"id" db:"id"`
	OrderID   int64           `json:"order_id" db:"order_id"`
	ProductID int64           `json:"product_id" db:"product_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Product   *ProductSummary `json:"product,omitempty" db:"-"`
}

// LineTotal is the unit price snapshot multiplied by the quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID             int64           `json:"id" db:"id"`
	UserID         int64           `json:"user_id" db:"user_id"`
	TotalPrice     decimal.Decimal `json:"total_price" db:"total_price"`
	IdempotencyKey string          `json:"-" db:"idempotency_key"`
	Items          []OrderItem     `json:"items" db:"-"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// ComputeTotal sums the line totals of items.
func ComputeTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}
