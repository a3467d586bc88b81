package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Product struct {
	ID          int64           `db:"id" json:"id"`
	CategoryID  *int64          `db:"category_id" json:"category_id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Image       string          `db:"image" json:"image"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Stock       int             `db:"stock" json:"stock"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// InCategory reports whether the product matches the filter. An empty filter
// matches everything.
func (p *Product) InCategory(f CategoryFilter) bool {
	if f.IsEmpty() {
		return true
	}
	if p.CategoryID == nil {
		return false
	}
	for _, id := range f.ids {
		if id == *p.CategoryID {
			return true
		}
	}
	return false
}
