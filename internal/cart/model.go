package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

type Item struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Cart is the stored document for one buyer.
type Cart struct {
	Email     string    `json:"email"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Cart) add(productID int64, qty int) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += qty
			return
		}
	}
	c.Items = append(c.Items, Item{ProductID: productID, Quantity: qty})
}

func (c *Cart) remove(productID int64) {
	kept := c.Items[:0]
	for _, item := range c.Items {
		if item.ProductID != productID {
			kept = append(kept, item)
		}
	}
	c.Items = kept
}

// Line is a cart item priced at the current catalog price.
type Line struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type View struct {
	Email string          `json:"email"`
	Items []Line          `json:"items"`
	Total decimal.Decimal `json:"total"`
}
