package checkout

import (
	"time"

	"github.com/shopspring/decimal"
)

type Buyer struct {
	Name  string `json:"name" validate:"max=255"`
	Email string `json:"email" validate:"required,email,max=255"`
}

type LineItem struct {
	ProductID int64 `json:"product_id" validate:"gt=0"`
	Quantity  int   `json:"quantity" validate:"gt=0,lte=2147483647"`
}

// Request is a snapshot of what the buyer wants to purchase. Lines are
// processed in the given order.
type Request struct {
	Buyer          Buyer      `json:"buyer"`
	Items          []LineItem `json:"items" validate:"min=1,dive"`
	IdempotencyKey string     `json:"-" validate:"max=255"`
}

type Result struct {
	OrderID    int64           `json:"order_id"`
	UserID     int64           `json:"user_id"`
	TotalPrice decimal.Decimal `json:"total_price"`
	ItemCount  int             `json:"item_count"`
	Replayed   bool            `json:"replayed"`
	CreatedAt  time.Time       `json:"created_at"`
}

type State string

const (
	StateValidating State = "validating"
	StatePricing    State = "pricing"
	StateReserving  State = "reserving"
	StateCommitting State = "committing"
	StateCommitted  State = "committed"
	StateAborted    State = "aborted"
)

func (s State) String() string {
	return string(s)
}
