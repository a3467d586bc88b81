package checkout

import (
	"context"
	"time"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/events"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/order"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/user"
)

type ProductReader interface {
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]catalog.Product, error)
}

type OrderLookup interface {
	GetByIdempotencyKey(ctx context.Context, key string) (*order.Order, error)
}

// UnitOfWork groups every write of one checkout attempt. When Atomic reports
// true, Rollback also undoes reservations; otherwise the caller must release
// them before rolling back.
type UnitOfWork interface {
	Ledger() inventory.Ledger
	Users() user.Repository
	Orders() order.Writer
	Outbox() events.Recorder
	Atomic() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type UnitOfWorkFactory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// Recorder receives the outcome of every checkout call.
type Recorder interface {
	ObserveCheckout(outcome string, elapsed time.Duration)
}

// CredentialIssuer produces the placeholder password hash for a buyer that
// may have to be created. It is called before the unit of work begins so no
// row lock is held while hashing.
type CredentialIssuer interface {
	Placeholder() (string, error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCheckout(string, time.Duration) {}
