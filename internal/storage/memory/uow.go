package memory

import (
	"context"
	"errors"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/events"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/order"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/user"
)

var ErrUnitOfWorkDone = errors.New("unit of work already finished")

// unitOfWork tracks the orders and events written through it so Rollback can
// remove them. Reservations and users are written straight to the store.
type unitOfWork struct {
	store    *Store
	orderIDs []int64
	eventIDs []int64
	done     bool
}

func (u *unitOfWork) Ledger() inventory.Ledger { return u.store.Ledger() }
func (u *unitOfWork) Users() user.Repository   { return u.store.Users() }
func (u *unitOfWork) Orders() order.Writer     { return (*uowOrders)(u) }
func (u *unitOfWork) Outbox() events.Recorder  { return (*uowOutbox)(u) }
func (u *unitOfWork) Atomic() bool             { return false }

func (u *unitOfWork) Commit(_ context.Context) error {
	if u.done {
		return ErrUnitOfWorkDone
	}
	u.done = true
	return nil
}

func (u *unitOfWork) Rollback(_ context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	for _, id := range u.eventIDs {
		u.store.deleteEvent(id)
	}
	for _, id := range u.orderIDs {
		u.store.deleteOrder(id)
	}
	return nil
}

type uowOrders unitOfWork

func (w *uowOrders) Create(ctx context.Context, o *order.Order) error {
	if err := w.store.Orders().Create(ctx, o); err != nil {
		return err
	}
	w.orderIDs = append(w.orderIDs, o.ID)
	return nil
}

type uowOutbox unitOfWork

func (w *uowOutbox) Append(ctx context.Context, rec *events.Record) error {
	if err := w.store.Outbox().Append(ctx, rec); err != nil {
		return err
	}
	w.eventIDs = append(w.eventIDs, rec.ID)
	return nil
}
