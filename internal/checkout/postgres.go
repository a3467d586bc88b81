package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/events"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/order"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/user"
)

type pgUnitOfWorkFactory struct {
	pool *pgxpool.Pool
}

// NewPgUnitOfWorkFactory returns units of work backed by a single
// read-committed transaction.
func NewPgUnitOfWorkFactory(pool *pgxpool.Pool) UnitOfWorkFactory {
	return &pgUnitOfWorkFactory{pool: pool}
}

func (f *pgUnitOfWorkFactory) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := f.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("unit of work: failed to begin transaction: %w", err)
	}
	return &pgUnitOfWork{
		tx:     tx,
		ledger: inventory.NewLedger(tx),
		users:  user.NewRepository(tx),
		orders: order.NewRepository(tx),
		outbox: events.NewOutbox(tx),
	}, nil
}

type pgUnitOfWork struct {
	tx     pgx.Tx
	ledger inventory.Ledger
	users  user.Repository
	orders order.Writer
	outbox events.Recorder
}

func (u *pgUnitOfWork) Ledger() inventory.Ledger { return u.ledger }
func (u *pgUnitOfWork) Users() user.Repository   { return u.users }
func (u *pgUnitOfWork) Orders() order.Writer     { return u.orders }
func (u *pgUnitOfWork) Outbox() events.Recorder  { return u.outbox }
func (u *pgUnitOfWork) Atomic() bool             { return true }

func (u *pgUnitOfWork) Commit(ctx context.Context) error {
	if err := u.tx.Commit(ctx); err != nil {
		return fmt.Errorf("unit of work: failed to commit: %w", err)
	}
	return nil
}

func (u *pgUnitOfWork) Rollback(ctx context.Context) error {
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("unit of work: failed to roll back: %w", err)
	}
	return nil
}
