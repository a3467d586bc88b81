package checkout_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/checkout"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/events"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/order"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/user"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Reserve(ctx context.Context, productID int64, qty int) error {
	return m.Called(ctx, productID, qty).Error(0)
}

func (m *MockLedger) Release(ctx context.Context, productID int64, qty int) error {
	return m.Called(ctx, productID, qty).Error(0)
}

type MockUnitOfWork struct {
	mock.Mock
	ledger *MockLedger
	atomic bool
}

func (m *MockUnitOfWork) Ledger() inventory.Ledger { return m.ledger }
func (m *MockUnitOfWork) Users() user.Repository   { panic("not reached") }
func (m *MockUnitOfWork) Orders() order.Writer     { panic("not reached") }
func (m *MockUnitOfWork) Outbox() events.Recorder  { panic("not reached") }
func (m *MockUnitOfWork) Atomic() bool             { return m.atomic }

func (m *MockUnitOfWork) Commit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockUnitOfWork) Rollback(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var fastCredentials = checkout.WithCredentials(user.NewCredentials(bcrypt.MinCost))

type staticFactory struct {
	uow checkout.UnitOfWork
}

func (f staticFactory) Begin(context.Context) (checkout.UnitOfWork, error) { return f.uow, nil }

type staticProducts map[int64]catalog.Product

func (p staticProducts) GetProductsByIDs(_ context.Context, ids []int64) (map[int64]catalog.Product, error) {
	out := make(map[int64]catalog.Product)
	for _, id := range ids {
		if prod, ok := p[id]; ok {
			out[id] = prod
		}
	}
	return out, nil
}

type noOrders struct{}

func (noOrders) GetByIdempotencyKey(context.Context, string) (*order.Order, error) {
	return nil, order.ErrOrderNotFound
}

func threeProducts() staticProducts {
	return staticProducts{
		1: {ID: 1, Name: "One", Price: decimal.NewFromInt(1), Stock: 10},
		2: {ID: 2, Name: "Two", Price: decimal.NewFromInt(2), Stock: 10},
		3: {ID: 3, Name: "Three", Price: decimal.NewFromInt(3), Stock: 0},
	}
}

func TestCheckout_ReleasesInReverseOrder(t *testing.T) {
	ledger := new(MockLedger)
	uow := &MockUnitOfWork{ledger: ledger}

	var released []int64
	ledger.On("Reserve", mock.Anything, int64(1), 1).Return(nil).Once()
	ledger.On("Reserve", mock.Anything, int64(2), 2).Return(nil).Once()
	ledger.On("Reserve", mock.Anything, int64(3), 3).
		Return(&inventory.StockError{ProductID: 3, ProductName: "Three", Requested: 3, Available: 0}).Once()
	ledger.On("Release", mock.Anything, mock.AnythingOfType("int64"), mock.AnythingOfType("int")).
		Run(func(args mock.Arguments) { released = append(released, args.Get(1).(int64)) }).
		Return(nil).Twice()
	uow.On("Rollback", mock.Anything).Return(nil).Once()

	svc := checkout.NewService(threeProducts(), noOrders{}, staticFactory{uow: uow}, fastCredentials)
	_, err := svc.Checkout(context.Background(), checkout.Request{
		Buyer: checkout.Buyer{Email: "r@example.com"},
		Items: []checkout.LineItem{
			{ProductID: 1, Quantity: 1},
			{ProductID: 2, Quantity: 2},
			{ProductID: 3, Quantity: 3},
		},
	})
	require.ErrorIs(t, err, checkout.ErrInsufficientStock)

	assert.Equal(t, []int64{2, 1}, released)
	ledger.AssertExpectations(t)
	uow.AssertExpectations(t)
	uow.AssertNotCalled(t, "Commit", mock.Anything)
}

func TestCheckout_AtomicUnitOfWorkOnlyRollsBack(t *testing.T) {
	ledger := new(MockLedger)
	uow := &MockUnitOfWork{ledger: ledger, atomic: true}

	ledger.On("Reserve", mock.Anything, int64(1), 1).Return(nil).Once()
	ledger.On("Reserve", mock.Anything, int64(3), 1).
		Return(&inventory.StockError{ProductID: 3, ProductName: "Three", Requested: 1, Available: 0}).Once()
	uow.On("Rollback", mock.Anything).Return(nil).Once()

	svc := checkout.NewService(threeProducts(), noOrders{}, staticFactory{uow: uow}, fastCredentials)
	_, err := svc.Checkout(context.Background(), checkout.Request{
		Buyer: checkout.Buyer{Email: "r@example.com"},
		Items: []checkout.LineItem{{ProductID: 1, Quantity: 1}, {ProductID: 3, Quantity: 1}},
	})
	require.ErrorIs(t, err, checkout.ErrInsufficientStock)

	ledger.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	uow.AssertExpectations(t)
}

func TestCheckout_ReleaseFailureIsReported(t *testing.T) {
	ledger := new(MockLedger)
	uow := &MockUnitOfWork{ledger: ledger}
	releaseErr := assert.AnError

	ledger.On("Reserve", mock.Anything, int64(1), 1).Return(nil).Once()
	ledger.On("Reserve", mock.Anything, int64(3), 1).Return(&inventory.StockError{ProductID: 3, Available: 0}).Once()
	ledger.On("Release", mock.Anything, int64(1), 1).Return(releaseErr).Once()
	uow.On("Rollback", mock.Anything).Return(nil).Once()

	svc := checkout.NewService(threeProducts(), noOrders{}, staticFactory{uow: uow}, fastCredentials)
	_, err := svc.Checkout(context.Background(), checkout.Request{
		Buyer: checkout.Buyer{Email: "r@example.com"},
		Items: []checkout.LineItem{{ProductID: 1, Quantity: 1}, {ProductID: 3, Quantity: 1}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, checkout.ErrInsufficientStock)
	assert.ErrorIs(t, err, releaseErr)

	var cerr *checkout.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "Three", cerr.ProductName, "name falls back to the priced product")
	ledger.AssertExpectations(t)
}

func TestError_Message(t *testing.T) {
	err := &checkout.Error{Kind: checkout.ErrInsufficientStock, Line: 1, ProductID: 3, ProductName: "Three", Available: 0}
	assert.Equal(t, "insufficient stock: line 1: product 3 (Three): 0 available", err.Error())

	err = &checkout.Error{Kind: checkout.ErrInvalidRequest, Line: checkout.NoLine, Err: assert.AnError}
	assert.Equal(t, "invalid checkout request: "+assert.AnError.Error(), err.Error())
}
