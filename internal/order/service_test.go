package order_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/order"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/user"
)

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, o *order.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockOrderRepository) ListByUserID(ctx context.Context, userID int64) ([]order.Order, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

type MockUserFinder struct {
	mock.Mock
}

func (m *MockUserFinder) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func TestService_ListForBuyer(t *testing.T) {
	ctx := context.Background()
	dbErr := errors.New("db down")

	tests := []struct {
		name      string
		setup     func(r *MockOrderRepository, u *MockUserFinder)
		wantLen   int
		wantErrIs error
	}{
		{
			name: "orders_returned",
			setup: func(r *MockOrderRepository, u *MockUserFinder) {
				u.On("GetUserByEmail", ctx, "a@example.com").Return(&user.User{ID: 5}, nil).Once()
				r.On("ListByUserID", ctx, int64(5)).Return([]order.Order{{ID: 1}, {ID: 2}}, nil).Once()
			},
			wantLen: 2,
		},
		{
			name: "unknown_email_is_empty",
			setup: func(r *MockOrderRepository, u *MockUserFinder) {
				u.On("GetUserByEmail", ctx, "a@example.com").Return(nil, user.ErrNotFound).Once()
			},
			wantLen: 0,
		},
		{
			name: "repository_error",
			setup: func(r *MockOrderRepository, u *MockUserFinder) {
				u.On("GetUserByEmail", ctx, "a@example.com").Return(&user.User{ID: 5}, nil).Once()
				r.On("ListByUserID", ctx, int64(5)).Return(nil, dbErr).Once()
			},
			wantErrIs: dbErr,
		},
		{
			name: "lookup_error",
			setup: func(r *MockOrderRepository, u *MockUserFinder) {
				u.On("GetUserByEmail", ctx, "a@example.com").Return(nil, dbErr).Once()
			},
			wantErrIs: dbErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockOrderRepository)
			users := new(MockUserFinder)
			tt.setup(repo, users)

			orders, err := order.NewService(repo, users).ListForBuyer(ctx, "a@example.com")
			if tt.wantErrIs != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErrIs)
			} else {
				require.NoError(t, err)
				require.NotNil(t, orders)
				assert.Len(t, orders, tt.wantLen)
			}
			repo.AssertExpectations(t)
			users.AssertExpectations(t)
		})
	}
}
