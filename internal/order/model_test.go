package order_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/order"
)

func TestComputeTotal(t *testing.T) {
	items := []order.OrderItem{
		{ProductID: 1, Quantity: 2, Price: decimal.RequireFromString("50.00")},
		{ProductID: 2, Quantity: 1, Price: decimal.RequireFromString("30.00")},
	}
	assert.True(t, decimal.RequireFromString("130.00").Equal(order.ComputeTotal(items)))
	assert.True(t, decimal.Zero.Equal(order.ComputeTotal(nil)))
}

func TestComputeTotal_NoFloatDrift(t *testing.T) {
	items := make([]order.OrderItem, 10)
	for i := range items {
		items[i] = order.OrderItem{ProductID: int64(i + 1), Quantity: 1, Price: decimal.RequireFromString("0.10")}
	}
	assert.Equal(t, "1.00", order.ComputeTotal(items).StringFixed(2))
}

func TestValidate(t *testing.T) {
	items := []order.OrderItem{{ProductID: 1, Quantity: 3, Price: decimal.RequireFromString("9.99")}}

	assert.NoError(t, order.Validate(&order.Order{TotalPrice: decimal.RequireFromString("29.97"), Items: items}))
	assert.ErrorIs(t, order.Validate(&order.Order{TotalPrice: decimal.RequireFromString("30.00"), Items: items}), order.ErrTotalMismatch)
	assert.ErrorIs(t, order.Validate(&order.Order{TotalPrice: decimal.Zero}), order.ErrEmptyOrder)
}
