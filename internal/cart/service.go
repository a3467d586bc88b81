package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/checkout"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/user"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidEmail    = errors.New("email is required")
)

// ProductReader is the part of the catalog the cart needs.
type ProductReader interface {
	GetProduct(ctx context.Context, id int64) (*catalog.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]catalog.Product, error)
}

type Service interface {
	Get(ctx context.Context, email string) (*View, error)
	AddItem(ctx context.Context, email string, productID int64, qty int) (*View, error)
	RemoveItem(ctx context.Context, email string, productID int64) (*View, error)
	Clear(ctx context.Context, email string) error
	// Checkout submits a snapshot of the cart and clears it on success.
	Checkout(ctx context.Context, buyer checkout.Buyer, idempotencyKey string) (*checkout.Result, error)
}

type service struct {
	store    Store
	products ProductReader
	checkout checkout.Service
}

func NewService(store Store, products ProductReader, checkoutSvc checkout.Service) Service {
	return &service{store: store, products: products, checkout: checkoutSvc}
}

func (s *service) Get(ctx context.Context, email string) (*View, error) {
	email = user.NormalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidEmail
	}
	c, err := s.store.Get(ctx, email)
	if err != nil {
		log.Error().Err(err).Str("email", email).Msg("service: failed to load cart")
		return nil, fmt.Errorf("service: failed to load cart: %w", err)
	}
	return s.view(ctx, c)
}

func (s *service) AddItem(ctx context.Context, email string, productID int64, qty int) (*View, error) {
	email = user.NormalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidEmail
	}
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if _, err := s.products.GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	c, err := s.store.Update(ctx, email, func(c *Cart) error {
		c.add(productID, qty)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("email", email).Int64("product_id", productID).Msg("service: failed to add cart item")
		return nil, fmt.Errorf("service: failed to add cart item: %w", err)
	}
	return s.view(ctx, c)
}

func (s *service) RemoveItem(ctx context.Context, email string, productID int64) (*View, error) {
	email = user.NormalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidEmail
	}
	c, err := s.store.Update(ctx, email, func(c *Cart) error {
		c.remove(productID)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("email", email).Int64("product_id", productID).Msg("service: failed to remove cart item")
		return nil, fmt.Errorf("service: failed to remove cart item: %w", err)
	}
	return s.view(ctx, c)
}

func (s *service) Clear(ctx context.Context, email string) error {
	email = user.NormalizeEmail(email)
	if email == "" {
		return ErrInvalidEmail
	}
	if err := s.store.Delete(ctx, email); err != nil {
		return fmt.Errorf("service: failed to clear cart: %w", err)
	}
	return nil
}

func (s *service) Checkout(ctx context.Context, buyer checkout.Buyer, idempotencyKey string) (*checkout.Result, error) {
	email := user.NormalizeEmail(buyer.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: %w", checkout.ErrInvalidRequest, ErrInvalidEmail)
	}

	c, err := s.store.Get(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("service: failed to load cart: %w", err)
	}
	if len(c.Items) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", checkout.ErrInvalidRequest)
	}

	req := checkout.Request{Buyer: buyer, IdempotencyKey: idempotencyKey}
	for _, item := range c.Items {
		req.Items = append(req.Items, checkout.LineItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	res, err := s.checkout.Checkout(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.store.Delete(ctx, email); err != nil {
		log.Error().Err(err).Str("email", email).Int64("order_id", res.OrderID).Msg("service: order placed but cart not cleared")
	}
	return res, nil
}

func (s *service) view(ctx context.Context, c *Cart) (*View, error) {
	ids := make([]int64, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("service: failed to price cart: %w", err)
	}

	v := &View{Email: c.Email, Items: make([]Line, 0, len(c.Items)), Total: decimal.Zero}
	for _, item := range c.Items {
		p, ok := products[item.ProductID]
		if !ok {
			continue
		}
		line := Line{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.Image,
			Price:     p.Price,
			Quantity:  item.Quantity,
			LineTotal: p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
		}
		v.Total = v.Total.Add(line.LineTotal)
		v.Items = append(v.Items, line)
	}
	return v, nil
}
