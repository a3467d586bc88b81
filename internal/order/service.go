package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/user"
)

// UserFinder looks buyers up by email.
type UserFinder interface {
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
}

type Service interface {
	// ListForBuyer returns the buyer's orders oldest first. An unknown email
	// yields an empty list.
	ListForBuyer(ctx context.Context, email string) ([]Order, error)
}

type service struct {
	repo  Repository
	users UserFinder
}

func NewService(repo Repository, users UserFinder) Service {
	return &service{repo: repo, users: users}
}

func (s *service) ListForBuyer(ctx context.Context, email string) ([]Order, error) {
	buyer, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return []Order{}, nil
		}
		return nil, fmt.Errorf("service: failed to resolve buyer: %w", err)
	}

	orders, err := s.repo.ListByUserID(ctx, buyer.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", buyer.ID).Msg("service: failed to list orders")
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}
	return orders, nil
}
