package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

type Service interface {
	GetProduct(ctx context.Context, id int64) (*Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]Product, error)
	ListProducts(ctx context.Context, filter CategoryFilter) ([]Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) GetProduct(ctx context.Context, id int64) (*Product, error) {
	if id <= 0 {
		return nil, ErrProductNotFound
	}

	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		log.Error().Err(err).Int64("product_id", id).Msg("service: failed to get product")
		return nil, fmt.Errorf("service: failed to get product: %w", err)
	}
	return product, nil
}

func (s *service) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]Product, error) {
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		log.Error().Err(err).Ints64("product_ids", ids).Msg("service: failed to get products")
		return nil, fmt.Errorf("service: failed to get products: %w", err)
	}
	return products, nil
}

func (s *service) ListProducts(ctx context.Context, filter CategoryFilter) ([]Product, error) {
	products, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		log.Error().Err(err).Ints64("category_ids", filter.IDs()).Msg("service: failed to list products")
		return nil, fmt.Errorf("service: failed to list products: %w", err)
	}
	return products, nil
}

func (s *service) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list categories")
		return nil, fmt.Errorf("service: failed to list categories: %w", err)
	}
	return categories, nil
}
