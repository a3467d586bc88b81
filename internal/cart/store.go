package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxUpdateRetries = 5

var ErrConcurrentUpdate = errors.New("cart was modified concurrently")

type Store interface {
	// Get returns the stored cart, or an empty one when none exists.
	Get(ctx context.Context, email string) (*Cart, error)
	// Update applies fn to the current cart and stores the result atomically.
	Update(ctx context.Context, email string, fn func(c *Cart) error) (*Cart, error)
	Delete(ctx context.Context, email string) error
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, email string) (*Cart, error) {
	return load(ctx, s.client, email)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, g getter, email string) (*Cart, error) {
	data, err := g.Get(ctx, cartKey(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &Cart{Email: email, Items: []Item{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	if c.Items == nil {
		c.Items = []Item{}
	}
	return &c, nil
}

func (s *RedisStore) Update(ctx context.Context, email string, fn func(c *Cart) error) (*Cart, error) {
	key := cartKey(email)
	var result *Cart

	txf := func(tx *redis.Tx) error {
		c, err := load(ctx, tx, email)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		c.Email = email
		c.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal cart failed: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err == nil {
			result = c
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, ErrConcurrentUpdate
}

func (s *RedisStore) Delete(ctx context.Context, email string) error {
	if err := s.client.Del(ctx, cartKey(email)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cartKey(email string) string {
	return fmt.Sprintf("cart:%s", email)
}
