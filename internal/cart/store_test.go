package cart

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, time.Hour), mr
}

func TestRedisStore_GetMissingIsEmpty(t *testing.T) {
	store, _ := setupTestRedis(t)

	c, err := store.Get(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", c.Email)
	assert.NotNil(t, c.Items)
	assert.Empty(t, c.Items)
}

func TestRedisStore_UpdatePersistsWithTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := setupTestRedis(t)

	_, err := store.Update(ctx, "a@example.com", func(c *Cart) error {
		c.add(1, 2)
		return nil
	})
	require.NoError(t, err)
	c, err := store.Update(ctx, "a@example.com", func(c *Cart) error {
		c.add(1, 1)
		c.add(2, 5)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []Item{{ProductID: 1, Quantity: 3}, {ProductID: 2, Quantity: 5}}, c.Items)

	raw, err := mr.Get(cartKey("a@example.com"))
	require.NoError(t, err)
	var stored Cart
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, c.Items, stored.Items)
	assert.Equal(t, time.Hour, mr.TTL(cartKey("a@example.com")))

	mr.FastForward(2 * time.Hour)
	expired, err := store.Get(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Empty(t, expired.Items)
}

func TestRedisStore_UpdateErrorLeavesCartUntouched(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTestRedis(t)

	_, err := store.Update(ctx, "a@example.com", func(c *Cart) error {
		c.add(1, 1)
		return nil
	})
	require.NoError(t, err)

	_, err = store.Update(ctx, "a@example.com", func(c *Cart) error {
		c.add(9, 9)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	c, err := store.Get(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, []Item{{ProductID: 1, Quantity: 1}}, c.Items)
}

func TestRedisStore_Delete(t *testing.T) {
	ctx := context.Background()
	store, mr := setupTestRedis(t)

	_, err := store.Update(ctx, "a@example.com", func(c *Cart) error {
		c.add(1, 1)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "a@example.com"))
	assert.False(t, mr.Exists(cartKey("a@example.com")))
}

func TestCart_Remove(t *testing.T) {
	c := &Cart{Items: []Item{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 2}, {ProductID: 3, Quantity: 3}}}
	c.remove(2)
	assert.Equal(t, []Item{{ProductID: 1, Quantity: 1}, {ProductID: 3, Quantity: 3}}, c.Items)
	c.remove(42)
	assert.Len(t, c.Items, 2)
}
