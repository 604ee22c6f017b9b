package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/repository"
	"wallet-cluster-analyzer/internal/infrastructure/memory"
)

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   2, // Use different DB for tests
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	require.NoError(t, client.FlushDB(ctx).Err())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.FlushDB(ctx).Err()
		_ = client.Close()
	})
	return client
}

func TestNewRedisLabelRepository_NilClient(t *testing.T) {
	_, err := NewRedisLabelRepository(nil, nil, "labels:", time.Minute)
	assert.Error(t, err)
}

func TestRedisLabelRepository_ReadThrough(t *testing.T) {
	client := setupTestRedis(t)
	backing := memory.NewLabelStore(entity.WalletLabel{Address: "EX", IsExchange: true, Exchange: "okx"})
	repo, err := NewRedisLabelRepository(client, backing, "labels:", time.Minute)
	require.NoError(t, err)

	ctx := context.Background()

	label, err := repo.GetLabel(ctx, "EX")
	require.NoError(t, err)
	assert.Equal(t, "okx", label.Exchange)

	// Cached now, survives a backing change
	require.NoError(t, backing.SaveLabel(ctx, &entity.WalletLabel{Address: "EX"}))
	isExchange, err := repo.IsExchangeWallet(ctx, "EX")
	require.NoError(t, err)
	assert.True(t, isExchange)

	_, err = repo.GetLabel(ctx, "USER")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	val, err := client.Get(ctx, "labels:USER").Result()
	require.NoError(t, err)
	assert.Equal(t, unlabeled, val)
}

func TestRedisLabelRepository_ExchangeWallets(t *testing.T) {
	client := setupTestRedis(t)
	backing := memory.NewLabelStore(
		entity.WalletLabel{Address: "EX2", IsExchange: true},
		entity.WalletLabel{Address: "USER"},
	)
	repo, err := NewRedisLabelRepository(client, backing, "labels:", time.Minute)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, repo.SaveLabel(ctx, &entity.WalletLabel{Address: "EX1", IsExchange: true}))

	exchanges, err := repo.ExchangeWallets(ctx, []string{"USER", "EX2", "EX1", "NEW"})
	require.NoError(t, err)
	assert.Equal(t, []string{"EX1", "EX2"}, exchanges)

	// Misses were cached
	n, err := client.Exists(ctx, "labels:USER", "labels:EX2", "labels:NEW").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// The write reached the backing store
	saved, err := backing.GetLabel(ctx, "EX1")
	require.NoError(t, err)
	assert.True(t, saved.IsExchange)
}

func TestRedisLabelRepository_Seed(t *testing.T) {
	client := setupTestRedis(t)
	repo, err := NewRedisLabelRepository(client, nil, "labels:", 0)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, repo.SaveLabel(ctx, &entity.WalletLabel{Address: "A", IsExchange: false}))

	n, err := repo.Seed(ctx, []entity.WalletLabel{
		{Address: "A", IsExchange: true},
		{Address: "B", IsExchange: true, Exchange: "kraken"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	isExchange, err := repo.IsExchangeWallet(ctx, "A")
	require.NoError(t, err)
	assert.False(t, isExchange)

	label, err := repo.GetLabel(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, "kraken", label.Exchange)

	_, err = repo.GetLabel(ctx, "C")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
