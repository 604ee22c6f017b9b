package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/repository"
)

// unlabeled marks an address the backing store has no label for.
const unlabeled = "-"

// RedisLabelRepository is a read-through label cache. Lookups that miss Redis
// go to the backing store and the answer, including "no label", is cached for
// the configured TTL. A nil backing store makes Redis the only source.
type RedisLabelRepository struct {
	client  redis.Cmdable
	backing repository.LabelRepository
	prefix  string
	ttl     time.Duration
}

// NewRedisLabelRepository creates a new label cache. ttl <= 0 caches without expiry.
func NewRedisLabelRepository(client redis.Cmdable, backing repository.LabelRepository, prefix string, ttl time.Duration) (*RedisLabelRepository, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisLabelRepository{client: client, backing: backing, prefix: prefix, ttl: ttl}, nil
}

var _ repository.LabelRepository = (*RedisLabelRepository)(nil)

// IsExchangeWallet reports whether the address is labeled as an exchange
func (r *RedisLabelRepository) IsExchangeWallet(ctx context.Context, address string) (bool, error) {
	label, err := r.GetLabel(ctx, address)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return label.IsExchange, nil
}

// ExchangeWallets returns the sorted subset of addresses labeled as exchanges
func (r *RedisLabelRepository) ExchangeWallets(ctx context.Context, addresses []string) ([]string, error) {
	if len(addresses) == 0 {
		return []string{}, nil
	}

	keys := make([]string, len(addresses))
	for i, addr := range addresses {
		keys[i] = r.labelKey(addr)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget labels: %w", err)
	}

	result := make([]string, 0)
	var misses []string
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			misses = append(misses, addresses[i])
			continue
		}
		if label, ok := decodeLabel(s); ok && label.IsExchange {
			result = append(result, addresses[i])
		}
	}

	if len(misses) > 0 && r.backing != nil {
		exchanges, err := r.backing.ExchangeWallets(ctx, misses)
		if err != nil {
			return nil, fmt.Errorf("backing exchange lookup: %w", err)
		}
		result = append(result, exchanges...)
		if err := r.cacheMisses(ctx, misses, exchanges); err != nil {
			return nil, err
		}
	}

	sort.Strings(result)
	return result, nil
}

// GetLabel returns the label of an address or ErrNotFound
func (r *RedisLabelRepository) GetLabel(ctx context.Context, address string) (*entity.WalletLabel, error) {
	val, err := r.client.Get(ctx, r.labelKey(address)).Result()
	if err == nil {
		label, ok := decodeLabel(val)
		if !ok {
			return nil, repository.ErrNotFound
		}
		return label, nil
	}
	if err != redis.Nil {
		return nil, fmt.Errorf("get label: %w", err)
	}
	if r.backing == nil {
		return nil, repository.ErrNotFound
	}

	label, err := r.backing.GetLabel(ctx, address)
	if errors.Is(err, repository.ErrNotFound) {
		if err := r.client.Set(ctx, r.labelKey(address), unlabeled, r.ttl).Err(); err != nil {
			return nil, fmt.Errorf("cache missing label: %w", err)
		}
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.set(ctx, label); err != nil {
		return nil, err
	}
	return label, nil
}

// SaveLabel writes the label to the backing store and then to the cache
func (r *RedisLabelRepository) SaveLabel(ctx context.Context, label *entity.WalletLabel) error {
	if label == nil || label.Address == "" {
		return repository.ErrInvalidInput
	}
	if r.backing != nil {
		if err := r.backing.SaveLabel(ctx, label); err != nil {
			return err
		}
	}
	return r.set(ctx, label)
}

// Seed stores labels that are not already present
func (r *RedisLabelRepository) Seed(ctx context.Context, labels []entity.WalletLabel) (int, error) {
	seeded := 0
	for i := range labels {
		b, err := json.Marshal(labels[i])
		if err != nil {
			return seeded, fmt.Errorf("marshal label: %w", err)
		}
		ok, err := r.client.SetNX(ctx, r.labelKey(labels[i].Address), b, 0).Result()
		if err != nil {
			return seeded, fmt.Errorf("seed label: %w", err)
		}
		if ok {
			seeded++
		}
	}
	return seeded, nil
}

func (r *RedisLabelRepository) set(ctx context.Context, label *entity.WalletLabel) error {
	b, err := json.Marshal(label)
	if err != nil {
		return fmt.Errorf("marshal label: %w", err)
	}
	if err := r.client.Set(ctx, r.labelKey(label.Address), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("set label: %w", err)
	}
	return nil
}

func (r *RedisLabelRepository) cacheMisses(ctx context.Context, misses, exchanges []string) error {
	isExchange := make(map[string]bool, len(exchanges))
	for _, addr := range exchanges {
		isExchange[addr] = true
	}

	pipe := r.client.TxPipeline()
	for _, addr := range misses {
		if !isExchange[addr] {
			pipe.Set(ctx, r.labelKey(addr), unlabeled, r.ttl)
			continue
		}
		b, err := json.Marshal(entity.WalletLabel{Address: addr, IsExchange: true})
		if err != nil {
			return fmt.Errorf("marshal label: %w", err)
		}
		pipe.Set(ctx, r.labelKey(addr), b, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache labels: %w", err)
	}
	return nil
}

func (r *RedisLabelRepository) labelKey(address string) string {
	return r.prefix + address
}

func decodeLabel(val string) (*entity.WalletLabel, bool) {
	if val == unlabeled {
		return nil, false
	}
	var label entity.WalletLabel
	if err := json.Unmarshal([]byte(val), &label); err != nil {
		return nil, false
	}
	return &label, true
}
