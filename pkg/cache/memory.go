package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// memoryMaxCost bounds the cache by the total size of encoded values.
const memoryMaxCost = 64 << 20

// Memory is an in-process cache with the same JSON semantics as the Redis
// cache, used when no Redis address is configured.
type Memory struct {
	store *ristretto.Cache
}

func NewMemory() (*Memory, error) {
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     memoryMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &Memory{store: store}, nil
}

func (m *Memory) Get(_ context.Context, key string, dest any) error {
	v, ok := m.store.Get(key)
	if !ok {
		return ErrMiss
	}
	data, ok := v.([]byte)
	if !ok {
		return fmt.Errorf("memory cache: unexpected value type %T for key %s", v, key)
	}
	return json.Unmarshal(data, dest)
}

// Set stores value until expiration elapses; a non-positive expiration keeps
// it until deleted or evicted. The value is visible to Get once Set returns.
func (m *Memory) Set(_ context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if expiration < 0 {
		expiration = 0
	}
	if !m.store.SetWithTTL(key, data, int64(len(data)), expiration) {
		return fmt.Errorf("memory cache: set dropped for key %s", key)
	}
	m.store.Wait()
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.store.Del(k)
	}
	return nil
}

func (m *Memory) Close() error {
	m.store.Close()
	return nil
}
