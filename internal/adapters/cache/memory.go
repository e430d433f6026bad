package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/okian/pinnacle/pkg/metrics"
)

// MemoryBackend is an in-process backend for single-node deployments and
// tests. Reads never extend an entry's TTL, and expiry is the only way an
// entry leaves: there is no capacity bound, so memory grows with the number
// of live keys.
type MemoryBackend struct {
	items *ttlcache.Cache[string, []byte]
	stop  sync.Once
}

// NewMemoryBackend starts an unbounded TTL cache.
func NewMemoryBackend() *MemoryBackend {
	items := ttlcache.New[string, []byte](
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	items.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, _ *ttlcache.Item[string, []byte]) {
		metrics.RecordCacheEviction(evictionReason(reason))
	})
	go items.Start()
	return &MemoryBackend{items: items}
}

func evictionReason(r ttlcache.EvictionReason) string {
	switch r {
	case ttlcache.EvictionReasonExpired:
		return "expired"
	case ttlcache.EvictionReasonDeleted:
		return "deleted"
	default:
		return "capacity"
	}
}

func (m *MemoryBackend) Exists(_ context.Context, key string) (bool, error) {
	return m.items.Get(key) != nil, nil
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	item := m.items.Get(key)
	if item == nil {
		return nil, false, nil
	}
	return append([]byte(nil), item.Value()...), true, nil
}

func (m *MemoryBackend) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	m.items.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (m *MemoryBackend) Ping(context.Context) error { return nil }

// Close stops the expiry loop.
func (m *MemoryBackend) Close() error {
	m.stop.Do(m.items.Stop)
	return nil
}

// Len returns the number of stored entries, expired ones included until
// they are evicted.
func (m *MemoryBackend) Len() int {
	return m.items.Len()
}
