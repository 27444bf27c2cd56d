package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/effective-security/toolgate/toolcall"
)

// DefaultMaxEntries bounds the in-memory cache when no capacity is
// configured.
const DefaultMaxEntries = 1024

type memEntry struct {
	fingerprint string
	result      *toolcall.Result
	createdAt   time.Time
	expiresAt   time.Time
}

type inMemory struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	maxEntries int
}

// NewMemoryCache creates an in-memory cache evicting by TTL first and
// least-recently-used entries once capacity is exceeded.
func NewMemoryCache(maxEntries int) ResultCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &inMemory{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
	}
}

func (m *inMemory) Lookup(ctx context.Context, fingerprint string) (*toolcall.Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[fingerprint]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*memEntry)
	if time.Now().After(entry.expiresAt) {
		m.order.Remove(el)
		delete(m.entries, fingerprint)
		return nil, false
	}
	m.order.MoveToFront(el)
	return entry.result, true
}

func (m *inMemory) Store(ctx context.Context, fingerprint string, res *toolcall.Result, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if el, ok := m.entries[fingerprint]; ok {
		entry := el.Value.(*memEntry)
		entry.result = res
		entry.createdAt = now
		entry.expiresAt = now.Add(ttl)
		m.order.MoveToFront(el)
		return nil
	}

	el := m.order.PushFront(&memEntry{
		fingerprint: fingerprint,
		result:      res,
		createdAt:   now,
		expiresAt:   now.Add(ttl),
	})
	m.entries[fingerprint] = el

	for len(m.entries) > m.maxEntries {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		entry := oldest.Value.(*memEntry)
		m.order.Remove(oldest)
		delete(m.entries, entry.fingerprint)
	}
	return nil
}

func (m *inMemory) Remove(ctx context.Context, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[fingerprint]; ok {
		m.order.Remove(el)
		delete(m.entries, fingerprint)
	}
	return nil
}
