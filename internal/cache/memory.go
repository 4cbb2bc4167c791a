package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	item    Item
	expires time.Time
}

// Memory keeps items in process until their TTL passes. Expired items are dropped
// lazily on read and by Prune.
type Memory struct {
	mu      sync.Mutex
	entries map[Key]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

var _ Cache = (*Memory)(nil)

// NewMemory constructs an in-process cache. A non-positive ttl keeps items forever.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		entries: make(map[Key]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the live item stored under key.
func (m *Memory) Get(_ context.Context, key Key) (Item, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return Item{}, false, nil
	}
	if m.expired(entry) {
		delete(m.entries, key)
		return Item{}, false, nil
	}
	return entry.item, true, nil
}

// Set stores item under key.
func (m *Memory) Set(_ context.Context, key Key, item Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{item: item}
	if m.ttl > 0 {
		entry.expires = m.now().Add(m.ttl)
	}
	m.entries[key] = entry
	return nil
}

// Invalidate removes every item under prefix and returns how many were removed.
func (m *Memory) Invalidate(_ context.Context, prefix Prefix) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.entries {
		if prefix.Matches(key) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Prune drops expired items and returns how many were dropped.
func (m *Memory) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for key, entry := range m.entries {
		if m.expired(entry) {
			delete(m.entries, key)
			pruned++
		}
	}
	return pruned
}

// Len returns the number of stored items, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) expired(entry memoryEntry) bool {
	return !entry.expires.IsZero() && !m.now().Before(entry.expires)
}
