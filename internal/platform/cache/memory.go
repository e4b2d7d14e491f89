package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is a process-local snapshot store with lazy expiration. Values are
// held as JSON so callers never share mutable state with the cache.
type Memory struct {
	mu      sync.RWMutex
	gen     uint64
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Generation returns the current snapshot generation.
func (m *Memory) Generation(context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen, nil
}

func (m *Memory) Get(_ context.Context, gen uint64, key string, dst any) (bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	current := m.gen
	m.mu.RUnlock()
	if !ok || gen != current {
		return false, nil
	}
	if m.now().After(entry.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur == entry {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(entry.data, dst); err != nil {
		return false, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return true, nil
}

// Put stores v unless the cache was flushed since gen was read.
func (m *Memory) Put(_ context.Context, gen uint64, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return nil
	}
	m.entries[key] = &memoryEntry{data: raw, expiresAt: m.now().Add(m.ttl)}
	return nil
}

// Flush drops every snapshot and advances the generation.
func (m *Memory) Flush(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.entries = make(map[string]*memoryEntry)
	return nil
}

func (m *Memory) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
