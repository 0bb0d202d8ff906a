package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is the default in-process backend.
// MaxEntries of 0 is unbounded; TTL of 0 never expires.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]Entry
	order      []string
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

type MemoryOption func(*Memory)

func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) { m.maxEntries = n }
}

func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Get(_ context.Context, videoID string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[videoID]
	if !ok {
		return Entry{}, false, nil
	}
	if expired(entry.CreatedAt, m.ttl, m.now()) {
		m.removeLocked(videoID)
		return Entry{}, false, nil
	}
	return cloneEntry(entry), true, nil
}

func (m *Memory) Put(_ context.Context, videoID string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	if _, exists := m.entries[videoID]; exists {
		m.removeLocked(videoID)
	}
	m.entries[videoID] = cloneEntry(entry)
	m.order = append(m.order, videoID)

	if m.maxEntries > 0 {
		for len(m.order) > m.maxEntries {
			m.removeLocked(m.order[0])
		}
	}
	return nil
}

func (m *Memory) Evict(_ context.Context, videoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(videoID)
	return nil
}

// Sweep drops every expired entry and reports how many were removed.
func (m *Memory) Sweep(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, entry := range m.entries {
		if expired(entry.CreatedAt, m.ttl, now) {
			m.removeLocked(id)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) removeLocked(videoID string) {
	if _, ok := m.entries[videoID]; !ok {
		return
	}
	delete(m.entries, videoID)
	for i, id := range m.order {
		if id == videoID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}
