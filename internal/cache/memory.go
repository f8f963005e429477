package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	text      string
	expiresAt time.Time
}

// Memory is the default in-process Store.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

func (m *Memory) Lookup(_ context.Context, digest string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[digest]
	if !ok {
		return "", false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, digest)
		return "", false, nil
	}
	return e.text, true, nil
}

func (m *Memory) Put(_ context.Context, digest, text string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[digest] = memEntry{text: text, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Purge(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for digest, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, digest)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close() error { return nil }
