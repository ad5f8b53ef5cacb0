// Package cache is the response cache of the data gateway: a keyed TTL store
// of serialised upstream responses. It is best-effort and never durable.
package cache

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store is implemented by Memory and Redis.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// Sweep evicts expired entries and returns how many were removed.
	Sweep() int
}

// Key builds the deterministic cache key for an endpoint and its query
// parameters: parameters are sorted by name, so map order never matters.
func Key(endpoint string, params map[string]string) string {
	if len(params) == 0 {
		return endpoint
	}
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(endpoint)
	b.WriteByte('?')
	for i, k := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a process-local Store. Get, Set and Sweep share one mutex, so a
// sweep can never drop an entry written concurrently.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	max     int
	now     func() time.Time
}

func NewMemory(max int) *Memory {
	if max <= 0 {
		max = 10000
	}
	return &Memory{entries: make(map[string]entry), max: max, now: time.Now}
}

// WithClock swaps the time source (tests).
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	v := make([]byte, len(value))
	copy(v, value)
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: v, expiresAt: now.Add(ttl)}
	m.shrinkLocked(now, key)
}

// Add stores key only if it is absent or expired and reports whether it did.
// Used to drop redelivered messages.
func (m *Memory) Add(key string, ttl time.Duration) bool {
	if key == "" {
		return true
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && now.Before(e.expiresAt) {
		return false
	}
	m.entries[key] = entry{expiresAt: now.Add(ttl)}
	m.shrinkLocked(now, key)
	return true
}

// Remove forgets key, so a later Add with the same key succeeds.
func (m *Memory) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

func (m *Memory) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// shrinkLocked keeps the map within max: expired entries go first, then the
// live entries closest to expiry. keep is the key just written.
func (m *Memory) shrinkLocked(now time.Time, keep string) {
	if len(m.entries) <= m.max {
		return
	}
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
	for len(m.entries) > m.max {
		var (
			victim string
			soon   time.Time
		)
		for k, e := range m.entries {
			if k == keep {
				continue
			}
			if victim == "" || e.expiresAt.Before(soon) {
				victim, soon = k, e.expiresAt
			}
		}
		if victim == "" {
			return
		}
		delete(m.entries, victim)
	}
}
