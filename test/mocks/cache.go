package mocks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// ErrCacheDown is returned by every MockCache operation while Fail is set.
var ErrCacheDown = errors.New("mock cache unavailable")

// MockCache is an in-memory mock implementation of the Cache interface
// Used for testing without requiring a real Redis instance
type MockCache struct {
	data    map[string]string
	expires map[string]time.Time
	mu      sync.RWMutex

	// Fail makes every operation return ErrCacheDown.
	Fail bool
	// Now is the clock used for expiry. Defaults to time.Now.
	Now func() time.Time
}

// NewMockCache creates a new mock cache instance
func NewMockCache() *MockCache {
	return &MockCache{
		data:    make(map[string]string),
		expires: make(map[string]time.Time),
		Now:     time.Now,
	}
}

func (m *MockCache) expired(key string) bool {
	exp, ok := m.expires[key]
	return ok && !m.Now().Before(exp)
}

// Get retrieves a value from the mock cache
func (m *MockCache) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Fail {
		return "", ErrCacheDown
	}
	val, exists := m.data[key]
	if !exists || m.expired(key) {
		return "", nil
	}
	return val, nil
}

// Set stores a value in the mock cache
func (m *MockCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail {
		return ErrCacheDown
	}
	switch v := value.(type) {
	case string:
		m.data[key] = v
	case []byte:
		m.data[key] = string(v)
	default:
		m.data[key] = fmt.Sprint(v)
	}
	if expiration > 0 {
		m.expires[key] = m.Now().Add(expiration)
	} else {
		delete(m.expires, key)
	}
	return nil
}

// Del deletes keys from the mock cache
func (m *MockCache) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail {
		return ErrCacheDown
	}
	for _, key := range keys {
		delete(m.data, key)
		delete(m.expires, key)
	}
	return nil
}

// Incr increments a key's value
func (m *MockCache) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail {
		return 0, ErrCacheDown
	}
	var current int64
	if raw, ok := m.data[key]; ok && !m.expired(key) {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %s is not an integer", key)
		}
		current = n
	}
	current++
	m.data[key] = strconv.FormatInt(current, 10)
	return current, nil
}

// Health reports ErrCacheDown while Fail is set.
func (m *MockCache) Health(ctx context.Context) error {
	if m.Fail {
		return ErrCacheDown
	}
	return nil
}

// Close closes the mock cache (no-op)
func (m *MockCache) Close() error {
	return nil
}

// Keys returns the number of live keys.
func (m *MockCache) Keys() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for k := range m.data {
		if !m.expired(k) {
			n++
		}
	}
	return n
}
