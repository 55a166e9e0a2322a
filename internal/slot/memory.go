package slot

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Memory is an in-process Slot backed by a map protected by a RWMutex.
type Memory struct {
	mu            sync.RWMutex
	data          map[string]string
	maxValueBytes int
	changes       int64
}

// Compile-time check to ensure Memory implements Slot.
var _ Slot = (*Memory)(nil)

// MemoryOption configures a Memory slot
type MemoryOption func(*Memory)

// WithMaxValueBytes rejects values longer than n bytes with ErrQuotaExceeded.
// Zero disables the quota.
func WithMaxValueBytes(n int) MemoryOption {
	return func(m *Memory) { m.maxValueBytes = n }
}

// NewMemory creates an empty Memory slot
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{data: make(map[string]string)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, ok := m.data[key]
	return val, ok, nil
}

func (m *Memory) Set(key, value string) error {
	if m.maxValueBytes > 0 && len(value) > m.maxValueBytes {
		return fmt.Errorf("set %q: %d bytes over %d byte limit: %w", key, len(value), m.maxValueBytes, ErrQuotaExceeded)
	}

	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()

	atomic.AddInt64(&m.changes, 1)
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	_, ok := m.data[key]
	delete(m.data, key)
	m.mu.Unlock()

	if ok {
		atomic.AddInt64(&m.changes, 1)
	}
	return nil
}

// Changes returns the number of mutations applied since creation
func (m *Memory) Changes() int64 {
	return atomic.LoadInt64(&m.changes)
}

// Len returns the number of keys held
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Keys returns all keys in sorted order
func (m *Memory) Keys() []string {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Load replaces a key without counting it as a change. Used when restoring
// a snapshot.
func (m *Memory) Load(key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}
