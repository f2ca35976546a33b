// Package storage persists namespaced, expiring values on a key-value port.
package storage

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrQuotaExceeded is returned by a Port that has run out of space.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
)

// Port is the key-value substrate under a Manager. Values are strings.
type Port interface {
	// Get returns the value for key and whether it exists.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
	// Keys lists every key on the port, in no particular order.
	Keys() ([]string, error)
}

// MemoryPort is an in-process Port. A positive capacity caps the total bytes
// of keys plus values, mimicking a browser storage quota.
type MemoryPort struct {
	mu       sync.RWMutex
	data     map[string]string
	capacity int
	used     int
}

// NewMemoryPort returns an empty port. capacity <= 0 means unlimited.
func NewMemoryPort(capacity int) *MemoryPort {
	return &MemoryPort{data: make(map[string]string), capacity: capacity}
}

// Get implements Port.
func (m *MemoryPort) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Set implements Port.
func (m *MemoryPort) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.used + len(key) + len(value)
	if old, ok := m.data[key]; ok {
		next -= len(key) + len(old)
	}
	if m.capacity > 0 && next > m.capacity {
		return ErrQuotaExceeded
	}
	m.data[key] = value
	m.used = next
	return nil
}

// Remove implements Port.
func (m *MemoryPort) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data[key]; ok {
		m.used -= len(key) + len(old)
		delete(m.data, key)
	}
	return nil
}

// Keys implements Port.
func (m *MemoryPort) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
