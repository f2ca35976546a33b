package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultNamespace prefixes every key a Manager writes.
	DefaultNamespace = "plantstore_"
	// DefaultTTL is the lifetime of an item stored without an explicit ttl.
	DefaultTTL = 7 * 24 * time.Hour
	// DefaultQuotaBytes is the usage level that triggers an automatic Cleanup.
	DefaultQuotaBytes = 4000 * 1024
)

// Manager stores JSON values under a namespace with per-item expiry.
//
// Malformed or expired entries are never returned; they are logged and
// evicted. Eviction only ever removes entries, and each removal re-checks the
// entry under the write lock, so Cleanup can run alongside reads and writes.
type Manager struct {
	port   Port
	prefix string
	ttl    time.Duration
	quota  int
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex // serialises writes and evictions
	updateMu sync.Mutex // serialises Update calls
}

// Option customises a Manager.
type Option func(*Manager)

// WithNamespace sets the key prefix.
func WithNamespace(prefix string) Option {
	return func(m *Manager) { m.prefix = prefix }
}

// WithDefaultTTL sets the lifetime used when SetItem gets ttl <= 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithQuota sets the usage threshold, in bytes, that triggers Cleanup.
func WithQuota(bytes int) Option {
	return func(m *Manager) {
		if bytes > 0 {
			m.quota = bytes
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger used for recovered failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager builds a manager over port.
func NewManager(port Port, opts ...Option) *Manager {
	m := &Manager{
		port:   port,
		prefix: DefaultNamespace,
		ttl:    DefaultTTL,
		quota:  DefaultQuotaBytes,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Namespace returns the key prefix.
func (m *Manager) Namespace() string {
	return m.prefix
}

// SetItem stores data under key for ttl (DefaultTTL when ttl <= 0). When the
// port reports ErrQuotaExceeded the manager cleans up and retries once.
func (m *Manager) SetItem(key string, data any, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}
	if ttl <= 0 {
		ttl = m.ttl
	}

	now := m.now()
	env := envelope{Data: raw, Timestamp: now.UnixMilli(), Expires: now.Add(ttl).UnixMilli()}
	if env.Expires <= env.Timestamp {
		env.Expires = env.Timestamp + 1
	}
	encoded, err := compress(env)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}

	err = m.write(key, string(encoded))
	if errors.Is(err, ErrQuotaExceeded) {
		removed := m.Cleanup()
		m.logger.Warn("storage quota exceeded, cleaned up",
			slog.String("key", key),
			slog.Int("removed", removed),
		)
		err = m.write(key, string(encoded))
	}
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}

	if usage := m.Usage(); usage > m.quota {
		removed := m.Cleanup()
		m.logger.Info("storage usage over threshold",
			slog.Int("usage_bytes", usage),
			slog.Int("quota_bytes", m.quota),
			slog.Int("removed", removed),
		)
	}
	return nil
}

func (m *Manager) write(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port.Set(m.prefix+key, value)
}

// GetRaw returns the stored JSON for key. Expired entries are evicted.
func (m *Manager) GetRaw(key string) (json.RawMessage, bool) {
	full := m.prefix + key
	value, ok, err := m.port.Get(full)
	if err != nil {
		m.logger.Error("storage read failed", slog.String("key", key), slog.Any("error", err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	env, err := expand(value)
	if err != nil {
		m.logger.Warn("evicting unreadable storage entry", slog.String("key", key), slog.Any("error", err))
		m.evictIfStale(full)
		return nil, false
	}
	if m.expired(env) {
		m.evictIfStale(full)
		return nil, false
	}
	return env.Data, true
}

// GetItem decodes the value for key into dst. It reports false when the item
// is missing, expired or cannot be decoded into dst; the latter two evict.
func (m *Manager) GetItem(key string, dst any) bool {
	raw, ok := m.GetRaw(key)
	if !ok {
		return false
	}
	if dst == nil {
		return true
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		m.logger.Warn("evicting undecodable storage entry", slog.String("key", key), slog.Any("error", err))
		m.evictIfUnchanged(m.prefix+key, raw)
		return false
	}
	return true
}

// Update stores fn's result for the current value of key. Updates on one
// Manager run one at a time, so concurrent appends to a shared list are not
// lost. Returning an error from fn leaves the item unchanged.
func (m *Manager) Update(key string, ttl time.Duration, fn func(current json.RawMessage, ok bool) (any, error)) error {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	raw, ok := m.GetRaw(key)
	next, err := fn(raw, ok)
	if err != nil {
		return err
	}
	return m.SetItem(key, next, ttl)
}

// RemoveItem deletes key.
func (m *Manager) RemoveItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.port.Remove(m.prefix + key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// Cleanup evicts every expired or unreadable entry in the namespace and
// returns how many were removed.
func (m *Manager) Cleanup() int {
	keys, err := m.namespaced()
	if err != nil {
		m.logger.Error("storage cleanup failed", slog.Any("error", err))
		return 0
	}
	removed := 0
	for _, full := range keys {
		if m.evictIfStale(full) {
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("storage cleanup", slog.Int("removed", removed))
	}
	return removed
}

// evictIfStale removes full when it is still expired or unreadable at the
// moment the write lock is held. A concurrent fresh write is never removed.
func (m *Manager) evictIfStale(full string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok, err := m.port.Get(full)
	if err != nil || !ok {
		return false
	}
	if env, err := expand(value); err == nil && !m.expired(env) {
		return false
	}
	if err := m.port.Remove(full); err != nil {
		m.logger.Error("storage eviction failed", slog.String("key", full), slog.Any("error", err))
		return false
	}
	return true
}

// evictIfUnchanged removes full when it still holds data. A value rewritten
// since the failed decode is kept.
func (m *Manager) evictIfUnchanged(full string, data json.RawMessage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok, err := m.port.Get(full)
	if err != nil || !ok {
		return false
	}
	if env, err := expand(value); err == nil && !bytes.Equal(env.Data, data) {
		return false
	}
	if err := m.port.Remove(full); err != nil {
		m.logger.Error("storage eviction failed", slog.String("key", full), slog.Any("error", err))
		return false
	}
	return true
}

func (m *Manager) expired(env envelope) bool {
	return m.now().UnixMilli() > env.Expires
}

// Usage returns the bytes used by keys and values in the namespace.
func (m *Manager) Usage() int {
	keys, err := m.namespaced()
	if err != nil {
		m.logger.Error("storage usage scan failed", slog.Any("error", err))
		return 0
	}
	total := 0
	for _, full := range keys {
		value, ok, err := m.port.Get(full)
		if err != nil || !ok {
			continue
		}
		total += len(full) + len(value)
	}
	return total
}

// ExportAll returns every live item keyed without the namespace prefix.
func (m *Manager) ExportAll() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	keys, err := m.namespaced()
	if err != nil {
		m.logger.Error("storage export failed", slog.Any("error", err))
		return out
	}
	for _, full := range keys {
		key := strings.TrimPrefix(full, m.prefix)
		if raw, ok := m.GetRaw(key); ok {
			out[key] = raw
		}
	}
	return out
}

// ImportAll stores every entry of items with the default ttl.
func (m *Manager) ImportAll(items map[string]json.RawMessage) error {
	var errs []error
	for key, raw := range items {
		if !json.Valid(raw) {
			errs = append(errs, fmt.Errorf("import %q: invalid json", key))
			continue
		}
		if err := m.SetItem(key, raw, 0); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clear removes every key in the namespace.
func (m *Manager) Clear() error {
	keys, err := m.namespaced()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, full := range keys {
		if err := m.port.Remove(full); err != nil {
			return fmt.Errorf("clear %q: %w", full, err)
		}
	}
	return nil
}

func (m *Manager) namespaced() ([]string, error) {
	keys, err := m.port.Keys()
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, m.prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}
