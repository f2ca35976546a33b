package urlsync

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/aluiziolira/go-plant-storefront/models"
)

// Navigator is the routing layer seen by the syncer.
type Navigator interface {
	// Query returns the current query string.
	Query() string
	// Replace swaps the current history entry's query without pushing a new one.
	Replace(query string) error
}

// Syncer keeps a Navigator's query string in step with filter state.
//
// The query is parsed on Mount and on Navigate only. Local state changes flow
// one way, through Push, so a push never feeds back into a parse.
type Syncer struct {
	nav Navigator

	mu      sync.Mutex
	mounted bool
	last    string
}

// NewSyncer binds a syncer to nav.
func NewSyncer(nav Navigator) *Syncer {
	return &Syncer{nav: nav}
}

// Mount parses the navigator's query once. Later calls return the state
// derived from the last known query without re-reading the navigator.
func (s *Syncer) Mount() (models.FilterState, models.SortKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mounted {
		s.last = s.nav.Query()
		s.mounted = true
	}
	return DecodeView(s.last)
}

// Navigate handles an external navigation (back/forward, pasted link) and
// returns the state it implies.
func (s *Syncer) Navigate(query string) (models.FilterState, models.SortKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mounted = true
	s.last = query
	return DecodeView(query)
}

// Push mirrors state into the navigator with replace semantics. It is a no-op
// when the encoded query has not changed.
func (s *Syncer) Push(f models.FilterState, key models.SortKey) error {
	query := EncodeView(f, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mounted && query == s.last {
		return nil
	}
	if err := s.nav.Replace(query); err != nil {
		return fmt.Errorf("replace query: %w", err)
	}
	s.mounted = true
	s.last = query
	slog.Debug("filter state mirrored to url", slog.String("query", query))
	return nil
}

// MemoryNavigator is an in-process Navigator. It records how many entries
// were replaced and pushed, which makes history behaviour observable.
type MemoryNavigator struct {
	mu       sync.Mutex
	query    string
	replaces int
	history  []string
}

// NewMemoryNavigator starts at the given query.
func NewMemoryNavigator(query string) *MemoryNavigator {
	return &MemoryNavigator{query: query, history: []string{query}}
}

// Query implements Navigator.
func (n *MemoryNavigator) Query() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.query
}

// Replace implements Navigator.
func (n *MemoryNavigator) Replace(query string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.query = query
	n.history[len(n.history)-1] = query
	n.replaces++
	return nil
}

// Push adds a new history entry, as a link click would.
func (n *MemoryNavigator) Push(query string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.query = query
	n.history = append(n.history, query)
}

// Replaces returns the number of Replace calls.
func (n *MemoryNavigator) Replaces() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.replaces
}

// HistoryLen returns the number of history entries.
func (n *MemoryNavigator) HistoryLen() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.history)
}
