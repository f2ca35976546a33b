package filter

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-plant-storefront/models"
)

// DefaultCacheSize bounds the number of memoized views per Engine.
const DefaultCacheSize = 64

type memoKey struct {
	generation uint64
	filters    models.FilterState
	sort       models.SortKey
}

// Engine memoizes Apply for a catalog that changes far less often than the
// filter state. Replacing the catalog invalidates every cached view.
type Engine struct {
	mu         sync.RWMutex
	products   []models.Product
	generation uint64

	cache *lru.Cache[memoKey, Result]
}

// NewEngine builds an engine holding at most size cached views.
func NewEngine(size int) (*Engine, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[memoKey, Result](size)
	if err != nil {
		return nil, err
	}
	return &Engine{cache: cache}, nil
}

// SetProducts replaces the catalog. The engine keeps its own copy.
func (e *Engine) SetProducts(products []models.Product) {
	dup := make([]models.Product, len(products))
	copy(dup, products)

	e.mu.Lock()
	e.products = dup
	e.generation++
	e.mu.Unlock()

	e.cache.Purge()
}

// Products returns a copy of the current catalog.
func (e *Engine) Products() []models.Product {
	e.mu.RLock()
	defer e.mu.RUnlock()
	dup := make([]models.Product, len(e.products))
	copy(dup, e.products)
	return dup
}

// Apply returns the derived view for f and key, computing it at most once per
// catalog generation.
func (e *Engine) Apply(f models.FilterState, key models.SortKey) Result {
	e.mu.RLock()
	products := e.products
	k := memoKey{generation: e.generation, filters: f, sort: key}
	e.mu.RUnlock()

	if res, ok := e.cache.Get(k); ok {
		return res
	}
	res := Apply(products, f, key)
	e.cache.Add(k, res)
	return res
}

// Len reports the number of cached views.
func (e *Engine) Len() int {
	return e.cache.Len()
}
