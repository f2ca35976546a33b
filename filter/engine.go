// Package filter derives the filtered, sorted view of a product listing.
package filter

import (
	"cmp"
	"slices"
	"strings"

	"github.com/aluiziolira/go-plant-storefront/models"
)

// Price histogram labels, in ascending band order.
const (
	BucketUnder500   = "Under ₹500"
	Bucket500to1000  = "₹500-₹1000"
	Bucket1000to2000 = "₹1000-₹2000"
	BucketAbove2000  = "Above ₹2000"
)

// PriceBuckets lists the histogram labels in display order.
var PriceBuckets = []string{BucketUnder500, Bucket500to1000, Bucket1000to2000, BucketAbove2000}

// Stats summarises a listing for the filter panel.
type Stats struct {
	Total        int            `json:"total"`
	Filtered     int            `json:"filtered"`
	Categories   []string       `json:"categories"`
	PriceBuckets map[string]int `json:"priceBuckets"`
}

// Result is the derived view of a listing. Slices are owned by the result and
// must be treated as read-only when the result comes from an Engine cache.
type Result struct {
	Filtered []models.Product `json:"filtered"`
	Sorted   []models.Product `json:"sorted"`
	Stats    Stats            `json:"stats"`
}

// Apply filters products by f and orders the matches by key. The input slice
// is never modified.
func Apply(products []models.Product, f models.FilterState, key models.SortKey) Result {
	filtered := make([]models.Product, 0, len(products))
	for _, p := range products {
		if Matches(p, f) {
			filtered = append(filtered, p)
		}
	}

	stats := computeStats(products)
	stats.Filtered = len(filtered)

	return Result{
		Filtered: filtered,
		Sorted:   Sort(filtered, key),
		Stats:    stats,
	}
}

// Matches reports whether p passes every active predicate in f.
func Matches(p models.Product, f models.FilterState) bool {
	for _, pred := range predicates {
		if !pred(p, f) {
			return false
		}
	}
	return true
}

type predicate func(models.Product, models.FilterState) bool

// Evaluated in order; Matches stops at the first failure.
var predicates = []predicate{
	matchSearch,
	matchCategory,
	matchPrice,
	matchRating,
	matchInStock,
	matchOnSale,
	matchCareLevel,
	matchSize,
	matchPetFriendly,
	matchAirPurifying,
}

func matchSearch(p models.Product, f models.FilterState) bool {
	term := strings.TrimSpace(f.Search)
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name), strings.ToLower(term))
}

func matchCategory(p models.Product, f models.FilterState) bool {
	return models.IsAll(f.Category) || p.Category == f.Category
}

func matchPrice(p models.Product, f models.FilterState) bool {
	if !f.PriceConstrained() {
		return true
	}
	return p.Price >= f.PriceRange.Min && p.Price <= f.PriceRange.Max
}

func matchRating(p models.Product, f models.FilterState) bool {
	return f.Rating <= 0 || p.Rating >= f.Rating
}

func matchInStock(p models.Product, f models.FilterState) bool {
	return !f.InStock || p.InStock()
}

func matchOnSale(p models.Product, f models.FilterState) bool {
	return !f.OnSale || p.OnSale()
}

func matchCareLevel(p models.Product, f models.FilterState) bool {
	return models.IsAll(f.CareLevel) || p.CareLevel == f.CareLevel
}

func matchSize(p models.Product, f models.FilterState) bool {
	return models.IsAll(f.Size) || p.Size == f.Size
}

func matchPetFriendly(p models.Product, f models.FilterState) bool {
	return !f.PetFriendly || p.PetFriendly
}

func matchAirPurifying(p models.Product, f models.FilterState) bool {
	return !f.AirPurifying || p.AirPurifying
}

// Sort returns a stably sorted copy of products. Relevance keeps input order.
func Sort(products []models.Product, key models.SortKey) []models.Product {
	sorted := slices.Clone(products)
	if sorted == nil {
		sorted = []models.Product{}
	}
	compare := comparators[key]
	if compare == nil {
		return sorted
	}
	slices.SortStableFunc(sorted, compare)
	return sorted
}

var comparators = map[models.SortKey]func(a, b models.Product) int{
	models.SortPriceLow: func(a, b models.Product) int {
		return cmp.Compare(a.Price, b.Price)
	},
	models.SortPriceHigh: func(a, b models.Product) int {
		return cmp.Compare(b.Price, a.Price)
	},
	models.SortRating: func(a, b models.Product) int {
		return cmp.Compare(b.Rating, a.Rating)
	},
	models.SortName: func(a, b models.Product) int {
		return strings.Compare(a.Name, b.Name)
	},
	models.SortNewest: func(a, b models.Product) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	},
	models.SortPopular: func(a, b models.Product) int {
		return cmp.Compare(b.SoldCount, a.SoldCount)
	},
}

// BucketFor returns the histogram label for a price.
func BucketFor(price float64) string {
	switch {
	case price < 500:
		return BucketUnder500
	case price < 1000:
		return Bucket500to1000
	case price < 2000:
		return Bucket1000to2000
	default:
		return BucketAbove2000
	}
}

func computeStats(products []models.Product) Stats {
	buckets := make(map[string]int, len(PriceBuckets))
	for _, label := range PriceBuckets {
		buckets[label] = 0
	}
	seen := make(map[string]struct{})
	categories := make([]string, 0)

	for _, p := range products {
		buckets[BucketFor(p.Price)]++
		if _, ok := seen[p.Category]; !ok {
			seen[p.Category] = struct{}{}
			categories = append(categories, p.Category)
		}
	}
	slices.Sort(categories)

	return Stats{
		Total:        len(products),
		Categories:   categories,
		PriceBuckets: buckets,
	}
}
