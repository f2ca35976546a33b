package models

import "strings"

// AllValues is the sentinel for enum filters that impose no constraint.
const AllValues = "all"

// DefaultPriceMax is the upper bound of the unconstrained price range.
const DefaultPriceMax = 10000

// MaxRating is the highest rating a product or filter can carry.
const MaxRating = 5

// PriceRange is an inclusive [Min, Max] price window.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultPriceRange returns the full, unconstrained range.
func DefaultPriceRange() PriceRange {
	return PriceRange{Min: 0, Max: DefaultPriceMax}
}

// FilterState is the storefront filter panel state. Every field's default
// value means "no constraint". The struct is comparable and can key a map.
type FilterState struct {
	Search       string     `json:"search"`
	Category     string     `json:"category"`
	PriceRange   PriceRange `json:"priceRange"`
	Rating       float64    `json:"rating"`
	InStock      bool       `json:"inStock"`
	OnSale       bool       `json:"onSale"`
	CareLevel    string     `json:"careLevel"`
	Size         string     `json:"size"`
	PetFriendly  bool       `json:"petFriendly"`
	AirPurifying bool       `json:"airPurifying"`
}

// DefaultFilterState returns a state with every filter disabled.
func DefaultFilterState() FilterState {
	return FilterState{
		Category:   AllValues,
		PriceRange: DefaultPriceRange(),
		CareLevel:  AllValues,
		Size:       AllValues,
	}
}

// IsDefault reports whether no filter is active.
func (f FilterState) IsDefault() bool {
	return f.ActiveCount() == 0
}

// PriceConstrained reports whether the price range differs from the full range.
func (f FilterState) PriceConstrained() bool {
	return f.PriceRange != DefaultPriceRange()
}

// ActiveCount returns the number of filters that constrain the listing.
func (f FilterState) ActiveCount() int {
	n := 0
	if strings.TrimSpace(f.Search) != "" {
		n++
	}
	if !IsAll(f.Category) {
		n++
	}
	if f.PriceConstrained() {
		n++
	}
	if f.Rating > 0 {
		n++
	}
	for _, flag := range []bool{f.InStock, f.OnSale, f.PetFriendly, f.AirPurifying} {
		if flag {
			n++
		}
	}
	if !IsAll(f.CareLevel) {
		n++
	}
	if !IsAll(f.Size) {
		n++
	}
	return n
}

// IsAll reports whether an enum filter value means "no constraint".
// The empty string is treated like the sentinel.
func IsAll(value string) bool {
	return value == "" || value == AllValues
}
