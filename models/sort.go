package models

// SortKey selects the ordering of a derived product view.
type SortKey string

const (
	SortRelevance SortKey = "relevance"
	SortPriceLow  SortKey = "price-low"
	SortPriceHigh SortKey = "price-high"
	SortRating    SortKey = "rating"
	SortName      SortKey = "name"
	SortNewest    SortKey = "newest"
	SortPopular   SortKey = "popular"
)

// SortKeys lists every supported key in panel order.
var SortKeys = []SortKey{
	SortRelevance,
	SortPriceLow,
	SortPriceHigh,
	SortRating,
	SortName,
	SortNewest,
	SortPopular,
}

// ParseSortKey maps a raw value to a SortKey. Unknown values fall back to
// relevance and ok is false.
func ParseSortKey(raw string) (SortKey, bool) {
	for _, key := range SortKeys {
		if string(key) == raw {
			return key, true
		}
	}
	return SortRelevance, false
}
