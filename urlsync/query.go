// Package urlsync mirrors storefront filter state into URL query parameters
// and back.
package urlsync

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-plant-storefront/models"
)

// Query parameter names.
const (
	ParamSearch       = "search"
	ParamCategory     = "category"
	ParamMinPrice     = "minPrice"
	ParamMaxPrice     = "maxPrice"
	ParamRating       = "rating"
	ParamInStock      = "inStock"
	ParamOnSale       = "onSale"
	ParamCareLevel    = "careLevel"
	ParamSize         = "size"
	ParamPetFriendly  = "petFriendly"
	ParamAirPurifying = "airPurifying"
	ParamSort         = "sort"
)

// StateToQuery encodes only the fields that differ from their defaults.
// The result has no leading '?'.
func StateToQuery(f models.FilterState) string {
	return encode(f).Encode()
}

// QueryToState decodes a query string. Missing or malformed parameters fall
// back to their defaults; it never fails. A leading '?' is ignored.
func QueryToState(query string) models.FilterState {
	// ParseQuery keeps every pair it could parse even when it reports an error.
	values, _ := url.ParseQuery(strings.TrimPrefix(query, "?"))
	return decode(values)
}

// EncodeView encodes filters plus a sort key. Relevance is omitted.
func EncodeView(f models.FilterState, key models.SortKey) string {
	values := encode(f)
	if key != "" && key != models.SortRelevance {
		values.Set(ParamSort, string(key))
	}
	return values.Encode()
}

// DecodeView is the inverse of EncodeView.
func DecodeView(query string) (models.FilterState, models.SortKey) {
	values, _ := url.ParseQuery(strings.TrimPrefix(query, "?"))
	key, _ := models.ParseSortKey(values.Get(ParamSort))
	return decode(values), key
}

func encode(f models.FilterState) url.Values {
	values := url.Values{}
	def := models.DefaultFilterState()

	if s := strings.TrimSpace(f.Search); s != "" {
		values.Set(ParamSearch, f.Search)
	}
	if !models.IsAll(f.Category) {
		values.Set(ParamCategory, f.Category)
	}
	if f.PriceRange.Min != def.PriceRange.Min {
		values.Set(ParamMinPrice, formatFloat(f.PriceRange.Min))
	}
	if f.PriceRange.Max != def.PriceRange.Max {
		values.Set(ParamMaxPrice, formatFloat(f.PriceRange.Max))
	}
	if f.Rating != def.Rating {
		values.Set(ParamRating, formatFloat(f.Rating))
	}
	setFlag(values, ParamInStock, f.InStock)
	setFlag(values, ParamOnSale, f.OnSale)
	if !models.IsAll(f.CareLevel) {
		values.Set(ParamCareLevel, f.CareLevel)
	}
	if !models.IsAll(f.Size) {
		values.Set(ParamSize, f.Size)
	}
	setFlag(values, ParamPetFriendly, f.PetFriendly)
	setFlag(values, ParamAirPurifying, f.AirPurifying)
	return values
}

func decode(values url.Values) models.FilterState {
	f := models.DefaultFilterState()

	f.Search = values.Get(ParamSearch)
	f.Category = enumOrAll(values.Get(ParamCategory))
	f.CareLevel = enumOrAll(values.Get(ParamCareLevel))
	f.Size = enumOrAll(values.Get(ParamSize))

	if v, ok := parseFloat(values.Get(ParamMinPrice)); ok && v >= 0 {
		f.PriceRange.Min = v
	}
	if v, ok := parseFloat(values.Get(ParamMaxPrice)); ok && v >= 0 {
		f.PriceRange.Max = v
	}
	if f.PriceRange.Min > f.PriceRange.Max {
		f.PriceRange = models.DefaultPriceRange()
	}
	if v, ok := parseFloat(values.Get(ParamRating)); ok && v >= 0 && v <= models.MaxRating {
		f.Rating = v
	}

	f.InStock = parseFlag(values.Get(ParamInStock))
	f.OnSale = parseFlag(values.Get(ParamOnSale))
	f.PetFriendly = parseFlag(values.Get(ParamPetFriendly))
	f.AirPurifying = parseFlag(values.Get(ParamAirPurifying))
	return f
}

func setFlag(values url.Values, name string, on bool) {
	if on {
		values.Set(name, "true")
	}
}

func parseFlag(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

func enumOrAll(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.AllValues
	}
	return raw
}

func parseFloat(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
