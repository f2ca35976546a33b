// Package models defines data structures shared by the storefront packages.
package models

import "time"

// Care levels used by the catalog. Values outside this set are accepted as-is.
const (
	CareEasy     = "easy"
	CareModerate = "moderate"
	CareExpert   = "expert"
)

// Plant sizes used by the catalog.
const (
	SizeSmall  = "small"
	SizeMedium = "medium"
	SizeLarge  = "large"
)

// Product represents a single plant listing. The filter engine never mutates it.
type Product struct {
	ID           string    `csv:"id" json:"id" validate:"required"`
	Name         string    `csv:"name" json:"name" validate:"required"`
	Category     string    `csv:"category" json:"category" validate:"required"`
	Price        float64   `csv:"price" json:"price" validate:"gte=0"`
	Rating       float64   `csv:"rating" json:"rating" validate:"gte=0,lte=5"`
	Stock        int       `csv:"stock" json:"stock" validate:"gte=0"`
	Discount     float64   `csv:"discount" json:"discount,omitempty" validate:"gte=0,lte=100"`
	CareLevel    string    `csv:"care_level" json:"careLevel"`
	Size         string    `csv:"size" json:"size"`
	PetFriendly  bool      `csv:"pet_friendly" json:"petFriendly"`
	AirPurifying bool      `csv:"air_purifying" json:"airPurifying"`
	CreatedAt    time.Time `csv:"created_at" json:"createdAt"`
	SoldCount    int       `csv:"sold_count" json:"soldCount,omitempty" validate:"gte=0"`
	URL          string    `csv:"url" json:"url,omitempty"`
}

// OnSale reports whether the product carries a discount.
func (p Product) OnSale() bool {
	return p.Discount > 0
}

// InStock reports whether at least one unit is available.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// CrawlResult holds the overall result of a catalog crawl.
type CrawlResult struct {
	StartTime    time.Time
	EndTime      time.Time
	TotalCount   int
	ErrorCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
	RetryCount   int
	RequestCount int
	PageCount    int
}
