package render

import (
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-plant-storefront/boundary"
	"github.com/aluiziolira/go-plant-storefront/filter"
	"github.com/aluiziolira/go-plant-storefront/models"
)

func sampleProducts() []models.Product {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return []models.Product{
		{ID: "1", Name: "Aloe Vera", Category: "succulents", Price: 299, Rating: 4.5, Stock: 4, CareLevel: models.CareEasy, Size: models.SizeSmall, CreatedAt: created},
		{ID: "2", Name: "Fiddle Leaf Fig", Category: "trees", Price: 2499, Rating: 4.1, Stock: 0, Discount: 15, CareLevel: models.CareExpert, Size: models.SizeLarge, CreatedAt: created},
		{ID: "3", Name: "Echeveria", Category: "succulents", Price: 349, Rating: 4.8, Stock: 9, CareLevel: models.CareEasy, Size: models.SizeSmall, CreatedAt: created},
	}
}

func TestViewRendersTable(t *testing.T) {
	f := models.DefaultFilterState()
	result := filter.Apply(sampleProducts(), f, models.SortPriceHigh)

	out := View(result, f, models.SortPriceHigh, Options{Histogram: true})

	for _, want := range []string{
		"Showing 3 of 3 plants",
		"sort: price-high",
		"NAME",
		"Fiddle Leaf Fig",
		"₹2499 (-15%)",
		"out",
		"Price range",
		filter.BucketUnder500,
		"Categories: succulents, trees",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("view missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Fiddle Leaf Fig") > strings.Index(out, "Aloe Vera") {
		t.Fatalf("rows not in price-high order:\n%s", out)
	}
}

func TestViewLimitAndEmpty(t *testing.T) {
	f := models.DefaultFilterState()
	result := filter.Apply(sampleProducts(), f, models.SortName)

	out := View(result, f, models.SortName, Options{Limit: 1})
	if !strings.Contains(out, "Aloe Vera") || strings.Contains(out, "Echeveria") || !strings.Contains(out, "2 more") {
		t.Fatalf("limited view:\n%s", out)
	}

	f.Search = "orchid"
	empty := filter.Apply(sampleProducts(), f, models.SortName)
	out = View(empty, f, models.SortName, Options{})
	if !strings.Contains(out, "Showing 0 of 3 plants") || !strings.Contains(out, "No plants match") {
		t.Fatalf("empty view:\n%s", out)
	}
}

func TestFallback(t *testing.T) {
	if got := Fallback(boundary.Fallback{}, Theme{}); got != "" {
		t.Fatalf("healthy fallback rendered %q", got)
	}
	out := Fallback(boundary.Fallback{
		Faulted: true,
		Title:   "Something went wrong",
		Message: "index out of range",
		ErrorID: "abc-123",
		Actions: []string{"retry", "home", "report"},
	}, Theme{})
	for _, want := range []string{"Something went wrong", "index out of range", "abc-123", "retry"} {
		if !strings.Contains(out, want) {
			t.Fatalf("fallback missing %q:\n%s", want, out)
		}
	}
}
