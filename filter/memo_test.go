package filter

import (
	"testing"

	"github.com/aluiziolira/go-plant-storefront/models"
)

func TestEngineMemoizesPerFilterAndSort(t *testing.T) {
	e, err := NewEngine(8)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	e.SetProducts([]models.Product{
		{ID: "a", Category: "ferns", Price: 10},
		{ID: "b", Category: "succulents", Price: 5},
	})

	f := models.DefaultFilterState()
	first := e.Apply(f, models.SortPriceLow)
	second := e.Apply(f, models.SortPriceLow)
	if e.Len() != 1 {
		t.Fatalf("cache len = %d, want 1", e.Len())
	}
	if &first.Sorted[0] != &second.Sorted[0] {
		t.Fatalf("second Apply should reuse the cached result")
	}

	f.Category = "ferns"
	e.Apply(f, models.SortPriceLow)
	if e.Len() != 2 {
		t.Fatalf("cache len = %d, want 2", e.Len())
	}
}

func TestEngineSetProductsInvalidates(t *testing.T) {
	e, err := NewEngine(0)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	e.SetProducts([]models.Product{{ID: "a"}})
	f := models.DefaultFilterState()
	if got := e.Apply(f, models.SortRelevance).Stats.Total; got != 1 {
		t.Fatalf("total = %d, want 1", got)
	}

	e.SetProducts([]models.Product{{ID: "a"}, {ID: "b"}})
	if got := e.Apply(f, models.SortRelevance).Stats.Total; got != 2 {
		t.Fatalf("total after reset = %d, want 2", got)
	}
}

func TestEngineCopiesCatalog(t *testing.T) {
	e, err := NewEngine(4)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	products := []models.Product{{ID: "a", Name: "Fern"}}
	e.SetProducts(products)
	products[0].Name = "changed"

	if got := e.Products()[0].Name; got != "Fern" {
		t.Fatalf("catalog name = %q, want Fern", got)
	}
}
