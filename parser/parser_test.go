package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-plant-storefront/models"
)

func TestValidateProduct(t *testing.T) {
	valid := func() *models.Product {
		return &models.Product{
			ID:        "p-1",
			Name:      "Monstera Deliciosa",
			Category:  "tropical",
			Price:     1299,
			Rating:    4.5,
			Stock:     12,
			CreatedAt: time.Now(),
		}
	}

	tests := []struct {
		name    string
		product func() *models.Product
		wantErr string
	}{
		{
			name:    "valid product",
			product: valid,
		},
		{
			name:    "nil product",
			product: func() *models.Product { return nil },
			wantErr: "nil",
		},
		{
			name: "missing name",
			product: func() *models.Product {
				p := valid()
				p.Name = ""
				return p
			},
			wantErr: "field name failed required",
		},
		{
			name: "missing category",
			product: func() *models.Product {
				p := valid()
				p.Category = ""
				return p
			},
			wantErr: "category",
		},
		{
			name: "rating above five",
			product: func() *models.Product {
				p := valid()
				p.Rating = 6
				return p
			},
			wantErr: "field rating failed lte",
		},
		{
			name: "negative stock",
			product: func() *models.Product {
				p := valid()
				p.Stock = -1
				return p
			},
			wantErr: "stock",
		},
		{
			name: "discount above one hundred",
			product: func() *models.Product {
				p := valid()
				p.Discount = 150
				return p
			},
			wantErr: "discount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProduct(tt.product())
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateProduct() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("ValidateProduct() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
		wantErr  bool
	}{
		{name: "rupee with separator", input: "₹1,299", expected: 1299},
		{name: "dollar with cents", input: "$24.99", expected: 24.99},
		{name: "with whitespace", input: "  ₹ 450  ", expected: 450},
		{name: "already clean", input: "25.99", expected: 25.99},
		{name: "empty string", input: "", wantErr: true},
		{name: "no digits", input: "free", wantErr: true},
		{name: "negative", input: "-5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NormalizePrice(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizePrice(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if result != tt.expected {
				t.Errorf("NormalizePrice(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeDiscount(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"20% off", 20},
		{"12.5%", 12.5},
		{"", 0},
		{"sale", 0},
		{"250%", 0},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeDiscount(tt.input); got != tt.expected {
				t.Errorf("NormalizeDiscount(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRatingToNumeric(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{name: "Zero", input: "Zero", expected: 0},
		{name: "Three", input: "Three", expected: 3},
		{name: "Five", input: "Five", expected: 5},
		{name: "lowercase", input: "four", expected: 4},
		{name: "decimal", input: "4.5", expected: 4.5},
		{name: "out of range", input: "7", expected: 0},
		{name: "invalid rating", input: "Invalid", expected: 0},
		{name: "empty string", input: "", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RatingToNumeric(tt.input)
			if result != tt.expected {
				t.Errorf("RatingToNumeric(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestStockFromAvailability(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{name: "with count", input: "  In stock (22 available)  ", expected: 22},
		{name: "without count", input: "In stock", expected: 1},
		{name: "out of stock", input: "Out of stock", expected: 0},
		{name: "sold out", input: "Sold out", expected: 0},
		{name: "only count", input: "3 left", expected: 3},
		{name: "empty string", input: "", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := StockFromAvailability(tt.input)
			if result != tt.expected {
				t.Errorf("StockFromAvailability(%q) = %d, want %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParseFlag(t *testing.T) {
	tests := []struct {
		value    string
		present  bool
		expected bool
	}{
		{"", true, true},
		{"true", true, true},
		{"Yes", true, true},
		{"false", true, false},
		{"0", true, false},
		{"true", false, false},
	}
	for _, tt := range tests {
		if got := ParseFlag(tt.value, tt.present); got != tt.expected {
			t.Errorf("ParseFlag(%q, %v) = %v, want %v", tt.value, tt.present, got, tt.expected)
		}
	}
}

func TestNormalizeAvailability(t *testing.T) {
	if got := NormalizeAvailability("  In stock  "); got != "In stock" {
		t.Errorf("NormalizeAvailability() = %q", got)
	}
	if got := NormalizeLabel(" Moderate "); got != models.CareModerate {
		t.Errorf("NormalizeLabel() = %q", got)
	}
}
