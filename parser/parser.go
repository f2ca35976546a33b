// Package parser normalizes catalog text scraped from product pages and
// validates the resulting products.
package parser

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/aluiziolira/go-plant-storefront/models"
)

// productValidate checks the validate tags on models.Product. Field errors
// are reported with their JSON names.
var productValidate *validator.Validate

func init() {
	productValidate = validator.New(validator.WithRequiredStructEnabled())
	productValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidateProduct ensures the crawler captured the required fields.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if err := productValidate.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("product %q: field %s failed %s", p.ID, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("product %q: %w", p.ID, err)
	}
	return nil
}

// NormalizePrice strips currency symbols, thousands separators and spacing
// and parses the remaining amount.
func NormalizePrice(price string) (float64, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' || r == '-' {
			return r
		}
		return -1
	}, price)
	if cleaned == "" {
		return 0, fmt.Errorf("price %q has no amount", strings.TrimSpace(price))
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", strings.TrimSpace(price), err)
	}
	if value < 0 {
		return 0, fmt.Errorf("price %q is negative", strings.TrimSpace(price))
	}
	return value, nil
}

// NormalizeDiscount parses labels such as "20% off" into a percentage.
// Anything unparseable counts as no discount.
func NormalizeDiscount(label string) float64 {
	label = strings.TrimSpace(label)
	if label == "" {
		return 0
	}
	end := strings.IndexFunc(label, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	if end == 0 {
		return 0
	}
	if end > 0 {
		label = label[:end]
	}
	value, err := strconv.ParseFloat(label, 64)
	if err != nil || value < 0 || value > 100 {
		return 0
	}
	return value
}

var ratingWords = map[string]float64{
	"zero":  0,
	"one":   1,
	"two":   2,
	"three": 3,
	"four":  4,
	"five":  5,
}

// RatingToNumeric converts a rating to the 0-5 scale. Both star words
// ("Four") and numbers ("4.5") are accepted; anything else is 0.
func RatingToNumeric(rating string) float64 {
	rating = strings.TrimSpace(rating)
	if value, ok := ratingWords[strings.ToLower(rating)]; ok {
		return value
	}
	value, err := strconv.ParseFloat(rating, 64)
	if err != nil || value < 0 || value > 5 {
		return 0
	}
	return value
}

// NormalizeAvailability trims spacing from the availability text.
func NormalizeAvailability(text string) string {
	return strings.TrimSpace(text)
}

// StockFromAvailability extracts the unit count from text such as
// "In stock (22 available)". "In stock" without a count means one unit.
func StockFromAvailability(text string) int {
	text = strings.ToLower(NormalizeAvailability(text))
	if text == "" || strings.Contains(text, "out of stock") || strings.Contains(text, "sold out") {
		return 0
	}
	start := strings.IndexFunc(text, unicode.IsDigit)
	if start < 0 {
		if strings.Contains(text, "in stock") {
			return 1
		}
		return 0
	}
	end := start
	for end < len(text) && text[end] >= '0' && text[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(text[start:end])
	if err != nil {
		return 0
	}
	return n
}

// ParseFlag reads boolean data attributes. Presence with an empty value
// counts as true, matching HTML boolean attributes.
func ParseFlag(value string, present bool) bool {
	if !present {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "true", "yes", "1", "on":
		return true
	default:
		return false
	}
}

// NormalizeLabel lowercases enumerated labels such as care level and size.
func NormalizeLabel(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
