package service

import (
	"math"
	"strconv"
	"strings"

	"github.com/andika/product-import/internal/domain"
)

// requiredColumns is the minimal header set for an import file.
var requiredColumns = []string{"name", "sku", "price", "stock"}

// requiredFields must be present and non-blank on every data row.
var requiredFields = []string{"sku", "name", "price"}

// ValidateRow checks a raw row against the import rules. It is pure: no
// side effects, no storage access.
func ValidateRow(row domain.Row) error {
	for _, field := range requiredFields {
		value, ok := row[field]
		if !ok || strings.TrimSpace(value) == "" {
			return &ValidationError{Code: CodeMissingField, Field: field}
		}
	}

	price, err := strconv.ParseFloat(strings.TrimSpace(row["price"]), 64)
	if err != nil {
		return &ValidationError{Code: CodeNonNumericPrice, Field: "price", Value: row["price"]}
	}
	if price < 0 {
		return &ValidationError{Code: CodeNegativePrice, Field: "price", Value: row["price"]}
	}

	// Stock is optional, but when the column is present its value must
	// parse as a number
	if stock, ok := row["stock"]; ok {
		if _, err := strconv.ParseFloat(strings.TrimSpace(stock), 64); err != nil {
			return &ValidationError{Code: CodeNonNumericStock, Field: "stock", Value: stock}
		}
	}

	return nil
}

// FormatRow turns a validated row into a product record. Callers must run
// ValidateRow first; FormatRow never rejects.
func FormatRow(row domain.Row) *domain.Product {
	return &domain.Product{
		SKU:   strings.TrimSpace(row["sku"]),
		Name:  strings.TrimSpace(row["name"]),
		Price: formatPrice(row["price"]),
		Stock: formatStock(row["stock"]),
	}
}

// formatPrice strips every character that is not a digit, dot, or minus
// sign, then rounds to exactly two fractional digits.
func formatPrice(raw string) float64 {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	value, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return math.Round(value*100) / 100
}

// formatStock truncates to an integer; absent or unparseable values become 0.
func formatStock(raw string) int {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return int(value)
}

// isBlankRecord reports whether every field of a CSV record is empty after
// trimming. Fully blank rows are skipped by both the pre-count pass and
// the chunking scan.
func isBlankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
