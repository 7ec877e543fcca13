package enums

import "fmt"

// ProductCategory represents the fixed material categories of the stockroom catalog.
type ProductCategory string

const (
	ProductCategoryGrafico        ProductCategory = "grafico"
	ProductCategoryEstruturaLojas ProductCategory = "estrutura_lojas"
	ProductCategoryBrindes        ProductCategory = "brindes"
)

// ProductCategoryAll is the list filter sentinel meaning "no category restriction".
const ProductCategoryAll = "all"

var validProductCategories = []ProductCategory{
	ProductCategoryGrafico,
	ProductCategoryEstruturaLojas,
	ProductCategoryBrindes,
}

var productCategoryLabels = map[ProductCategory]string{
	ProductCategoryGrafico:        "Gráfico",
	ProductCategoryEstruturaLojas: "Estrutura de Lojas",
	ProductCategoryBrindes:        "Brindes",
}

// ProductCategories returns every category in display order.
func ProductCategories() []ProductCategory {
	out := make([]ProductCategory, len(validProductCategories))
	copy(out, validProductCategories)
	return out
}

// String implements fmt.Stringer.
func (c ProductCategory) String() string {
	return string(c)
}

// Label returns the human readable category name.
func (c ProductCategory) Label() string {
	if label, ok := productCategoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// IsValid reports whether the value is a known ProductCategory.
func (c ProductCategory) IsValid() bool {
	for _, candidate := range validProductCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseProductCategory converts raw input into a ProductCategory.
func ParseProductCategory(value string) (ProductCategory, error) {
	for _, candidate := range validProductCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product category %q", value)
}

// StockStatus buckets an available quantity for display.
type StockStatus string

const (
	StockStatusLow    StockStatus = "low"
	StockStatusMedium StockStatus = "medium"
	StockStatusHigh   StockStatus = "high"
)

const (
	stockStatusLowMax    = 5
	stockStatusMediumMax = 20
)

// StockStatusFor maps a quantity onto its status bucket.
func StockStatusFor(quantity int) StockStatus {
	switch {
	case quantity <= stockStatusLowMax:
		return StockStatusLow
	case quantity <= stockStatusMediumMax:
		return StockStatusMedium
	default:
		return StockStatusHigh
	}
}
