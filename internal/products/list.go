package product

import (
	"strings"

	"github.com/angelmondragon/stockroom-backend/pkg/enums"
)

const (
	SortByName      = "nome"
	SortByQuantity  = "quantidade_disponivel"
	SortByCreatedAt = "created_at"

	SortAsc  = "asc"
	SortDesc = "desc"
)

var sortableColumns = map[string]string{
	SortByName:      "nome",
	SortByQuantity:  "quantidade_disponivel",
	SortByCreatedAt: "created_at",
}

// ListFilters describe the supported filter knobs for the catalog listing.
type ListFilters struct {
	Search    string `json:"search,omitempty"`
	Category  string `json:"category,omitempty"`
	SortBy    string `json:"sort_by,omitempty"`
	SortOrder string `json:"sort_order,omitempty"`
}

// category returns the category to filter on, or false for "all" and blanks.
func (f ListFilters) category() (enums.ProductCategory, bool) {
	value := strings.TrimSpace(f.Category)
	if value == "" || value == enums.ProductCategoryAll {
		return "", false
	}
	return enums.ProductCategory(value), true
}

// orderClause whitelists the sort column; unknown keys fall back to nome.
func (f ListFilters) orderClause() string {
	column, ok := sortableColumns[strings.TrimSpace(f.SortBy)]
	if !ok {
		column = sortableColumns[SortByName]
	}
	direction := "ASC"
	if strings.EqualFold(strings.TrimSpace(f.SortOrder), SortDesc) {
		direction = "DESC"
	}
	return column + " " + direction + ", id ASC"
}

func likePattern(search string) string {
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(strings.ToLower(search))
	return "%" + escaped + "%"
}
