package product

import (
	"time"

	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	"github.com/google/uuid"
)

// ProductDTO represents the product payload returned to clients.
type ProductDTO struct {
	ID                uuid.UUID             `json:"id"`
	Name              string                `json:"name"`
	Category          enums.ProductCategory `json:"category"`
	CategoryLabel     string                `json:"category_label"`
	AvailableQuantity int                   `json:"available_quantity"`
	StockStatus       enums.StockStatus     `json:"stock_status"`
	Images            []string              `json:"images"`
	CoverImageIndex   int                   `json:"cover_image_index"`
	CoverImage        *string               `json:"cover_image,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
}

// NewProductDTO builds a DTO from the persisted model.
func NewProductDTO(product *models.Product) *ProductDTO {
	return &ProductDTO{
		ID:                product.ID,
		Name:              product.Name,
		Category:          product.Category,
		CategoryLabel:     product.Category.Label(),
		AvailableQuantity: product.AvailableQuantity,
		StockStatus:       enums.StockStatusFor(product.AvailableQuantity),
		Images:            append([]string{}, product.Images...),
		CoverImageIndex:   product.CoverImageIndex,
		CoverImage:        product.CoverImage(),
		CreatedAt:         product.CreatedAt,
	}
}

// NewProductDTOs maps a slice of models.
func NewProductDTOs(rows []models.Product) []ProductDTO {
	out := make([]ProductDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *NewProductDTO(&rows[i]))
	}
	return out
}

// AddMaterialResult reports whether the add-materials flow created a product
// or restocked an existing one.
type AddMaterialResult struct {
	Product *ProductDTO `json:"product"`
	Created bool        `json:"created"`
}
