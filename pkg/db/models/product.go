package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockroom-backend/pkg/enums"
)

// MaxStockQuantity is the largest value quantidade_disponivel can hold.
const MaxStockQuantity = math.MaxInt32

// Product represents a stocked material.
type Product struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Name              string                `gorm:"column:nome;not null"`
	Category          enums.ProductCategory `gorm:"column:categoria;type:text;not null"`
	AvailableQuantity int                   `gorm:"column:quantidade_disponivel;not null"`
	Images            pq.StringArray        `gorm:"column:imagens;type:text[];not null"`
	CoverImageIndex   int                   `gorm:"column:imagem_capa_index;not null"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (Product) TableName() string { return "produtos" }

// BeforeCreate assigns the identifier client side so sqlite and postgres behave alike.
func (p *Product) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Images == nil {
		p.Images = pq.StringArray{}
	}
	return nil
}

// CoverImage returns the URL of the cover image, if any.
func (p Product) CoverImage() *string {
	if len(p.Images) == 0 {
		return nil
	}
	idx := p.CoverImageIndex
	if idx < 0 || idx >= len(p.Images) {
		idx = 0
	}
	url := p.Images[idx]
	return &url
}
