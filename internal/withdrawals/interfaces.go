package withdrawals

import (
	"context"
	"time"

	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists the append-only movement log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, withdrawal *models.Withdrawal) error
	FindByID(ctx context.Context, id uuid.UUID) (*Record, error)
	List(ctx context.Context, filters Filters) ([]Record, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
	SumQuantity(ctx context.Context, kind enums.MovementKind, from, to time.Time) (int64, error)
	Totals(ctx context.Context, kind enums.MovementKind, from, to time.Time) (*Totals, error)
	QuantityByCategory(ctx context.Context, kind enums.MovementKind, from, to time.Time) ([]CategoryQuantity, error)
	TopProducts(ctx context.Context, kind enums.MovementKind, from, to time.Time, limit int) ([]ProductQuantity, error)
}

// Record is a movement row joined with the current product row. The product
// name and category prefer the live product and fall back to the snapshot
// taken when the movement was recorded.
type Record struct {
	models.Withdrawal
	CurrentName     *string `gorm:"column:current_name"`
	CurrentCategory *string `gorm:"column:current_category"`
}

// DisplayName returns the live product name, or the snapshot for deleted products.
func (r Record) DisplayName() string {
	if r.CurrentName != nil && *r.CurrentName != "" {
		return *r.CurrentName
	}
	return r.ProductName
}

// DisplayCategory returns the live product category, or the snapshot.
func (r Record) DisplayCategory() enums.ProductCategory {
	if r.CurrentCategory != nil && *r.CurrentCategory != "" {
		return enums.ProductCategory(*r.CurrentCategory)
	}
	return r.ProductCategory
}

// Totals counts rows and summed quantities in a range.
type Totals struct {
	Rows     int64 `gorm:"column:total_rows"`
	Quantity int64 `gorm:"column:total_quantity"`
}

// CategoryQuantity sums moved units for one category.
type CategoryQuantity struct {
	Category enums.ProductCategory `gorm:"column:category" json:"category"`
	Label    string                `gorm:"-" json:"label"`
	Quantity int64                 `gorm:"column:quantity" json:"quantity"`
}

// ProductQuantity sums moved units for one product.
type ProductQuantity struct {
	ProductID uuid.UUID             `gorm:"column:product_id" json:"product_id"`
	Name      string                `gorm:"column:name" json:"name"`
	Category  enums.ProductCategory `gorm:"column:category" json:"category"`
	Quantity  int64                 `gorm:"column:quantity" json:"quantity"`
}
