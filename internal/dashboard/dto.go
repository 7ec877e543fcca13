package dashboard

import (
	product "github.com/angelmondragon/stockroom-backend/internal/products"
	"github.com/angelmondragon/stockroom-backend/internal/withdrawals"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
)

// Options tunes the dashboard read. Zero values take the defaults.
type Options struct {
	LowStockThreshold int
	RecentLimit       int
}

// CategoryStat is one category of the catalog with its share of products.
type CategoryStat struct {
	Category      enums.ProductCategory `json:"category"`
	Label         string                `json:"label"`
	Count         int64                 `json:"count"`
	TotalQuantity int64                 `json:"total_quantity"`
	Percentage    int                   `json:"percentage"`
}

// CategoryInsight is a category with its share of the units in stock.
type CategoryInsight struct {
	Category      enums.ProductCategory `json:"category"`
	Label         string                `json:"label"`
	TotalProducts int64                 `json:"total_products"`
	TotalQuantity int64                 `json:"total_quantity"`
	Percentage    int                   `json:"percentage"`
}

// Dashboard is the admin overview payload.
type Dashboard struct {
	TotalProducts       int64                       `json:"total_products"`
	TodayWithdrawnItems int64                       `json:"today_withdrawn_items"`
	MonthWithdrawnItems int64                       `json:"month_withdrawn_items"`
	LowStockThreshold   int                         `json:"low_stock_threshold"`
	LowStockCount       int64                       `json:"low_stock_count"`
	LowStockItems       []product.ProductDTO        `json:"low_stock_items"`
	Categories          []CategoryStat              `json:"categories"`
	RecentWithdrawals   []withdrawals.WithdrawalDTO `json:"recent_withdrawals"`
}
