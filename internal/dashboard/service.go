package dashboard

import (
	"context"
	"fmt"
	"math"
	"time"

	product "github.com/angelmondragon/stockroom-backend/internal/products"
	"github.com/angelmondragon/stockroom-backend/internal/withdrawals"
	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLowStockThreshold = 10
	defaultRecentLimit       = 10
)

type catalogReader interface {
	Count(ctx context.Context) (int64, error)
	ListBelowThreshold(ctx context.Context, threshold int) ([]models.Product, error)
	GroupByCategory(ctx context.Context) ([]product.CategoryGroup, error)
}

type movementReader interface {
	TodayWithdrawnItems(ctx context.Context) (int64, error)
	MonthWithdrawnItems(ctx context.Context) (int64, error)
	Recent(ctx context.Context, limit int) ([]withdrawals.WithdrawalDTO, error)
	MovementStats(ctx context.Context, from, to *time.Time) (*withdrawals.MovementStats, error)
}

// Service aggregates catalog and movement data for the admin dashboard.
type Service interface {
	GetDashboard(ctx context.Context, opts Options) (*Dashboard, error)
	GetCategoryInsights(ctx context.Context) ([]CategoryInsight, error)
	GetMovementStats(ctx context.Context, from, to *time.Time) (*withdrawals.MovementStats, error)
}

type service struct {
	catalog   catalogReader
	movements movementReader
	metrics   *metrics.StockMetrics
}

// NewService builds the dashboard service.
func NewService(catalog catalogReader, movements movementReader, stockMetrics *metrics.StockMetrics) (Service, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if movements == nil {
		return nil, fmt.Errorf("movement reader required")
	}
	return &service{catalog: catalog, movements: movements, metrics: stockMetrics}, nil
}

func (s *service) GetDashboard(ctx context.Context, opts Options) (*Dashboard, error) {
	if opts.LowStockThreshold < 0 || opts.RecentLimit < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "threshold and limit must be non-negative")
	}
	if opts.LowStockThreshold == 0 {
		opts.LowStockThreshold = defaultLowStockThreshold
	}
	if opts.RecentLimit == 0 {
		opts.RecentLimit = defaultRecentLimit
	}

	out := &Dashboard{LowStockThreshold: opts.LowStockThreshold}
	var (
		lowStock []models.Product
		groups   []product.CategoryGroup
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		total, err := s.catalog.Count(gctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count products")
		}
		out.TotalProducts = total
		return nil
	})
	g.Go(func() error {
		total, err := s.movements.TodayWithdrawnItems(gctx)
		out.TodayWithdrawnItems = total
		return err
	})
	g.Go(func() error {
		total, err := s.movements.MonthWithdrawnItems(gctx)
		out.MonthWithdrawnItems = total
		return err
	})
	g.Go(func() error {
		rows, err := s.catalog.ListBelowThreshold(gctx, opts.LowStockThreshold)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list low stock products")
		}
		lowStock = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.catalog.GroupByCategory(gctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "group products by category")
		}
		groups = rows
		return nil
	})
	g.Go(func() error {
		recent, err := s.movements.Recent(gctx, opts.RecentLimit)
		out.RecentWithdrawals = recent
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out.LowStockCount = int64(len(lowStock))
	out.LowStockItems = product.NewProductDTOs(lowStock)
	out.Categories = categoryStats(groups, out.TotalProducts)
	if out.RecentWithdrawals == nil {
		out.RecentWithdrawals = []withdrawals.WithdrawalDTO{}
	}
	s.metrics.SetLowStockProducts(len(lowStock))
	return out, nil
}

// GetCategoryInsights reports every category with its share of units in stock.
func (s *service) GetCategoryInsights(ctx context.Context) ([]CategoryInsight, error) {
	groups, err := s.catalog.GroupByCategory(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "group products by category")
	}
	byCategory := indexGroups(groups)

	var totalQuantity int64
	for _, group := range byCategory {
		totalQuantity += group.TotalQuantity
	}
	categories := enums.ProductCategories()
	out := make([]CategoryInsight, 0, len(categories))
	for _, category := range categories {
		group := byCategory[category]
		out = append(out, CategoryInsight{
			Category:      category,
			Label:         category.Label(),
			TotalProducts: group.Count,
			TotalQuantity: group.TotalQuantity,
			Percentage:    percentage(group.TotalQuantity, totalQuantity),
		})
	}
	return out, nil
}

func (s *service) GetMovementStats(ctx context.Context, from, to *time.Time) (*withdrawals.MovementStats, error) {
	return s.movements.MovementStats(ctx, from, to)
}

// categoryStats lists every category in display order, with zeros for empty
// ones. Percentage is the share of products in the catalog.
func categoryStats(groups []product.CategoryGroup, totalProducts int64) []CategoryStat {
	byCategory := indexGroups(groups)
	categories := enums.ProductCategories()
	out := make([]CategoryStat, 0, len(categories))
	for _, category := range categories {
		group := byCategory[category]
		out = append(out, CategoryStat{
			Category:      category,
			Label:         category.Label(),
			Count:         group.Count,
			TotalQuantity: group.TotalQuantity,
			Percentage:    percentage(group.Count, totalProducts),
		})
	}
	return out
}

func indexGroups(groups []product.CategoryGroup) map[enums.ProductCategory]product.CategoryGroup {
	out := make(map[enums.ProductCategory]product.CategoryGroup, len(groups))
	for _, group := range groups {
		out[group.Category] = group
	}
	return out
}

func percentage(part, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}
