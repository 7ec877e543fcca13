package withdrawals

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const topProductsLimit = 10

// Service reads and appends to the movement history.
type Service interface {
	List(ctx context.Context, filters Filters) ([]WithdrawalDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*WithdrawalDTO, error)
	Create(ctx context.Context, withdrawal *models.Withdrawal) (*WithdrawalDTO, error)
	Today(ctx context.Context) ([]WithdrawalDTO, error)
	CurrentMonth(ctx context.Context) ([]WithdrawalDTO, error)
	Recent(ctx context.Context, limit int) ([]WithdrawalDTO, error)
	TodayWithdrawnItems(ctx context.Context) (int64, error)
	MonthWithdrawnItems(ctx context.Context) (int64, error)
	MovementStats(ctx context.Context, from, to *time.Time) (*MovementStats, error)
	Export(ctx context.Context, filters Filters, w io.Writer) error
	Location() *time.Location
}

type service struct {
	repo Repository
	loc  *time.Location
	now  func() time.Time
}

// NewService builds the withdrawal service. Day and month boundaries are
// computed in loc using now.
func NewService(repo Repository, loc *time.Location, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("withdrawal repository required")
	}
	if loc == nil {
		return nil, fmt.Errorf("location required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{repo: repo, loc: loc, now: now}, nil
}

func (s *service) Location() *time.Location {
	return s.loc
}

func (s *service) List(ctx context.Context, filters Filters) ([]WithdrawalDTO, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	rows, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list withdrawals")
	}
	return NewWithdrawalDTOs(rows), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*WithdrawalDTO, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal")
	}
	dto := NewWithdrawalDTO(*record)
	return &dto, nil
}

// Create appends a movement row. Rows are never updated or deleted.
func (s *service) Create(ctx context.Context, withdrawal *models.Withdrawal) (*WithdrawalDTO, error) {
	if withdrawal == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal is required")
	}
	if err := ValidateRow(withdrawal); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, withdrawal); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert withdrawal")
	}
	return s.Get(ctx, withdrawal.ID)
}

func (s *service) Today(ctx context.Context) ([]WithdrawalDTO, error) {
	from, to := DayBounds(s.now(), s.loc)
	return s.List(ctx, Filters{DateFrom: &from, DateTo: &to})
}

func (s *service) CurrentMonth(ctx context.Context) ([]WithdrawalDTO, error) {
	from, to := MonthBounds(s.now(), s.loc)
	return s.List(ctx, Filters{DateFrom: &from, DateTo: &to})
}

func (s *service) Recent(ctx context.Context, limit int) ([]WithdrawalDTO, error) {
	if limit <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "limit must be positive")
	}
	rows, err := s.repo.Recent(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list recent withdrawals")
	}
	return NewWithdrawalDTOs(rows), nil
}

// TodayWithdrawnItems sums the units withdrawn today. Manual adjustments are
// not withdrawals and are excluded.
func (s *service) TodayWithdrawnItems(ctx context.Context) (int64, error) {
	from, to := DayBounds(s.now(), s.loc)
	return s.sumWithdrawn(ctx, from, to)
}

func (s *service) MonthWithdrawnItems(ctx context.Context) (int64, error) {
	from, to := MonthBounds(s.now(), s.loc)
	return s.sumWithdrawn(ctx, from, to)
}

func (s *service) sumWithdrawn(ctx context.Context, from, to time.Time) (int64, error) {
	total, err := s.repo.SumQuantity(ctx, enums.MovementKindWithdrawal, from, to)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum withdrawn items")
	}
	return total, nil
}

// MovementStats aggregates withdrawals in [from, to]. Missing bounds default
// to the current month.
func (s *service) MovementStats(ctx context.Context, from, to *time.Time) (*MovementStats, error) {
	monthStart, monthEnd := MonthBounds(s.now(), s.loc)
	start, end := monthStart, monthEnd
	if from != nil {
		start = *from
	}
	if to != nil {
		end = *to
	}
	if start.After(end) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "date_from must not be after date_to")
	}

	kind := enums.MovementKindWithdrawal
	totals, err := s.repo.Totals(ctx, kind, start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "movement totals")
	}
	byCategory, err := s.repo.QuantityByCategory(ctx, kind, start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "movement by category")
	}
	top, err := s.repo.TopProducts(ctx, kind, start, end, topProductsLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "top products")
	}

	return &MovementStats{
		From:             start,
		To:               end,
		TotalWithdrawals: totals.Rows,
		TotalItems:       totals.Quantity,
		ByCategory:       fillCategories(byCategory),
		TopProducts:      top,
	}, nil
}

// Export writes the filtered history as an XLSX workbook.
func (s *service) Export(ctx context.Context, filters Filters, w io.Writer) error {
	if err := validateFilters(filters); err != nil {
		return err
	}
	rows, err := s.repo.List(ctx, filters)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list withdrawals for export")
	}
	f, err := buildWorkbook(rows, s.loc)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build workbook")
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write workbook")
	}
	return nil
}

// ValidateRow checks a movement row before it is appended.
func ValidateRow(w *models.Withdrawal) error {
	if w.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	if strings.TrimSpace(w.Destination) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "destination is required")
	}
	if strings.TrimSpace(w.Supervisor) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "supervisor is required")
	}
	if w.Kind != "" && !w.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid movement kind")
	}
	if !w.ProductCategory.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid product category")
	}
	return nil
}

func validateFilters(filters Filters) error {
	if filters.Kind != nil && !filters.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid movement kind")
	}
	if filters.DateFrom != nil && filters.DateTo != nil && filters.DateFrom.After(*filters.DateTo) {
		return pkgerrors.New(pkgerrors.CodeValidation, "date_from must not be after date_to")
	}
	if filters.Limit < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "limit must be non-negative")
	}
	return nil
}

// fillCategories returns every category in display order, with zero for the
// ones that had no movement.
func fillCategories(rows []CategoryQuantity) []CategoryQuantity {
	byCategory := make(map[enums.ProductCategory]int64, len(rows))
	for _, row := range rows {
		byCategory[row.Category] += row.Quantity
	}
	categories := enums.ProductCategories()
	out := make([]CategoryQuantity, 0, len(categories))
	for _, category := range categories {
		out = append(out, CategoryQuantity{
			Category: category,
			Label:    category.Label(),
			Quantity: byCategory[category],
		})
	}
	return out
}
