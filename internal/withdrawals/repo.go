package withdrawals

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const recordColumns = "r.*, p.nome AS current_name, p.categoria AS current_category"

type repository struct {
	db *gorm.DB
}

// NewRepository builds a withdrawals repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, withdrawal *models.Withdrawal) error {
	if !withdrawal.CreatedAt.IsZero() {
		withdrawal.CreatedAt = withdrawal.CreatedAt.UTC()
	}
	return r.db.WithContext(ctx).Create(withdrawal).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	var rows []Record
	err := r.records(ctx).
		Where("r.id = ?", id).
		Limit(1).
		Scan(&rows).
		Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &rows[0], nil
}

// List returns the rows matching filters, newest first.
func (r *repository) List(ctx context.Context, filters Filters) ([]Record, error) {
	query := r.records(ctx)
	if search := strings.TrimSpace(filters.Search); search != "" {
		pattern := likePattern(search)
		query = query.Where(`(LOWER(r.supervisor) LIKE ? ESCAPE '\' OR LOWER(r.destino) LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	if supervisor := strings.TrimSpace(filters.Supervisor); supervisor != "" {
		query = query.Where(`LOWER(r.supervisor) LIKE ? ESCAPE '\'`, likePattern(supervisor))
	}
	if destination := strings.TrimSpace(filters.Destination); destination != "" {
		query = query.Where(`LOWER(r.destino) LIKE ? ESCAPE '\'`, likePattern(destination))
	}
	if filters.DateFrom != nil {
		query = query.Where("r.created_at >= ?", filters.DateFrom.UTC())
	}
	if filters.DateTo != nil {
		query = query.Where("r.created_at <= ?", filters.DateTo.UTC())
	}
	if filters.Kind != nil {
		query = query.Where("r.tipo = ?", *filters.Kind)
	}
	if filters.ProductID != nil {
		query = query.Where("r.produto_id = ?", *filters.ProductID)
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}

	var rows []Record
	if err := query.Order("r.created_at DESC, r.id DESC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Recent(ctx context.Context, limit int) ([]Record, error) {
	var rows []Record
	err := r.records(ctx).
		Order("r.created_at DESC, r.id DESC").
		Limit(limit).
		Scan(&rows).
		Error
	return rows, err
}

// SumQuantity adds up moved units of kind in [from, to].
func (r *repository) SumQuantity(ctx context.Context, kind enums.MovementKind, from, to time.Time) (int64, error) {
	var total int64
	err := r.ranged(ctx, kind, from, to).
		Select("COALESCE(SUM(quantidade), 0)").
		Scan(&total).
		Error
	return total, err
}

func (r *repository) Totals(ctx context.Context, kind enums.MovementKind, from, to time.Time) (*Totals, error) {
	var totals Totals
	err := r.ranged(ctx, kind, from, to).
		Select("COUNT(*) AS total_rows, COALESCE(SUM(quantidade), 0) AS total_quantity").
		Scan(&totals).
		Error
	if err != nil {
		return nil, err
	}
	return &totals, nil
}

func (r *repository) QuantityByCategory(ctx context.Context, kind enums.MovementKind, from, to time.Time) ([]CategoryQuantity, error) {
	var rows []CategoryQuantity
	err := r.ranged(ctx, kind, from, to).
		Select("produto_categoria AS category, SUM(quantidade) AS quantity").
		Group("produto_categoria").
		Scan(&rows).
		Error
	return rows, err
}

func (r *repository) TopProducts(ctx context.Context, kind enums.MovementKind, from, to time.Time, limit int) ([]ProductQuantity, error) {
	var rows []ProductQuantity
	err := r.ranged(ctx, kind, from, to).
		Select("produto_id AS product_id, MAX(produto_nome) AS name, MAX(produto_categoria) AS category, SUM(quantidade) AS quantity").
		Group("produto_id").
		Order("quantity DESC, name ASC").
		Limit(limit).
		Scan(&rows).
		Error
	return rows, err
}

func (r *repository) records(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("retiradas AS r").
		Select(recordColumns).
		Joins("LEFT JOIN produtos p ON p.id = r.produto_id")
}

func (r *repository) ranged(ctx context.Context, kind enums.MovementKind, from, to time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Withdrawal{}).
		Where("tipo = ? AND created_at >= ? AND created_at <= ?", kind, from.UTC(), to.UTC())
}

func likePattern(search string) string {
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(strings.ToLower(search))
	return "%" + escaped + "%"
}
