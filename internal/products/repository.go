package product

import (
	"context"
	"strings"

	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CategoryGroup aggregates the catalog per category.
type CategoryGroup struct {
	Category      enums.ProductCategory `json:"category"`
	Count         int64                 `json:"count"`
	TotalQuantity int64                 `json:"total_quantity"`
}

// Repository wires together all product persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// List returns the products matching filters in the requested order.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]models.Product, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{})
	if search := strings.TrimSpace(filters.Search); search != "" {
		query = query.Where(`LOWER(nome) LIKE ? ESCAPE '\'`, likePattern(search))
	}
	if category, ok := filters.category(); ok {
		query = query.Where("categoria = ?", category)
	}

	var rows []models.Product
	if err := query.Order(filters.orderClause()).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindByID loads a single product.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByName matches the name exactly, ignoring case.
func (r *Repository) FindByName(ctx context.Context, name string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("LOWER(nome) = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&product).
		Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// Create inserts a new product row.
func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// Update applies the column map to the product and reports whether a row matched.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	if len(updates) == 0 {
		return true, nil
	}
	res := r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Delete removes a product by ID and reports whether a row was removed.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Product{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Count returns the number of products in the catalog.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Product{}).Count(&count).Error
	return count, err
}

// ListBelowThreshold returns products with at most threshold units, scarcest first.
func (r *Repository) ListBelowThreshold(ctx context.Context, threshold int) ([]models.Product, error) {
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("quantidade_disponivel <= ?", threshold).
		Order("quantidade_disponivel ASC, nome ASC").
		Find(&rows).
		Error
	return rows, err
}

// GroupByCategory returns product counts and summed quantities per category.
// Categories without products are absent.
func (r *Repository) GroupByCategory(ctx context.Context) ([]CategoryGroup, error) {
	var rows []CategoryGroup
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Select("categoria AS category, COUNT(*) AS count, COALESCE(SUM(quantidade_disponivel), 0) AS total_quantity").
		Group("categoria").
		Scan(&rows).
		Error
	return rows, err
}

// DecrementIfAvailable subtracts quantity only when enough stock remains. It
// reports false when the guard rejected the update.
func (r *Repository) DecrementIfAvailable(ctx context.Context, id uuid.UUID, quantity int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE produtos SET quantidade_disponivel = quantidade_disponivel - ? WHERE id = ? AND quantidade_disponivel >= ?`,
		quantity, id, quantity,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Increment adds quantity to the product stock and reports whether the row exists.
func (r *Repository) Increment(ctx context.Context, id uuid.UUID, quantity int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE produtos SET quantidade_disponivel = quantidade_disponivel + ? WHERE id = ?`,
		quantity, id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
