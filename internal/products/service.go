package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/stockroom-backend/internal/media"
	"github.com/angelmondragon/stockroom-backend/pkg/db"
	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// Service exposes catalog management operations.
type Service interface {
	List(ctx context.Context, filters ListFilters) ([]ProductDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	FindByName(ctx context.Context, name string) (*ProductDTO, error)
	Create(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListBelowThreshold(ctx context.Context, threshold int) ([]ProductDTO, error)
	GroupByCategory(ctx context.Context) ([]CategoryGroup, error)
	AddMaterial(ctx context.Context, input AddMaterialInput) (*AddMaterialResult, error)
	AddImage(ctx context.Context, id uuid.UUID, upload media.Upload) (*ProductDTO, error)
	RemoveImage(ctx context.Context, id uuid.UUID, index int) (*ProductDTO, error)
	SetCover(ctx context.Context, id uuid.UUID, index int) (*ProductDTO, error)
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	Name              string
	Category          enums.ProductCategory
	AvailableQuantity int
	Images            []string
	CoverImageIndex   int
}

// UpdateProductInput holds optional mutation values for a product.
type UpdateProductInput struct {
	Name              *string
	Category          *enums.ProductCategory
	AvailableQuantity *int
	Images            *[]string
	CoverImageIndex   *int
}

// AddMaterialInput feeds the add-materials flow.
type AddMaterialInput struct {
	Name     string
	Category enums.ProductCategory
	Quantity int
	Images   []string
}

type imageStore interface {
	UploadProductImage(ctx context.Context, productID uuid.UUID, upload media.Upload) (*media.Stored, error)
	DeleteByURL(ctx context.Context, rawURL string) error
}

// StockAdder increases stock through the stock engine so restocks are
// observed the same way as admin stock entries.
type StockAdder interface {
	Restock(ctx context.Context, productID uuid.UUID, quantity int) error
}

// service implements the product service.
type service struct {
	repo      *Repository
	images    imageStore
	stock     StockAdder
	maxImages int
	logg      *logger.Logger
}

// NewService constructs a product service instance.
func NewService(repo *Repository, images imageStore, stock StockAdder, maxImages int, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if images == nil {
		return nil, fmt.Errorf("image store required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock adder required")
	}
	if maxImages <= 0 {
		return nil, fmt.Errorf("max images must be positive")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		images:    images,
		stock:     stock,
		maxImages: maxImages,
		logg:      logg,
	}, nil
}

func (s *service) List(ctx context.Context, filters ListFilters) ([]ProductDTO, error) {
	if category, ok := filters.category(); ok && !category.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
	}
	rows, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return NewProductDTOs(rows), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	product, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewProductDTO(product), nil
}

func (s *service) FindByName(ctx context.Context, name string) (*ProductDTO, error) {
	if strings.TrimSpace(name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	product, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return NewProductDTO(product), nil
}

// Create inserts a new product after validating it.
func (s *service) Create(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	product := &models.Product{
		Name:              strings.TrimSpace(input.Name),
		Category:          input.Category,
		AvailableQuantity: input.AvailableQuantity,
		Images:            pq.StringArray(cleanImages(input.Images)),
		CoverImageIndex:   input.CoverImageIndex,
	}
	if err := s.validate(product); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, product); err != nil {
		return nil, mapWriteError(err, "create product")
	}
	return s.Get(ctx, product.ID)
}

// Update changes only the fields present in input. Image URLs dropped from the
// list are removed from storage once the row is saved.
func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	product, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	previousImages := append([]string(nil), product.Images...)

	updates := applyUpdateToProduct(product, input)
	if err := s.validate(product); err != nil {
		return nil, err
	}

	ok, err := s.repo.Update(ctx, id, updates)
	if err != nil {
		return nil, mapWriteError(err, "update product")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	if input.Images != nil {
		s.deleteImages(ctx, id, droppedImages(previousImages, product.Images))
	}
	return s.Get(ctx, id)
}

// Delete removes the product row. Withdrawal rows keep their snapshot of the
// product, and image objects are removed best-effort.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	product, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
	}
	if !removed {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	s.deleteImages(ctx, id, product.Images)
	return nil
}

func (s *service) ListBelowThreshold(ctx context.Context, threshold int) ([]ProductDTO, error) {
	if threshold < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "threshold must be non-negative")
	}
	rows, err := s.repo.ListBelowThreshold(ctx, threshold)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list low stock products")
	}
	return NewProductDTOs(rows), nil
}

func (s *service) GroupByCategory(ctx context.Context) ([]CategoryGroup, error) {
	groups, err := s.repo.GroupByCategory(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "group products by category")
	}
	return groups, nil
}

// AddMaterial restocks the product with the given name, or creates it when the
// catalog does not know it yet.
func (s *service) AddMaterial(ctx context.Context, input AddMaterialInput) (*AddMaterialResult, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}

	existing, err := s.repo.FindByName(ctx, name)
	switch {
	case err == nil:
		if input.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
		}
		if err := s.stock.Restock(ctx, existing.ID, input.Quantity); err != nil {
			return nil, err
		}
		dto, err := s.Get(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		return &AddMaterialResult{Product: dto, Created: false}, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		dto, err := s.Create(ctx, CreateProductInput{
			Name:              name,
			Category:          input.Category,
			AvailableQuantity: input.Quantity,
			Images:            input.Images,
		})
		if err != nil {
			return nil, err
		}
		return &AddMaterialResult{Product: dto, Created: true}, nil
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find product by name")
	}
}

// AddImage uploads the file under the product prefix and appends its URL.
func (s *service) AddImage(ctx context.Context, id uuid.UUID, upload media.Upload) (*ProductDTO, error) {
	product, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(product.Images) >= s.maxImages {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("a product holds at most %d images", s.maxImages))
	}

	stored, err := s.images.UploadProductImage(ctx, id, upload)
	if err != nil {
		return nil, err
	}

	images := append(append([]string{}, product.Images...), stored.URL)
	if _, err := s.repo.Update(ctx, id, map[string]any{"imagens": pq.StringArray(images)}); err != nil {
		s.deleteImages(ctx, id, []string{stored.URL})
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save product image")
	}
	return s.Get(ctx, id)
}

// RemoveImage drops the image at index and keeps the cover pointing at the
// same picture when possible. Removing the cover resets it to the first image.
func (s *service) RemoveImage(ctx context.Context, id uuid.UUID, index int) (*ProductDTO, error) {
	product, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(product.Images) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "image index out of range")
	}

	removedURL := product.Images[index]
	images, cover := removeImageAt(product.Images, product.CoverImageIndex, index)
	if _, err := s.repo.Update(ctx, id, map[string]any{
		"imagens":           pq.StringArray(images),
		"imagem_capa_index": cover,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove product image")
	}

	s.deleteImages(ctx, id, []string{removedURL})
	return s.Get(ctx, id)
}

func (s *service) SetCover(ctx context.Context, id uuid.UUID, index int) (*ProductDTO, error) {
	product, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(product.Images) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cover index out of range")
	}
	if _, err := s.repo.Update(ctx, id, map[string]any{"imagem_capa_index": index}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set cover image")
	}
	return s.Get(ctx, id)
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return product, nil
}

func (s *service) validate(product *models.Product) error {
	if product.Name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if !product.Category.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
	}
	if product.AvailableQuantity < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "available_quantity must be non-negative")
	}
	if product.AvailableQuantity > models.MaxStockQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("available_quantity must be at most %d", models.MaxStockQuantity))
	}
	if len(product.Images) > s.maxImages {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("a product holds at most %d images", s.maxImages))
	}
	if !coverInRange(product.CoverImageIndex, len(product.Images)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "cover_image_index out of range")
	}
	return nil
}

// deleteImages removes image objects best-effort. Failures are logged and
// never surface to the caller.
func (s *service) deleteImages(ctx context.Context, productID uuid.UUID, urls []string) {
	var errs error
	for _, url := range urls {
		errs = multierr.Append(errs, s.images.DeleteByURL(ctx, url))
	}
	if errs == nil {
		return
	}
	logCtx := s.logg.WithProductID(ctx, productID.String())
	logCtx = s.logg.WithField(logCtx, "failed", len(multierr.Errors(errs)))
	s.logg.Warn(s.logg.WithField(logCtx, "error", errs.Error()), "product image cleanup incomplete")
}

func applyUpdateToProduct(product *models.Product, input UpdateProductInput) map[string]any {
	updates := map[string]any{}
	if input.Name != nil {
		product.Name = strings.TrimSpace(*input.Name)
		updates["nome"] = product.Name
	}
	if input.Category != nil {
		product.Category = *input.Category
		updates["categoria"] = product.Category
	}
	if input.AvailableQuantity != nil {
		product.AvailableQuantity = *input.AvailableQuantity
		updates["quantidade_disponivel"] = product.AvailableQuantity
	}
	if input.Images != nil {
		product.Images = pq.StringArray(cleanImages(*input.Images))
		updates["imagens"] = product.Images
		if input.CoverImageIndex == nil && !coverInRange(product.CoverImageIndex, len(product.Images)) {
			product.CoverImageIndex = 0
			updates["imagem_capa_index"] = 0
		}
	}
	if input.CoverImageIndex != nil {
		product.CoverImageIndex = *input.CoverImageIndex
		updates["imagem_capa_index"] = product.CoverImageIndex
	}
	return updates
}

func removeImageAt(images []string, cover, index int) ([]string, int) {
	out := make([]string, 0, len(images)-1)
	out = append(out, images[:index]...)
	out = append(out, images[index+1:]...)
	switch {
	case index == cover:
		cover = 0
	case index < cover:
		cover--
	}
	if len(out) == 0 {
		cover = 0
	}
	return out, cover
}

func droppedImages(before, after []string) []string {
	kept := make(map[string]struct{}, len(after))
	for _, url := range after {
		kept[url] = struct{}{}
	}
	var dropped []string
	for _, url := range before {
		if _, ok := kept[url]; !ok {
			dropped = append(dropped, url)
		}
	}
	return dropped
}

func cleanImages(images []string) []string {
	out := make([]string, 0, len(images))
	for _, url := range images {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func coverInRange(cover, count int) bool {
	if count == 0 {
		return cover == 0
	}
	return cover >= 0 && cover < count
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
}

func mapWriteError(err error, action string) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.New(pkgerrors.CodeConflict, "a product with this name already exists")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
