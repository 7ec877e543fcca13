package product

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/angelmondragon/stockroom-backend/internal/media"
	"github.com/angelmondragon/stockroom-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fakeImageStore struct {
	uploads   int
	deleted   []string
	deleteErr error
	uploadErr error
}

func (f *fakeImageStore) UploadProductImage(_ context.Context, productID uuid.UUID, upload media.Upload) (*media.Stored, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	if _, err := io.ReadAll(upload.Body); err != nil {
		return nil, err
	}
	f.uploads++
	key := fmt.Sprintf("produtos/%s/%d-%s", productID, f.uploads, upload.FileName)
	return &media.Stored{Key: key, URL: "http://cdn.local/" + key, ContentType: "image/png"}, nil
}

func (f *fakeImageStore) DeleteByURL(_ context.Context, rawURL string) error {
	f.deleted = append(f.deleted, rawURL)
	return f.deleteErr
}

type repoStockAdder struct {
	repo  *Repository
	calls int
}

func (r *repoStockAdder) Restock(ctx context.Context, productID uuid.UUID, quantity int) error {
	r.calls++
	_, err := r.repo.Increment(ctx, productID, quantity)
	return err
}

type testEnv struct {
	conn   *gorm.DB
	repo   *Repository
	images *fakeImageStore
	stock  *repoStockAdder
	svc    Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	images := &fakeImageStore{}
	stock := &repoStockAdder{repo: repo}
	svc, err := NewService(repo, images, stock, 3, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &testEnv{conn: conn, repo: repo, images: images, stock: stock, svc: svc}
}

func (e *testEnv) create(t *testing.T, name string, category enums.ProductCategory, qty int, images ...string) *ProductDTO {
	t.Helper()
	dto, err := e.svc.Create(context.Background(), CreateProductInput{
		Name:              name,
		Category:          category,
		AvailableQuantity: qty,
		Images:            images,
	})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return dto
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if !pkgerrors.IsCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	repo := NewRepository(nil)
	logg := logger.New(logger.Options{Output: io.Discard})
	if _, err := NewService(nil, &fakeImageStore{}, &repoStockAdder{}, 3, logg); err == nil {
		t.Fatal("expected error for missing repo")
	}
	if _, err := NewService(repo, nil, &repoStockAdder{}, 3, logg); err == nil {
		t.Fatal("expected error for missing image store")
	}
	if _, err := NewService(repo, &fakeImageStore{}, nil, 3, logg); err == nil {
		t.Fatal("expected error for missing stock adder")
	}
	if _, err := NewService(repo, &fakeImageStore{}, &repoStockAdder{}, 0, logg); err == nil {
		t.Fatal("expected error for zero max images")
	}
}

func TestCreateProduct(t *testing.T) {
	env := newTestEnv(t)

	dto := env.create(t, "  Banner Vitrine ", enums.ProductCategoryGrafico, 12, "http://cdn.local/a.png")
	if dto.Name != "Banner Vitrine" {
		t.Fatalf("expected trimmed name, got %q", dto.Name)
	}
	if dto.CategoryLabel != "Gráfico" {
		t.Fatalf("unexpected label %q", dto.CategoryLabel)
	}
	if dto.StockStatus != enums.StockStatusMedium {
		t.Fatalf("expected medium status, got %s", dto.StockStatus)
	}
	if dto.CoverImage == nil || *dto.CoverImage != "http://cdn.local/a.png" {
		t.Fatalf("unexpected cover image %v", dto.CoverImage)
	}

	loaded, err := env.svc.Get(context.Background(), dto.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.AvailableQuantity != 12 || len(loaded.Images) != 1 {
		t.Fatalf("unexpected stored product %+v", loaded)
	}
}

func TestCreateProductRejectsDuplicateNameIgnoringCase(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "Display Acrilico", enums.ProductCategoryEstruturaLojas, 3)

	_, err := env.svc.Create(context.Background(), CreateProductInput{
		Name:     "display ACRILICO",
		Category: enums.ProductCategoryBrindes,
	})
	requireCode(t, err, pkgerrors.CodeConflict)
}

func TestCreateProductValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := map[string]CreateProductInput{
		"empty name":       {Name: "   ", Category: enums.ProductCategoryBrindes},
		"unknown category": {Name: "Caneta", Category: "papelaria"},
		"negative qty":     {Name: "Caneta", Category: enums.ProductCategoryBrindes, AvailableQuantity: -1},
		"too many images":  {Name: "Caneta", Category: enums.ProductCategoryBrindes, Images: []string{"a", "b", "c", "d"}},
		"cover too high":   {Name: "Caneta", Category: enums.ProductCategoryBrindes, Images: []string{"a"}, CoverImageIndex: 1},
		"cover no images":  {Name: "Caneta", Category: enums.ProductCategoryBrindes, CoverImageIndex: 2},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.svc.Create(context.Background(), input)
			requireCode(t, err, pkgerrors.CodeValidation)
		})
	}
}

func TestGetMissingProduct(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Get(context.Background(), uuid.New())
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestListFiltersAndSorting(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "Banner", enums.ProductCategoryGrafico, 30)
	env.create(t, "Adesivo", enums.ProductCategoryGrafico, 2)
	env.create(t, "Caneca", enums.ProductCategoryBrindes, 15)
	ctx := context.Background()

	names := func(rows []ProductDTO) []string {
		out := make([]string, len(rows))
		for i, row := range rows {
			out[i] = row.Name
		}
		return out
	}
	assertNames := func(t *testing.T, rows []ProductDTO, want ...string) {
		t.Helper()
		got := names(rows)
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	rows, err := env.svc.List(ctx, ListFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	assertNames(t, rows, "Adesivo", "Banner", "Caneca")

	rows, _ = env.svc.List(ctx, ListFilters{Search: "NE"})
	assertNames(t, rows, "Banner", "Caneca")

	rows, _ = env.svc.List(ctx, ListFilters{Category: "grafico"})
	assertNames(t, rows, "Adesivo", "Banner")

	rows, _ = env.svc.List(ctx, ListFilters{Category: enums.ProductCategoryAll})
	assertNames(t, rows, "Adesivo", "Banner", "Caneca")

	rows, _ = env.svc.List(ctx, ListFilters{SortBy: SortByQuantity, SortOrder: SortDesc})
	assertNames(t, rows, "Banner", "Caneca", "Adesivo")

	rows, _ = env.svc.List(ctx, ListFilters{SortBy: "preco; DROP TABLE produtos", SortOrder: "desc"})
	assertNames(t, rows, "Caneca", "Banner", "Adesivo")

	rows, _ = env.svc.List(ctx, ListFilters{Search: "%"})
	assertNames(t, rows)

	_, err = env.svc.List(ctx, ListFilters{Category: "papelaria"})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestUpdateOnlyChangesPresentFields(t *testing.T) {
	env := newTestEnv(t)
	created := env.create(t, "Totem", enums.ProductCategoryEstruturaLojas, 4, "http://cdn.local/1.png", "http://cdn.local/2.png")
	ctx := context.Background()

	name := "Totem Grande"
	updated, err := env.svc.Update(ctx, created.ID, UpdateProductInput{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != name || updated.AvailableQuantity != 4 || len(updated.Images) != 2 {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if len(env.images.deleted) != 0 {
		t.Fatalf("expected no image cleanup, got %v", env.images.deleted)
	}

	images := []string{"http://cdn.local/2.png"}
	updated, err = env.svc.Update(ctx, created.ID, UpdateProductInput{Images: &images})
	if err != nil {
		t.Fatalf("update images: %v", err)
	}
	if len(updated.Images) != 1 || updated.CoverImageIndex != 0 {
		t.Fatalf("unexpected images after update %+v", updated)
	}
	if len(env.images.deleted) != 1 || env.images.deleted[0] != "http://cdn.local/1.png" {
		t.Fatalf("expected dropped image to be deleted, got %v", env.images.deleted)
	}

	negative := -3
	_, err = env.svc.Update(ctx, created.ID, UpdateProductInput{AvailableQuantity: &negative})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = env.svc.Update(ctx, uuid.New(), UpdateProductInput{Name: &name})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestUpdateRenameToExistingNameConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "Flyer", enums.ProductCategoryGrafico, 1)
	other := env.create(t, "Folder", enums.ProductCategoryGrafico, 1)

	name := "FLYER"
	_, err := env.svc.Update(context.Background(), other.ID, UpdateProductInput{Name: &name})
	requireCode(t, err, pkgerrors.CodeConflict)
}

func TestDeleteKeepsWithdrawalSnapshotAndCleansImages(t *testing.T) {
	env := newTestEnv(t)
	created := env.create(t, "Chaveiro", enums.ProductCategoryBrindes, 9, "http://cdn.local/x.png")
	ctx := context.Background()

	if err := env.conn.Create(&models.Withdrawal{
		ProductID:       created.ID,
		ProductName:     created.Name,
		ProductCategory: created.Category,
		Quantity:        1,
		Destination:     "Loja 1",
		Supervisor:      "Ana",
	}).Error; err != nil {
		t.Fatalf("seed withdrawal: %v", err)
	}

	env.images.deleteErr = errors.New("bucket offline")
	if err := env.svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete should ignore storage failures: %v", err)
	}
	if len(env.images.deleted) != 1 {
		t.Fatalf("expected one cleanup attempt, got %v", env.images.deleted)
	}

	_, err := env.svc.Get(ctx, created.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)

	var kept models.Withdrawal
	if err := env.conn.First(&kept, "produto_id = ?", created.ID).Error; err != nil {
		t.Fatalf("withdrawal row should survive: %v", err)
	}
	if kept.ProductName != "Chaveiro" {
		t.Fatalf("expected snapshot name, got %q", kept.ProductName)
	}

	requireCode(t, env.svc.Delete(ctx, created.ID), pkgerrors.CodeNotFound)
}

func TestListBelowThreshold(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "A", enums.ProductCategoryBrindes, 10)
	env.create(t, "B", enums.ProductCategoryBrindes, 0)
	env.create(t, "C", enums.ProductCategoryBrindes, 11)
	env.create(t, "D", enums.ProductCategoryGrafico, 4)

	rows, err := env.svc.ListBelowThreshold(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 3 || rows[0].Name != "B" || rows[1].Name != "D" || rows[2].Name != "A" {
		t.Fatalf("unexpected low stock rows %+v", rows)
	}

	_, err = env.svc.ListBelowThreshold(context.Background(), -1)
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestGroupByCategory(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "A", enums.ProductCategoryGrafico, 3)
	env.create(t, "B", enums.ProductCategoryGrafico, 4)
	env.create(t, "C", enums.ProductCategoryBrindes, 5)

	groups, err := env.svc.GroupByCategory(context.Background())
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	byCategory := map[enums.ProductCategory]CategoryGroup{}
	for _, group := range groups {
		byCategory[group.Category] = group
	}
	if got := byCategory[enums.ProductCategoryGrafico]; got.Count != 2 || got.TotalQuantity != 7 {
		t.Fatalf("unexpected grafico group %+v", got)
	}
	if got := byCategory[enums.ProductCategoryBrindes]; got.Count != 1 || got.TotalQuantity != 5 {
		t.Fatalf("unexpected brindes group %+v", got)
	}
	if _, ok := byCategory[enums.ProductCategoryEstruturaLojas]; ok {
		t.Fatal("empty categories are not returned by the repository")
	}
}

func TestAddMaterial(t *testing.T) {
	env := newTestEnv(t)
	existing := env.create(t, "Sacola", enums.ProductCategoryBrindes, 5)
	ctx := context.Background()

	result, err := env.svc.AddMaterial(ctx, AddMaterialInput{Name: "sacola", Category: enums.ProductCategoryBrindes, Quantity: 7})
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if result.Created || result.Product.ID != existing.ID || result.Product.AvailableQuantity != 12 {
		t.Fatalf("unexpected restock result %+v", result)
	}
	if env.stock.calls != 1 {
		t.Fatalf("expected restock through the stock adder, got %d calls", env.stock.calls)
	}

	result, err = env.svc.AddMaterial(ctx, AddMaterialInput{Name: "Boné", Category: enums.ProductCategoryBrindes, Quantity: 20})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !result.Created || result.Product.AvailableQuantity != 20 {
		t.Fatalf("unexpected create result %+v", result)
	}

	_, err = env.svc.AddMaterial(ctx, AddMaterialInput{Name: "Sacola", Quantity: 0})
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = env.svc.AddMaterial(ctx, AddMaterialInput{Name: " "})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestImageLifecycle(t *testing.T) {
	env := newTestEnv(t)
	created := env.create(t, "Placa", enums.ProductCategoryEstruturaLojas, 1)
	ctx := context.Background()

	var dto *ProductDTO
	var err error
	for i := 0; i < 3; i++ {
		dto, err = env.svc.AddImage(ctx, created.ID, media.Upload{FileName: fmt.Sprintf("%d.png", i), Body: bytes.NewReader([]byte("img"))})
		if err != nil {
			t.Fatalf("add image %d: %v", i, err)
		}
	}
	if len(dto.Images) != 3 || dto.CoverImageIndex != 0 {
		t.Fatalf("unexpected images %+v", dto)
	}

	_, err = env.svc.AddImage(ctx, created.ID, media.Upload{FileName: "4.png", Body: bytes.NewReader([]byte("img"))})
	requireCode(t, err, pkgerrors.CodeValidation)

	dto, err = env.svc.SetCover(ctx, created.ID, 2)
	if err != nil {
		t.Fatalf("set cover: %v", err)
	}
	coverURL := dto.Images[2]

	dto, err = env.svc.RemoveImage(ctx, created.ID, 0)
	if err != nil {
		t.Fatalf("remove image: %v", err)
	}
	if dto.CoverImageIndex != 1 || dto.Images[1] != coverURL {
		t.Fatalf("expected cover to follow the same picture, got %+v", dto)
	}

	dto, err = env.svc.RemoveImage(ctx, created.ID, 1)
	if err != nil {
		t.Fatalf("remove cover: %v", err)
	}
	if dto.CoverImageIndex != 0 || len(dto.Images) != 1 {
		t.Fatalf("expected cover reset, got %+v", dto)
	}
	if len(env.images.deleted) != 2 {
		t.Fatalf("expected two deleted objects, got %v", env.images.deleted)
	}

	_, err = env.svc.RemoveImage(ctx, created.ID, 5)
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = env.svc.SetCover(ctx, created.ID, 1)
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestRemoveImageAt(t *testing.T) {
	images := []string{"a", "b", "c"}
	cases := []struct {
		cover, index, wantCover int
		want                    string
	}{
		{cover: 0, index: 0, wantCover: 0, want: "[b c]"},
		{cover: 2, index: 0, wantCover: 1, want: "[b c]"},
		{cover: 1, index: 2, wantCover: 1, want: "[a b]"},
		{cover: 1, index: 1, wantCover: 0, want: "[a c]"},
	}
	for _, tc := range cases {
		got, cover := removeImageAt(images, tc.cover, tc.index)
		if fmt.Sprint(got) != tc.want || cover != tc.wantCover {
			t.Fatalf("removeImageAt(cover=%d, index=%d) = %v, %d", tc.cover, tc.index, got, cover)
		}
	}
	if fmt.Sprint(images) != "[a b c]" {
		t.Fatalf("input slice mutated: %v", images)
	}
}
