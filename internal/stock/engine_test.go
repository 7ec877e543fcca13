package stock

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	product "github.com/angelmondragon/stockroom-backend/internal/products"
	"github.com/angelmondragon/stockroom-backend/internal/withdrawals"
	"github.com/angelmondragon/stockroom-backend/pkg/db"
	"github.com/angelmondragon/stockroom-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/angelmondragon/stockroom-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

type engineEnv struct {
	conn     *gorm.DB
	products *product.Repository
	engine   *Engine
	registry *prometheus.Registry
}

func newEngineEnv(t *testing.T) *engineEnv {
	t.Helper()
	conn := dbtest.Open(t)
	products := product.NewRepository(conn)
	reg := prometheus.NewRegistry()
	engine, err := NewEngine(
		db.FromGorm(conn),
		products,
		withdrawals.NewRepository(conn),
		metrics.NewStockMetrics(reg),
		logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &engineEnv{conn: conn, products: products, engine: engine, registry: reg}
}

func (e *engineEnv) seed(t *testing.T, name string, quantity int) *models.Product {
	t.Helper()
	p := &models.Product{Name: name, Category: enums.ProductCategoryGrafico, AvailableQuantity: quantity}
	if err := e.products.Create(context.Background(), p); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
	return p
}

func (e *engineEnv) quantity(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, err := e.products.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load product: %v", err)
	}
	return p.AvailableQuantity
}

func (e *engineEnv) movements(t *testing.T, kind enums.MovementKind) []models.Withdrawal {
	t.Helper()
	var rows []models.Withdrawal
	if err := e.conn.Where("tipo = ?", kind).Order("created_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load movements: %v", err)
	}
	return rows
}

func (e *engineEnv) counter(t *testing.T, operation, outcome string) float64 {
	t.Helper()
	families, err := e.registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "stockroom_stock_operations_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["operation"] == operation && labels["outcome"] == outcome {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
	return typed
}

func withdrawal(id uuid.UUID, quantity int) WithdrawalRequest {
	return WithdrawalRequest{
		ProductID:   id,
		Quantity:    quantity,
		Destination: "Loja Centro",
		Supervisor:  "Marina",
	}
}

func TestNewEngineRequiresDependencies(t *testing.T) {
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{Output: io.Discard})
	if _, err := NewEngine(nil, product.NewRepository(conn), withdrawals.NewRepository(conn), nil, logg); err == nil {
		t.Fatal("expected error for missing tx runner")
	}
	if _, err := NewEngine(db.FromGorm(conn), nil, withdrawals.NewRepository(conn), nil, logg); err == nil {
		t.Fatal("expected error for missing product repository")
	}
	if _, err := NewEngine(db.FromGorm(conn), product.NewRepository(conn), nil, nil, logg); err == nil {
		t.Fatal("expected error for missing withdrawal repository")
	}
	if _, err := NewEngine(db.FromGorm(conn), product.NewRepository(conn), withdrawals.NewRepository(conn), nil, nil); err == nil {
		t.Fatal("expected error for missing logger")
	}
}

func TestProcessWithdrawalDecrementsStock(t *testing.T) {
	env := newEngineEnv(t)
	banner := env.seed(t, "Banner", 10)
	photo := "http://minio.local/retiradas/fotos/1.png"

	req := withdrawal(banner.ID, 4)
	req.Destination = "  Loja Centro  "
	req.PhotoURL = &photo
	res, err := env.engine.ProcessWithdrawal(context.Background(), req)
	if err != nil {
		t.Fatalf("process withdrawal: %v", err)
	}
	if res.PreviousStock != 10 || res.NewStock != 6 {
		t.Fatalf("expected 10 -> 6, got %d -> %d", res.PreviousStock, res.NewStock)
	}
	if res.Withdrawal.ProductName != "Banner" || res.Withdrawal.Kind != enums.MovementKindWithdrawal {
		t.Fatalf("unexpected withdrawal payload: %+v", res.Withdrawal)
	}
	if res.Withdrawal.Destination != "Loja Centro" {
		t.Fatalf("expected trimmed destination, got %q", res.Withdrawal.Destination)
	}

	listed, err := env.products.List(context.Background(), product.ListFilters{})
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(listed) != 1 || listed[0].AvailableQuantity != 6 {
		t.Fatalf("expected listed quantity 6, got %+v", listed)
	}

	rows := env.movements(t, enums.MovementKindWithdrawal)
	if len(rows) != 1 {
		t.Fatalf("expected one withdrawal row, got %d", len(rows))
	}
	if rows[0].Quantity != 4 || rows[0].ProductName != "Banner" || rows[0].ProductCategory != enums.ProductCategoryGrafico {
		t.Fatalf("unexpected stored row: %+v", rows[0])
	}
	if rows[0].PhotoURL == nil || *rows[0].PhotoURL != photo {
		t.Fatalf("expected photo url to be stored")
	}
	if got := env.counter(t, opWithdrawal, metrics.OutcomeSuccess); got != 1 {
		t.Fatalf("expected one successful withdrawal metric, got %f", got)
	}
}

func TestProcessWithdrawalExactQuantityLeavesZero(t *testing.T) {
	env := newEngineEnv(t)
	p := env.seed(t, "Cavalete", 3)

	res, err := env.engine.ProcessWithdrawal(context.Background(), withdrawal(p.ID, 3))
	if err != nil {
		t.Fatalf("process withdrawal: %v", err)
	}
	if res.NewStock != 0 || env.quantity(t, p.ID) != 0 {
		t.Fatalf("expected stock to reach zero")
	}
}

func TestProcessWithdrawalInsufficientStock(t *testing.T) {
	env := newEngineEnv(t)
	banner := env.seed(t, "Banner", 3)

	_, err := env.engine.ProcessWithdrawal(context.Background(), withdrawal(banner.ID, 5))
	typed := requireCode(t, err, pkgerrors.CodeInsufficient)
	details, ok := typed.Details().(InsufficientStockDetails)
	if !ok {
		t.Fatalf("expected insufficient stock details, got %T", typed.Details())
	}
	if details.Available != 3 || details.Requested != 5 || details.ProductID != banner.ID || details.ProductName != "Banner" {
		t.Fatalf("unexpected details: %+v", details)
	}
	if env.quantity(t, banner.ID) != 3 {
		t.Fatalf("quantity must be unchanged")
	}
	if rows := env.movements(t, enums.MovementKindWithdrawal); len(rows) != 0 {
		t.Fatalf("expected no withdrawal rows, got %d", len(rows))
	}
	if got := env.counter(t, opWithdrawal, metrics.OutcomeInsufficient); got != 1 {
		t.Fatalf("expected insufficient metric, got %f", got)
	}
}

func TestProcessWithdrawalValidation(t *testing.T) {
	env := newEngineEnv(t)
	p := env.seed(t, "Banner", 3)

	cases := []struct {
		name string
		req  WithdrawalRequest
		code pkgerrors.Code
	}{
		{name: "zero quantity", req: withdrawal(p.ID, 0), code: pkgerrors.CodeValidation},
		{name: "negative quantity", req: withdrawal(p.ID, -2), code: pkgerrors.CodeValidation},
		{name: "blank destination", req: WithdrawalRequest{ProductID: p.ID, Quantity: 1, Destination: "  ", Supervisor: "Marina"}, code: pkgerrors.CodeValidation},
		{name: "blank supervisor", req: WithdrawalRequest{ProductID: p.ID, Quantity: 1, Destination: "Loja", Supervisor: ""}, code: pkgerrors.CodeValidation},
		{name: "missing product", req: withdrawal(uuid.New(), 1), code: pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.ProcessWithdrawal(context.Background(), tc.req)
			requireCode(t, err, tc.code)
		})
	}
	if env.quantity(t, p.ID) != 3 {
		t.Fatalf("quantity must be unchanged")
	}
}

func TestProcessWithdrawalRollsBackWhenStockUpdateFails(t *testing.T) {
	env := newEngineEnv(t)
	p := env.seed(t, "Banner", 10)
	dbtest.FailStockUpdates(t, env.conn)

	_, err := env.engine.ProcessWithdrawal(context.Background(), withdrawal(p.ID, 2))
	requireCode(t, err, pkgerrors.CodeDependency)

	if rows := env.movements(t, enums.MovementKindWithdrawal); len(rows) != 0 {
		t.Fatalf("expected the withdrawal row to be rolled back, got %d rows", len(rows))
	}
	if env.quantity(t, p.ID) != 10 {
		t.Fatalf("quantity must be unchanged")
	}
}

func TestConcurrentWithdrawalsNeverOversell(t *testing.T) {
	env := newEngineEnv(t)
	p := env.seed(t, "Brinde", 5)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
		unexpected   []error
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.ProcessWithdrawal(context.Background(), withdrawal(p.ID, 1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case pkgerrors.IsCode(err, pkgerrors.CodeInsufficient):
				insufficient++
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}
	wg.Wait()

	if len(unexpected) > 0 {
		t.Fatalf("unexpected errors: %v", unexpected)
	}
	if succeeded != 5 || insufficient != 5 {
		t.Fatalf("expected 5 successes and 5 rejections, got %d and %d", succeeded, insufficient)
	}
	if env.quantity(t, p.ID) != 0 {
		t.Fatalf("expected stock to reach zero")
	}
	if rows := env.movements(t, enums.MovementKindWithdrawal); len(rows) != 5 {
		t.Fatalf("expected 5 withdrawal rows, got %d", len(rows))
	}
}

func TestProcessMultipleWithdrawals(t *testing.T) {
	env := newEngineEnv(t)
	a := env.seed(t, "Banner", 10)
	b := env.seed(t, "Caneca", 5)

	results, err := env.engine.ProcessMultipleWithdrawals(context.Background(), CheckoutRequest{
		Items: []CheckoutItem{
			{ProductID: a.ID, Quantity: 2},
			{ProductID: b.ID, Quantity: 5},
			{ProductID: a.ID, Quantity: 1},
		},
		Destination: "Loja Norte",
		Supervisor:  "Paulo",
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected repeated products to be merged, got %d results", len(results))
	}
	if results[0].Withdrawal.ProductID != a.ID || results[0].PreviousStock != 10 || results[0].NewStock != 7 {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if results[1].Withdrawal.ProductID != b.ID || results[1].NewStock != 0 {
		t.Fatalf("unexpected second result: %+v", results[1])
	}
	if env.quantity(t, a.ID) != 7 || env.quantity(t, b.ID) != 0 {
		t.Fatalf("unexpected stock after checkout")
	}
}

func TestProcessMultipleWithdrawalsMutatesNothingOnBadLine(t *testing.T) {
	env := newEngineEnv(t)
	a := env.seed(t, "Banner", 10)
	b := env.seed(t, "Caneca", 5)

	_, err := env.engine.ProcessMultipleWithdrawals(context.Background(), CheckoutRequest{
		Items: []CheckoutItem{
			{ProductID: a.ID, Quantity: 2},
			{ProductID: b.ID, Quantity: 1000},
		},
		Destination: "Loja Norte",
		Supervisor:  "Paulo",
	})
	typed := requireCode(t, err, pkgerrors.CodeInsufficient)
	if details := typed.Details().(InsufficientStockDetails); details.ProductID != b.ID || details.Available != 5 {
		t.Fatalf("expected details to name the failing product, got %+v", details)
	}
	if env.quantity(t, a.ID) != 10 || env.quantity(t, b.ID) != 5 {
		t.Fatalf("stock must be unchanged")
	}
	if rows := env.movements(t, enums.MovementKindWithdrawal); len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}

	_, err = env.engine.ProcessMultipleWithdrawals(context.Background(), CheckoutRequest{
		Items: []CheckoutItem{
			{ProductID: a.ID, Quantity: 6},
			{ProductID: a.ID, Quantity: 6},
		},
		Destination: "Loja Norte",
		Supervisor:  "Paulo",
	})
	requireCode(t, err, pkgerrors.CodeInsufficient)
	if env.quantity(t, a.ID) != 10 {
		t.Fatalf("merged lines above stock must not mutate")
	}
}

func TestProcessMultipleWithdrawalsValidation(t *testing.T) {
	env := newEngineEnv(t)
	a := env.seed(t, "Banner", 10)

	_, err := env.engine.ProcessMultipleWithdrawals(context.Background(), CheckoutRequest{Destination: "Loja", Supervisor: "Paulo"})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = env.engine.ProcessMultipleWithdrawals(context.Background(), CheckoutRequest{
		Items:       []CheckoutItem{{ProductID: a.ID, Quantity: 0}},
		Destination: "Loja",
		Supervisor:  "Paulo",
	})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = env.engine.ProcessMultipleWithdrawals(context.Background(), CheckoutRequest{
		Items:       []CheckoutItem{{ProductID: a.ID, Quantity: 1}, {ProductID: uuid.New(), Quantity: 1}},
		Destination: "Loja",
		Supervisor:  "Paulo",
	})
	requireCode(t, err, pkgerrors.CodeNotFound)
	if env.quantity(t, a.ID) != 10 {
		t.Fatalf("stock must be unchanged")
	}
}

func TestRemoveStockAppendsManualAdjustment(t *testing.T) {
	env := newEngineEnv(t)
	banner := env.seed(t, "Banner", 6)

	res, err := env.engine.RemoveStock(context.Background(), RemoveStockRequest{ProductID: banner.ID, Quantity: 2, Reason: "correction"})
	if err != nil {
		t.Fatalf("remove stock: %v", err)
	}
	if res.PreviousStock != 6 || res.NewStock != 4 || env.quantity(t, banner.ID) != 4 {
		t.Fatalf("expected 6 -> 4, got %+v", res)
	}

	rows := env.movements(t, enums.MovementKindManualAdjustment)
	if len(rows) != 1 {
		t.Fatalf("expected one adjustment row, got %d", len(rows))
	}
	row := rows[0]
	if row.Destination != ManualAdjustmentDestination || row.Supervisor != ManualAdjustmentSupervisor {
		t.Fatalf("unexpected adjustment parties: %+v", row)
	}
	if row.Reason == nil || *row.Reason != "correction" || row.Quantity != 2 {
		t.Fatalf("unexpected adjustment row: %+v", row)
	}
	if rows := env.movements(t, enums.MovementKindWithdrawal); len(rows) != 0 {
		t.Fatalf("adjustments must not be recorded as withdrawals")
	}
}

func TestRemoveStockUsesActorNameAndRejectsOverdraw(t *testing.T) {
	env := newEngineEnv(t)
	p := env.seed(t, "Banner", 2)

	_, err := env.engine.RemoveStock(context.Background(), RemoveStockRequest{ProductID: p.ID, Quantity: 3, Reason: "perda"})
	requireCode(t, err, pkgerrors.CodeInsufficient)

	if _, err := env.engine.RemoveStock(context.Background(), RemoveStockRequest{ProductID: p.ID, Quantity: 1, ActorName: "Ana Admin"}); err != nil {
		t.Fatalf("remove stock: %v", err)
	}
	rows := env.movements(t, enums.MovementKindManualAdjustment)
	if len(rows) != 1 || rows[0].Supervisor != "Ana Admin" || rows[0].Reason != nil {
		t.Fatalf("unexpected adjustment rows: %+v", rows)
	}
}

func TestAddThenRemoveRestoresQuantity(t *testing.T) {
	env := newEngineEnv(t)
	p := env.seed(t, "Banner", 7)

	added, err := env.engine.AddStock(context.Background(), p.ID, 5)
	if err != nil {
		t.Fatalf("add stock: %v", err)
	}
	if added.PreviousStock != 7 || added.NewStock != 12 {
		t.Fatalf("expected 7 -> 12, got %+v", added)
	}
	if _, err := env.engine.RemoveStock(context.Background(), RemoveStockRequest{ProductID: p.ID, Quantity: 5, Reason: "estorno"}); err != nil {
		t.Fatalf("remove stock: %v", err)
	}
	if env.quantity(t, p.ID) != 7 {
		t.Fatalf("expected original quantity to be restored")
	}
	if rows := env.movements(t, enums.MovementKindManualAdjustment); len(rows) != 1 {
		t.Fatalf("expected exactly one adjustment row, got %d", len(rows))
	}
}

func TestAddStockValidation(t *testing.T) {
	env := newEngineEnv(t)
	p := env.seed(t, "Banner", 1)

	_, err := env.engine.AddStock(context.Background(), p.ID, 0)
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = env.engine.AddStock(context.Background(), uuid.New(), 1)
	requireCode(t, err, pkgerrors.CodeNotFound)

	if err := env.engine.Restock(context.Background(), p.ID, 4); err != nil {
		t.Fatalf("restock: %v", err)
	}
	if env.quantity(t, p.ID) != 5 {
		t.Fatalf("expected restock to add units")
	}
}

func TestValidateWithdrawal(t *testing.T) {
	env := newEngineEnv(t)
	p := env.seed(t, "Banner", 4)
	ctx := context.Background()

	ok, err := env.engine.ValidateWithdrawal(ctx, p.ID, 4)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !ok.Valid || ok.AvailableStock == nil || *ok.AvailableStock != 4 {
		t.Fatalf("expected valid result with stock 4, got %+v", ok)
	}

	tooMany, err := env.engine.ValidateWithdrawal(ctx, p.ID, 5)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if tooMany.Valid || tooMany.AvailableStock == nil || *tooMany.AvailableStock != 4 || tooMany.Message == "" {
		t.Fatalf("expected invalid result with stock, got %+v", tooMany)
	}

	missing, err := env.engine.ValidateWithdrawal(ctx, uuid.New(), 1)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if missing.Valid || missing.AvailableStock != nil {
		t.Fatalf("expected invalid result for missing product, got %+v", missing)
	}

	zero, err := env.engine.ValidateWithdrawal(ctx, p.ID, 0)
	if err != nil || zero.Valid {
		t.Fatalf("expected zero quantity to be invalid, got %+v %v", zero, err)
	}
	if env.quantity(t, p.ID) != 4 {
		t.Fatalf("validation must not mutate stock")
	}
}

func TestAggregateItems(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	items, err := aggregateItems([]CheckoutItem{{ProductID: b, Quantity: 1}, {ProductID: a, Quantity: 2}, {ProductID: b, Quantity: 3}})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(items) != 2 || items[0].ProductID != b || items[0].Quantity != 4 || items[1].ProductID != a {
		t.Fatalf("unexpected aggregation: %+v", items)
	}
	if _, err := aggregateItems([]CheckoutItem{{ProductID: uuid.Nil, Quantity: 1}}); err == nil {
		t.Fatal("expected error for missing product id")
	}
}

func TestLockOrderSortsByProductID(t *testing.T) {
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	mid := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")
	order := lockOrder([]CheckoutItem{{ProductID: high}, {ProductID: low}, {ProductID: mid}})
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 0 {
		t.Fatalf("unexpected lock order %v", order)
	}
}

func TestProcessMultipleWithdrawalsKeepsCartOrder(t *testing.T) {
	env := newEngineEnv(t)
	a := env.seed(t, "Banner", 10)
	b := env.seed(t, "Caneca", 10)
	first, second := a, b
	if bytes.Compare(a.ID[:], b.ID[:]) < 0 {
		first, second = b, a
	}

	results, err := env.engine.ProcessMultipleWithdrawals(context.Background(), CheckoutRequest{
		Items:       []CheckoutItem{{ProductID: first.ID, Quantity: 1}, {ProductID: second.ID, Quantity: 2}},
		Destination: "Loja Norte",
		Supervisor:  "Paulo",
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if results[0].Withdrawal.ProductID != first.ID || results[0].NewStock != 9 {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if results[1].Withdrawal.ProductID != second.ID || results[1].NewStock != 8 {
		t.Fatalf("unexpected second result: %+v", results[1])
	}
}

func TestQuantitiesAreBoundedByColumnRange(t *testing.T) {
	env := newEngineEnv(t)
	ctx := context.Background()
	p := env.seed(t, "Banner", models.MaxStockQuantity-1)

	_, err := env.engine.AddStock(ctx, p.ID, models.MaxStockQuantity+1)
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = env.engine.AddStock(ctx, p.ID, 2)
	requireCode(t, err, pkgerrors.CodeValidation)
	if env.quantity(t, p.ID) != models.MaxStockQuantity-1 {
		t.Fatalf("rejected add must not change stock")
	}
	if _, err := env.engine.AddStock(ctx, p.ID, 1); err != nil {
		t.Fatalf("add up to the limit: %v", err)
	}

	_, err = env.engine.ProcessWithdrawal(ctx, withdrawal(p.ID, models.MaxStockQuantity+1))
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = aggregateItems([]CheckoutItem{
		{ProductID: p.ID, Quantity: models.MaxStockQuantity},
		{ProductID: p.ID, Quantity: 1},
	})
	requireCode(t, err, pkgerrors.CodeValidation)
}
