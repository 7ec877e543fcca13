package stock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	product "github.com/angelmondragon/stockroom-backend/internal/products"
	"github.com/angelmondragon/stockroom-backend/internal/withdrawals"
	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/angelmondragon/stockroom-backend/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	opWithdrawal = "withdrawal"
	opCheckout   = "checkout"
	opAddStock   = "add_stock"
	opRemove     = "remove_stock"
	opValidate   = "validate"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the stock surface used by the HTTP layer.
type Service interface {
	ProcessWithdrawal(ctx context.Context, req WithdrawalRequest) (*WithdrawalResult, error)
	ProcessMultipleWithdrawals(ctx context.Context, req CheckoutRequest) ([]WithdrawalResult, error)
	AddStock(ctx context.Context, productID uuid.UUID, quantity int) (*AdjustmentResult, error)
	RemoveStock(ctx context.Context, req RemoveStockRequest) (*AdjustmentResult, error)
	ValidateWithdrawal(ctx context.Context, productID uuid.UUID, quantity int) (*Validation, error)
}

var _ Service = (*Engine)(nil)

// Engine applies every stock mutation. Each operation runs in one database
// transaction and relies on a guarded UPDATE so concurrent withdrawals can
// never drive a quantity below zero.
type Engine struct {
	tx          txRunner
	products    *product.Repository
	withdrawals withdrawals.Repository
	metrics     *metrics.StockMetrics
	logg        *logger.Logger
}

// NewEngine wires the stock engine. A nil metrics recorder disables metrics.
func NewEngine(tx txRunner, products *product.Repository, withdrawalRepo withdrawals.Repository, stockMetrics *metrics.StockMetrics, logg *logger.Logger) (*Engine, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if withdrawalRepo == nil {
		return nil, fmt.Errorf("withdrawal repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Engine{
		tx:          tx,
		products:    products,
		withdrawals: withdrawalRepo,
		metrics:     stockMetrics,
		logg:        logg,
	}, nil
}

// ProcessWithdrawal records a kiosk withdrawal and decrements the product
// stock atomically.
func (e *Engine) ProcessWithdrawal(ctx context.Context, req WithdrawalRequest) (result *WithdrawalResult, err error) {
	started := time.Now()
	defer func() { e.observe(opWithdrawal, started, err) }()

	if err := validateQuantity(req.Quantity); err != nil {
		return nil, err
	}
	destination, supervisor, err := validateParties(req.Destination, req.Supervisor)
	if err != nil {
		return nil, err
	}

	ctx = e.logg.WithProductID(ctx, req.ProductID.String())
	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		products := e.products.WithTx(tx)
		loaded, err := loadProduct(ctx, products, req.ProductID)
		if err != nil {
			return err
		}
		if req.Quantity > loaded.AvailableQuantity {
			return insufficient(loaded, req.Quantity)
		}
		res, err := e.withdraw(ctx, tx, loaded, req.Quantity, movement{
			destination:  destination,
			supervisor:   supervisor,
			photoURL:     req.PhotoURL,
			signatureURL: req.SignatureURL,
		})
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.AddUnits(opWithdrawal, req.Quantity)
	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"quantity":       req.Quantity,
		"previous_stock": result.PreviousStock,
		"new_stock":      result.NewStock,
	}), "withdrawal recorded")
	return result, nil
}

// ProcessMultipleWithdrawals withdraws every item or none of them. Repeated
// products are merged before stock is checked.
func (e *Engine) ProcessMultipleWithdrawals(ctx context.Context, req CheckoutRequest) (results []WithdrawalResult, err error) {
	started := time.Now()
	defer func() { e.observe(opCheckout, started, err) }()

	items, err := aggregateItems(req.Items)
	if err != nil {
		return nil, err
	}
	destination, supervisor, err := validateParties(req.Destination, req.Supervisor)
	if err != nil {
		return nil, err
	}

	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		products := e.products.WithTx(tx)

		loaded := make([]*models.Product, len(items))
		for i, item := range items {
			p, err := loadProduct(ctx, products, item.ProductID)
			if err != nil {
				return err
			}
			if item.Quantity > p.AvailableQuantity {
				return insufficient(p, item.Quantity)
			}
			loaded[i] = p
		}

		// Rows are locked in product id order so crossed carts cannot deadlock.
		out := make([]WithdrawalResult, len(items))
		for _, i := range lockOrder(items) {
			res, err := e.withdraw(ctx, tx, loaded[i], items[i].Quantity, movement{
				destination:  destination,
				supervisor:   supervisor,
				photoURL:     req.PhotoURL,
				signatureURL: req.SignatureURL,
			})
			if err != nil {
				return err
			}
			out[i] = *res
		}
		results = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	units := 0
	for _, item := range items {
		units += item.Quantity
	}
	e.metrics.AddUnits(opCheckout, units)
	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"lines":       len(results),
		"total_units": units,
	}), "checkout recorded")
	return results, nil
}

// AddStock increases the available quantity of a product.
func (e *Engine) AddStock(ctx context.Context, productID uuid.UUID, quantity int) (result *AdjustmentResult, err error) {
	started := time.Now()
	defer func() { e.observe(opAddStock, started, err) }()

	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}

	ctx = e.logg.WithProductID(ctx, productID.String())
	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		products := e.products.WithTx(tx)
		loaded, err := loadProduct(ctx, products, productID)
		if err != nil {
			return err
		}
		if loaded.AvailableQuantity > models.MaxStockQuantity-quantity {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("stock of %s cannot exceed %d", loaded.Name, models.MaxStockQuantity))
		}
		ok, err := products.Increment(ctx, productID, quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment stock")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		current, err := loadProduct(ctx, products, productID)
		if err != nil {
			return err
		}
		result = &AdjustmentResult{
			ProductID:     loaded.ID,
			ProductName:   loaded.Name,
			PreviousStock: current.AvailableQuantity - quantity,
			NewStock:      current.AvailableQuantity,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.AddUnits(opAddStock, quantity)
	e.logg.Info(e.logg.WithField(ctx, "quantity", quantity), "stock added")
	return result, nil
}

// Restock adds stock on behalf of the catalog's add-materials flow.
func (e *Engine) Restock(ctx context.Context, productID uuid.UUID, quantity int) error {
	_, err := e.AddStock(ctx, productID, quantity)
	return err
}

// RemoveStock lowers the available quantity and records a manual adjustment
// row carrying the reason.
func (e *Engine) RemoveStock(ctx context.Context, req RemoveStockRequest) (result *AdjustmentResult, err error) {
	started := time.Now()
	defer func() { e.observe(opRemove, started, err) }()

	if err := validateQuantity(req.Quantity); err != nil {
		return nil, err
	}
	supervisor := strings.TrimSpace(req.ActorName)
	if supervisor == "" {
		supervisor = ManualAdjustmentSupervisor
	}
	var reason *string
	if trimmed := strings.TrimSpace(req.Reason); trimmed != "" {
		reason = &trimmed
	}

	ctx = e.logg.WithProductID(ctx, req.ProductID.String())
	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		products := e.products.WithTx(tx)
		loaded, err := loadProduct(ctx, products, req.ProductID)
		if err != nil {
			return err
		}
		if req.Quantity > loaded.AvailableQuantity {
			return insufficient(loaded, req.Quantity)
		}
		res, err := e.withdraw(ctx, tx, loaded, req.Quantity, movement{
			kind:        enums.MovementKindManualAdjustment,
			destination: ManualAdjustmentDestination,
			supervisor:  supervisor,
			reason:      reason,
		})
		if err != nil {
			return err
		}
		result = &AdjustmentResult{
			ProductID:     loaded.ID,
			ProductName:   loaded.Name,
			PreviousStock: res.PreviousStock,
			NewStock:      res.NewStock,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.AddUnits(opRemove, req.Quantity)
	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"quantity":   req.Quantity,
		"supervisor": supervisor,
	}), "stock removed")
	return result, nil
}

// ValidateWithdrawal reports whether quantity could be withdrawn now. It
// never mutates stock; only store failures are returned as errors.
func (e *Engine) ValidateWithdrawal(ctx context.Context, productID uuid.UUID, quantity int) (result *Validation, err error) {
	started := time.Now()
	defer func() { e.observe(opValidate, started, err) }()

	if quantity <= 0 {
		return &Validation{Valid: false, Message: "quantity must be greater than zero"}, nil
	}
	loaded, err := loadProduct(ctx, e.products, productID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) || pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			return &Validation{Valid: false, Message: pkgerrors.As(err).Message()}, nil
		}
		return nil, err
	}
	available := loaded.AvailableQuantity
	if quantity > available {
		return &Validation{
			Valid:          false,
			AvailableStock: &available,
			Message:        fmt.Sprintf("insufficient stock: available %d, requested %d", available, quantity),
		}, nil
	}
	return &Validation{Valid: true, AvailableStock: &available}, nil
}

type movement struct {
	kind         enums.MovementKind
	destination  string
	supervisor   string
	photoURL     *string
	signatureURL *string
	reason       *string
}

// withdraw appends the movement row and applies the guarded decrement inside
// tx. The caller has already checked availability against a fresh read; a
// rejected decrement means another writer got there first.
func (e *Engine) withdraw(ctx context.Context, tx *gorm.DB, p *models.Product, quantity int, m movement) (*WithdrawalResult, error) {
	products := e.products.WithTx(tx)
	kind := m.kind
	if kind == "" {
		kind = enums.MovementKindWithdrawal
	}

	row := &models.Withdrawal{
		ProductID:       p.ID,
		ProductName:     p.Name,
		ProductCategory: p.Category,
		Quantity:        quantity,
		Destination:     m.destination,
		Supervisor:      m.supervisor,
		PhotoURL:        m.photoURL,
		SignatureURL:    m.signatureURL,
		Kind:            kind,
		Reason:          m.reason,
	}
	if err := e.withdrawals.WithTx(tx).Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert withdrawal")
	}

	ok, err := products.DecrementIfAvailable(ctx, p.ID, quantity)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stock")
	}
	current, err := loadProduct(ctx, products, p.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, insufficient(current, quantity)
	}

	name := current.Name
	category := string(current.Category)
	dto := withdrawals.NewWithdrawalDTO(withdrawals.Record{
		Withdrawal:      *row,
		CurrentName:     &name,
		CurrentCategory: &category,
	})
	return &WithdrawalResult{
		Withdrawal:    dto,
		PreviousStock: current.AvailableQuantity + quantity,
		NewStock:      current.AvailableQuantity,
	}, nil
}

func (e *Engine) observe(operation string, started time.Time, err error) {
	e.metrics.Observe(operation, outcomeFor(err), time.Since(started))
}

func outcomeFor(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	switch pkgerrors.As(err).Code() {
	case pkgerrors.CodeInsufficient:
		return metrics.OutcomeInsufficient
	case pkgerrors.CodeNotFound:
		return metrics.OutcomeNotFound
	case pkgerrors.CodeValidation:
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}

func loadProduct(ctx context.Context, repo *product.Repository, id uuid.UUID) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	p, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return p, nil
}

func insufficient(p *models.Product, requested int) error {
	return pkgerrors.New(
		pkgerrors.CodeInsufficient,
		fmt.Sprintf("insufficient stock for %s: available %d, requested %d", p.Name, p.AvailableQuantity, requested),
	).WithDetails(InsufficientStockDetails{
		ProductID:   p.ID,
		ProductName: p.Name,
		Available:   p.AvailableQuantity,
		Requested:   requested,
	})
}

func validateQuantity(quantity int) error {
	if quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	if quantity > models.MaxStockQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be at most %d", models.MaxStockQuantity))
	}
	return nil
}

func validateParties(destination, supervisor string) (string, string, error) {
	destination = strings.TrimSpace(destination)
	supervisor = strings.TrimSpace(supervisor)
	if destination == "" {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "destination is required")
	}
	if supervisor == "" {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "supervisor is required")
	}
	return destination, supervisor, nil
}

// lockOrder returns the indexes of items sorted by product id.
func lockOrder(items []CheckoutItem) []int {
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		return bytes.Compare(items[a].ProductID[:], items[b].ProductID[:])
	})
	return order
}

// aggregateItems merges lines of the same product, keeping the order in which
// products first appear.
func aggregateItems(items []CheckoutItem) ([]CheckoutItem, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	index := make(map[uuid.UUID]int, len(items))
	out := make([]CheckoutItem, 0, len(items))
	for i, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d].product_id is required", i))
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d].quantity must be greater than zero", i))
		}
		if item.Quantity > models.MaxStockQuantity {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d].quantity must be at most %d", i, models.MaxStockQuantity))
		}
		if pos, ok := index[item.ProductID]; ok {
			if out[pos].Quantity > models.MaxStockQuantity-item.Quantity {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d].quantity must be at most %d", i, models.MaxStockQuantity))
			}
			out[pos].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out, nil
}
