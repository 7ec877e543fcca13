package stock

import (
	"github.com/angelmondragon/stockroom-backend/internal/withdrawals"
	"github.com/google/uuid"
)

// Destination and supervisor written on manual adjustment rows. The kind
// column identifies the row; these keep the legacy text columns readable.
const (
	ManualAdjustmentDestination = "AJUSTE_MANUAL"
	ManualAdjustmentSupervisor  = "SISTEMA"
)

// WithdrawalRequest is a single kiosk withdrawal.
type WithdrawalRequest struct {
	ProductID    uuid.UUID
	Quantity     int
	Destination  string
	Supervisor   string
	PhotoURL     *string
	SignatureURL *string
}

// CheckoutItem is one line of a multi-item withdrawal.
type CheckoutItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// CheckoutRequest withdraws several products for the same destination.
type CheckoutRequest struct {
	Items        []CheckoutItem
	Destination  string
	Supervisor   string
	PhotoURL     *string
	SignatureURL *string
}

// WithdrawalResult reports the stored row and the stock before and after it.
type WithdrawalResult struct {
	Withdrawal    withdrawals.WithdrawalDTO `json:"withdrawal"`
	PreviousStock int                       `json:"previous_stock"`
	NewStock      int                       `json:"new_stock"`
}

// AdjustmentResult reports a manual stock change.
type AdjustmentResult struct {
	ProductID     uuid.UUID `json:"product_id"`
	ProductName   string    `json:"product_name"`
	PreviousStock int       `json:"previous_stock"`
	NewStock      int       `json:"new_stock"`
}

// RemoveStockRequest describes a manual stock removal.
type RemoveStockRequest struct {
	ProductID uuid.UUID
	Quantity  int
	Reason    string
	// ActorName is the admin performing the change, when known.
	ActorName string
}

// Validation answers whether a withdrawal could go through right now.
type Validation struct {
	Valid          bool   `json:"valid"`
	AvailableStock *int   `json:"available_stock,omitempty"`
	Message        string `json:"message,omitempty"`
}

// InsufficientStockDetails is attached to INSUFFICIENT_STOCK errors.
type InsufficientStockDetails struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Available   int       `json:"available"`
	Requested   int       `json:"requested"`
}
