package withdrawals

import (
	"time"

	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	"github.com/google/uuid"
)

// Filters narrow the withdrawal history. Date bounds are inclusive.
type Filters struct {
	Search      string
	Supervisor  string
	Destination string
	DateFrom    *time.Time
	DateTo      *time.Time
	Kind        *enums.MovementKind
	ProductID   *uuid.UUID
	Limit       int
}

// WithdrawalDTO is the movement payload returned to clients.
type WithdrawalDTO struct {
	ID              uuid.UUID             `json:"id"`
	ProductID       uuid.UUID             `json:"product_id"`
	ProductName     string                `json:"product_name"`
	ProductCategory enums.ProductCategory `json:"product_category"`
	CategoryLabel   string                `json:"category_label"`
	Quantity        int                   `json:"quantity"`
	Destination     string                `json:"destination"`
	Supervisor      string                `json:"supervisor"`
	PhotoURL        *string               `json:"photo_url,omitempty"`
	SignatureURL    *string               `json:"signature_url,omitempty"`
	Kind            enums.MovementKind    `json:"kind"`
	Reason          *string               `json:"reason,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}

// NewWithdrawalDTO maps a joined record.
func NewWithdrawalDTO(record Record) WithdrawalDTO {
	category := record.DisplayCategory()
	return WithdrawalDTO{
		ID:              record.ID,
		ProductID:       record.ProductID,
		ProductName:     record.DisplayName(),
		ProductCategory: category,
		CategoryLabel:   category.Label(),
		Quantity:        record.Quantity,
		Destination:     record.Destination,
		Supervisor:      record.Supervisor,
		PhotoURL:        record.PhotoURL,
		SignatureURL:    record.SignatureURL,
		Kind:            record.Kind,
		Reason:          record.Reason,
		CreatedAt:       record.CreatedAt,
	}
}

// NewWithdrawalDTOs maps a slice of records.
func NewWithdrawalDTOs(records []Record) []WithdrawalDTO {
	out := make([]WithdrawalDTO, 0, len(records))
	for _, record := range records {
		out = append(out, NewWithdrawalDTO(record))
	}
	return out
}

// MovementStats summarises withdrawals of kind withdrawal in a range.
type MovementStats struct {
	From             time.Time          `json:"from"`
	To               time.Time          `json:"to"`
	TotalWithdrawals int64              `json:"total_withdrawals"`
	TotalItems       int64              `json:"total_items"`
	ByCategory       []CategoryQuantity `json:"by_category"`
	TopProducts      []ProductQuantity  `json:"top_products"`
}
