package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockroom-backend/pkg/enums"
)

// Withdrawal is an append-only row of the retiradas log. Kind distinguishes
// field withdrawals from manual stock corrections.
type Withdrawal struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	ProductID       uuid.UUID             `gorm:"column:produto_id;type:uuid;not null"`
	ProductName     string                `gorm:"column:produto_nome;not null"`
	ProductCategory enums.ProductCategory `gorm:"column:produto_categoria;type:text;not null"`
	Quantity        int                   `gorm:"column:quantidade;not null"`
	Destination     string                `gorm:"column:destino;not null"`
	Supervisor      string                `gorm:"column:supervisor;not null"`
	PhotoURL        *string               `gorm:"column:foto_url"`
	SignatureURL    *string               `gorm:"column:assinatura_url"`
	Kind            enums.MovementKind    `gorm:"column:tipo;type:text;not null"`
	Reason          *string               `gorm:"column:motivo"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (Withdrawal) TableName() string { return "retiradas" }

func (w *Withdrawal) BeforeCreate(_ *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.Kind == "" {
		w.Kind = enums.MovementKindWithdrawal
	}
	return nil
}
