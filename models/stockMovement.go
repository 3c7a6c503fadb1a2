package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MovementType string

const (
	MovementSale       MovementType = "SALE"
	MovementReturn     MovementType = "RETURN"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementPurchase   MovementType = "PURCHASE"
	MovementTransfer   MovementType = "TRANSFER"
	MovementDamaged    MovementType = "DAMAGED"
)

// StockMovement is an append-only audit record. Quantity is signed: negative when
// stock leaves, positive when it comes back.
type StockMovement struct {
	ID          string       `json:"id" gorm:"primaryKey;size:36"`
	TenantID    string       `json:"tenant_id" gorm:"size:36;not null;index:idx_stock_movements_tenant_product,priority:1"`
	ProductID   string       `json:"product_id" gorm:"size:36;not null;index:idx_stock_movements_tenant_product,priority:2"`
	WarehouseID string       `json:"warehouse_id" gorm:"size:36;not null"`
	UserID      *string      `json:"user_id" gorm:"size:36"`
	Type        MovementType `json:"type" gorm:"type:varchar(20);not null"`
	Quantity    int          `json:"quantity" gorm:"not null"`
	Reason      string       `json:"reason"`
	InvoiceID   *string      `json:"invoice_id" gorm:"size:36;index"`
	CreatedAt   time.Time    `json:"created_at"`
}

func (movement *StockMovement) BeforeCreate(tx *gorm.DB) (err error) {
	if movement.ID == "" {
		movement.ID = uuid.NewString()
	}
	return
}
