package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID          string          `json:"id" gorm:"primaryKey;size:36"`
	TenantID    string          `json:"tenant_id" gorm:"size:36;not null;index"`
	Name        string          `json:"name" gorm:"not null"`
	SKU         string          `json:"sku" gorm:"size:64"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:decimal(18,4);not null;default:0"`
	Stock       int             `json:"stock" gorm:"not null;default:0"`
	Active      bool            `json:"active" gorm:"not null;default:true"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (product *Product) BeforeCreate(tx *gorm.DB) (err error) {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	return
}
