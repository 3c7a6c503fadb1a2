package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Warehouse struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	TenantID  string    `json:"tenant_id" gorm:"size:36;not null;index"`
	Name      string    `json:"name" gorm:"not null"`
	IsDefault bool      `json:"is_default" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
}

func (warehouse *Warehouse) BeforeCreate(tx *gorm.DB) (err error) {
	if warehouse.ID == "" {
		warehouse.ID = uuid.NewString()
	}
	return
}

// WarehouseStock is the per-(warehouse, product) stock counter.
type WarehouseStock struct {
	WarehouseID string    `json:"warehouse_id" gorm:"primaryKey;size:36"`
	ProductID   string    `json:"product_id" gorm:"primaryKey;size:36"`
	TenantID    string    `json:"tenant_id" gorm:"size:36;not null;index"`
	Quantity    int       `json:"quantity" gorm:"not null;default:0"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (WarehouseStock) TableName() string {
	return "warehouse_stock"
}
