package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Customer struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	TenantID    string    `json:"tenant_id" gorm:"size:36;not null;index"`
	CompanyName string    `json:"company_name" gorm:"not null"`
	TaxID       string    `json:"tax_id" gorm:"size:64"`
	Address     string    `json:"address"`
	City        string    `json:"city"`
	Country     string    `json:"country"`
	Zip         string    `json:"zip"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
	CreatedAt   time.Time `json:"created_at"`
}

func (customer *Customer) BeforeCreate(tx *gorm.DB) (err error) {
	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}
	return
}
