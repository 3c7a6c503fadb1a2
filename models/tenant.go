package models

import "time"

// UnlimitedDocuments disables the monthly document quota for a tenant.
const UnlimitedDocuments = -1

// Tenant is owned by tenant management; the ledger only reads it (and row-locks it
// to serialize document numbering).
type Tenant struct {
	ID                  string    `json:"id" gorm:"primaryKey;size:36"`
	Name                string    `json:"name" gorm:"not null"`
	MaxMonthlyDocuments int       `json:"max_monthly_documents" gorm:"not null;default:-1"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (tenant *Tenant) Unlimited() bool {
	return tenant.MaxMonthlyDocuments == UnlimitedDocuments
}
