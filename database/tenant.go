package database

import "gorm.io/gorm"

// ForTenant restricts a query to rows owned by tenantID. Every read and write of the
// store goes through it.
func ForTenant(tenantID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}
