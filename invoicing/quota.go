package invoicing

import (
	"fmt"
	"time"

	"bizledger-backend/models"
)

// QuotaGuard enforces the tenant's monthly document limit.
type QuotaGuard struct {
	now func() time.Time
}

// MonthStart returns the first instant of t's calendar month in t's location.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// CheckMonthlyLimit must run inside the create transaction, before any write, with the
// tenant row already locked so concurrent creates cannot both pass the last slot.
func (q QuotaGuard) CheckMonthlyLimit(tx Tx, tenant *models.Tenant) error {
	if tenant.Unlimited() {
		return nil
	}
	now := time.Now
	if q.now != nil {
		now = q.now
	}
	count, err := tx.CountInvoicesSince(tenant.ID, MonthStart(now()))
	if err != nil {
		return fmt.Errorf("count monthly documents: %w", err)
	}
	if count >= int64(tenant.MaxMonthlyDocuments) {
		return newError(KindForbidden, ErrQuotaExceeded,
			"monthly document limit reached (%d of %d)", count, tenant.MaxMonthlyDocuments)
	}
	return nil
}
