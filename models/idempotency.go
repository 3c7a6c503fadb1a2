package models

import "time"

// IdempotencyKey stores the first successful response for a given request hash.
// It is tenant-scoped: the same header value may be reused by different tenants.
type IdempotencyKey struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	TenantID       string     `json:"tenant_id" gorm:"size:36;not null;uniqueIndex:idx_idempotency_keys_tenant_key,priority:1"`
	Key            string     `json:"key" gorm:"size:128;not null;uniqueIndex:idx_idempotency_keys_tenant_key,priority:2"`
	RequestHash    string     `json:"request_hash" gorm:"size:64"` // sha256 of method|path|body|tenant|user
	Method         string     `json:"method" gorm:"size:10"`
	Path           string     `json:"path" gorm:"size:255"`
	UserID         string     `json:"user_id" gorm:"size:36"`
	ResponseStatus int        `json:"response_status"` // 0 => not completed yet
	ResponseBody   []byte     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}
