package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
	InvoiceStatusVoid      InvoiceStatus = "VOID"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "UNPAID"
	PaymentStatusPartial PaymentStatus = "PARTIAL"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

// Invoice is the current/live state of a sales document. Subtotal, Tax, Discount and
// Total are derived from Items and never edited directly.
type Invoice struct {
	ID            string    `json:"id" gorm:"primaryKey;size:36"`
	TenantID      string    `json:"tenant_id" gorm:"size:36;not null;uniqueIndex:idx_invoices_tenant_number,priority:1;index:idx_invoices_tenant_created,priority:1"`
	CustomerID    *string   `json:"customer_id" gorm:"size:36;index"`
	Customer      *Customer `json:"customer,omitempty" gorm:"foreignKey:CustomerID;references:ID"`
	UserID        string    `json:"user_id" gorm:"size:36;not null"`
	WarehouseID   *string   `json:"warehouse_id" gorm:"size:36"`
	InvoiceNumber string    `json:"invoice_number" gorm:"size:32;not null;uniqueIndex:idx_invoices_tenant_number,priority:2"`

	Items    []InvoiceItem   `json:"items" gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
	Subtotal decimal.Decimal `json:"subtotal" gorm:"type:decimal(18,4);not null;default:0"`
	Tax      decimal.Decimal `json:"tax" gorm:"type:decimal(18,4);not null;default:0"`
	Discount decimal.Decimal `json:"discount" gorm:"type:decimal(18,4);not null;default:0"`
	Total    decimal.Decimal `json:"total" gorm:"type:decimal(18,4);not null;default:0"`

	IssueDate     time.Time     `json:"issue_date" gorm:"not null"`
	DueDate       *time.Time    `json:"due_date"`
	Status        InvoiceStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	PaymentStatus PaymentStatus `json:"payment_status" gorm:"type:varchar(20);not null"`
	Notes         string        `json:"notes"`
	SentAt        *time.Time    `json:"sent_at"`
	CancelledAt   *time.Time    `json:"cancelled_at"`

	// Populated by the e-invoicing collaborator.
	ExternalDocumentID     *string    `json:"external_document_id" gorm:"size:128"`
	ExternalDocumentStatus *string    `json:"external_document_status" gorm:"size:32"`
	ExternalSubmittedAt    *time.Time `json:"external_submitted_at"`

	CreatedAt time.Time `json:"created_at" gorm:"index:idx_invoices_tenant_created,priority:2"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (invoice *Invoice) BeforeCreate(tx *gorm.DB) (err error) {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	return
}

type InvoiceItem struct {
	ID          string          `json:"id" gorm:"primaryKey;size:36"`
	TenantID    string          `json:"tenant_id" gorm:"size:36;not null;index"`
	InvoiceID   string          `json:"invoice_id" gorm:"size:36;not null;index"`
	ProductID   *string         `json:"product_id" gorm:"size:36;index"` // product may be deleted later
	Description string          `json:"description"`
	Quantity    int             `json:"quantity" gorm:"not null"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:decimal(18,4);not null"`
	TaxRate     decimal.Decimal `json:"tax_rate" gorm:"type:decimal(7,4);not null"`
	Discount    decimal.Decimal `json:"discount" gorm:"type:decimal(18,4);not null;default:0"`
	Subtotal    decimal.Decimal `json:"subtotal" gorm:"type:decimal(18,4);not null"`
	Tax         decimal.Decimal `json:"tax" gorm:"type:decimal(18,4);not null"`
	Total       decimal.Decimal `json:"total" gorm:"type:decimal(18,4);not null"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (item *InvoiceItem) BeforeCreate(tx *gorm.DB) (err error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	return
}

// Immutable snapshot
type InvoiceVersion struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	TenantID  string         `json:"tenant_id" gorm:"size:36;not null;index"`
	InvoiceID string         `json:"invoice_id" gorm:"size:36;index:idx_invoice_versions_invoice_id_version_no,unique,priority:1"`
	VersionNo int            `json:"version_no" gorm:"not null;index:idx_invoice_versions_invoice_id_version_no,unique,priority:2"`
	Kind      string         `json:"kind" gorm:"type:VARCHAR(20)"` // "sent" | "cancelled"
	Snapshot  datatypes.JSON `json:"snapshot"`
	CreatedAt time.Time      `json:"created_at"`
}
