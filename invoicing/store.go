package invoicing

import (
	"context"
	"time"

	"bizledger-backend/models"
)

// Store is the persistence port of the engine. Read paths take the tenant explicitly and
// must never return rows of another tenant.
type Store interface {
	// WithTransaction runs fn in one atomic unit of work: every write made through tx
	// commits together, or none does when fn returns an error.
	WithTransaction(ctx context.Context, fn func(tx Tx) error) error

	FindInvoice(ctx context.Context, tenantID, id string) (*models.Invoice, error)
	ListInvoices(ctx context.Context, tenantID string, filter InvoiceFilter) ([]models.Invoice, int64, error)
	ListStockMovements(ctx context.Context, tenantID string, filter MovementFilter) ([]models.StockMovement, error)
}

// Tx is the transactional view handed to WithTransaction callbacks. Lookups return
// (nil, nil) when the row does not exist in the tenant.
type Tx interface {
	// LockTenant row-locks the tenant until the transaction ends.
	LockTenant(tenantID string) (*models.Tenant, error)
	CountInvoicesSince(tenantID string, since time.Time) (int64, error)
	// LastDocumentNumber returns the numerically highest number with the given prefix, or "".
	LastDocumentNumber(tenantID, prefix string) (string, error)

	GetUser(tenantID, userID string) (*models.User, error)
	GetWarehouse(tenantID, warehouseID string) (*models.Warehouse, error)
	GetDefaultWarehouse(tenantID string) (*models.Warehouse, error)
	GetCustomer(tenantID, customerID string) (*models.Customer, error)

	// LockProducts row-locks and returns the products found among ids, keyed by id.
	LockProducts(tenantID string, ids []string) (map[string]*models.Product, error)
	// AdjustProductStock adds delta to the global stock unless that would go below zero;
	// it reports false when the guarded update did not apply.
	AdjustProductStock(tenantID, productID string, delta int) (bool, error)
	// AdjustWarehouseStock adds delta to the (warehouse, product) row, creating it if absent.
	AdjustWarehouseStock(tenantID, warehouseID, productID string, delta int) error
	CreateStockMovement(movement *models.StockMovement) error
	DeleteStockMovementsByInvoice(tenantID, invoiceID string) error

	// CreateInvoice inserts the invoice and its items.
	CreateInvoice(invoice *models.Invoice) error
	// LockInvoice row-locks the invoice and loads its items.
	LockInvoice(tenantID, invoiceID string) (*models.Invoice, error)
	LoadInvoice(tenantID, invoiceID string) (*models.Invoice, error)
	UpdateInvoiceFields(tenantID, invoiceID string, fields map[string]any) error
	DeleteInvoice(tenantID, invoiceID string) error

	ListItems(tenantID, invoiceID string) ([]models.InvoiceItem, error)
	CreateItem(item *models.InvoiceItem) error
	SaveItem(item *models.InvoiceItem) error
	DeleteItem(tenantID, itemID string) error
	DeleteItems(tenantID, invoiceID string) error

	CreateInvoiceVersion(version *models.InvoiceVersion) error
	NextInvoiceVersion(tenantID, invoiceID string) (int, error)
}

// Locker serializes work across application instances. It is optional; the database
// transaction remains the correctness guarantee.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

type InvoiceFilter struct {
	Status     models.InvoiceStatus
	CustomerID string
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Normalize clamps paging to sane bounds.
func (f InvoiceFilter) Normalize() InvoiceFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	return f
}

func (f InvoiceFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

type MovementFilter struct {
	ProductID string
	InvoiceID string
	Limit     int
}
