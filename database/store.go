package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bizledger-backend/invoicing"
	"bizledger-backend/models"
)

// Store implements invoicing.Store on gorm. Row locks use SELECT ... FOR UPDATE, so
// the database must support it (postgres, mysql/InnoDB).
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ invoicing.Store = (*Store)(nil)

func (s *Store) WithTransaction(ctx context.Context, fn func(tx invoicing.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (s *Store) FindInvoice(ctx context.Context, tenantID, id string) (*models.Invoice, error) {
	return (&gormTx{db: s.db.WithContext(ctx)}).LoadInvoice(tenantID, id)
}

func (s *Store) ListInvoices(ctx context.Context, tenantID string, filter invoicing.InvoiceFilter) ([]models.Invoice, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Invoice{}).Scopes(ForTenant(tenantID))
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.CustomerID != "" {
		q = q.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.From != nil {
		q = q.Where("issue_date >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("issue_date <= ?", *filter.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var invoices []models.Invoice
	err := q.Preload("Items", orderItems).
		Preload("Customer").
		Order("issue_date DESC").Order("invoice_number DESC").
		Offset(filter.Offset()).Limit(filter.Limit).
		Find(&invoices).Error
	if err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

func (s *Store) ListStockMovements(ctx context.Context, tenantID string, filter invoicing.MovementFilter) ([]models.StockMovement, error) {
	q := s.db.WithContext(ctx).Scopes(ForTenant(tenantID))
	if filter.ProductID != "" {
		q = q.Where("product_id = ?", filter.ProductID)
	}
	if filter.InvoiceID != "" {
		q = q.Where("invoice_id = ?", filter.InvoiceID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var movements []models.StockMovement
	if err := q.Order("created_at DESC").Order("id DESC").Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

func orderItems(db *gorm.DB) *gorm.DB {
	return db.Order("created_at").Order("id")
}

// take runs q into dest and reports whether a row was found.
func take(q *gorm.DB, dest any) (bool, error) {
	err := q.Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) forUpdate() *gorm.DB {
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *gormTx) LockTenant(tenantID string) (*models.Tenant, error) {
	var tenant models.Tenant
	ok, err := take(t.forUpdate().Where("id = ?", tenantID), &tenant)
	if !ok {
		return nil, err
	}
	return &tenant, nil
}

func (t *gormTx) CountInvoicesSince(tenantID string, since time.Time) (int64, error) {
	var n int64
	err := t.db.Model(&models.Invoice{}).Scopes(ForTenant(tenantID)).
		Where("created_at >= ?", since).
		Count(&n).Error
	return n, err
}

func (t *gormTx) LastDocumentNumber(tenantID, prefix string) (string, error) {
	var row struct{ InvoiceNumber string }
	ok, err := take(t.db.Model(&models.Invoice{}).Scopes(ForTenant(tenantID)).
		Select("invoice_number").
		Where("invoice_number LIKE ?", prefix+"-%").
		Order("LENGTH(invoice_number) DESC").Order("invoice_number DESC"), &row)
	if !ok {
		return "", err
	}
	return row.InvoiceNumber, nil
}

func (t *gormTx) GetUser(tenantID, userID string) (*models.User, error) {
	var user models.User
	ok, err := take(t.db.Scopes(ForTenant(tenantID)).Where("id = ?", userID), &user)
	if !ok {
		return nil, err
	}
	return &user, nil
}

func (t *gormTx) GetWarehouse(tenantID, warehouseID string) (*models.Warehouse, error) {
	var warehouse models.Warehouse
	ok, err := take(t.db.Scopes(ForTenant(tenantID)).Where("id = ?", warehouseID), &warehouse)
	if !ok {
		return nil, err
	}
	return &warehouse, nil
}

func (t *gormTx) GetDefaultWarehouse(tenantID string) (*models.Warehouse, error) {
	var warehouse models.Warehouse
	ok, err := take(t.db.Scopes(ForTenant(tenantID)).Where("is_default = ?", true).Order("created_at"), &warehouse)
	if !ok {
		return nil, err
	}
	return &warehouse, nil
}

func (t *gormTx) GetCustomer(tenantID, customerID string) (*models.Customer, error) {
	var customer models.Customer
	ok, err := take(t.db.Scopes(ForTenant(tenantID)).Where("id = ?", customerID), &customer)
	if !ok {
		return nil, err
	}
	return &customer, nil
}

// LockProducts locks in id order so concurrent multi-product invoices cannot deadlock.
func (t *gormTx) LockProducts(tenantID string, ids []string) (map[string]*models.Product, error) {
	out := make(map[string]*models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []models.Product
	err := t.forUpdate().Scopes(ForTenant(tenantID)).
		Where("id IN ?", ids).
		Order("id").
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

func (t *gormTx) AdjustProductStock(tenantID, productID string, delta int) (bool, error) {
	res := t.db.Model(&models.Product{}).Scopes(ForTenant(tenantID)).
		Where("id = ? AND stock + ? >= 0", productID, delta).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock + ?", delta),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (t *gormTx) AdjustWarehouseStock(tenantID, warehouseID, productID string, delta int) error {
	now := time.Now()
	return t.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "warehouse_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"quantity":   gorm.Expr("warehouse_stock.quantity + ?", delta),
			"updated_at": now,
		}),
	}).Create(&models.WarehouseStock{
		WarehouseID: warehouseID,
		ProductID:   productID,
		TenantID:    tenantID,
		Quantity:    delta,
		UpdatedAt:   now,
	}).Error
}

func (t *gormTx) CreateStockMovement(movement *models.StockMovement) error {
	return t.db.Create(movement).Error
}

func (t *gormTx) DeleteStockMovementsByInvoice(tenantID, invoiceID string) error {
	return t.db.Scopes(ForTenant(tenantID)).
		Where("invoice_id = ?", invoiceID).
		Delete(&models.StockMovement{}).Error
}

func (t *gormTx) CreateInvoice(invoice *models.Invoice) error {
	return t.db.Omit("Customer").Create(invoice).Error
}

func (t *gormTx) LockInvoice(tenantID, invoiceID string) (*models.Invoice, error) {
	var invoice models.Invoice
	ok, err := take(t.forUpdate().Scopes(ForTenant(tenantID)).Where("id = ?", invoiceID), &invoice)
	if !ok {
		return nil, err
	}
	items, err := t.ListItems(tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	invoice.Items = items
	return &invoice, nil
}

func (t *gormTx) LoadInvoice(tenantID, invoiceID string) (*models.Invoice, error) {
	var invoice models.Invoice
	ok, err := take(t.db.Scopes(ForTenant(tenantID)).
		Preload("Items", orderItems).
		Preload("Customer").
		Where("id = ?", invoiceID), &invoice)
	if !ok {
		return nil, err
	}
	return &invoice, nil
}

func (t *gormTx) UpdateInvoiceFields(tenantID, invoiceID string, fields map[string]any) error {
	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["updated_at"] = time.Now()
	return t.db.Model(&models.Invoice{}).Scopes(ForTenant(tenantID)).
		Where("id = ?", invoiceID).
		Updates(updates).Error
}

func (t *gormTx) DeleteInvoice(tenantID, invoiceID string) error {
	return t.db.Scopes(ForTenant(tenantID)).
		Where("id = ?", invoiceID).
		Delete(&models.Invoice{}).Error
}

func (t *gormTx) ListItems(tenantID, invoiceID string) ([]models.InvoiceItem, error) {
	items := []models.InvoiceItem{}
	err := t.db.Scopes(ForTenant(tenantID), orderItems).
		Where("invoice_id = ?", invoiceID).
		Find(&items).Error
	return items, err
}

func (t *gormTx) CreateItem(item *models.InvoiceItem) error {
	return t.db.Create(item).Error
}

func (t *gormTx) SaveItem(item *models.InvoiceItem) error {
	return t.db.Model(item).Scopes(ForTenant(item.TenantID)).
		Select("description", "quantity", "unit_price", "tax_rate", "discount", "subtotal", "tax", "total", "updated_at").
		Updates(item).Error
}

func (t *gormTx) DeleteItem(tenantID, itemID string) error {
	return t.db.Scopes(ForTenant(tenantID)).
		Where("id = ?", itemID).
		Delete(&models.InvoiceItem{}).Error
}

func (t *gormTx) DeleteItems(tenantID, invoiceID string) error {
	return t.db.Scopes(ForTenant(tenantID)).
		Where("invoice_id = ?", invoiceID).
		Delete(&models.InvoiceItem{}).Error
}

func (t *gormTx) CreateInvoiceVersion(version *models.InvoiceVersion) error {
	return t.db.Create(version).Error
}

func (t *gormTx) NextInvoiceVersion(tenantID, invoiceID string) (int, error) {
	var last int
	err := t.db.Model(&models.InvoiceVersion{}).Scopes(ForTenant(tenantID)).
		Where("invoice_id = ?", invoiceID).
		Select("COALESCE(MAX(version_no), 0)").
		Scan(&last).Error
	return last + 1, err
}
