// Package invoicingtest provides an in-memory invoicing.Store for tests. Transactions
// are fully serialized and work on a copy of the state that is only published when the
// callback succeeds, so a failed operation leaves no trace.
package invoicingtest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bizledger-backend/invoicing"
	"bizledger-backend/models"
)

// ErrInjected is returned by the Tx method named in Store.FailOn.
var ErrInjected = errors.New("injected failure")

type stockKey struct {
	warehouseID string
	productID   string
}

type state struct {
	tenants    map[string]models.Tenant
	users      map[string]models.User
	warehouses map[string]models.Warehouse
	customers  map[string]models.Customer
	products   map[string]models.Product
	stock      map[stockKey]models.WarehouseStock
	invoices   map[string]models.Invoice
	items      map[string]models.InvoiceItem
	itemSeq    map[string]int64
	movements  []models.StockMovement
	versions   []models.InvoiceVersion
	seq        int64
}

func newState() *state {
	return &state{
		tenants:    map[string]models.Tenant{},
		users:      map[string]models.User{},
		warehouses: map[string]models.Warehouse{},
		customers:  map[string]models.Customer{},
		products:   map[string]models.Product{},
		stock:      map[stockKey]models.WarehouseStock{},
		invoices:   map[string]models.Invoice{},
		items:      map[string]models.InvoiceItem{},
		itemSeq:    map[string]int64{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.tenants {
		c.tenants[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.warehouses {
		c.warehouses[k] = v
	}
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.stock {
		c.stock[k] = v
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.itemSeq {
		c.itemSeq[k] = v
	}
	c.movements = append([]models.StockMovement(nil), s.movements...)
	c.versions = append([]models.InvoiceVersion(nil), s.versions...)
	c.seq = s.seq
	return c
}

type Store struct {
	mu    sync.Mutex
	state *state

	// Now stamps created rows. Defaults to time.Now.
	Now func() time.Time
	// FailOn makes the named Tx method return ErrInjected.
	FailOn string
	// Commits counts successful transactions.
	Commits int
}

func NewStore() *Store {
	return &Store{state: newState(), Now: time.Now}
}

var _ invoicing.Store = (*Store)(nil)

func (s *Store) WithTransaction(ctx context.Context, fn func(tx invoicing.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&tx{st: work, store: s}); err != nil {
		return err
	}
	s.state = work
	s.Commits++
	return nil
}

func (s *Store) FindInvoice(ctx context.Context, tenantID, id string) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.invoice(tenantID, id), nil
}

func (s *Store) ListInvoices(ctx context.Context, tenantID string, filter invoicing.InvoiceFilter) ([]models.Invoice, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.Invoice
	for id, inv := range s.state.invoices {
		if inv.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if filter.CustomerID != "" && (inv.CustomerID == nil || *inv.CustomerID != filter.CustomerID) {
			continue
		}
		if filter.From != nil && inv.IssueDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && inv.IssueDate.After(*filter.To) {
			continue
		}
		matched = append(matched, *s.state.invoice(tenantID, id))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].IssueDate.Equal(matched[j].IssueDate) {
			return matched[i].IssueDate.After(matched[j].IssueDate)
		}
		return numberLess(matched[j].InvoiceNumber, matched[i].InvoiceNumber)
	})
	total := int64(len(matched))
	start := filter.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *Store) ListStockMovements(ctx context.Context, tenantID string, filter invoicing.MovementFilter) ([]models.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.StockMovement
	for i := len(s.state.movements) - 1; i >= 0; i-- {
		m := s.state.movements[i]
		if m.TenantID != tenantID {
			continue
		}
		if filter.ProductID != "" && m.ProductID != filter.ProductID {
			continue
		}
		if filter.InvoiceID != "" && (m.InvoiceID == nil || *m.InvoiceID != filter.InvoiceID) {
			continue
		}
		out = append(out, m)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Seeding and inspection helpers. They bypass transactions.

func (s *Store) AddTenant(t models.Tenant) models.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.state.tenants[t.ID] = t
	return t
}

func (s *Store) AddUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Id == "" {
		u.Id = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = models.RoleSeller
	}
	s.state.users[u.Id] = u
	return u
}

func (s *Store) AddWarehouse(w models.Warehouse) models.Warehouse {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	s.state.warehouses[w.ID] = w
	return w
}

func (s *Store) AddCustomer(c models.Customer) models.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.state.customers[c.ID] = c
	return c
}

func (s *Store) AddProduct(p models.Product) models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.state.products[p.ID] = p
	return p
}

func (s *Store) AddWarehouseStock(ws models.WarehouseStock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.stock[stockKey{ws.WarehouseID, ws.ProductID}] = ws
}

// SetInvoiceStatus forces a status, standing in for transitions owned by collaborators.
func (s *Store) SetInvoiceStatus(id string, status models.InvoiceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv := s.state.invoices[id]
	inv.Status = status
	s.state.invoices[id] = inv
}

func (s *Store) ProductStock(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.products[id].Stock
}

func (s *Store) WarehouseStock(warehouseID, productID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.state.stock[stockKey{warehouseID, productID}]
	return ws.Quantity, ok
}

func (s *Store) Movements() []models.StockMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StockMovement(nil), s.state.movements...)
}

func (s *Store) Versions() []models.InvoiceVersion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.InvoiceVersion(nil), s.state.versions...)
}

func (s *Store) InvoiceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.invoices)
}

func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.items)
}

func (s *state) invoice(tenantID, id string) *models.Invoice {
	inv, ok := s.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return nil
	}
	inv.Items = s.invoiceItems(tenantID, id)
	if inv.CustomerID != nil {
		if c, ok := s.customers[*inv.CustomerID]; ok {
			inv.Customer = &c
		}
	}
	return &inv
}

func (s *state) invoiceItems(tenantID, invoiceID string) []models.InvoiceItem {
	items := []models.InvoiceItem{}
	for _, item := range s.items {
		if item.TenantID == tenantID && item.InvoiceID == invoiceID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return s.itemSeq[items[i].ID] < s.itemSeq[items[j].ID] })
	return items
}

func (s *state) next() int64 {
	s.seq++
	return s.seq
}

// numberLess orders document numbers numerically: shorter first, then lexicographically.
func numberLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

type tx struct {
	st    *state
	store *Store
}

func (t *tx) fail(op string) error {
	if t.store.FailOn == op {
		return ErrInjected
	}
	return nil
}

func (t *tx) LockTenant(tenantID string) (*models.Tenant, error) {
	if err := t.fail("LockTenant"); err != nil {
		return nil, err
	}
	tenant, ok := t.st.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	return &tenant, nil
}

func (t *tx) CountInvoicesSince(tenantID string, since time.Time) (int64, error) {
	var n int64
	for _, inv := range t.st.invoices {
		if inv.TenantID == tenantID && !inv.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (t *tx) LastDocumentNumber(tenantID, prefix string) (string, error) {
	last := ""
	for _, inv := range t.st.invoices {
		if inv.TenantID != tenantID || !strings.HasPrefix(inv.InvoiceNumber, prefix+"-") {
			continue
		}
		if last == "" || numberLess(last, inv.InvoiceNumber) {
			last = inv.InvoiceNumber
		}
	}
	return last, nil
}

func (t *tx) GetUser(tenantID, userID string) (*models.User, error) {
	u, ok := t.st.users[userID]
	if !ok || u.TenantID != tenantID {
		return nil, nil
	}
	return &u, nil
}

func (t *tx) GetWarehouse(tenantID, warehouseID string) (*models.Warehouse, error) {
	w, ok := t.st.warehouses[warehouseID]
	if !ok || w.TenantID != tenantID {
		return nil, nil
	}
	return &w, nil
}

func (t *tx) GetDefaultWarehouse(tenantID string) (*models.Warehouse, error) {
	for _, w := range t.st.warehouses {
		if w.TenantID == tenantID && w.IsDefault {
			return &w, nil
		}
	}
	return nil, nil
}

func (t *tx) GetCustomer(tenantID, customerID string) (*models.Customer, error) {
	c, ok := t.st.customers[customerID]
	if !ok || c.TenantID != tenantID {
		return nil, nil
	}
	return &c, nil
}

func (t *tx) LockProducts(tenantID string, ids []string) (map[string]*models.Product, error) {
	if err := t.fail("LockProducts"); err != nil {
		return nil, err
	}
	out := make(map[string]*models.Product, len(ids))
	for _, id := range ids {
		p, ok := t.st.products[id]
		if ok && p.TenantID == tenantID {
			out[id] = &p
		}
	}
	return out, nil
}

func (t *tx) AdjustProductStock(tenantID, productID string, delta int) (bool, error) {
	if err := t.fail("AdjustProductStock"); err != nil {
		return false, err
	}
	p, ok := t.st.products[productID]
	if !ok || p.TenantID != tenantID || p.Stock+delta < 0 {
		return false, nil
	}
	p.Stock += delta
	t.st.products[productID] = p
	return true, nil
}

func (t *tx) AdjustWarehouseStock(tenantID, warehouseID, productID string, delta int) error {
	if err := t.fail("AdjustWarehouseStock"); err != nil {
		return err
	}
	key := stockKey{warehouseID, productID}
	ws, ok := t.st.stock[key]
	if !ok {
		ws = models.WarehouseStock{WarehouseID: warehouseID, ProductID: productID, TenantID: tenantID}
	}
	ws.Quantity += delta
	ws.UpdatedAt = t.store.Now()
	t.st.stock[key] = ws
	return nil
}

func (t *tx) CreateStockMovement(movement *models.StockMovement) error {
	if err := t.fail("CreateStockMovement"); err != nil {
		return err
	}
	if movement.ID == "" {
		movement.ID = uuid.NewString()
	}
	movement.CreatedAt = t.store.Now()
	t.st.movements = append(t.st.movements, *movement)
	return nil
}

func (t *tx) DeleteStockMovementsByInvoice(tenantID, invoiceID string) error {
	kept := t.st.movements[:0:0]
	for _, m := range t.st.movements {
		if m.TenantID == tenantID && m.InvoiceID != nil && *m.InvoiceID == invoiceID {
			continue
		}
		kept = append(kept, m)
	}
	t.st.movements = kept
	return nil
}

func (t *tx) CreateInvoice(invoice *models.Invoice) error {
	if err := t.fail("CreateInvoice"); err != nil {
		return err
	}
	for _, inv := range t.st.invoices {
		if inv.TenantID == invoice.TenantID && inv.InvoiceNumber == invoice.InvoiceNumber {
			return errors.New("duplicate invoice number " + invoice.InvoiceNumber)
		}
	}
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	now := t.store.Now()
	invoice.CreatedAt, invoice.UpdatedAt = now, now
	for i := range invoice.Items {
		invoice.Items[i].InvoiceID = invoice.ID
		invoice.Items[i].TenantID = invoice.TenantID
		if err := t.CreateItem(&invoice.Items[i]); err != nil {
			return err
		}
	}
	row := *invoice
	row.Items = nil
	row.Customer = nil
	t.st.invoices[invoice.ID] = row
	return nil
}

func (t *tx) LockInvoice(tenantID, invoiceID string) (*models.Invoice, error) {
	return t.st.invoice(tenantID, invoiceID), nil
}

func (t *tx) LoadInvoice(tenantID, invoiceID string) (*models.Invoice, error) {
	return t.st.invoice(tenantID, invoiceID), nil
}

func (t *tx) UpdateInvoiceFields(tenantID, invoiceID string, fields map[string]any) error {
	if err := t.fail("UpdateInvoiceFields"); err != nil {
		return err
	}
	inv, ok := t.st.invoices[invoiceID]
	if !ok || inv.TenantID != tenantID {
		return nil
	}
	for k, v := range fields {
		switch k {
		case "subtotal":
			inv.Subtotal = v.(decimal.Decimal)
		case "tax":
			inv.Tax = v.(decimal.Decimal)
		case "discount":
			inv.Discount = v.(decimal.Decimal)
		case "total":
			inv.Total = v.(decimal.Decimal)
		case "status":
			inv.Status = v.(models.InvoiceStatus)
		case "notes":
			inv.Notes = v.(string)
		case "due_date":
			d := v.(time.Time)
			inv.DueDate = &d
		case "sent_at":
			d := v.(time.Time)
			inv.SentAt = &d
		case "cancelled_at":
			d := v.(time.Time)
			inv.CancelledAt = &d
		case "external_document_id":
			s := v.(string)
			inv.ExternalDocumentID = &s
		case "external_document_status":
			s := v.(string)
			inv.ExternalDocumentStatus = &s
		case "external_submitted_at":
			d := v.(time.Time)
			inv.ExternalSubmittedAt = &d
		default:
			return errors.New("unknown invoice column " + k)
		}
	}
	inv.UpdatedAt = t.store.Now()
	t.st.invoices[invoiceID] = inv
	return nil
}

func (t *tx) DeleteInvoice(tenantID, invoiceID string) error {
	if inv, ok := t.st.invoices[invoiceID]; ok && inv.TenantID == tenantID {
		delete(t.st.invoices, invoiceID)
	}
	return nil
}

func (t *tx) ListItems(tenantID, invoiceID string) ([]models.InvoiceItem, error) {
	return t.st.invoiceItems(tenantID, invoiceID), nil
}

func (t *tx) CreateItem(item *models.InvoiceItem) error {
	if err := t.fail("CreateItem"); err != nil {
		return err
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := t.store.Now()
	item.CreatedAt, item.UpdatedAt = now, now
	t.st.items[item.ID] = *item
	t.st.itemSeq[item.ID] = t.st.next()
	return nil
}

func (t *tx) SaveItem(item *models.InvoiceItem) error {
	if err := t.fail("SaveItem"); err != nil {
		return err
	}
	item.UpdatedAt = t.store.Now()
	t.st.items[item.ID] = *item
	return nil
}

func (t *tx) DeleteItem(tenantID, itemID string) error {
	if item, ok := t.st.items[itemID]; ok && item.TenantID == tenantID {
		delete(t.st.items, itemID)
		delete(t.st.itemSeq, itemID)
	}
	return nil
}

func (t *tx) DeleteItems(tenantID, invoiceID string) error {
	for id, item := range t.st.items {
		if item.TenantID == tenantID && item.InvoiceID == invoiceID {
			delete(t.st.items, id)
			delete(t.st.itemSeq, id)
		}
	}
	return nil
}

func (t *tx) CreateInvoiceVersion(version *models.InvoiceVersion) error {
	version.ID = uint(len(t.st.versions) + 1)
	version.CreatedAt = t.store.Now()
	t.st.versions = append(t.st.versions, *version)
	return nil
}

func (t *tx) NextInvoiceVersion(tenantID, invoiceID string) (int, error) {
	n := 0
	for _, v := range t.st.versions {
		if v.TenantID == tenantID && v.InvoiceID == invoiceID && v.VersionNo > n {
			n = v.VersionNo
		}
	}
	return n + 1, nil
}
