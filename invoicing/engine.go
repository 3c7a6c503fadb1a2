package invoicing

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"bizledger-backend/models"
	"bizledger-backend/utils"
)

const defaultLockTTL = 10 * time.Second

// Engine runs the invoice lifecycle. Every mutating operation is exactly one Store
// transaction, stock writes included.
type Engine struct {
	store  Store
	locker Locker
	log    *logrus.Logger
	now    func() time.Time

	ledger StockLedger
	seq    SequenceGenerator
	quota  QuotaGuard
}

// NewEngine wires the engine on store. locker may be nil.
func NewEngine(store Store, locker Locker, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &Engine{store: store, locker: locker, log: log, now: time.Now}
	e.quota = QuotaGuard{now: func() time.Time { return e.now() }}
	return e
}

// WithClock replaces the time source used for issue dates, status timestamps and the
// monthly quota window.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Create issues a DRAFT invoice and takes its items out of stock.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*models.Invoice, error) {
	const op = "create invoice"
	in.Items = append([]ItemInput(nil), in.Items...)
	for i := range in.Items {
		in.Items[i].ProductID = strings.TrimSpace(in.Items[i].ProductID)
	}
	if err := validateCreateInput(in); err != nil {
		return nil, withOp(op, err)
	}

	prefix := DocumentInvoice.Prefix()
	if e.locker != nil {
		release, err := e.locker.Obtain(ctx, "document-sequence:"+in.TenantID+":"+prefix, defaultLockTTL)
		if err != nil {
			return nil, withOp(op, fmt.Errorf("obtain numbering lock: %w", err))
		}
		defer release()
	}

	var out *models.Invoice
	err := e.store.WithTransaction(ctx, func(tx Tx) error {
		tenant, err := tx.LockTenant(in.TenantID)
		if err != nil {
			return fmt.Errorf("lock tenant %s: %w", in.TenantID, err)
		}
		if tenant == nil {
			return NotFound("tenant %s not found", in.TenantID)
		}
		if err := e.quota.CheckMonthlyLimit(tx, tenant); err != nil {
			return err
		}

		user, err := mustUser(tx, in.TenantID, in.UserID)
		if err != nil {
			return err
		}
		warehouse, err := resolveWarehouse(tx, in.TenantID, user, in.WarehouseID)
		if err != nil {
			return err
		}
		customerID, err := checkCustomer(tx, in.TenantID, in.CustomerID)
		if err != nil {
			return err
		}
		products, err := lockItemProducts(tx, in.TenantID, in.Items)
		if err != nil {
			return err
		}

		items := make([]models.InvoiceItem, 0, len(in.Items))
		for _, it := range in.Items {
			items = append(items, newItem(in.TenantID, it, products[it.ProductID]))
		}
		number, err := e.seq.Next(tx, in.TenantID, prefix)
		if err != nil {
			return err
		}

		invoice := &models.Invoice{
			TenantID:      in.TenantID,
			CustomerID:    customerID,
			UserID:        user.Id,
			WarehouseID:   &warehouse.ID,
			InvoiceNumber: number,
			Items:         items,
			IssueDate:     e.now(),
			DueDate:       in.DueDate,
			Status:        models.InvoiceStatusDraft,
			PaymentStatus: models.PaymentStatusUnpaid,
		}
		if in.Notes != nil {
			invoice.Notes = strings.TrimSpace(*in.Notes)
		}
		CalcAggregate(items).applyTo(invoice)
		if err := tx.CreateInvoice(invoice); err != nil {
			return fmt.Errorf("insert invoice %s: %w", number, err)
		}

		for _, item := range invoice.Items {
			err := e.ledger.Apply(tx, StockDelta{
				TenantID:    in.TenantID,
				ProductID:   *item.ProductID,
				WarehouseID: warehouse.ID,
				Quantity:    -item.Quantity,
				UserID:      user.Id,
				Type:        models.MovementSale,
				Reason:      "Sale on invoice " + number,
				InvoiceID:   invoice.ID,
			})
			if err != nil {
				return err
			}
		}

		out, err = tx.LoadInvoice(in.TenantID, invoice.ID)
		return err
	})
	return e.finish(op, out, err, logrus.Fields{"tenant_id": in.TenantID, "user_id": in.UserID})
}

// Update changes notes and due date of a DRAFT invoice. Items and stock are untouched.
func (e *Engine) Update(ctx context.Context, tenantID, invoiceID string, in UpdateInput) (*models.Invoice, error) {
	return e.mutate(ctx, "update invoice", tenantID, invoiceID, func(tx Tx, invoice *models.Invoice) error {
		if err := requireDraft(invoice, "update"); err != nil {
			return err
		}
		utils.NormalizePtrDTO(&in)
		fields := utils.UpdatesFromPtrDTO(&in, nil)
		if len(fields) == 0 {
			return nil
		}
		return tx.UpdateInvoiceFields(tenantID, invoiceID, fields)
	})
}

// AddItem appends a line to a DRAFT invoice and sells its quantity.
func (e *Engine) AddItem(ctx context.Context, tenantID, invoiceID, userID string, in ItemInput) (*models.Invoice, error) {
	const op = "add invoice item"
	in.ProductID = strings.TrimSpace(in.ProductID)
	if err := ValidateItemInput(in); err != nil {
		return nil, withOp(op, err)
	}
	return e.mutate(ctx, op, tenantID, invoiceID, func(tx Tx, invoice *models.Invoice) error {
		if err := requireDraft(invoice, "add items to"); err != nil {
			return err
		}
		user, warehouseID, err := authorizeItemWrite(tx, invoice, userID)
		if err != nil {
			return err
		}
		products, err := lockItemProducts(tx, tenantID, []ItemInput{in})
		if err != nil {
			return err
		}

		item := newItem(tenantID, in, products[in.ProductID])
		item.InvoiceID = invoice.ID
		if err := tx.CreateItem(&item); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		err = e.ledger.Apply(tx, StockDelta{
			TenantID:    tenantID,
			ProductID:   in.ProductID,
			WarehouseID: warehouseID,
			Quantity:    -item.Quantity,
			UserID:      user.Id,
			Type:        models.MovementSale,
			Reason:      "Sale on invoice " + invoice.InvoiceNumber,
			InvoiceID:   invoice.ID,
		})
		if err != nil {
			return err
		}
		return recomputeTotals(tx, invoice)
	})
}

// UpdateItem patches a line of a DRAFT invoice. A quantity change moves stock by the
// difference; only an increase is checked against available stock.
func (e *Engine) UpdateItem(ctx context.Context, tenantID, invoiceID, itemID, userID string, patch ItemPatch) (*models.Invoice, error) {
	return e.mutate(ctx, "update invoice item", tenantID, invoiceID, func(tx Tx, invoice *models.Invoice) error {
		if err := requireDraft(invoice, "edit items of"); err != nil {
			return err
		}
		user, warehouseID, err := authorizeItemWrite(tx, invoice, userID)
		if err != nil {
			return err
		}
		item := findItem(invoice, itemID)
		if item == nil {
			return NotFound("item %s not found on invoice %s", itemID, invoice.InvoiceNumber)
		}

		oldQuantity := item.Quantity
		if patch.Quantity != nil {
			item.Quantity = *patch.Quantity
		}
		if patch.UnitPrice != nil {
			item.UnitPrice = utils.RoundMoney(*patch.UnitPrice)
		}
		if patch.TaxRate != nil {
			item.TaxRate = *patch.TaxRate
		}
		if patch.Discount != nil {
			item.Discount = utils.RoundMoney(*patch.Discount)
		}
		if err := validateAmounts(item.Quantity, item.UnitPrice, item.TaxRate, item.Discount); err != nil {
			return err
		}

		delta := item.Quantity - oldQuantity
		if delta != 0 && item.ProductID == nil {
			return BadRequest("item %s no longer references a product; its quantity cannot change", itemID)
		}
		if delta > 0 {
			if _, err := lockItemProducts(tx, tenantID, []ItemInput{{ProductID: *item.ProductID, Quantity: delta}}); err != nil {
				return err
			}
		}

		applyLine(item)
		if err := tx.SaveItem(item); err != nil {
			return fmt.Errorf("save item %s: %w", itemID, err)
		}
		if delta != 0 {
			err := e.ledger.Apply(tx, StockDelta{
				TenantID:    tenantID,
				ProductID:   *item.ProductID,
				WarehouseID: warehouseID,
				Quantity:    -delta,
				UserID:      user.Id,
				Type:        models.MovementAdjustment,
				Reason:      fmt.Sprintf("Quantity changed on invoice %s: %d -> %d", invoice.InvoiceNumber, oldQuantity, item.Quantity),
				InvoiceID:   invoice.ID,
			})
			if err != nil {
				return err
			}
		}
		return recomputeTotals(tx, invoice)
	})
}

// DeleteItem removes a line from a DRAFT invoice and returns its quantity to stock.
func (e *Engine) DeleteItem(ctx context.Context, tenantID, invoiceID, itemID, userID string) (*models.Invoice, error) {
	return e.mutate(ctx, "delete invoice item", tenantID, invoiceID, func(tx Tx, invoice *models.Invoice) error {
		if err := requireDraft(invoice, "remove items from"); err != nil {
			return err
		}
		user, warehouseID, err := authorizeItemWrite(tx, invoice, userID)
		if err != nil {
			return err
		}
		item := findItem(invoice, itemID)
		if item == nil {
			return NotFound("item %s not found on invoice %s", itemID, invoice.InvoiceNumber)
		}

		if item.ProductID != nil {
			err := e.ledger.Apply(tx, StockDelta{
				TenantID:    tenantID,
				ProductID:   *item.ProductID,
				WarehouseID: warehouseID,
				Quantity:    item.Quantity,
				UserID:      user.Id,
				Type:        models.MovementReturn,
				Reason:      "Item removed from invoice " + invoice.InvoiceNumber,
				InvoiceID:   invoice.ID,
			})
			if err != nil {
				return err
			}
		}
		if err := tx.DeleteItem(tenantID, itemID); err != nil {
			return fmt.Errorf("delete item %s: %w", itemID, err)
		}
		return recomputeTotals(tx, invoice)
	})
}

// Send moves a DRAFT invoice to SENT. It has no stock effect.
func (e *Engine) Send(ctx context.Context, tenantID, invoiceID string) (*models.Invoice, error) {
	return e.mutate(ctx, "send invoice", tenantID, invoiceID, func(tx Tx, invoice *models.Invoice) error {
		if invoice.Status != models.InvoiceStatusDraft {
			return invalidState("only DRAFT invoices can be sent; invoice %s is %s", invoice.InvoiceNumber, invoice.Status)
		}
		now := e.now()
		err := tx.UpdateInvoiceFields(tenantID, invoiceID, map[string]any{
			"status":  models.InvoiceStatusSent,
			"sent_at": now,
		})
		if err != nil {
			return err
		}
		return e.snapshot(tx, tenantID, invoiceID, "sent")
	})
}

// Cancel returns all item stock and makes the invoice CANCELLED, from DRAFT or SENT alike.
func (e *Engine) Cancel(ctx context.Context, tenantID, invoiceID string) (*models.Invoice, error) {
	return e.mutate(ctx, "cancel invoice", tenantID, invoiceID, func(tx Tx, invoice *models.Invoice) error {
		switch invoice.Status {
		case models.InvoiceStatusCancelled:
			return invalidState("invoice %s is already cancelled", invoice.InvoiceNumber)
		case models.InvoiceStatusVoid:
			return invalidState("invoice %s is void and cannot be cancelled", invoice.InvoiceNumber)
		}
		if err := e.returnAllItems(tx, invoice, "Cancellation of invoice "+invoice.InvoiceNumber); err != nil {
			return err
		}
		err := tx.UpdateInvoiceFields(tenantID, invoiceID, map[string]any{
			"status":       models.InvoiceStatusCancelled,
			"cancelled_at": e.now(),
		})
		if err != nil {
			return err
		}
		return e.snapshot(tx, tenantID, invoiceID, "cancelled")
	})
}

// Delete removes a DRAFT invoice: stock is returned, then its items, their movements
// and finally the invoice row are deleted.
func (e *Engine) Delete(ctx context.Context, tenantID, invoiceID string) error {
	const op = "delete invoice"
	var number string
	err := e.store.WithTransaction(ctx, func(tx Tx) error {
		invoice, err := tx.LockInvoice(tenantID, invoiceID)
		if err != nil {
			return fmt.Errorf("lock invoice %s: %w", invoiceID, err)
		}
		if invoice == nil {
			return NotFound("invoice %s not found", invoiceID)
		}
		if err := requireDraft(invoice, "delete"); err != nil {
			return err
		}
		number = invoice.InvoiceNumber

		if err := e.returnAllItems(tx, invoice, "Deletion of draft invoice "+number); err != nil {
			return err
		}
		if err := tx.DeleteItems(tenantID, invoiceID); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		if err := tx.DeleteStockMovementsByInvoice(tenantID, invoiceID); err != nil {
			return fmt.Errorf("delete stock movements: %w", err)
		}
		return tx.DeleteInvoice(tenantID, invoiceID)
	})
	fields := logrus.Fields{"tenant_id": tenantID, "invoice_id": invoiceID}
	if err != nil {
		e.logFailure(op, err, fields)
		return withOp(op, err)
	}
	e.log.WithFields(fields).WithField("invoice_number", number).Info(op)
	return nil
}

// RecordExternalDocument stores the e-invoicing collaborator's reference on a sent invoice.
func (e *Engine) RecordExternalDocument(ctx context.Context, tenantID, invoiceID string, doc ExternalDocument) (*models.Invoice, error) {
	return e.mutate(ctx, "record external document", tenantID, invoiceID, func(tx Tx, invoice *models.Invoice) error {
		if invoice.Status == models.InvoiceStatusDraft {
			return invalidState("invoice %s must be sent before it is submitted", invoice.InvoiceNumber)
		}
		if strings.TrimSpace(doc.DocumentID) == "" {
			return BadRequest("document_id is required")
		}
		submittedAt := e.now()
		if doc.SubmittedAt != nil {
			submittedAt = *doc.SubmittedAt
		}
		return tx.UpdateInvoiceFields(tenantID, invoiceID, map[string]any{
			"external_document_id":     strings.TrimSpace(doc.DocumentID),
			"external_document_status": strings.TrimSpace(doc.Status),
			"external_submitted_at":    submittedAt,
		})
	})
}

// FindOne loads one invoice of the tenant with items and customer.
func (e *Engine) FindOne(ctx context.Context, tenantID, invoiceID string) (*models.Invoice, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, BadRequest("tenant is required")
	}
	invoice, err := e.store.FindInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("find invoice %s: %w", invoiceID, err)
	}
	if invoice == nil {
		return nil, NotFound("invoice %s not found", invoiceID)
	}
	return invoice, nil
}

// FindAll lists the tenant's invoices, newest issue date first, with the unpaged total.
func (e *Engine) FindAll(ctx context.Context, tenantID string, filter InvoiceFilter) ([]models.Invoice, int64, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, 0, BadRequest("tenant is required")
	}
	invoices, total, err := e.store.ListInvoices(ctx, tenantID, filter.Normalize())
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	return invoices, total, nil
}

// Movements reads the stock audit trail of a tenant, newest first.
func (e *Engine) Movements(ctx context.Context, tenantID string, filter MovementFilter) ([]models.StockMovement, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, BadRequest("tenant is required")
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	movements, err := e.store.ListStockMovements(ctx, tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}
	return movements, nil
}

func (e *Engine) mutate(ctx context.Context, op, tenantID, invoiceID string, fn func(tx Tx, invoice *models.Invoice) error) (*models.Invoice, error) {
	var out *models.Invoice
	err := e.store.WithTransaction(ctx, func(tx Tx) error {
		invoice, err := tx.LockInvoice(tenantID, invoiceID)
		if err != nil {
			return fmt.Errorf("lock invoice %s: %w", invoiceID, err)
		}
		if invoice == nil {
			return NotFound("invoice %s not found", invoiceID)
		}
		if err := fn(tx, invoice); err != nil {
			return err
		}
		out, err = tx.LoadInvoice(tenantID, invoiceID)
		return err
	})
	return e.finish(op, out, err, logrus.Fields{"tenant_id": tenantID, "invoice_id": invoiceID})
}

func (e *Engine) finish(op string, out *models.Invoice, err error, fields logrus.Fields) (*models.Invoice, error) {
	if err != nil {
		e.logFailure(op, err, fields)
		return nil, withOp(op, err)
	}
	if out == nil {
		return nil, withOp(op, newError(KindBadRequest, ErrNoResult, "operation produced no result"))
	}
	e.log.WithFields(fields).WithFields(logrus.Fields{
		"invoice_id":     out.ID,
		"invoice_number": out.InvoiceNumber,
		"status":         out.Status,
	}).Info(op)
	return out, nil
}

func (e *Engine) logFailure(op string, err error, fields logrus.Fields) {
	entry := e.log.WithFields(fields).WithField("op", op)
	if KindOf(err) == KindInternal {
		entry.WithError(err).Error("invoice operation failed")
		return
	}
	entry.WithField("kind", KindOf(err).String()).Debug(err.Error())
}

func (e *Engine) returnAllItems(tx Tx, invoice *models.Invoice, reason string) error {
	if len(invoice.Items) == 0 {
		return nil
	}
	warehouseID, err := invoiceWarehouse(invoice)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		if item.ProductID != nil {
			ids = append(ids, *item.ProductID)
		}
	}
	if _, err := tx.LockProducts(invoice.TenantID, sortedUnique(ids)); err != nil {
		return fmt.Errorf("lock products: %w", err)
	}
	for _, item := range invoice.Items {
		if item.ProductID == nil {
			continue
		}
		err := e.ledger.Apply(tx, StockDelta{
			TenantID:    invoice.TenantID,
			ProductID:   *item.ProductID,
			WarehouseID: warehouseID,
			Quantity:    item.Quantity,
			Type:        models.MovementReturn,
			Reason:      reason,
			InvoiceID:   invoice.ID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) snapshot(tx Tx, tenantID, invoiceID, kind string) error {
	current, err := tx.LoadInvoice(tenantID, invoiceID)
	if err != nil {
		return err
	}
	if current == nil {
		return newError(KindBadRequest, ErrNoResult, "operation produced no result")
	}
	data, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("encode invoice snapshot: %w", err)
	}
	versionNo, err := tx.NextInvoiceVersion(tenantID, invoiceID)
	if err != nil {
		return fmt.Errorf("next invoice version: %w", err)
	}
	return tx.CreateInvoiceVersion(&models.InvoiceVersion{
		TenantID:  tenantID,
		InvoiceID: invoiceID,
		VersionNo: versionNo,
		Kind:      kind,
		Snapshot:  datatypes.JSON(data),
	})
}

func requireDraft(invoice *models.Invoice, action string) error {
	if invoice.Status != models.InvoiceStatusDraft {
		return invalidState("cannot %s invoice %s in status %s", action, invoice.InvoiceNumber, invoice.Status)
	}
	return nil
}

// authorizeItemWrite loads the acting user and checks it may write to the invoice's warehouse.
func authorizeItemWrite(tx Tx, invoice *models.Invoice, userID string) (*models.User, string, error) {
	user, err := mustUser(tx, invoice.TenantID, userID)
	if err != nil {
		return nil, "", err
	}
	warehouseID, err := invoiceWarehouse(invoice)
	if err != nil {
		return nil, "", err
	}
	if err := checkWarehouseAccess(user, warehouseID); err != nil {
		return nil, "", err
	}
	return user, warehouseID, nil
}

func invoiceWarehouse(invoice *models.Invoice) (string, error) {
	if invoice.WarehouseID == nil || *invoice.WarehouseID == "" {
		return "", BadRequest("invoice %s has no warehouse", invoice.InvoiceNumber)
	}
	return *invoice.WarehouseID, nil
}

func checkCustomer(tx Tx, tenantID string, customerID *string) (*string, error) {
	if customerID == nil || strings.TrimSpace(*customerID) == "" {
		return nil, nil
	}
	id := strings.TrimSpace(*customerID)
	customer, err := tx.GetCustomer(tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("load customer %s: %w", id, err)
	}
	if customer == nil {
		return nil, NotFound("customer %s not found", id)
	}
	return &id, nil
}

// lockItemProducts locks every referenced product in one batch, in id order, and checks
// each has stock for the summed quantity requested across the given lines.
func lockItemProducts(tx Tx, tenantID string, items []ItemInput) (map[string]*models.Product, error) {
	requested := make(map[string]int, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
		requested[it.ProductID] += it.Quantity
	}
	ids = sortedUnique(ids)
	products, err := tx.LockProducts(tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	for _, id := range ids {
		product := products[id]
		if product == nil {
			return nil, NotFound("product %s not found", id)
		}
		if product.Stock < requested[id] {
			return nil, insufficientStock(product.Name, id, product.Stock, requested[id])
		}
	}
	return products, nil
}

// sortedUnique orders product ids the way every transaction must lock them.
func sortedUnique(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return slices.Compact(out)
}

func findItem(invoice *models.Invoice, itemID string) *models.InvoiceItem {
	for i := range invoice.Items {
		if invoice.Items[i].ID == itemID {
			return &invoice.Items[i]
		}
	}
	return nil
}

func recomputeTotals(tx Tx, invoice *models.Invoice) error {
	items, err := tx.ListItems(invoice.TenantID, invoice.ID)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	return tx.UpdateInvoiceFields(invoice.TenantID, invoice.ID, CalcAggregate(items).fields())
}
