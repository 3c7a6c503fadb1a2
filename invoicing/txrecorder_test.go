package invoicing_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizledger-backend/invoicing"
	"bizledger-backend/models"
)

// lockRecorder records the ids of every LockProducts call and the order of delete
// calls made through its transactions.
type lockRecorder struct {
	invoicing.Store

	mu      sync.Mutex
	calls   [][]string
	deletes []string
}

func (r *lockRecorder) WithTransaction(ctx context.Context, fn func(tx invoicing.Tx) error) error {
	return r.Store.WithTransaction(ctx, func(tx invoicing.Tx) error {
		return fn(&recordingTx{Tx: tx, r: r})
	})
}

func (r *lockRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.deletes = nil
}

func (r *lockRecorder) first() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[0]
}

type recordingTx struct {
	invoicing.Tx
	r *lockRecorder
}

func (t *recordingTx) LockProducts(tenantID string, ids []string) (map[string]*models.Product, error) {
	t.r.mu.Lock()
	t.r.calls = append(t.r.calls, append([]string(nil), ids...))
	t.r.mu.Unlock()
	return t.Tx.LockProducts(tenantID, ids)
}

func (t *recordingTx) deleted(what string) {
	t.r.mu.Lock()
	t.r.deletes = append(t.r.deletes, what)
	t.r.mu.Unlock()
}

func (t *recordingTx) DeleteItems(tenantID, invoiceID string) error {
	t.deleted("items")
	return t.Tx.DeleteItems(tenantID, invoiceID)
}

func (t *recordingTx) DeleteStockMovementsByInvoice(tenantID, invoiceID string) error {
	t.deleted("movements")
	return t.Tx.DeleteStockMovementsByInvoice(tenantID, invoiceID)
}

func (t *recordingTx) DeleteInvoice(tenantID, invoiceID string) error {
	t.deleted("invoice")
	return t.Tx.DeleteInvoice(tenantID, invoiceID)
}

func newLockOrderFixture(t *testing.T) (*fixture, *lockRecorder, models.Product, models.Product) {
	f := newFixture(t)
	rec := &lockRecorder{Store: f.store}
	log := logrus.New()
	log.SetOutput(io.Discard)
	f.engine = invoicing.NewEngine(rec, nil, log).WithClock(func() time.Time { return f.now })

	lo := f.store.AddProduct(models.Product{ID: "prod-a", TenantID: f.tenant.ID, Name: "Anchor", UnitPrice: dec("10"), Stock: 10})
	hi := f.store.AddProduct(models.Product{ID: "prod-z", TenantID: f.tenant.ID, Name: "Zipper", UnitPrice: dec("10"), Stock: 10})
	return f, rec, lo, hi
}

func TestProductLocksFollowIDOrder(t *testing.T) {
	tests := []struct {
		name string
		run  func(f *fixture, invoice *models.Invoice) error
	}{
		{"cancel", func(f *fixture, invoice *models.Invoice) error {
			_, err := f.engine.Cancel(f.ctx, f.tenant.ID, invoice.ID)
			return err
		}},
		{"delete", func(f *fixture, invoice *models.Invoice) error {
			return f.engine.Delete(f.ctx, f.tenant.ID, invoice.ID)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, rec, lo, hi := newLockOrderFixture(t)

			invoice := f.mustCreate(item(hi.ID, 1, "10"), item(lo.ID, 2, "10"), item(hi.ID, 1, "10"))
			assert.Equal(t, []string{lo.ID, hi.ID}, rec.first(), "create")

			rec.reset()
			require.NoError(t, tc.run(f, invoice))
			assert.Equal(t, []string{lo.ID, hi.ID}, rec.first())
			assert.Equal(t, 10, f.store.ProductStock(lo.ID))
			assert.Equal(t, 10, f.store.ProductStock(hi.ID))
		})
	}
}

func TestDelete_RemovesItemsThenMovementsThenInvoice(t *testing.T) {
	f, rec, lo, hi := newLockOrderFixture(t)
	invoice := f.mustCreate(item(lo.ID, 1, "10"), item(hi.ID, 1, "10"))

	rec.reset()
	require.NoError(t, f.engine.Delete(f.ctx, f.tenant.ID, invoice.ID))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"items", "movements", "invoice"}, rec.deletes)
	assert.Zero(t, f.store.InvoiceCount())
	assert.Zero(t, f.store.ItemCount())
}
