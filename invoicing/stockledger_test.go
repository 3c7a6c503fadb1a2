package invoicing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizledger-backend/invoicing"
	"bizledger-backend/invoicing/invoicingtest"
	"bizledger-backend/models"
)

func applyDelta(store *invoicingtest.Store, d invoicing.StockDelta) error {
	return store.WithTransaction(context.Background(), func(tx invoicing.Tx) error {
		return invoicing.StockLedger{}.Apply(tx, d)
	})
}

func TestStockLedger_Apply(t *testing.T) {
	store := invoicingtest.NewStore()
	p := store.AddProduct(models.Product{TenantID: "t1", Name: "Widget", Stock: 5})

	err := applyDelta(store, invoicing.StockDelta{
		TenantID: "t1", ProductID: p.ID, WarehouseID: "w1", Quantity: -3,
		UserID: "u1", Type: models.MovementSale, Reason: "sale", InvoiceID: "inv-1",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, store.ProductStock(p.ID))
	qty, ok := store.WarehouseStock("w1", p.ID)
	assert.True(t, ok)
	assert.Equal(t, -3, qty)

	movements := store.Movements()
	require.Len(t, movements, 1)
	m := movements[0]
	assert.Equal(t, -3, m.Quantity)
	assert.Equal(t, models.MovementSale, m.Type)
	require.NotNil(t, m.InvoiceID)
	assert.Equal(t, "inv-1", *m.InvoiceID)
	require.NotNil(t, m.UserID)
	assert.Equal(t, "u1", *m.UserID)
}

func TestStockLedger_ZeroDeltaIsNoop(t *testing.T) {
	store := invoicingtest.NewStore()
	p := store.AddProduct(models.Product{TenantID: "t1", Name: "Widget", Stock: 5})

	require.NoError(t, applyDelta(store, invoicing.StockDelta{TenantID: "t1", ProductID: p.ID, WarehouseID: "w1"}))
	assert.Empty(t, store.Movements())
	_, ok := store.WarehouseStock("w1", p.ID)
	assert.False(t, ok)
}

func TestStockLedger_InsufficientStock(t *testing.T) {
	store := invoicingtest.NewStore()
	p := store.AddProduct(models.Product{TenantID: "t1", Name: "Widget", Stock: 1})

	err := applyDelta(store, invoicing.StockDelta{
		TenantID: "t1", ProductID: p.ID, WarehouseID: "w1", Quantity: -2, Type: models.MovementSale,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, invoicing.ErrInsufficientStock))
	assert.Equal(t, invoicing.KindBadRequest, invoicing.KindOf(err))
	assert.Contains(t, err.Error(), `"Widget"`)
	assert.Contains(t, err.Error(), "available 1, requested 2")

	assert.Equal(t, 1, store.ProductStock(p.ID))
	assert.Empty(t, store.Movements())
}

func TestStockLedger_OtherTenantProductIsNotFound(t *testing.T) {
	store := invoicingtest.NewStore()
	p := store.AddProduct(models.Product{TenantID: "t1", Name: "Widget", Stock: 5})

	err := applyDelta(store, invoicing.StockDelta{
		TenantID: "t2", ProductID: p.ID, WarehouseID: "w1", Quantity: 1, Type: models.MovementReturn,
	})
	assert.Equal(t, invoicing.KindNotFound, invoicing.KindOf(err))
	assert.Equal(t, 5, store.ProductStock(p.ID))
}

func TestStockLedger_RollsBackWhenMovementFails(t *testing.T) {
	store := invoicingtest.NewStore()
	p := store.AddProduct(models.Product{TenantID: "t1", Name: "Widget", Stock: 5})
	store.FailOn = "CreateStockMovement"

	err := applyDelta(store, invoicing.StockDelta{
		TenantID: "t1", ProductID: p.ID, WarehouseID: "w1", Quantity: -1, Type: models.MovementSale,
	})
	assert.ErrorIs(t, err, invoicingtest.ErrInjected)
	assert.Equal(t, invoicing.KindInternal, invoicing.KindOf(err))
	assert.Equal(t, 5, store.ProductStock(p.ID))
	_, ok := store.WarehouseStock("w1", p.ID)
	assert.False(t, ok)
}
