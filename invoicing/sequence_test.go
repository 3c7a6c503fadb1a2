package invoicing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizledger-backend/invoicing"
	"bizledger-backend/invoicing/invoicingtest"
	"bizledger-backend/models"
)

func TestFormatDocumentNumber(t *testing.T) {
	assert.Equal(t, "INV-00001", invoicing.FormatDocumentNumber("INV", 1))
	assert.Equal(t, "DS-00042", invoicing.FormatDocumentNumber("DS", 42))
	assert.Equal(t, "POS-123456", invoicing.FormatDocumentNumber("POS", 123456))
}

func TestParseDocumentNumber(t *testing.T) {
	n, err := invoicing.ParseDocumentNumber("INV", "INV-00042")
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)

	_, err = invoicing.ParseDocumentNumber("INV", "DS-00042")
	assert.Error(t, err)
	_, err = invoicing.ParseDocumentNumber("INV", "INV-abc")
	assert.Error(t, err)
	_, err = invoicing.ParseDocumentNumber("INV", "INV-")
	assert.Error(t, err)
}

func TestDocumentTypePrefix(t *testing.T) {
	assert.Equal(t, "INV", invoicing.DocumentInvoice.Prefix())
	assert.Equal(t, "DS", invoicing.DocumentSupportDocument.Prefix())
	assert.Equal(t, "POS", invoicing.DocumentPOSSale.Prefix())
}

func nextNumber(t *testing.T, store *invoicingtest.Store, tenantID, prefix string) string {
	t.Helper()
	var number string
	err := store.WithTransaction(context.Background(), func(tx invoicing.Tx) error {
		var err error
		number, err = invoicing.SequenceGenerator{}.Next(tx, tenantID, prefix)
		return err
	})
	require.NoError(t, err)
	return number
}

func seedNumber(t *testing.T, store *invoicingtest.Store, tenantID, number string) {
	t.Helper()
	err := store.WithTransaction(context.Background(), func(tx invoicing.Tx) error {
		return tx.CreateInvoice(&models.Invoice{
			TenantID:      tenantID,
			UserID:        "u",
			InvoiceNumber: number,
			IssueDate:     time.Now(),
			Status:        models.InvoiceStatusDraft,
		})
	})
	require.NoError(t, err)
}

func TestSequenceGenerator_Next(t *testing.T) {
	store := invoicingtest.NewStore()

	assert.Equal(t, "INV-00001", nextNumber(t, store, "t1", "INV"))

	seedNumber(t, store, "t1", "INV-00009")
	seedNumber(t, store, "t1", "INV-00010")
	seedNumber(t, store, "t1", "DS-00500")
	seedNumber(t, store, "t2", "INV-00077")

	assert.Equal(t, "INV-00011", nextNumber(t, store, "t1", "INV"))
	assert.Equal(t, "DS-00501", nextNumber(t, store, "t1", "DS"))
	assert.Equal(t, "INV-00078", nextNumber(t, store, "t2", "INV"))
	assert.Equal(t, "POS-00001", nextNumber(t, store, "t2", "POS"))
}

func TestSequenceGenerator_OrdersNumericallyPastWidth(t *testing.T) {
	store := invoicingtest.NewStore()
	seedNumber(t, store, "t1", "INV-99999")
	seedNumber(t, store, "t1", "INV-100000")

	assert.Equal(t, "INV-100001", nextNumber(t, store, "t1", "INV"))
}

func TestMonthStart(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	got := invoicing.MonthStart(time.Date(2026, 10, 18, 15, 4, 5, 6, loc))
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, loc), got)
}
