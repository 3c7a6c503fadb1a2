package invoicing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"bizledger-backend/invoicing"
	"bizledger-backend/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalcItem(t *testing.T) {
	tests := []struct {
		name                  string
		qty                   int
		price, rate, discount string
		subtotal, tax, total  string
	}{
		{"standard rate", 2, "99.99", "19", "0", "199.98", "37.9962", "237.9762"},
		{"zero rate", 3, "10", "0", "0", "30", "0", "30"},
		{"discount", 1, "100", "19", "5", "100", "19", "114"},
		{"tax rounds half up", 1, "0.00025", "50", "0", "0.0003", "0.0002", "0.0005"},
		{"free item", 4, "0", "19", "0", "0", "0", "0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := invoicing.CalcItem(tc.qty, dec(tc.price), dec(tc.rate), dec(tc.discount))
			assert.True(t, dec(tc.subtotal).Equal(got.Subtotal), "subtotal %s", got.Subtotal)
			assert.True(t, dec(tc.tax).Equal(got.Tax), "tax %s", got.Tax)
			assert.True(t, dec(tc.total).Equal(got.Total), "total %s", got.Total)
		})
	}
}

func TestCalcAggregate_DerivesTotalFromSums(t *testing.T) {
	items := []models.InvoiceItem{
		{Subtotal: dec("199.98"), Tax: dec("37.9962"), Discount: dec("0")},
		{Subtotal: dec("10"), Tax: dec("1.9"), Discount: dec("2.5")},
	}
	got := invoicing.CalcAggregate(items)

	assert.True(t, dec("209.98").Equal(got.Subtotal))
	assert.True(t, dec("39.8962").Equal(got.Tax))
	assert.True(t, dec("2.5").Equal(got.Discount))
	assert.True(t, got.Subtotal.Add(got.Tax).Sub(got.Discount).Equal(got.Total))
}

func TestCalcAggregate_Empty(t *testing.T) {
	got := invoicing.CalcAggregate(nil)
	assert.True(t, got.Subtotal.IsZero())
	assert.True(t, got.Tax.IsZero())
	assert.True(t, got.Discount.IsZero())
	assert.True(t, got.Total.IsZero())
}

func TestValidateItemInput(t *testing.T) {
	rate := dec("120")
	bigDiscount := dec("500")
	negative := dec("-1")

	tests := []struct {
		name string
		in   invoicing.ItemInput
		ok   bool
	}{
		{"valid", invoicing.ItemInput{ProductID: "p", Quantity: 1, UnitPrice: dec("5")}, true},
		{"missing product", invoicing.ItemInput{Quantity: 1, UnitPrice: dec("5")}, false},
		{"zero quantity", invoicing.ItemInput{ProductID: "p", Quantity: 0, UnitPrice: dec("5")}, false},
		{"negative price", invoicing.ItemInput{ProductID: "p", Quantity: 1, UnitPrice: dec("-5")}, false},
		{"rate above 100", invoicing.ItemInput{ProductID: "p", Quantity: 1, UnitPrice: dec("5"), TaxRate: &rate}, false},
		{"negative discount", invoicing.ItemInput{ProductID: "p", Quantity: 1, UnitPrice: dec("5"), Discount: &negative}, false},
		{"discount above line", invoicing.ItemInput{ProductID: "p", Quantity: 1, UnitPrice: dec("5"), Discount: &bigDiscount}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := invoicing.ValidateItemInput(tc.in)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, invoicing.KindBadRequest, invoicing.KindOf(err))
		})
	}
}
