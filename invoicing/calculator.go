package invoicing

import (
	"github.com/shopspring/decimal"

	"bizledger-backend/models"
	"bizledger-backend/utils"
)

// DefaultTaxRate applies when an item does not state its own rate.
var DefaultTaxRate = decimal.NewFromInt(19)

type LineAmounts struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// CalcItem computes one line. Inputs must already be validated.
func CalcItem(quantity int, unitPrice, taxRate, discount decimal.Decimal) LineAmounts {
	subtotal := utils.RoundMoney(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
	tax := utils.Percent(subtotal, taxRate)
	return LineAmounts{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax).Sub(discount),
	}
}

// CalcAggregate sums subtotal, tax and discount over items and derives the total
// from those sums, never from the item totals.
func CalcAggregate(items []models.InvoiceItem) Totals {
	t := Totals{Subtotal: decimal.Zero, Tax: decimal.Zero, Discount: decimal.Zero}
	for _, item := range items {
		t.Subtotal = t.Subtotal.Add(item.Subtotal)
		t.Tax = t.Tax.Add(item.Tax)
		t.Discount = t.Discount.Add(item.Discount)
	}
	t.Total = t.Subtotal.Add(t.Tax).Sub(t.Discount)
	return t
}

// applyLine writes the derived amounts of item from its own inputs.
func applyLine(item *models.InvoiceItem) {
	line := CalcItem(item.Quantity, item.UnitPrice, item.TaxRate, item.Discount)
	item.Subtotal = line.Subtotal
	item.Tax = line.Tax
	item.Total = line.Total
}

func (t Totals) fields() map[string]any {
	return map[string]any{
		"subtotal": t.Subtotal,
		"tax":      t.Tax,
		"discount": t.Discount,
		"total":    t.Total,
	}
}

func (t Totals) applyTo(invoice *models.Invoice) {
	invoice.Subtotal = t.Subtotal
	invoice.Tax = t.Tax
	invoice.Discount = t.Discount
	invoice.Total = t.Total
}
