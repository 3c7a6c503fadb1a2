package invoicing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bizledger-backend/models"
	"bizledger-backend/utils"
)

var maxTaxRate = decimal.NewFromInt(100)

type ItemInput struct {
	ProductID   string           `json:"product_id" validate:"required"`
	Description string           `json:"description"`
	Quantity    int              `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	TaxRate     *decimal.Decimal `json:"tax_rate"`
	Discount    *decimal.Decimal `json:"discount"`
}

// ItemPatch changes only the non-nil fields of an item.
type ItemPatch struct {
	Quantity  *int             `json:"quantity" validate:"omitempty,gt=0"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	TaxRate   *decimal.Decimal `json:"tax_rate"`
	Discount  *decimal.Decimal `json:"discount"`
}

type CreateInput struct {
	TenantID    string      `json:"-"`
	UserID      string      `json:"-"`
	CustomerID  *string     `json:"customer_id"`
	WarehouseID *string     `json:"warehouse_id"`
	Items       []ItemInput `json:"items" validate:"required,min=1,dive"`
	DueDate     *time.Time  `json:"due_date"`
	Notes       *string     `json:"notes"`
}

type UpdateInput struct {
	Notes   *string    `json:"notes"`
	DueDate *time.Time `json:"due_date"`
}

type ExternalDocument struct {
	DocumentID  string     `json:"document_id" validate:"required"`
	Status      string     `json:"status" validate:"required"`
	SubmittedAt *time.Time `json:"submitted_at"`
}

// ValidateItemInput rejects malformed items before any calculation.
func ValidateItemInput(in ItemInput) error {
	if strings.TrimSpace(in.ProductID) == "" {
		return BadRequest("product_id is required")
	}
	return validateAmounts(in.Quantity, in.UnitPrice, taxRateOrDefault(in.TaxRate), discountOrZero(in.Discount))
}

func validateAmounts(quantity int, unitPrice, taxRate, discount decimal.Decimal) error {
	if quantity <= 0 {
		return BadRequest("quantity must be greater than 0, got %d", quantity)
	}
	if unitPrice.IsNegative() {
		return BadRequest("unit_price must not be negative, got %s", unitPrice)
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(maxTaxRate) {
		return BadRequest("tax_rate must be between 0 and 100, got %s", taxRate)
	}
	if discount.IsNegative() {
		return BadRequest("discount must not be negative, got %s", discount)
	}
	line := CalcItem(quantity, unitPrice, taxRate, discount)
	if line.Total.IsNegative() {
		return BadRequest("discount %s exceeds line amount %s", discount, line.Subtotal.Add(line.Tax))
	}
	return nil
}

func validateCreateInput(in CreateInput) error {
	if strings.TrimSpace(in.TenantID) == "" {
		return BadRequest("tenant is required")
	}
	if strings.TrimSpace(in.UserID) == "" {
		return BadRequest("user is required")
	}
	if len(in.Items) == 0 {
		return BadRequest("an invoice needs at least one item")
	}
	for i, item := range in.Items {
		if err := ValidateItemInput(item); err != nil {
			var e *Error
			if !errors.As(err, &e) {
				return fmt.Errorf("item %d: %w", i, err)
			}
			e.Message = "item " + strconv.Itoa(i) + ": " + e.Message
			return e
		}
	}
	return nil
}

// newItem builds an item row with defaults applied and amounts derived.
func newItem(tenantID string, in ItemInput, product *models.Product) models.InvoiceItem {
	productID := in.ProductID
	description := in.Description
	if description == "" && product != nil {
		description = product.Name
	}
	item := models.InvoiceItem{
		TenantID:    tenantID,
		ProductID:   &productID,
		Description: description,
		Quantity:    in.Quantity,
		UnitPrice:   utils.RoundMoney(in.UnitPrice),
		TaxRate:     taxRateOrDefault(in.TaxRate),
		Discount:    utils.RoundMoney(discountOrZero(in.Discount)),
	}
	applyLine(&item)
	return item
}

func taxRateOrDefault(rate *decimal.Decimal) decimal.Decimal {
	if rate == nil {
		return DefaultTaxRate
	}
	return *rate
}

func discountOrZero(discount *decimal.Decimal) decimal.Decimal {
	if discount == nil {
		return decimal.Zero
	}
	return *discount
}
