package invoicing

import (
	"fmt"

	"bizledger-backend/models"
)

// StockDelta is one signed change to a product's stock, explained by one movement.
type StockDelta struct {
	TenantID    string
	ProductID   string
	WarehouseID string
	Quantity    int
	UserID      string
	Type        models.MovementType
	Reason      string
	InvoiceID   string
}

// StockLedger is the only writer of product and warehouse stock counters. It runs
// inside the caller's transaction.
type StockLedger struct{}

func (StockLedger) Apply(tx Tx, d StockDelta) error {
	if d.Quantity == 0 {
		return nil
	}
	products, err := tx.LockProducts(d.TenantID, []string{d.ProductID})
	if err != nil {
		return fmt.Errorf("lock product %s: %w", d.ProductID, err)
	}
	product := products[d.ProductID]
	if product == nil {
		return NotFound("product %s not found", d.ProductID)
	}
	if d.Quantity < 0 && product.Stock < -d.Quantity {
		return insufficientStock(product.Name, product.ID, product.Stock, -d.Quantity)
	}

	applied, err := tx.AdjustProductStock(d.TenantID, d.ProductID, d.Quantity)
	if err != nil {
		return fmt.Errorf("adjust stock of product %s: %w", d.ProductID, err)
	}
	if !applied {
		return insufficientStock(product.Name, product.ID, product.Stock, -d.Quantity)
	}
	if err := tx.AdjustWarehouseStock(d.TenantID, d.WarehouseID, d.ProductID, d.Quantity); err != nil {
		return fmt.Errorf("adjust warehouse stock of product %s: %w", d.ProductID, err)
	}

	movement := &models.StockMovement{
		TenantID:    d.TenantID,
		ProductID:   d.ProductID,
		WarehouseID: d.WarehouseID,
		UserID:      optional(d.UserID),
		Type:        d.Type,
		Quantity:    d.Quantity,
		Reason:      d.Reason,
		InvoiceID:   optional(d.InvoiceID),
	}
	if err := tx.CreateStockMovement(movement); err != nil {
		return fmt.Errorf("record stock movement: %w", err)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
