package database

import (
	"fmt"

	"gorm.io/gorm"

	"bizledger-backend/models"
)

// Migrate applies idempotent schema migrations:
// - AutoMigrate (tables/columns/index tags)
// - Foreign key: invoice_items.product_id -> products.id (SET NULL)
// - CHECK constraints on stock and quantities (postgres only)
func Migrate(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&models.Tenant{},
			&models.User{},
			&models.Warehouse{},
			&models.Customer{},
			&models.Product{},
			&models.WarehouseStock{},
			&models.Invoice{},
			&models.InvoiceItem{},
			&models.InvoiceVersion{},
			&models.StockMovement{},
			&models.IdempotencyKey{},
		); err != nil {
			return fmt.Errorf("automigrate failed: %w", err)
		}

		// MySQL DDL commits implicitly; constraints there come from the gorm tags only.
		if tx.Dialector.Name() != "postgres" {
			return nil
		}

		constraints := []struct{ table, name, ddl string }{
			{"invoice_items", "fk_invoice_items_product",
				`FOREIGN KEY (product_id) REFERENCES products(id) ON UPDATE RESTRICT ON DELETE SET NULL`},
			{"products", "chk_products_stock_nonneg", `CHECK (stock >= 0)`},
			{"products", "chk_products_unit_price_nonneg", `CHECK (unit_price >= 0)`},
			{"invoice_items", "chk_invoice_items_quantity_pos", `CHECK (quantity > 0)`},
			{"invoice_items", "chk_invoice_items_amounts_nonneg", `CHECK (unit_price >= 0 AND discount >= 0 AND total >= 0)`},
		}
		for _, c := range constraints {
			stmt := fmt.Sprintf(`
DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_constraint
		WHERE conrelid = '%s'::regclass
		  AND conname  = '%s'
	) THEN
		ALTER TABLE %s ADD CONSTRAINT %s %s;
	END IF;
END $$;`, c.table, c.name, c.table, c.name, c.ddl)
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("constraint migration failed on %s: %w", c.name, err)
			}
		}
		return nil
	})
}
