package invoicing

import (
	"fmt"
	"strings"

	"bizledger-backend/models"
)

// resolveWarehouse picks the warehouse a new invoice sells from: the explicit id, else
// the creator's assigned warehouse, else the tenant default. Non-admin users assigned to
// a warehouse may not name another one.
func resolveWarehouse(tx Tx, tenantID string, user *models.User, explicit *string) (*models.Warehouse, error) {
	if explicit != nil && strings.TrimSpace(*explicit) != "" {
		id := strings.TrimSpace(*explicit)
		if err := checkWarehouseAccess(user, id); err != nil {
			return nil, err
		}
		return mustWarehouse(tx, tenantID, id)
	}
	if user.WarehouseID != nil && *user.WarehouseID != "" {
		return mustWarehouse(tx, tenantID, *user.WarehouseID)
	}
	warehouse, err := tx.GetDefaultWarehouse(tenantID)
	if err != nil {
		return nil, fmt.Errorf("load default warehouse: %w", err)
	}
	if warehouse == nil {
		return nil, NotFound("no warehouse given, none assigned to user %s and no tenant default", user.Id)
	}
	return warehouse, nil
}

func checkWarehouseAccess(user *models.User, warehouseID string) error {
	if user.IsAdmin() || user.WarehouseID == nil || *user.WarehouseID == "" {
		return nil
	}
	if *user.WarehouseID != warehouseID {
		return newError(KindForbidden, ErrWarehouseAccess,
			"user %s is restricted to warehouse %s, not %s", user.Id, *user.WarehouseID, warehouseID)
	}
	return nil
}

func mustWarehouse(tx Tx, tenantID, id string) (*models.Warehouse, error) {
	warehouse, err := tx.GetWarehouse(tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("load warehouse %s: %w", id, err)
	}
	if warehouse == nil {
		return nil, NotFound("warehouse %s not found", id)
	}
	return warehouse, nil
}

func mustUser(tx Tx, tenantID, id string) (*models.User, error) {
	user, err := tx.GetUser(tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}
	if user == nil {
		return nil, NotFound("user %s not found", id)
	}
	return user, nil
}
