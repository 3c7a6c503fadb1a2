package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"bizledger-backend/invoicing"
	"bizledger-backend/middlewares"
	"bizledger-backend/models"
	"bizledger-backend/utils"
)

type InvoiceController struct {
	engine *invoicing.Engine
}

func NewInvoiceController(engine *invoicing.Engine) *InvoiceController {
	return &InvoiceController{engine: engine}
}

func (ic *InvoiceController) CreateInvoice(c *fiber.Ctx) error {
	var in invoicing.CreateInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	in.TenantID = middlewares.TenantID(c)
	in.UserID = middlewares.UserID(c)

	invoice, err := ic.engine.Create(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(invoice)
}

func (ic *InvoiceController) GetInvoices(c *fiber.Ctx) error {
	filter := invoicing.InvoiceFilter{
		Status:     models.InvoiceStatus(c.Query("status")),
		CustomerID: c.Query("customer_id"),
		Page:       utils.ParseIntDefault(c.Query("page"), 1),
		Limit:      utils.ParseIntDefault(c.Query("limit"), 20),
	}
	var err error
	if filter.From, err = parseDateQuery(c, "from"); err != nil {
		return err
	}
	if filter.To, err = parseDateQuery(c, "to"); err != nil {
		return err
	}

	invoices, total, err := ic.engine.FindAll(c.UserContext(), middlewares.TenantID(c), filter)
	if err != nil {
		return err
	}
	filter = filter.Normalize()
	return c.JSON(fiber.Map{
		"data":  invoices,
		"total": total,
		"page":  filter.Page,
		"limit": filter.Limit,
	})
}

func (ic *InvoiceController) GetInvoice(c *fiber.Ctx) error {
	invoice, err := ic.engine.FindOne(c.UserContext(), middlewares.TenantID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(invoice)
}

func (ic *InvoiceController) UpdateInvoice(c *fiber.Ctx) error {
	var in invoicing.UpdateInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	invoice, err := ic.engine.Update(c.UserContext(), middlewares.TenantID(c), c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(invoice)
}

func (ic *InvoiceController) DeleteInvoice(c *fiber.Ctx) error {
	if err := ic.engine.Delete(c.UserContext(), middlewares.TenantID(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (ic *InvoiceController) AddItem(c *fiber.Ctx) error {
	var in invoicing.ItemInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	invoice, err := ic.engine.AddItem(c.UserContext(), middlewares.TenantID(c), c.Params("id"), middlewares.UserID(c), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(invoice)
}

func (ic *InvoiceController) UpdateItem(c *fiber.Ctx) error {
	var patch invoicing.ItemPatch
	if err := middlewares.BindAndValidate(c, &patch); err != nil {
		return err
	}
	invoice, err := ic.engine.UpdateItem(c.UserContext(), middlewares.TenantID(c), c.Params("id"), c.Params("itemId"), middlewares.UserID(c), patch)
	if err != nil {
		return err
	}
	return c.JSON(invoice)
}

func (ic *InvoiceController) DeleteItem(c *fiber.Ctx) error {
	invoice, err := ic.engine.DeleteItem(c.UserContext(), middlewares.TenantID(c), c.Params("id"), c.Params("itemId"), middlewares.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(invoice)
}

func (ic *InvoiceController) SendInvoice(c *fiber.Ctx) error {
	invoice, err := ic.engine.Send(c.UserContext(), middlewares.TenantID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(invoice)
}

func (ic *InvoiceController) CancelInvoice(c *fiber.Ctx) error {
	invoice, err := ic.engine.Cancel(c.UserContext(), middlewares.TenantID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(invoice)
}

// RecordExternalDocument is called by the e-invoicing submitter once the document was filed.
func (ic *InvoiceController) RecordExternalDocument(c *fiber.Ctx) error {
	var doc invoicing.ExternalDocument
	if err := middlewares.BindAndValidate(c, &doc); err != nil {
		return err
	}
	invoice, err := ic.engine.RecordExternalDocument(c.UserContext(), middlewares.TenantID(c), c.Params("id"), doc)
	if err != nil {
		return err
	}
	return c.JSON(invoice)
}

func (ic *InvoiceController) GetStockMovements(c *fiber.Ctx) error {
	movements, err := ic.engine.Movements(c.UserContext(), middlewares.TenantID(c), invoicing.MovementFilter{
		ProductID: c.Query("product_id"),
		InvoiceID: c.Query("invoice_id"),
		Limit:     utils.ParseIntDefault(c.Query("limit"), 100),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": movements})
}

// parseDateQuery accepts YYYY-MM-DD or RFC 3339.
func parseDateQuery(c *fiber.Ctx, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name+" date")
}
