package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bizledger-backend/controllers"
	"bizledger-backend/invoicing"
	"bizledger-backend/middlewares"
)

type Deps struct {
	DB     *gorm.DB
	Engine *invoicing.Engine
	// Guard is optional; without it only completed requests are deduplicated.
	Guard middlewares.InFlightGuard
	Log   *logrus.Logger
}

// Register wires all HTTP routes.
func Register(app *fiber.App, deps Deps) {
	auth := controllers.NewAuthController(deps.DB)
	invoices := controllers.NewInvoiceController(deps.Engine)

	api := app.Group("/api")

	// Public auth endpoints
	api.Post("/login", auth.Login)
	api.Post("/logout", auth.Logout)

	// Protected endpoints (JWT auth)
	protected := api.Group("")
	protected.Use(middlewares.IsAuthenticatedHeader())
	protected.Use(middlewares.Idempotency(deps.DB, deps.Guard, deps.Log))

	// Invoices
	protected.Post("/invoices", invoices.CreateInvoice)
	protected.Get("/invoices", invoices.GetInvoices)
	protected.Get("/invoices/:id", invoices.GetInvoice)
	protected.Patch("/invoices/:id", invoices.UpdateInvoice)
	protected.Delete("/invoices/:id", invoices.DeleteInvoice)
	protected.Post("/invoices/:id/items", invoices.AddItem)
	protected.Patch("/invoices/:id/items/:itemId", invoices.UpdateItem)
	protected.Delete("/invoices/:id/items/:itemId", invoices.DeleteItem)
	protected.Post("/invoices/:id/send", invoices.SendInvoice)
	protected.Post("/invoices/:id/cancel", invoices.CancelInvoice)
	protected.Put("/invoices/:id/external-document", invoices.RecordExternalDocument)

	// Stock audit trail
	protected.Get("/stock-movements", invoices.GetStockMovements)
}
