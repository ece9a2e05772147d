package orders

import (
	"errors"
	"fmt"

	"bakery-backend/internal/apperr"
	"bakery-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type InvoiceItemResponse struct {
	ProductID   uint            `json:"product_id"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type InvoiceResponse struct {
	ID            uint                  `json:"id"`
	Number        string                `json:"number"`
	OrderID       uint                  `json:"order_id"`
	OrderPublicID string                `json:"order_public_id,omitempty"`
	CustomerName  string                `json:"customer_name,omitempty"`
	IssuedAt      string                `json:"issued_at"`
	Subtotal      decimal.Decimal       `json:"subtotal"`
	Total         decimal.Decimal       `json:"total"`
	Currency      string                `json:"currency"`
	Items         []InvoiceItemResponse `json:"items"`
}

func toInvoiceResponse(inv models.Invoice) InvoiceResponse {
	res := InvoiceResponse{
		ID:       inv.ID,
		Number:   InvoiceNumber(inv.Number),
		OrderID:  inv.OrderID,
		IssuedAt: inv.IssuedAt.Format("2006-01-02 15:04:05"),
		Subtotal: inv.Subtotal,
		Total:    inv.Total,
		Currency: inv.Currency,
		Items:    make([]InvoiceItemResponse, 0, len(inv.Items)),
	}
	if inv.Order.ID != 0 {
		res.OrderPublicID = inv.Order.PublicID
		res.CustomerName = inv.Order.CustomerName
	}
	for _, it := range inv.Items {
		res.Items = append(res.Items, InvoiceItemResponse{
			ProductID:   it.ProductID,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal,
		})
	}
	return res
}

// GET /api/admin/invoices?limit=50
func ListInvoicesHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 100)
		if limit <= 0 || limit > 500 {
			limit = 100
		}

		var invoices []models.Invoice
		if err := db.WithContext(c.UserContext()).
			Preload("Order").
			Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
			Order("number DESC").
			Limit(limit).
			Find(&invoices).Error; err != nil {
			return fmt.Errorf("list invoices: %w", err)
		}

		res := make([]InvoiceResponse, 0, len(invoices))
		for _, inv := range invoices {
			res = append(res, toInvoiceResponse(inv))
		}
		return c.JSON(res)
	}
}

// GET /api/admin/orders/:id/invoice
func GetOrderInvoiceHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}

		var inv models.Invoice
		err = db.WithContext(c.UserContext()).
			Preload("Order").
			Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
			Where("order_id = ?", id).
			First(&inv).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFoundf("invoice for order %d", id)
			}
			return err
		}
		return c.JSON(toInvoiceResponse(inv))
	}
}

// POST /api/admin/orders/:id/invoice
// Issues the invoice of an approved order if it is still missing.
func EnsureInvoiceHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}

		inv, created, err := EnsureInvoice(c.UserContext(), db, id)
		if err != nil {
			return err
		}
		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(toInvoiceResponse(inv))
	}
}
