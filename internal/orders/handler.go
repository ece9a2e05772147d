package orders

import (
	"strings"
	"time"

	"bakery-backend/internal/apperr"
	"bakery-backend/internal/auth"
	"bakery-backend/internal/models"
	"bakery-backend/internal/payment"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

type CreateOrderRequest struct {
	CustomerName    string                 `json:"customer_name"`
	CustomerEmail   string                 `json:"customer_email"`
	CustomerPhone   string                 `json:"customer_phone"`
	FulfillmentType models.FulfillmentType `json:"fulfillment_type"`
	LocationID      *uint                  `json:"location_id"`
	AddressLine1    string                 `json:"address_line1"`
	AddressLine2    string                 `json:"address_line2"`
	City            string                 `json:"city"`
	PostalCode      string                 `json:"postal_code"`
	FulfillmentDate string                 `json:"fulfillment_date"` // YYYY-MM-DD
	WindowStart     string                 `json:"window_start"`     // HH:MM
	WindowEnd       string                 `json:"window_end"`
	Notes           string                 `json:"notes"`
	Items           []LineInput            `json:"items"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type OrderItemResponse struct {
	ProductID   uint            `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type OrderResponse struct {
	ID              uint                   `json:"id"`
	PublicID        string                 `json:"public_id"`
	CustomerName    string                 `json:"customer_name"`
	CustomerEmail   string                 `json:"customer_email"`
	CustomerPhone   string                 `json:"customer_phone"`
	FulfillmentType models.FulfillmentType `json:"fulfillment_type"`
	LocationID      *uint                  `json:"location_id"`
	LocationName    string                 `json:"location_name,omitempty"`
	AddressLine1    string                 `json:"address_line1,omitempty"`
	AddressLine2    string                 `json:"address_line2,omitempty"`
	City            string                 `json:"city,omitempty"`
	PostalCode      string                 `json:"postal_code,omitempty"`
	FulfillmentDate string                 `json:"fulfillment_date"`
	WindowStart     string                 `json:"window_start"`
	WindowEnd       string                 `json:"window_end"`
	Status          models.OrderStatus     `json:"status"`
	Subtotal        decimal.Decimal        `json:"subtotal"`
	Total           decimal.Decimal        `json:"total"`
	Currency        string                 `json:"currency"`
	PaymentIntentID string                 `json:"stripe_payment_intent_id"`
	PaymentStatus   models.PaymentStatus   `json:"stripe_payment_status"`
	Notes           string                 `json:"notes"`
	CreatedAt       string                 `json:"created_at"`
	Items           []OrderItemResponse    `json:"items"`
}

// PublicOrderResponse is what a customer sees when looking up their order.
type PublicOrderResponse struct {
	PublicID        string                 `json:"public_id"`
	Status          models.OrderStatus     `json:"status"`
	PaymentStatus   models.PaymentStatus   `json:"payment_status"`
	FulfillmentType models.FulfillmentType `json:"fulfillment_type"`
	FulfillmentDate string                 `json:"fulfillment_date"`
	WindowStart     string                 `json:"window_start"`
	WindowEnd       string                 `json:"window_end"`
	Total           decimal.Decimal        `json:"total"`
	Currency        string                 `json:"currency"`
	Items           []OrderItemResponse    `json:"items"`
}

func itemResponses(items []models.OrderItem) []OrderItemResponse {
	res := make([]OrderItemResponse, 0, len(items))
	for _, it := range items {
		res = append(res, OrderItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal,
		})
	}
	return res
}

func toOrderResponse(o models.Order) OrderResponse {
	res := OrderResponse{
		ID:              o.ID,
		PublicID:        o.PublicID,
		CustomerName:    o.CustomerName,
		CustomerEmail:   o.CustomerEmail,
		CustomerPhone:   o.CustomerPhone,
		FulfillmentType: o.FulfillmentType,
		LocationID:      o.LocationID,
		AddressLine1:    o.AddressLine1,
		AddressLine2:    o.AddressLine2,
		City:            o.City,
		PostalCode:      o.PostalCode,
		FulfillmentDate: o.FulfillmentDate.Format(dateLayout),
		WindowStart:     o.WindowStart,
		WindowEnd:       o.WindowEnd,
		Status:          o.Status,
		Subtotal:        o.Subtotal,
		Total:           o.Total,
		Currency:        o.Currency,
		PaymentIntentID: o.StripePaymentIntentID,
		PaymentStatus:   o.StripePaymentStatus,
		Notes:           o.Notes,
		CreatedAt:       o.CreatedAt.Format("2006-01-02 15:04:05"),
		Items:           itemResponses(o.Items),
	}
	if o.Location != nil {
		res.LocationName = o.Location.Name
	}
	return res
}

func paramID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, apperr.Validationf("invalid id %q", c.Params("id"))
	}
	return uint(id), nil
}

// POST /api/orders
func CreateOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateOrderRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		date, err := time.Parse(dateLayout, strings.TrimSpace(body.FulfillmentDate))
		if err != nil {
			return apperr.Validationf("fulfillment_date must be YYYY-MM-DD")
		}

		created, err := svc.CreateOrder(c.UserContext(), CreateOrderInput{
			CustomerName:    body.CustomerName,
			CustomerEmail:   body.CustomerEmail,
			CustomerPhone:   body.CustomerPhone,
			FulfillmentType: body.FulfillmentType,
			LocationID:      body.LocationID,
			AddressLine1:    body.AddressLine1,
			AddressLine2:    body.AddressLine2,
			City:            body.City,
			PostalCode:      body.PostalCode,
			FulfillmentDate: date,
			WindowStart:     strings.TrimSpace(body.WindowStart),
			WindowEnd:       strings.TrimSpace(body.WindowEnd),
			Notes:           body.Notes,
			Items:           body.Items,
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":             created.Order.ID,
			"public_id":      created.Order.PublicID,
			"total":          created.Order.Total,
			"currency":       created.Order.Currency,
			"payment_intent": created.Order.StripePaymentIntentID,
			"client_secret":  created.ClientSecret,
		})
	}
}

// GET /api/orders/:publicId
func GetPublicOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		o, err := svc.GetByPublicID(c.UserContext(), c.Params("publicId"))
		if err != nil {
			return err
		}
		return c.JSON(PublicOrderResponse{
			PublicID:        o.PublicID,
			Status:          o.Status,
			PaymentStatus:   o.StripePaymentStatus,
			FulfillmentType: o.FulfillmentType,
			FulfillmentDate: o.FulfillmentDate.Format(dateLayout),
			WindowStart:     o.WindowStart,
			WindowEnd:       o.WindowEnd,
			Total:           o.Total,
			Currency:        o.Currency,
			Items:           itemResponses(o.Items),
		})
	}
}

// GET /api/admin/orders?status=new&date=2024-05-03&limit=50
func ListOrdersHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var f ListFilter
		if raw := c.Query("status"); raw != "" {
			st, ok := models.ParseOrderStatus(raw)
			if !ok {
				return apperr.Validationf("unknown order status %q", raw)
			}
			f.Status = st
		}
		if raw := c.Query("date"); raw != "" {
			d, err := time.Parse(dateLayout, raw)
			if err != nil {
				return apperr.Validationf("date must be YYYY-MM-DD")
			}
			f.Date = &d
		}
		f.Limit = c.QueryInt("limit", 100)

		orders, err := svc.List(c.UserContext(), f)
		if err != nil {
			return err
		}
		res := make([]OrderResponse, 0, len(orders))
		for _, o := range orders {
			res = append(res, toOrderResponse(o))
		}
		return c.JSON(res)
	}
}

// GET /api/admin/orders/:id
func GetOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}
		o, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(toOrderResponse(o))
	}
}

// PATCH /api/admin/orders/:id/status
func UpdateOrderStatusHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}

		var body UpdateStatusRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		next, ok := models.ParseOrderStatus(body.Status)
		if !ok {
			return apperr.Validationf("unknown order status %q", body.Status)
		}

		res, err := svc.UpdateStatus(c.UserContext(), id, next, auth.ActorFromCtx(c))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"order":     toOrderResponse(res.Order),
			"unchanged": res.Unchanged,
			"warnings":  res.Warnings,
		})
	}
}

// POST /api/webhooks/stripe
func StripeWebhookHandler(svc *Service, secret string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		evt, err := payment.ParseStripeWebhook(c.Body(), c.Get("Stripe-Signature"), secret)
		if err != nil {
			log.Warn("rejected stripe webhook", zap.Error(err))
			return fiber.NewError(fiber.StatusBadRequest, "Invalid webhook signature")
		}
		if err := svc.HandleWebhook(c.UserContext(), evt); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusOK)
	}
}
