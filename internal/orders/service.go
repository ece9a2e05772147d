package orders

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"bakery-backend/internal/apperr"
	"bakery-backend/internal/events"
	"bakery-backend/internal/models"
	"bakery-backend/internal/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var windowPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Service owns the order lifecycle and its coupling to the payment processor.
type Service struct {
	db        *gorm.DB
	processor payment.Processor
	bus       *events.Bus
	log       *zap.Logger
	currency  string
	now       func() time.Time
}

func NewService(db *gorm.DB, processor payment.Processor, bus *events.Bus, log *zap.Logger, currency string) *Service {
	return &Service{
		db:        db,
		processor: processor,
		bus:       bus,
		log:       log,
		currency:  strings.ToLower(currency),
		now:       time.Now,
	}
}

type LineInput struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type CreateOrderInput struct {
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	FulfillmentType models.FulfillmentType
	LocationID      *uint
	AddressLine1    string
	AddressLine2    string
	City            string
	PostalCode      string
	FulfillmentDate time.Time
	WindowStart     string
	WindowEnd       string
	Notes           string
	Items           []LineInput
}

// Created is a persisted order plus the secret the storefront needs to confirm payment.
type Created struct {
	Order        models.Order
	ClientSecret string
}

type Result struct {
	Order     models.Order
	Unchanged bool
	Warnings  []string
}

type ListFilter struct {
	Status models.OrderStatus
	Date   *time.Time
	Limit  int
}

func (s *Service) validate(ctx context.Context, in *CreateOrderInput) error {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerEmail = strings.TrimSpace(strings.ToLower(in.CustomerEmail))
	if in.CustomerName == "" || in.CustomerEmail == "" {
		return apperr.Validationf("customer name and email are required")
	}
	if _, err := mail.ParseAddress(in.CustomerEmail); err != nil {
		return apperr.Validationf("invalid email %q", in.CustomerEmail)
	}
	if len(in.Items) == 0 {
		return apperr.Validationf("an order needs at least one item")
	}
	for i, it := range in.Items {
		if it.Quantity <= 0 {
			return apperr.Validationf("item %d must have a positive quantity", i+1)
		}
	}

	if in.FulfillmentDate.IsZero() {
		return apperr.Validationf("fulfillment_date is required")
	}
	today := s.now().Truncate(24 * time.Hour)
	if in.FulfillmentDate.Before(today) {
		return apperr.Validationf("fulfillment_date is in the past")
	}
	if in.WindowStart != "" || in.WindowEnd != "" {
		if !windowPattern.MatchString(in.WindowStart) || !windowPattern.MatchString(in.WindowEnd) {
			return apperr.Validationf("fulfillment window must be HH:MM-HH:MM")
		}
		if in.WindowStart >= in.WindowEnd {
			return apperr.Validationf("fulfillment window must end after it starts")
		}
	}

	switch in.FulfillmentType {
	case models.FulfillmentPickup:
		if in.LocationID == nil {
			return apperr.Validationf("pickup orders need a location")
		}
		var loc models.Location
		if err := s.db.WithContext(ctx).First(&loc, *in.LocationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Validationf("location %d does not exist", *in.LocationID)
			}
			return err
		}
		if !loc.Active {
			return apperr.Validationf("location %s is not taking orders", loc.Name)
		}
	case models.FulfillmentDelivery:
		in.LocationID = nil
		if strings.TrimSpace(in.AddressLine1) == "" || strings.TrimSpace(in.City) == "" || strings.TrimSpace(in.PostalCode) == "" {
			return apperr.Validationf("delivery orders need address_line1, city and postal_code")
		}
	default:
		return apperr.Validationf("fulfillment_type must be delivery or pickup")
	}
	return nil
}

// CreateOrder prices the cart from current product prices, places an authorization
// hold for the total and stores the order. Nothing is stored when any product is
// missing or inactive, or when the hold is refused.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (Created, error) {
	if err := s.validate(ctx, &in); err != nil {
		return Created{}, err
	}

	ids := make([]uint, 0, len(in.Items))
	for _, it := range in.Items {
		ids = append(ids, it.ProductID)
	}
	var products []models.Product
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return Created{}, fmt.Errorf("load products: %w", err)
	}
	byID := make(map[uint]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	order := models.Order{
		PublicID:            uuid.NewString(),
		CustomerName:        in.CustomerName,
		CustomerEmail:       in.CustomerEmail,
		CustomerPhone:       strings.TrimSpace(in.CustomerPhone),
		FulfillmentType:     in.FulfillmentType,
		LocationID:          in.LocationID,
		AddressLine1:        strings.TrimSpace(in.AddressLine1),
		AddressLine2:        strings.TrimSpace(in.AddressLine2),
		City:                strings.TrimSpace(in.City),
		PostalCode:          strings.TrimSpace(in.PostalCode),
		FulfillmentDate:     in.FulfillmentDate,
		WindowStart:         in.WindowStart,
		WindowEnd:           in.WindowEnd,
		Status:              models.OrderNew,
		Currency:            s.currency,
		StripePaymentStatus: models.PaymentPending,
		Notes:               strings.TrimSpace(in.Notes),
	}

	subtotal := decimal.Zero
	for _, it := range in.Items {
		p, ok := byID[it.ProductID]
		if !ok {
			return Created{}, apperr.Validationf("product %d does not exist", it.ProductID)
		}
		if !p.Active {
			return Created{}, apperr.Validationf("product %s is not available", p.Name)
		}
		line := p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		subtotal = subtotal.Add(line)
		order.Items = append(order.Items, models.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    it.Quantity,
			UnitPrice:   p.Price,
			LineTotal:   line,
		})
	}
	order.Subtotal = subtotal
	order.Total = subtotal

	hold, err := s.processor.Authorize(ctx, payment.AuthorizeRequest{
		AmountMinor: payment.MinorUnits(order.Total),
		Currency:    order.Currency,
		Metadata: map[string]string{
			"order_public_id": order.PublicID,
			"customer_email":  order.CustomerEmail,
		},
		IdempotencyKey: "order-" + order.PublicID,
	})
	if err != nil {
		s.log.Warn("payment authorization refused",
			zap.String("order_public_id", order.PublicID),
			zap.Error(err),
		)
		return Created{}, err
	}
	order.StripePaymentIntentID = hold.Handle

	if err := s.db.WithContext(ctx).Create(&order).Error; err != nil {
		// release the hold so the customer is not left with reserved funds
		if cerr := s.processor.Cancel(context.WithoutCancel(ctx), hold.Handle); cerr != nil {
			s.log.Error("could not release hold for unsaved order",
				zap.String("payment_intent", hold.Handle),
				zap.Error(cerr),
			)
		}
		return Created{}, fmt.Errorf("save order: %w", err)
	}

	s.log.Info("order created",
		zap.Uint("order_id", order.ID),
		zap.String("public_id", order.PublicID),
		zap.String("total", order.Total.StringFixed(2)),
	)
	evt := events.New(models.ActivityOrderCreated, "order", order.ID,
		fmt.Sprintf("order %s placed by %s for %s %s", order.PublicID, order.CustomerName, order.Total.StringFixed(2), strings.ToUpper(order.Currency)),
		map[string]any{"public_id": order.PublicID, "total": order.Total.StringFixed(2)}).WithActor(nil, order.CustomerName)
	if err := s.bus.Publish(ctx, evt); err != nil {
		s.log.Warn("order.created subscribers failed", zap.Uint("order_id", order.ID), zap.Error(err))
	}

	return Created{Order: order, ClientSecret: hold.ClientSecret}, nil
}

func (s *Service) Get(ctx context.Context, id uint) (models.Order, error) {
	return s.load(s.db.WithContext(ctx).Where("id = ?", id), fmt.Sprintf("order %d", id))
}

func (s *Service) GetByPublicID(ctx context.Context, publicID string) (models.Order, error) {
	return s.load(s.db.WithContext(ctx).Where("public_id = ?", publicID), "order "+publicID)
}

func (s *Service) load(q *gorm.DB, what string) (models.Order, error) {
	var order models.Order
	err := q.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Location").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return order, apperr.NotFoundf("%s", what)
		}
		return order, fmt.Errorf("load %s: %w", what, err)
	}
	return order, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]models.Order, error) {
	dbq := s.db.WithContext(ctx).Model(&models.Order{})
	if f.Status != "" {
		dbq = dbq.Where("status = ?", f.Status)
	}
	if f.Date != nil {
		dbq = dbq.Where("fulfillment_date >= ? AND fulfillment_date < ?", *f.Date, f.Date.AddDate(0, 0, 1))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var orders []models.Order
	err := dbq.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus moves an order to next. The order row stays locked while the payment
// processor is called, so two transitions of one order never interleave.
func (s *Service) UpdateStatus(ctx context.Context, id uint, next models.OrderStatus, actor models.Actor) (Result, error) {
	var (
		prev      models.OrderStatus
		unchanged bool
		warnings  []string
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFoundf("order %d", id)
			}
			return fmt.Errorf("lock order %d: %w", id, err)
		}
		prev = order.Status

		if prev == next {
			unchanged = true
			return nil
		}
		if !prev.CanTransitionTo(next) {
			return apperr.InvalidTransition("order", prev, next)
		}

		updates := map[string]any{"status": next}
		switch next {
		case models.OrderApproved:
			if err := s.capture(ctx, order); err != nil {
				return err
			}
			updates["stripe_payment_status"] = models.PaymentCaptured
			updates["approved_at"] = s.now()
		case models.OrderCancelled:
			if order.StripePaymentStatus != models.PaymentCaptured {
				if w := s.release(ctx, order); w != "" {
					warnings = append(warnings, w)
				}
				updates["stripe_payment_status"] = models.PaymentCancelled
			}
			updates["cancelled_at"] = s.now()
		}

		res := tx.Model(&models.Order{}).Where("id = ? AND status = ?", id, prev).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update order %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.Conflictf("order %d changed concurrently", id)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	order, err := s.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}

	if unchanged {
		// re-approving retries a missing invoice without touching the payment or
		// recording a second approval
		if next == models.OrderApproved {
			var n int64
			if err := s.db.WithContext(ctx).Model(&models.Invoice{}).Where("order_id = ?", id).Count(&n).Error; err != nil {
				return Result{}, err
			}
			if n == 0 {
				warnings = append(warnings, s.publishTransition(ctx, order, prev, actor, true)...)
			}
		}
		return Result{Order: order, Unchanged: true, Warnings: warnings}, nil
	}

	s.log.Info("order status changed",
		zap.Uint("order_id", id),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
		zap.String("payment_status", string(order.StripePaymentStatus)),
		zap.String("actor", actor.Name),
	)
	warnings = append(warnings, s.publishTransition(ctx, order, prev, actor, false)...)
	return Result{Order: order, Warnings: warnings}, nil
}

// capture treats an intent that was already captured as success.
func (s *Service) capture(ctx context.Context, order models.Order) error {
	if order.StripePaymentIntentID == "" {
		return &payment.Error{Op: "capture", Message: "order has no payment authorization"}
	}
	err := s.processor.Capture(ctx, order.StripePaymentIntentID)
	if errors.Is(err, payment.ErrAlreadyCaptured) {
		s.log.Info("payment already captured", zap.Uint("order_id", order.ID))
		return nil
	}
	if err != nil {
		s.log.Warn("payment capture failed",
			zap.Uint("order_id", order.ID),
			zap.String("payment_intent", order.StripePaymentIntentID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// release cancels the authorization hold. A failure is logged and returned as a
// warning; the order is cancelled locally either way.
func (s *Service) release(ctx context.Context, order models.Order) string {
	if order.StripePaymentIntentID == "" {
		return ""
	}
	err := s.processor.Cancel(ctx, order.StripePaymentIntentID)
	if err == nil || errors.Is(err, payment.ErrAlreadyCancelled) {
		return ""
	}
	s.log.Error("payment cancel failed, order cancelled locally",
		zap.Uint("order_id", order.ID),
		zap.String("payment_intent", order.StripePaymentIntentID),
		zap.Error(err),
	)
	return "payment hold was not released: " + err.Error()
}

func (s *Service) publishTransition(ctx context.Context, order models.Order, prev models.OrderStatus, actor models.Actor, retry bool) []string {
	name := models.ActivityOrderStatusChanged
	switch order.Status {
	case models.OrderApproved:
		name = models.ActivityOrderApproved
	case models.OrderCancelled:
		name = models.ActivityOrderCancelled
	}

	summary := fmt.Sprintf("order %s %s -> %s", order.PublicID, prev, order.Status)
	if retry {
		name = models.ActivityOrderInvoiceRetry
		summary = fmt.Sprintf("order %s invoice retried", order.PublicID)
	}
	evt := events.New(name, "order", order.ID, summary, map[string]any{
		"public_id":      order.PublicID,
		"from":           prev,
		"to":             order.Status,
		"payment_status": order.StripePaymentStatus,
		"total":          order.Total.StringFixed(2),
		"retry":          retry,
	}).WithActor(actor.ID, actor.Name)

	err := s.bus.Publish(ctx, evt)
	if err != nil {
		s.log.Warn("order event subscribers failed",
			zap.Uint("order_id", order.ID),
			zap.String("event", string(name)),
			zap.Error(err),
		)
	}
	return events.Warnings(err)
}

// HandleWebhook records what the processor reports about a hold. Only pending holds can
// become authorized, and only uncaptured ones can fail.
func (s *Service) HandleWebhook(ctx context.Context, evt payment.WebhookEvent) error {
	var (
		to   models.PaymentStatus
		from []models.PaymentStatus
	)
	switch evt.Kind {
	case payment.WebhookAuthorized:
		to, from = models.PaymentAuthorized, []models.PaymentStatus{models.PaymentPending}
	case payment.WebhookFailed:
		to, from = models.PaymentFailed, []models.PaymentStatus{models.PaymentPending, models.PaymentAuthorized}
	default:
		return nil
	}

	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("stripe_payment_intent_id = ? AND stripe_payment_status IN ?", evt.Handle, from).
		Update("stripe_payment_status", to)
	if res.Error != nil {
		return fmt.Errorf("apply webhook for %s: %w", evt.Handle, res.Error)
	}
	s.log.Info("payment webhook applied",
		zap.String("payment_intent", evt.Handle),
		zap.String("payment_status", string(to)),
		zap.Int64("orders", res.RowsAffected),
	)
	return nil
}
