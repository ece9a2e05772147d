package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bakery-backend/internal/apperr"
	"bakery-backend/internal/database"
	"bakery-backend/internal/events"
	"bakery-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InvoiceNumber renders the sequential number the way it is printed for customers.
func InvoiceNumber(n uint) string {
	return fmt.Sprintf("INV-%06d", n)
}

// EnsureInvoice returns the order's invoice, creating it with the next sequential
// number when none exists. created is false when an invoice was already there,
// including when a concurrent call won the race.
func EnsureInvoice(ctx context.Context, db *gorm.DB, orderID uint) (inv models.Invoice, created bool, err error) {
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if found, err := findInvoice(tx, orderID); err == nil {
			inv = found
			return nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var order models.Order
		if err := tx.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFoundf("order %d", orderID)
			}
			return fmt.Errorf("load order %d: %w", orderID, err)
		}
		if order.Status == models.OrderNew || order.StripePaymentStatus != models.PaymentCaptured {
			return apperr.Conflictf("order %d has not been approved", orderID)
		}

		number, err := nextInvoiceNumber(tx)
		if err != nil {
			return err
		}

		inv = models.Invoice{
			Number:   number,
			OrderID:  order.ID,
			IssuedAt: time.Now(),
			Subtotal: order.Subtotal,
			Total:    order.Total,
			Currency: order.Currency,
		}
		for _, it := range order.Items {
			inv.Items = append(inv.Items, models.InvoiceItem{
				ProductID:   it.ProductID,
				Description: it.ProductName,
				Quantity:    it.Quantity,
				UnitPrice:   it.UnitPrice,
				LineTotal:   it.LineTotal,
			})
		}
		if err := tx.Create(&inv).Error; err != nil {
			return err
		}
		created = true
		return nil
	})

	if err != nil && apperr.IsUniqueViolation(err) {
		// another request invoiced the order first
		existing, ferr := findInvoice(db.WithContext(ctx), orderID)
		if ferr != nil {
			return models.Invoice{}, false, fmt.Errorf("load invoice after conflict: %w", ferr)
		}
		return existing, false, nil
	}
	if err != nil {
		return models.Invoice{}, false, err
	}
	return inv, created, nil
}

func findInvoice(db *gorm.DB, orderID uint) (models.Invoice, error) {
	var inv models.Invoice
	err := db.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("order_id = ?", orderID).
		First(&inv).Error
	return inv, err
}

// nextInvoiceNumber bumps the counter in place; the row stays locked until commit so
// numbers are handed out without gaps or repeats.
func nextInvoiceNumber(tx *gorm.DB) (uint, error) {
	res := tx.Model(&models.InvoiceCounter{}).
		Where("name = ?", database.InvoiceCounterName).
		Update("last_number", gorm.Expr("last_number + 1"))
	if res.Error != nil {
		return 0, fmt.Errorf("advance invoice counter: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("invoice counter %q is missing", database.InvoiceCounterName)
	}

	var counter models.InvoiceCounter
	if err := tx.Where("name = ?", database.InvoiceCounterName).First(&counter).Error; err != nil {
		return 0, fmt.Errorf("read invoice counter: %w", err)
	}
	return counter.LastNumber, nil
}

// InvoiceSubscriber invoices an order when it is approved.
func InvoiceSubscriber(db *gorm.DB, log *zap.Logger) events.Handler {
	return func(ctx context.Context, evt events.Event) error {
		inv, created, err := EnsureInvoice(ctx, db, evt.EntityID)
		if err != nil {
			log.Error("invoice creation failed", zap.Uint("order_id", evt.EntityID), zap.Error(err))
			return err
		}
		if created {
			log.Info("invoice issued",
				zap.Uint("order_id", evt.EntityID),
				zap.String("number", InvoiceNumber(inv.Number)),
				zap.String("total", inv.Total.StringFixed(2)),
			)
		}
		return nil
	}
}
