package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderNew       OrderStatus = "new"
	OrderApproved  OrderStatus = "approved"
	OrderBaking    OrderStatus = "baking"
	OrderReady     OrderStatus = "ready"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderNew:      {OrderApproved, OrderCancelled},
	OrderApproved: {OrderBaking, OrderCancelled},
	OrderBaking:   {OrderReady, OrderCancelled},
	OrderReady:    {OrderCompleted, OrderCancelled},
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(s); st {
	case OrderNew, OrderApproved, OrderBaking, OrderReady, OrderCompleted, OrderCancelled:
		return st, true
	}
	return "", false
}

// CanTransitionTo reports whether s may move to next. completed and cancelled are terminal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentFailed     PaymentStatus = "failed"
)

type FulfillmentType string

const (
	FulfillmentDelivery FulfillmentType = "delivery"
	FulfillmentPickup   FulfillmentType = "pickup"
)

type Order struct {
	ID       uint   `gorm:"primaryKey"`
	PublicID string `gorm:"size:36;not null;uniqueIndex"`

	CustomerName  string `gorm:"size:100;not null"`
	CustomerEmail string `gorm:"size:100;not null;index"`
	CustomerPhone string `gorm:"size:30"`

	FulfillmentType FulfillmentType `gorm:"size:20;not null"`
	LocationID      *uint           `gorm:"index"`
	Location        *Location
	AddressLine1    string    `gorm:"size:255"`
	AddressLine2    string    `gorm:"size:255"`
	City            string    `gorm:"size:100"`
	PostalCode      string    `gorm:"size:20"`
	FulfillmentDate time.Time `gorm:"index;not null"`
	WindowStart     string    `gorm:"size:5"` // "08:00"
	WindowEnd       string    `gorm:"size:5"`

	Status   OrderStatus     `gorm:"size:20;not null;index;default:new"`
	Subtotal decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Total    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency string          `gorm:"size:3;not null"`

	StripePaymentIntentID string        `gorm:"size:100;index"`
	StripePaymentStatus   PaymentStatus `gorm:"size:20;not null;default:pending"`

	Notes       string `gorm:"size:1000"`
	ApprovedAt  *time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

// OrderItem: price snapshot taken when the order was submitted.
type OrderItem struct {
	ID          uint `gorm:"primaryKey"`
	OrderID     uint `gorm:"index;not null"`
	ProductID   uint `gorm:"index;not null"`
	Product     Product
	ProductName string          `gorm:"size:100;not null"`
	Quantity    int             `gorm:"not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CreatedAt   time.Time
}
