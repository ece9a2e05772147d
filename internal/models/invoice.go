package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice: created at most once per order, when the order is first approved.
type Invoice struct {
	ID        uint `gorm:"primaryKey"`
	Number    uint `gorm:"not null;uniqueIndex"`
	OrderID   uint `gorm:"not null;uniqueIndex"`
	Order     Order
	IssuedAt  time.Time       `gorm:"not null"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Total     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency  string          `gorm:"size:3;not null"`
	CreatedAt time.Time

	Items []InvoiceItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
}

type InvoiceItem struct {
	ID          uint            `gorm:"primaryKey"`
	InvoiceID   uint            `gorm:"index;not null"`
	ProductID   uint            `gorm:"not null"`
	Description string          `gorm:"size:100;not null"`
	Quantity    int             `gorm:"not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

// InvoiceCounter: single-row sequence backing Invoice.Number.
type InvoiceCounter struct {
	ID         uint   `gorm:"primaryKey"`
	Name       string `gorm:"size:30;not null;uniqueIndex"`
	LastNumber uint   `gorm:"not null;default:0"`
}
