package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ingredient: raw material held in the ingredient ledger.
// Unit is a display tag only; quantities are never converted between ingredients.
type Ingredient struct {
	ID               uint             `gorm:"primaryKey"`
	Name             string           `gorm:"size:100;not null;uniqueIndex"`
	Unit             string           `gorm:"size:20;not null"` // lb, kg, count ...
	OnHand           decimal.Decimal  `gorm:"type:decimal(14,4);not null;default:0"`
	ReorderThreshold decimal.Decimal  `gorm:"type:decimal(14,4);not null;default:0"`
	CostPerUnit      *decimal.Decimal `gorm:"type:decimal(12,4)"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (i Ingredient) IsLowStock() bool {
	return i.OnHand.LessThanOrEqual(i.ReorderThreshold)
}
