package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AdjustmentType string

const (
	AdjustmentReceive    AdjustmentType = "receive"
	AdjustmentWaste      AdjustmentType = "waste"
	AdjustmentCorrection AdjustmentType = "correction"
	AdjustmentProduction AdjustmentType = "production"
)

func (t AdjustmentType) Valid() bool {
	switch t {
	case AdjustmentReceive, AdjustmentWaste, AdjustmentCorrection, AdjustmentProduction:
		return true
	}
	return false
}

// InventoryAdjustment: append-only record of every change to Ingredient.OnHand.
type InventoryAdjustment struct {
	ID               uint `gorm:"primaryKey"`
	IngredientID     uint `gorm:"index;not null"`
	Ingredient       Ingredient
	Type             AdjustmentType  `gorm:"size:20;not null;index"`
	Delta            decimal.Decimal `gorm:"type:decimal(14,4);not null"` // signed
	PreviousQuantity decimal.Decimal `gorm:"type:decimal(14,4);not null"`
	ResultQuantity   decimal.Decimal `gorm:"type:decimal(14,4);not null"`
	Reason           string          `gorm:"size:255"`
	ActorID          *uint
	ActorName        string `gorm:"size:100"`
	BatchID          *uint  `gorm:"index"` // set for production deductions
	CreatedAt        time.Time
}
