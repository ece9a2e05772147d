package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        uint            `gorm:"primaryKey"`
	Name      string          `gorm:"size:100;not null;unique"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Active    bool            `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time

	BOM []BillOfMaterial `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

// BillOfMaterial: quantity of one ingredient consumed to produce one unit of a product.
// A product references an ingredient at most once.
type BillOfMaterial struct {
	ID              uint `gorm:"primaryKey"`
	ProductID       uint `gorm:"not null;uniqueIndex:idx_bom_product_ingredient,priority:1"`
	Product         Product
	IngredientID    uint `gorm:"not null;index;uniqueIndex:idx_bom_product_ingredient,priority:2"`
	Ingredient      Ingredient
	QuantityPerUnit decimal.Decimal `gorm:"type:decimal(14,4);not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
