package models

import "time"

// FreezerStock: finished-goods ledger, one row per product.
type FreezerStock struct {
	ID        uint `gorm:"primaryKey"`
	ProductID uint `gorm:"not null;uniqueIndex"`
	Product   Product
	Quantity  int `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
