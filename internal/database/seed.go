package database

import (
	"fmt"

	"bakery-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type seedBOM struct {
	ingredient string
	perUnit    string
}

// SeedDemo fills an empty database with a small bakery catalogue. It does nothing once any
// ingredient exists.
func SeedDemo(db *gorm.DB) (bool, error) {
	var count int64
	if err := db.Model(&models.Ingredient{}).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	ingredients := []models.Ingredient{
		{Name: "Spelt Flour", Unit: "lb", OnHand: decimal.NewFromInt(100), ReorderThreshold: decimal.NewFromInt(20)},
		{Name: "Bread Flour", Unit: "lb", OnHand: decimal.NewFromInt(200), ReorderThreshold: decimal.NewFromInt(40)},
		{Name: "Yeast", Unit: "oz", OnHand: decimal.NewFromInt(64), ReorderThreshold: decimal.NewFromInt(16)},
		{Name: "Sea Salt", Unit: "oz", OnHand: decimal.NewFromInt(120), ReorderThreshold: decimal.NewFromInt(24)},
		{Name: "Malt Syrup", Unit: "oz", OnHand: decimal.NewFromInt(80), ReorderThreshold: decimal.NewFromInt(16)},
		{Name: "Sesame Seeds", Unit: "oz", OnHand: decimal.NewFromInt(48), ReorderThreshold: decimal.NewFromInt(8)},
	}
	products := map[string]struct {
		price string
		bom   []seedBOM
	}{
		"Plain Bagel":  {"2.50", []seedBOM{{"Spelt Flour", "0.2"}, {"Yeast", "0.05"}, {"Sea Salt", "0.04"}, {"Malt Syrup", "0.1"}}},
		"Sesame Bagel": {"2.75", []seedBOM{{"Bread Flour", "0.2"}, {"Yeast", "0.05"}, {"Sea Salt", "0.04"}, {"Sesame Seeds", "0.15"}}},
		"Country Loaf": {"9.00", []seedBOM{{"Bread Flour", "1.1"}, {"Sea Salt", "0.35"}, {"Yeast", "0.1"}}},
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ingredients).Error; err != nil {
			return err
		}
		byName := make(map[string]uint, len(ingredients))
		for _, ing := range ingredients {
			byName[ing.Name] = ing.ID
		}

		for name, p := range products {
			product := models.Product{Name: name, Price: decimal.RequireFromString(p.price), Active: true}
			for _, b := range p.bom {
				product.BOM = append(product.BOM, models.BillOfMaterial{
					IngredientID:    byName[b.ingredient],
					QuantityPerUnit: decimal.RequireFromString(b.perUnit),
				})
			}
			if err := tx.Create(&product).Error; err != nil {
				return fmt.Errorf("seed product %s: %w", name, err)
			}
		}

		return tx.Create(&models.Location{Name: "Main Street", Address: "12 Main Street", Active: true}).Error
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
