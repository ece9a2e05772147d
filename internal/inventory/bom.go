package inventory

import (
	"context"
	"errors"
	"fmt"

	"bakery-backend/internal/apperr"
	"bakery-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BOMIndex answers "what does one unit of this product consume".
type BOMIndex struct {
	db *gorm.DB
}

func NewBOMIndex(db *gorm.DB) *BOMIndex {
	return &BOMIndex{db: db}
}

func (b *BOMIndex) WithTx(tx *gorm.DB) *BOMIndex {
	return &BOMIndex{db: tx}
}

// RequirementsForProduct returns an empty slice for products without a recipe.
func (b *BOMIndex) RequirementsForProduct(ctx context.Context, productID uint) ([]Requirement, error) {
	var rows []models.BillOfMaterial
	err := b.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("ingredient_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load bom for product %d: %w", productID, err)
	}

	out := make([]Requirement, 0, len(rows))
	for _, r := range rows {
		out = append(out, Requirement{IngredientID: r.IngredientID, QuantityPerUnit: r.QuantityPerUnit})
	}
	return out, nil
}

// Entries returns the recipe with ingredient details, for display.
func (b *BOMIndex) Entries(ctx context.Context, productID uint) ([]models.BillOfMaterial, error) {
	if err := b.productExists(ctx, productID); err != nil {
		return nil, err
	}
	var rows []models.BillOfMaterial
	err := b.db.WithContext(ctx).
		Preload("Ingredient").
		Where("product_id = ?", productID).
		Order("ingredient_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load bom for product %d: %w", productID, err)
	}
	return rows, nil
}

// SetEntry creates or replaces the (product, ingredient) quantity.
func (b *BOMIndex) SetEntry(ctx context.Context, productID, ingredientID uint, qty decimal.Decimal) error {
	if qty.IsNegative() {
		return apperr.Validationf("quantity_per_unit cannot be negative")
	}
	if err := b.productExists(ctx, productID); err != nil {
		return err
	}
	if err := b.ingredientExists(ctx, ingredientID); err != nil {
		return err
	}
	return b.upsert(b.db.WithContext(ctx), productID, ingredientID, qty)
}

func (b *BOMIndex) upsert(tx *gorm.DB, productID, ingredientID uint, qty decimal.Decimal) error {
	entry := models.BillOfMaterial{ProductID: productID, IngredientID: ingredientID, QuantityPerUnit: qty}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "ingredient_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity_per_unit", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("upsert bom entry: %w", err)
	}
	return nil
}

func (b *BOMIndex) RemoveEntry(ctx context.Context, productID, ingredientID uint) error {
	res := b.db.WithContext(ctx).
		Where("product_id = ? AND ingredient_id = ?", productID, ingredientID).
		Delete(&models.BillOfMaterial{})
	if res.Error != nil {
		return fmt.Errorf("remove bom entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFoundf("bom entry for product %d ingredient %d", productID, ingredientID)
	}
	return nil
}

// ReplaceForProduct swaps the whole recipe in one transaction. When an ingredient
// appears more than once the last quantity wins.
func (b *BOMIndex) ReplaceForProduct(ctx context.Context, productID uint, entries []Requirement) error {
	if err := b.productExists(ctx, productID); err != nil {
		return err
	}

	latest := make(map[uint]decimal.Decimal, len(entries))
	order := make([]uint, 0, len(entries))
	for _, e := range entries {
		if e.QuantityPerUnit.IsNegative() {
			return apperr.Validationf("quantity_per_unit for ingredient %d cannot be negative", e.IngredientID)
		}
		if _, seen := latest[e.IngredientID]; !seen {
			order = append(order, e.IngredientID)
		}
		latest[e.IngredientID] = e.QuantityPerUnit
	}
	for _, id := range order {
		if err := b.ingredientExists(ctx, id); err != nil {
			return err
		}
	}

	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", productID).Delete(&models.BillOfMaterial{}).Error; err != nil {
			return fmt.Errorf("clear bom: %w", err)
		}
		for _, id := range order {
			if err := b.upsert(tx, productID, id, latest[id]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BOMIndex) productExists(ctx context.Context, id uint) error {
	var p models.Product
	if err := b.db.WithContext(ctx).Select("id").First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFoundf("product %d", id)
		}
		return fmt.Errorf("load product %d: %w", id, err)
	}
	return nil
}

func (b *BOMIndex) ingredientExists(ctx context.Context, id uint) error {
	var ing models.Ingredient
	if err := b.db.WithContext(ctx).Select("id").First(&ing, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFoundf("ingredient %d", id)
		}
		return fmt.Errorf("load ingredient %d: %w", id, err)
	}
	return nil
}
