package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"bakery-backend/internal/apperr"
	"bakery-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger owns Ingredient.OnHand. Every mutation writes an InventoryAdjustment.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// WithTx returns a ledger bound to an open transaction.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx}
}

type Deduction struct {
	IngredientID uint
	Quantity     decimal.Decimal
}

type DeductOptions struct {
	Reason  string
	Actor   models.Actor
	BatchID *uint
}

type AdjustmentInput struct {
	Type models.AdjustmentType
	// Quantity is a magnitude for receive and waste and a signed delta for production.
	Quantity decimal.Decimal
	// NewQuantity is the counted amount for a correction.
	NewQuantity *decimal.Decimal
	Reason      string
	Actor       models.Actor
}

func (l *Ledger) OnHand(ctx context.Context, ingredientID uint) (decimal.Decimal, error) {
	var ing models.Ingredient
	if err := l.db.WithContext(ctx).Select("id", "on_hand").First(&ing, ingredientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, apperr.NotFoundf("ingredient %d", ingredientID)
		}
		return decimal.Zero, fmt.Errorf("load ingredient %d: %w", ingredientID, err)
	}
	return ing.OnHand, nil
}

// Lock loads the given ingredients FOR UPDATE in ascending id order.
func (l *Ledger) Lock(ctx context.Context, ids []uint) (map[uint]models.Ingredient, error) {
	sorted := append([]uint(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make(map[uint]models.Ingredient, len(sorted))
	if len(sorted) == 0 {
		return out, nil
	}

	var rows []models.Ingredient
	err := l.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", sorted).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("lock ingredients: %w", err)
	}
	for _, r := range rows {
		out[r.ID] = r
	}
	for _, id := range sorted {
		if _, ok := out[id]; !ok {
			return nil, apperr.NotFoundf("ingredient %d", id)
		}
	}
	return out, nil
}

// CheckAvailable locks every required ingredient and reports all shortages at once.
func (l *Ledger) CheckAvailable(ctx context.Context, reqs Requirements) error {
	rows, err := l.Lock(ctx, reqs.IngredientIDs())
	if err != nil {
		return err
	}

	var shortages []Shortage
	for _, id := range reqs.IngredientIDs() {
		need := reqs[id]
		ing := rows[id]
		if ing.OnHand.LessThan(need) {
			shortages = append(shortages, Shortage{
				IngredientID: id,
				Name:         ing.Name,
				Unit:         ing.Unit,
				Required:     need,
				OnHand:       ing.OnHand,
				Shortfall:    need.Sub(ing.OnHand),
			})
		}
	}
	if len(shortages) > 0 {
		return &InsufficientStockError{Shortages: shortages}
	}
	return nil
}

func (l *Ledger) Deduct(ctx context.Context, ingredientID uint, qty decimal.Decimal, opts DeductOptions) error {
	return l.DeductMany(ctx, []Deduction{{IngredientID: ingredientID, Quantity: qty}}, opts)
}

// DeductMany subtracts every quantity or none of them. Each decrement is a guarded
// `on_hand = on_hand - q WHERE on_hand >= q`, so on_hand never goes negative even
// without a prior lock.
func (l *Ledger) DeductMany(ctx context.Context, ds []Deduction, opts DeductOptions) error {
	sorted := append([]Deduction(nil), ds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].IngredientID < sorted[j].IngredientID })

	for _, d := range sorted {
		if d.Quantity.IsNegative() {
			return apperr.Validationf("deduction for ingredient %d is negative", d.IngredientID)
		}
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, d := range sorted {
			if d.Quantity.IsZero() {
				continue
			}

			res := tx.Model(&models.Ingredient{}).
				Where("id = ? AND on_hand >= ?", d.IngredientID, d.Quantity).
				Update("on_hand", gorm.Expr("on_hand - ?", d.Quantity))
			if res.Error != nil {
				return fmt.Errorf("deduct ingredient %d: %w", d.IngredientID, res.Error)
			}
			if res.RowsAffected == 0 {
				return shortageFor(tx, d)
			}

			var ing models.Ingredient
			if err := tx.Select("id", "on_hand").First(&ing, d.IngredientID).Error; err != nil {
				return fmt.Errorf("reload ingredient %d: %w", d.IngredientID, err)
			}

			adj := models.InventoryAdjustment{
				IngredientID:     d.IngredientID,
				Type:             models.AdjustmentProduction,
				Delta:            d.Quantity.Neg(),
				PreviousQuantity: ing.OnHand.Add(d.Quantity),
				ResultQuantity:   ing.OnHand,
				Reason:           opts.Reason,
				ActorID:          opts.Actor.ID,
				ActorName:        opts.Actor.Name,
				BatchID:          opts.BatchID,
			}
			if err := tx.Create(&adj).Error; err != nil {
				return fmt.Errorf("record adjustment: %w", err)
			}
		}
		return nil
	})
}

func shortageFor(tx *gorm.DB, d Deduction) error {
	var ing models.Ingredient
	if err := tx.First(&ing, d.IngredientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFoundf("ingredient %d", d.IngredientID)
		}
		return fmt.Errorf("load ingredient %d: %w", d.IngredientID, err)
	}
	return &InsufficientStockError{Shortages: []Shortage{{
		IngredientID: ing.ID,
		Name:         ing.Name,
		Unit:         ing.Unit,
		Required:     d.Quantity,
		OnHand:       ing.OnHand,
		Shortfall:    d.Quantity.Sub(ing.OnHand),
	}}}
}

// Adjust applies a manual stock movement under a row lock and returns the audit record.
func (l *Ledger) Adjust(ctx context.Context, ingredientID uint, in AdjustmentInput) (models.InventoryAdjustment, error) {
	if !in.Type.Valid() {
		return models.InventoryAdjustment{}, apperr.Validationf("unknown adjustment type %q", in.Type)
	}

	var adj models.InventoryAdjustment
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ing models.Ingredient
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ing, ingredientID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFoundf("ingredient %d", ingredientID)
			}
			return fmt.Errorf("lock ingredient %d: %w", ingredientID, err)
		}

		delta, err := adjustmentDelta(ing.OnHand, in)
		if err != nil {
			return err
		}
		result := ing.OnHand.Add(delta)
		if result.IsNegative() {
			return &InsufficientStockError{Shortages: []Shortage{{
				IngredientID: ing.ID,
				Name:         ing.Name,
				Unit:         ing.Unit,
				Required:     delta.Neg(),
				OnHand:       ing.OnHand,
				Shortfall:    result.Neg(),
			}}}
		}

		if !delta.IsZero() {
			res := tx.Model(&models.Ingredient{}).
				Where("id = ?", ing.ID).
				Update("on_hand", gorm.Expr("on_hand + ?", delta))
			if res.Error != nil {
				return fmt.Errorf("update ingredient %d: %w", ing.ID, res.Error)
			}
		}

		adj = models.InventoryAdjustment{
			IngredientID:     ing.ID,
			Type:             in.Type,
			Delta:            delta,
			PreviousQuantity: ing.OnHand,
			ResultQuantity:   result,
			Reason:           in.Reason,
			ActorID:          in.Actor.ID,
			ActorName:        in.Actor.Name,
		}
		if err := tx.Create(&adj).Error; err != nil {
			return fmt.Errorf("record adjustment: %w", err)
		}
		adj.Ingredient = ing
		adj.Ingredient.OnHand = result
		return nil
	})
	return adj, err
}

func adjustmentDelta(current decimal.Decimal, in AdjustmentInput) (decimal.Decimal, error) {
	switch in.Type {
	case models.AdjustmentReceive, models.AdjustmentWaste:
		if !in.Quantity.IsPositive() {
			return decimal.Zero, apperr.Validationf("%s quantity must be positive", in.Type)
		}
		if in.Type == models.AdjustmentWaste {
			return in.Quantity.Neg(), nil
		}
		return in.Quantity, nil
	case models.AdjustmentCorrection:
		if in.NewQuantity == nil {
			return decimal.Zero, apperr.Validationf("correction requires new_quantity")
		}
		if in.NewQuantity.IsNegative() {
			return decimal.Zero, apperr.Validationf("new_quantity cannot be negative")
		}
		return in.NewQuantity.Sub(current), nil
	case models.AdjustmentProduction:
		if in.Quantity.IsZero() {
			return decimal.Zero, apperr.Validationf("production delta cannot be zero")
		}
		return in.Quantity, nil
	}
	return decimal.Zero, apperr.Validationf("unknown adjustment type %q", in.Type)
}

// LowStock lists ingredients at or below their reorder threshold.
func (l *Ledger) LowStock(ctx context.Context) ([]models.Ingredient, error) {
	var rows []models.Ingredient
	if err := l.db.WithContext(ctx).Where("on_hand <= reorder_threshold").Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	return rows, nil
}
