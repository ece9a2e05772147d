package inventory

import (
	"context"
	"sort"

	"bakery-backend/internal/apperr"

	"github.com/shopspring/decimal"
)

type Requirement struct {
	IngredientID    uint
	QuantityPerUnit decimal.Decimal
}

// RequirementSource is the BOM lookup the aggregator walks.
type RequirementSource interface {
	RequirementsForProduct(ctx context.Context, productID uint) ([]Requirement, error)
}

type BatchLine struct {
	ProductID uint
	Quantity  int
}

// Requirements maps ingredient id to the total quantity needed.
type Requirements map[uint]decimal.Decimal

// AggregateRequirements sums quantityPerUnit * quantity over every line's BOM.
// The result does not depend on line order.
func AggregateRequirements(ctx context.Context, src RequirementSource, lines []BatchLine) (Requirements, error) {
	totals := make(Requirements)
	boms := make(map[uint][]Requirement)

	for _, line := range lines {
		if line.Quantity < 0 {
			return nil, apperr.Validationf("product %d has negative quantity %d", line.ProductID, line.Quantity)
		}

		bom, ok := boms[line.ProductID]
		if !ok {
			var err error
			bom, err = src.RequirementsForProduct(ctx, line.ProductID)
			if err != nil {
				return nil, err
			}
			boms[line.ProductID] = bom
		}

		qty := decimal.NewFromInt(int64(line.Quantity))
		for _, r := range bom {
			totals[r.IngredientID] = totals[r.IngredientID].Add(r.QuantityPerUnit.Mul(qty))
		}
	}
	return totals, nil
}

// IngredientIDs returns the keys in ascending order, the order rows are locked in.
func (r Requirements) IngredientIDs() []uint {
	ids := make([]uint, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Deductions lists the non-zero requirements in ingredient id order.
func (r Requirements) Deductions() []Deduction {
	out := make([]Deduction, 0, len(r))
	for _, id := range r.IngredientIDs() {
		if r[id].IsPositive() {
			out = append(out, Deduction{IngredientID: id, Quantity: r[id]})
		}
	}
	return out
}

// Strings renders quantities for JSON payloads keyed by ingredient id.
func (r Requirements) Strings() map[uint]string {
	out := make(map[uint]string, len(r))
	for id, q := range r {
		out[id] = q.String()
	}
	return out
}
