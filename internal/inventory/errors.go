package inventory

import (
	"fmt"
	"strings"

	"bakery-backend/internal/apperr"

	"github.com/shopspring/decimal"
)

type Shortage struct {
	IngredientID uint            `json:"ingredient_id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	Required     decimal.Decimal `json:"required"`
	OnHand       decimal.Decimal `json:"on_hand"`
	Shortfall    decimal.Decimal `json:"shortfall"`
}

// InsufficientStockError lists every ingredient that cannot cover its requirement.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s short by %s %s", s.Name, s.Shortfall.String(), s.Unit))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

func (e *InsufficientStockError) Unwrap() error {
	return apperr.ErrInsufficientStock
}

func (e *InsufficientStockError) Details() any {
	return e.Shortages
}
