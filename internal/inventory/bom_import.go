package inventory

import (
	"context"
	"fmt"
	"io"
	"strings"

	"bakery-backend/internal/apperr"
	"bakery-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ImportRow is one recipe line: product name, ingredient name, quantity per unit.
type ImportRow struct {
	Line       int
	Product    string
	Ingredient string
	Quantity   string
}

type RejectedRow struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

type ImportResult struct {
	Imported             int           `json:"imported"`
	Products             []string      `json:"products"`
	UnmatchedProducts    []string      `json:"unmatched_products"`
	UnmatchedIngredients []string      `json:"unmatched_ingredients"`
	Rejected             []RejectedRow `json:"rejected"`
}

// normalizeName lower-cases and collapses whitespace so "Spelt  Flour" matches "spelt flour".
func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ReadRecipeSheet parses the first sheet of an XLSX workbook. A leading header row
// (first cell mentioning "product") is skipped.
func ReadRecipeSheet(r io.Reader) ([]ImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Validationf("cannot read workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.Validationf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperr.Validationf("cannot read sheet %s: %v", sheets[0], err)
	}

	start := 0
	if len(rows) > 0 && len(rows[0]) > 0 && strings.Contains(strings.ToLower(rows[0][0]), "product") {
		start = 1
	}

	out := make([]ImportRow, 0, len(rows))
	for i := start; i < len(rows); i++ {
		row := rows[i]
		cell := func(n int) string {
			if n < len(row) {
				return strings.TrimSpace(row[n])
			}
			return ""
		}
		if cell(0) == "" && cell(1) == "" {
			continue
		}
		out = append(out, ImportRow{Line: i + 1, Product: cell(0), Ingredient: cell(1), Quantity: cell(2)})
	}
	return out, nil
}

// ImportXLSX upserts every matched recipe line from the workbook in one transaction.
func (b *BOMIndex) ImportXLSX(ctx context.Context, r io.Reader) (ImportResult, error) {
	rows, err := ReadRecipeSheet(r)
	if err != nil {
		return ImportResult{}, err
	}
	return b.ImportRows(ctx, rows)
}

// ImportRows matches names case-insensitively. Unknown names and bad quantities are
// reported back; the remaining rows are still imported.
func (b *BOMIndex) ImportRows(ctx context.Context, rows []ImportRow) (ImportResult, error) {
	res := ImportResult{
		Products:             []string{},
		UnmatchedProducts:    []string{},
		UnmatchedIngredients: []string{},
		Rejected:             []RejectedRow{},
	}
	if len(rows) == 0 {
		return res, apperr.Validationf("no recipe rows found")
	}

	var products []models.Product
	if err := b.db.WithContext(ctx).Find(&products).Error; err != nil {
		return res, fmt.Errorf("load products: %w", err)
	}
	var ingredients []models.Ingredient
	if err := b.db.WithContext(ctx).Find(&ingredients).Error; err != nil {
		return res, fmt.Errorf("load ingredients: %w", err)
	}

	productByName := make(map[string]models.Product, len(products))
	for _, p := range products {
		productByName[normalizeName(p.Name)] = p
	}
	ingredientByName := make(map[string]models.Ingredient, len(ingredients))
	for _, ing := range ingredients {
		ingredientByName[normalizeName(ing.Name)] = ing
	}

	type entry struct {
		productID, ingredientID uint
		qty                     decimal.Decimal
	}
	var entries []entry
	seenProduct := map[uint]bool{}
	missingProduct := map[string]bool{}
	missingIngredient := map[string]bool{}

	for _, row := range rows {
		p, ok := productByName[normalizeName(row.Product)]
		if !ok {
			if !missingProduct[row.Product] {
				missingProduct[row.Product] = true
				res.UnmatchedProducts = append(res.UnmatchedProducts, row.Product)
			}
			continue
		}
		ing, ok := ingredientByName[normalizeName(row.Ingredient)]
		if !ok {
			if !missingIngredient[row.Ingredient] {
				missingIngredient[row.Ingredient] = true
				res.UnmatchedIngredients = append(res.UnmatchedIngredients, row.Ingredient)
			}
			continue
		}
		qty, err := decimal.NewFromString(strings.ReplaceAll(row.Quantity, ",", "."))
		if err != nil {
			res.Rejected = append(res.Rejected, RejectedRow{Line: row.Line, Reason: fmt.Sprintf("invalid quantity %q", row.Quantity)})
			continue
		}
		if qty.IsNegative() {
			res.Rejected = append(res.Rejected, RejectedRow{Line: row.Line, Reason: "quantity cannot be negative"})
			continue
		}

		entries = append(entries, entry{productID: p.ID, ingredientID: ing.ID, qty: qty})
		if !seenProduct[p.ID] {
			seenProduct[p.ID] = true
			res.Products = append(res.Products, p.Name)
		}
	}

	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			if err := b.upsert(tx, e.productID, e.ingredientID, e.qty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	res.Imported = len(entries)
	return res, nil
}
