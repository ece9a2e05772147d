package inventory

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"bakery-backend/internal/apperr"
	"bakery-backend/internal/models"
	"bakery-backend/internal/testutil"

	"github.com/xuri/excelize/v2"
)

func TestBOMIndex_SetEntry_secondWriteReplaces(t *testing.T) {
	db := testutil.NewTestDB(t)
	flour := testutil.CreateIngredient(t, db, "Spelt Flour", "lb", "100", "20")
	bagel := testutil.CreateProduct(t, db, "Plain Bagel", "2.50")
	bom := NewBOMIndex(db)
	ctx := context.Background()

	if err := bom.SetEntry(ctx, bagel.ID, flour.ID, testutil.Dec("0.2")); err != nil {
		t.Fatalf("SetEntry: %v", err)
	}
	if err := bom.SetEntry(ctx, bagel.ID, flour.ID, testutil.Dec("0.25")); err != nil {
		t.Fatalf("SetEntry again: %v", err)
	}

	reqs, err := bom.RequirementsForProduct(ctx, bagel.ID)
	if err != nil {
		t.Fatalf("RequirementsForProduct: %v", err)
	}
	if len(reqs) != 1 || !reqs[0].QuantityPerUnit.Equal(testutil.Dec("0.25")) {
		t.Errorf("reqs = %+v, want single entry 0.25", reqs)
	}
}

func TestBOMIndex_RequirementsForProduct_noRecipe_empty(t *testing.T) {
	db := testutil.NewTestDB(t)
	bagel := testutil.CreateProduct(t, db, "Plain Bagel", "2.50")

	reqs, err := NewBOMIndex(db).RequirementsForProduct(context.Background(), bagel.ID)
	if err != nil {
		t.Fatalf("RequirementsForProduct: %v", err)
	}
	if len(reqs) != 0 {
		t.Errorf("reqs = %+v, want none", reqs)
	}
}

func TestBOMIndex_SetEntry_rejectsBadInput(t *testing.T) {
	db := testutil.NewTestDB(t)
	flour := testutil.CreateIngredient(t, db, "Spelt Flour", "lb", "100", "20")
	bagel := testutil.CreateProduct(t, db, "Plain Bagel", "2.50")
	bom := NewBOMIndex(db)
	ctx := context.Background()

	if err := bom.SetEntry(ctx, bagel.ID, flour.ID, testutil.Dec("-0.1")); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("negative quantity: err = %v, want validation", err)
	}
	if err := bom.SetEntry(ctx, 999, flour.ID, testutil.Dec("1")); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown product: err = %v, want not found", err)
	}
	if err := bom.SetEntry(ctx, bagel.ID, 999, testutil.Dec("1")); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown ingredient: err = %v, want not found", err)
	}
}

func TestBOMIndex_ReplaceForProduct_duplicateIngredient_lastWins(t *testing.T) {
	db := testutil.NewTestDB(t)
	flour := testutil.CreateIngredient(t, db, "Spelt Flour", "lb", "100", "20")
	salt := testutil.CreateIngredient(t, db, "Sea Salt", "lb", "10", "1")
	bagel := testutil.CreateProduct(t, db, "Plain Bagel", "2.50")
	testutil.AddBOM(t, db, bagel.ID, salt.ID, "0.01")
	bom := NewBOMIndex(db)
	ctx := context.Background()

	err := bom.ReplaceForProduct(ctx, bagel.ID, []Requirement{
		{IngredientID: flour.ID, QuantityPerUnit: testutil.Dec("0.2")},
		{IngredientID: flour.ID, QuantityPerUnit: testutil.Dec("0.22")},
	})
	if err != nil {
		t.Fatalf("ReplaceForProduct: %v", err)
	}

	reqs, _ := bom.RequirementsForProduct(ctx, bagel.ID)
	if len(reqs) != 1 || reqs[0].IngredientID != flour.ID || !reqs[0].QuantityPerUnit.Equal(testutil.Dec("0.22")) {
		t.Errorf("reqs = %+v, want only flour at 0.22", reqs)
	}
}

func TestBOMIndex_RemoveEntry_missing_notFound(t *testing.T) {
	db := testutil.NewTestDB(t)
	bagel := testutil.CreateProduct(t, db, "Plain Bagel", "2.50")

	err := NewBOMIndex(db).RemoveEntry(context.Background(), bagel.ID, 1)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func recipeWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf
}

func TestBOMIndex_ImportXLSX_matchesNamesAndReportsUnknown(t *testing.T) {
	db := testutil.NewTestDB(t)
	flour := testutil.CreateIngredient(t, db, "Spelt Flour", "lb", "100", "20")
	sesame := testutil.CreateIngredient(t, db, "Sesame Seeds", "lb", "10", "2")
	bagel := testutil.CreateProduct(t, db, "Sesame Bagel", "2.75")

	wb := recipeWorkbook(t, [][]any{
		{"Product", "Ingredient", "Quantity per unit"},
		{"sesame  bagel", "SPELT FLOUR", "0.2"},
		{"Sesame Bagel", "Sesame Seeds", "0,02"},
		{"Sesame Bagel", "Poppy Seeds", "0.01"},
		{"Rye Loaf", "Spelt Flour", "1"},
		{"Sesame Bagel", "Spelt Flour", "lots"},
	})

	res, err := NewBOMIndex(db).ImportXLSX(context.Background(), wb)
	if err != nil {
		t.Fatalf("ImportXLSX: %v", err)
	}

	if res.Imported != 2 {
		t.Errorf("imported = %d, want 2", res.Imported)
	}
	if len(res.UnmatchedIngredients) != 1 || res.UnmatchedIngredients[0] != "Poppy Seeds" {
		t.Errorf("unmatched ingredients = %v", res.UnmatchedIngredients)
	}
	if len(res.UnmatchedProducts) != 1 || res.UnmatchedProducts[0] != "Rye Loaf" {
		t.Errorf("unmatched products = %v", res.UnmatchedProducts)
	}
	if len(res.Rejected) != 1 || res.Rejected[0].Line != 6 {
		t.Errorf("rejected = %+v, want line 6", res.Rejected)
	}

	var entries []models.BillOfMaterial
	if err := db.Where("product_id = ?", bagel.ID).Order("ingredient_id").Find(&entries).Error; err != nil {
		t.Fatalf("load bom: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("bom entries = %d, want 2", len(entries))
	}
	if entries[0].IngredientID != flour.ID || !entries[0].QuantityPerUnit.Equal(testutil.Dec("0.2")) {
		t.Errorf("flour entry = %+v", entries[0])
	}
	if entries[1].IngredientID != sesame.ID || !entries[1].QuantityPerUnit.Equal(testutil.Dec("0.02")) {
		t.Errorf("sesame entry = %+v", entries[1])
	}
}

func TestBOMIndex_ImportXLSX_notAWorkbook_validationError(t *testing.T) {
	db := testutil.NewTestDB(t)

	_, err := NewBOMIndex(db).ImportXLSX(context.Background(), bytes.NewBufferString("product,ingredient,qty"))
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}
