package inventory

import (
	"net/http"
	"strconv"
	"testing"

	"bakery-backend/internal/auth"
	"bakery-backend/internal/events"
	"bakery-backend/internal/models"
	"bakery-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newInventoryApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	ledger := NewLedger(db)
	bom := NewBOMIndex(db)
	bus := events.NewBus(zap.NewNop())

	app := testutil.NewApp()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, uint(7))
		c.Locals(auth.CtxUserNameKey, "Head Baker")
		c.Locals(auth.CtxUserRoleKey, models.RoleAdmin)
		return c.Next()
	})
	app.Get("/ingredients", ListIngredientsHandler(db))
	app.Post("/ingredients", CreateIngredientHandler(db, ledger, bus))
	app.Get("/ingredients/low-stock", LowStockHandler(ledger))
	app.Get("/ingredients/:id", GetIngredientHandler(db))
	app.Put("/ingredients/:id", UpdateIngredientHandler(db, ledger, bus))
	app.Post("/ingredients/:id/adjust", AdjustIngredientHandler(ledger, bus))
	app.Get("/ingredients/:id/adjustments", ListAdjustmentsHandler(db))
	app.Get("/products/:id/bom", GetBOMHandler(bom))
	app.Put("/products/:id/bom", ReplaceBOMHandler(bom, bus))
	return app, db
}

func TestCreateIngredientHandler_openingStock_recordedAsReceive(t *testing.T) {
	app, db := newInventoryApp(t)

	body := map[string]any{"name": "Spelt Flour", "unit": "lb", "on_hand": "100", "reorder_threshold": "20"}
	status, raw := testutil.Do(t, app, http.MethodPost, "/ingredients", body, "")
	if status != http.StatusCreated {
		t.Fatalf("status %d body %s", status, raw)
	}
	var resp struct {
		Ingredient IngredientResponse `json:"ingredient"`
	}
	testutil.DecodeJSON(t, raw, &resp)
	if !resp.Ingredient.OnHand.Equal(testutil.Dec("100")) {
		t.Errorf("on_hand = %s, want 100", resp.Ingredient.OnHand)
	}

	var adj models.InventoryAdjustment
	if err := db.Where("ingredient_id = ?", resp.Ingredient.ID).First(&adj).Error; err != nil {
		t.Fatalf("load adjustment: %v", err)
	}
	if adj.Type != models.AdjustmentReceive || adj.ActorName != "Head Baker" {
		t.Errorf("adjustment = %+v, want receive by Head Baker", adj)
	}
}

func TestUpdateIngredientHandler_onHandEdit_auditedAsCorrection(t *testing.T) {
	app, db := newInventoryApp(t)
	flour := testutil.CreateIngredient(t, db, "Spelt Flour", "lb", "100", "20")

	body := map[string]any{"on_hand": "87.5", "reorder_threshold": "25"}
	status, raw := testutil.Do(t, app, http.MethodPut, "/ingredients/"+itoa(flour.ID), body, "")
	if status != http.StatusOK {
		t.Fatalf("status %d body %s", status, raw)
	}

	if got := testutil.OnHand(t, db, flour.ID); !got.Equal(testutil.Dec("87.5")) {
		t.Errorf("on_hand = %s, want 87.5", got)
	}

	var adj models.InventoryAdjustment
	if err := db.Where("ingredient_id = ?", flour.ID).First(&adj).Error; err != nil {
		t.Fatalf("load adjustment: %v", err)
	}
	if adj.Type != models.AdjustmentCorrection || !adj.Delta.Equal(testutil.Dec("-12.5")) {
		t.Errorf("adjustment = %s %s, want correction -12.5", adj.Type, adj.Delta)
	}
}

func TestUpdateIngredientHandler_rejectedOnHand_leavesFieldsUntouched(t *testing.T) {
	app, db := newInventoryApp(t)
	flour := testutil.CreateIngredient(t, db, "Spelt Flour", "lb", "100", "20")

	body := map[string]any{"name": "Renamed Flour", "reorder_threshold": "99", "on_hand": "-5"}
	status, raw := testutil.Do(t, app, http.MethodPut, "/ingredients/"+itoa(flour.ID), body, "")
	if status != http.StatusBadRequest {
		t.Fatalf("status %d body %s, want 400", status, raw)
	}

	var stored models.Ingredient
	if err := db.First(&stored, flour.ID).Error; err != nil {
		t.Fatalf("load ingredient: %v", err)
	}
	if stored.Name != "Spelt Flour" || !stored.ReorderThreshold.Equal(testutil.Dec("20")) || !stored.OnHand.Equal(testutil.Dec("100")) {
		t.Errorf("ingredient = %s threshold %s on_hand %s, want it unchanged", stored.Name, stored.ReorderThreshold, stored.OnHand)
	}

	var adjustments int64
	db.Model(&models.InventoryAdjustment{}).Count(&adjustments)
	if adjustments != 0 {
		t.Errorf("adjustments = %d, want 0", adjustments)
	}
}

func TestUpdateIngredientHandler_renameAndCount_commitTogether(t *testing.T) {
	app, db := newInventoryApp(t)
	flour := testutil.CreateIngredient(t, db, "Spelt Flour", "lb", "100", "20")

	body := map[string]any{"name": "Whole Spelt", "on_hand": "60", "reason": "stocktake"}
	status, raw := testutil.Do(t, app, http.MethodPut, "/ingredients/"+itoa(flour.ID), body, "")
	if status != http.StatusOK {
		t.Fatalf("status %d body %s", status, raw)
	}
	var resp struct {
		Ingredient IngredientResponse `json:"ingredient"`
	}
	testutil.DecodeJSON(t, raw, &resp)
	if resp.Ingredient.Name != "Whole Spelt" || !resp.Ingredient.OnHand.Equal(testutil.Dec("60")) {
		t.Errorf("ingredient = %+v, want Whole Spelt with 60", resp.Ingredient)
	}

	var adj models.InventoryAdjustment
	if err := db.Where("ingredient_id = ?", flour.ID).First(&adj).Error; err != nil {
		t.Fatalf("load adjustment: %v", err)
	}
	if adj.Reason != "stocktake" || !adj.ResultQuantity.Equal(testutil.Dec("60")) {
		t.Errorf("adjustment = %+v, want stocktake ending at 60", adj)
	}
}

func TestAdjustIngredientHandler_wasteBeyondStock_conflict(t *testing.T) {
	app, db := newInventoryApp(t)
	flour := testutil.CreateIngredient(t, db, "Spelt Flour", "lb", "5", "20")

	body := map[string]any{"type": "waste", "quantity": "10", "reason": "mice"}
	status, raw := testutil.Do(t, app, http.MethodPost, "/ingredients/"+itoa(flour.ID)+"/adjust", body, "")
	if status != http.StatusConflict {
		t.Fatalf("status %d body %s, want 409", status, raw)
	}
	if got := testutil.OnHand(t, db, flour.ID); !got.Equal(testutil.Dec("5")) {
		t.Errorf("on_hand = %s, want 5", got)
	}
}

func TestAdjustIngredientHandler_receive_listedInAdjustments(t *testing.T) {
	app, db := newInventoryApp(t)
	flour := testutil.CreateIngredient(t, db, "Spelt Flour", "lb", "5", "20")

	body := map[string]any{"type": "receive", "quantity": "50", "reason": "delivery"}
	if status, raw := testutil.Do(t, app, http.MethodPost, "/ingredients/"+itoa(flour.ID)+"/adjust", body, ""); status != http.StatusOK {
		t.Fatalf("status %d body %s", status, raw)
	}

	status, raw := testutil.Do(t, app, http.MethodGet, "/ingredients/"+itoa(flour.ID)+"/adjustments", nil, "")
	if status != http.StatusOK {
		t.Fatalf("status %d body %s", status, raw)
	}
	var rows []AdjustmentResponse
	testutil.DecodeJSON(t, raw, &rows)
	if len(rows) != 1 || !rows[0].ResultQuantity.Equal(testutil.Dec("55")) {
		t.Errorf("adjustments = %+v, want one ending at 55", rows)
	}
}

func TestLowStockHandler_routeNotShadowedByID(t *testing.T) {
	app, db := newInventoryApp(t)
	testutil.CreateIngredient(t, db, "Yeast", "lb", "0.5", "1")

	status, raw := testutil.Do(t, app, http.MethodGet, "/ingredients/low-stock", nil, "")
	if status != http.StatusOK {
		t.Fatalf("status %d body %s", status, raw)
	}
	var rows []IngredientResponse
	testutil.DecodeJSON(t, raw, &rows)
	if len(rows) != 1 || !rows[0].LowStock {
		t.Errorf("rows = %+v", rows)
	}
}

func TestReplaceBOMHandler_unknownIngredient_notFound(t *testing.T) {
	app, db := newInventoryApp(t)
	bagel := testutil.CreateProduct(t, db, "Plain Bagel", "2.50")

	body := map[string]any{"entries": []map[string]any{{"ingredient_id": 404, "quantity_per_unit": "0.2"}}}
	if status, _ := testutil.Do(t, app, http.MethodPut, "/products/"+itoa(bagel.ID)+"/bom", body, ""); status != http.StatusNotFound {
		t.Errorf("status %d, want 404", status)
	}
}

func TestReplaceBOMHandler_valid_returnsEntries(t *testing.T) {
	app, db := newInventoryApp(t)
	flour := testutil.CreateIngredient(t, db, "Spelt Flour", "lb", "100", "20")
	bagel := testutil.CreateProduct(t, db, "Plain Bagel", "2.50")

	body := map[string]any{"entries": []map[string]any{{"ingredient_id": flour.ID, "quantity_per_unit": "0.2"}}}
	status, raw := testutil.Do(t, app, http.MethodPut, "/products/"+itoa(bagel.ID)+"/bom", body, "")
	if status != http.StatusOK {
		t.Fatalf("status %d body %s", status, raw)
	}

	status, raw = testutil.Do(t, app, http.MethodGet, "/products/"+itoa(bagel.ID)+"/bom", nil, "")
	if status != http.StatusOK {
		t.Fatalf("status %d body %s", status, raw)
	}
	var entries []BOMEntryResponse
	testutil.DecodeJSON(t, raw, &entries)
	if len(entries) != 1 || entries[0].IngredientName != "Spelt Flour" || !entries[0].QuantityPerUnit.Equal(testutil.Dec("0.2")) {
		t.Errorf("entries = %+v", entries)
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
