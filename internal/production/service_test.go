package production

import (
	"context"
	"errors"
	"testing"
	"time"

	"bakery-backend/internal/activity"
	"bakery-backend/internal/apperr"
	"bakery-backend/internal/events"
	"bakery-backend/internal/inventory"
	"bakery-backend/internal/models"
	"bakery-backend/internal/testutil"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var baker = models.Actor{Name: "Head Baker"}

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	bus := events.NewBus(zap.NewNop())
	bus.SubscribeAll("activity", activity.Subscriber(db))
	return NewService(db, inventory.NewBOMIndex(db), bus, zap.NewNop()), db
}

func planBatch(t *testing.T, svc *Service, items ...ItemInput) models.Batch {
	t.Helper()
	b, err := svc.CreateBatch(context.Background(), CreateBatchInput{
		BatchDate: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
		Shift:     "early",
		Items:     items,
	}, baker)
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	return b
}

func bagelSetup(t *testing.T, db *gorm.DB, flourOnHand string) (models.Ingredient, models.Product) {
	t.Helper()
	flour := testutil.CreateIngredient(t, db, "Spelt Flour", "lb", flourOnHand, "20")
	bagel := testutil.CreateProduct(t, db, "Plain Bagel", "2.50")
	testutil.AddBOM(t, db, bagel.ID, flour.ID, "0.2")
	return flour, bagel
}

func TestCompleteBatch_sufficientStock_deductsAndCompletes(t *testing.T) {
	svc, db := newService(t)
	flour, bagel := bagelSetup(t, db, "100")
	batch := planBatch(t, svc, ItemInput{ProductID: bagel.ID, Quantity: 50})

	res, err := svc.CompleteBatch(context.Background(), batch.ID, baker)
	if err != nil {
		t.Fatalf("CompleteBatch: %v", err)
	}

	if got := testutil.OnHand(t, db, flour.ID); !got.Equal(testutil.Dec("90")) {
		t.Errorf("flour on_hand = %s, want 90", got)
	}
	if res.Batch.Status != models.BatchCompleted || res.Batch.CompletedAt == nil {
		t.Errorf("batch = %s completed_at=%v, want completed with timestamp", res.Batch.Status, res.Batch.CompletedAt)
	}
	if !res.Consumed[flour.ID].Equal(testutil.Dec("10")) {
		t.Errorf("consumed flour = %s, want 10", res.Consumed[flour.ID])
	}

	var stock models.FreezerStock
	if err := db.Where("product_id = ?", bagel.ID).First(&stock).Error; err != nil {
		t.Fatalf("load freezer stock: %v", err)
	}
	if stock.Quantity != 50 {
		t.Errorf("freezer quantity = %d, want 50", stock.Quantity)
	}

	var logged int64
	db.Model(&models.ActivityLog{}).Where("type = ? AND entity_id = ?", models.ActivityBatchCompleted, batch.ID).Count(&logged)
	if logged != 1 {
		t.Errorf("batch.completed activity entries = %d, want 1", logged)
	}

	var adj models.InventoryAdjustment
	if err := db.Where("ingredient_id = ?", flour.ID).First(&adj).Error; err != nil {
		t.Fatalf("load adjustment: %v", err)
	}
	if adj.BatchID == nil || *adj.BatchID != batch.ID {
		t.Errorf("adjustment batch = %v, want %d", adj.BatchID, batch.ID)
	}
}

func TestCompleteBatch_insufficientStock_reportsShortfallAndLeavesState(t *testing.T) {
	svc, db := newService(t)
	flour, bagel := bagelSetup(t, db, "5")
	batch := planBatch(t, svc, ItemInput{ProductID: bagel.ID, Quantity: 50})

	_, err := svc.CompleteBatch(context.Background(), batch.ID, baker)

	var stockErr *inventory.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("err = %v, want InsufficientStockError", err)
	}
	if len(stockErr.Shortages) != 1 || stockErr.Shortages[0].Name != "Spelt Flour" || !stockErr.Shortages[0].Shortfall.Equal(testutil.Dec("5")) {
		t.Errorf("shortages = %+v, want Spelt Flour short 5", stockErr.Shortages)
	}
	if got := testutil.OnHand(t, db, flour.ID); !got.Equal(testutil.Dec("5")) {
		t.Errorf("flour on_hand = %s, want 5", got)
	}
	reloaded, _ := svc.Get(context.Background(), batch.ID)
	if reloaded.Status != models.BatchPlanned {
		t.Errorf("status = %s, want planned", reloaded.Status)
	}
}

func TestCompleteBatch_calledTwice_deductsOnce(t *testing.T) {
	svc, db := newService(t)
	flour, bagel := bagelSetup(t, db, "100")
	batch := planBatch(t, svc, ItemInput{ProductID: bagel.ID, Quantity: 50})
	ctx := context.Background()

	if _, err := svc.CompleteBatch(ctx, batch.ID, baker); err != nil {
		t.Fatalf("first CompleteBatch: %v", err)
	}
	res, err := svc.CompleteBatch(ctx, batch.ID, baker)
	if err != nil {
		t.Fatalf("second CompleteBatch: %v", err)
	}

	if !res.Unchanged {
		t.Errorf("second call Unchanged = false, want true")
	}
	if got := testutil.OnHand(t, db, flour.ID); !got.Equal(testutil.Dec("90")) {
		t.Errorf("flour on_hand = %s, want 90", got)
	}
	var stock models.FreezerStock
	db.Where("product_id = ?", bagel.ID).First(&stock)
	if stock.Quantity != 50 {
		t.Errorf("freezer quantity = %d, want 50", stock.Quantity)
	}
}

func TestCompleteBatch_oneIngredientShort_noIngredientChanges(t *testing.T) {
	svc, db := newService(t)
	flour, bagel := bagelSetup(t, db, "100")
	sesame := testutil.CreateIngredient(t, db, "Sesame Seeds", "lb", "0.5", "2")
	seeded := testutil.CreateProduct(t, db, "Sesame Bagel", "2.75")
	testutil.AddBOM(t, db, seeded.ID, flour.ID, "0.2")
	testutil.AddBOM(t, db, seeded.ID, sesame.ID, "0.02")
	batch := planBatch(t, svc,
		ItemInput{ProductID: bagel.ID, Quantity: 50},
		ItemInput{ProductID: seeded.ID, Quantity: 40},
	)

	_, err := svc.CompleteBatch(context.Background(), batch.ID, baker)
	if !errors.Is(err, apperr.ErrInsufficientStock) {
		t.Fatalf("err = %v, want insufficient stock", err)
	}

	if got := testutil.OnHand(t, db, flour.ID); !got.Equal(testutil.Dec("100")) {
		t.Errorf("flour on_hand = %s, want 100", got)
	}
	if got := testutil.OnHand(t, db, sesame.ID); !got.Equal(testutil.Dec("0.5")) {
		t.Errorf("sesame on_hand = %s, want 0.5", got)
	}
	var adjustments, stocked int64
	db.Model(&models.InventoryAdjustment{}).Count(&adjustments)
	db.Model(&models.FreezerStock{}).Count(&stocked)
	if adjustments != 0 || stocked != 0 {
		t.Errorf("adjustments=%d freezer rows=%d, want 0 and 0", adjustments, stocked)
	}
}

func TestCompleteBatch_productWithoutRecipe_completesWithoutDeduction(t *testing.T) {
	svc, db := newService(t)
	loaf := testutil.CreateProduct(t, db, "Country Loaf", "8.00")
	batch := planBatch(t, svc, ItemInput{ProductID: loaf.ID, Quantity: 12})

	res, err := svc.CompleteBatch(context.Background(), batch.ID, baker)
	if err != nil {
		t.Fatalf("CompleteBatch: %v", err)
	}
	if res.Batch.Status != models.BatchCompleted || len(res.Consumed) != 0 {
		t.Errorf("status=%s consumed=%v, want completed with nothing consumed", res.Batch.Status, res.Consumed)
	}
}

func TestCompleteBatch_cancelled_invalidTransition(t *testing.T) {
	svc, db := newService(t)
	flour, bagel := bagelSetup(t, db, "100")
	batch := planBatch(t, svc, ItemInput{ProductID: bagel.ID, Quantity: 50})
	ctx := context.Background()

	if _, err := svc.UpdateStatus(ctx, batch.ID, models.BatchCancelled, baker); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err := svc.UpdateStatus(ctx, batch.ID, models.BatchCompleted, baker)
	if !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("err = %v, want invalid transition", err)
	}
	if got := testutil.OnHand(t, db, flour.ID); !got.Equal(testutil.Dec("100")) {
		t.Errorf("flour on_hand = %s, want 100", got)
	}
}

func TestCompleteBatch_missingBatch_notFound(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.CompleteBatch(context.Background(), 404, baker)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestUpdateStatus_transitions(t *testing.T) {
	cases := []struct {
		name    string
		path    []models.BatchStatus
		wantErr error
	}{
		{name: "planned to in_progress to completed", path: []models.BatchStatus{models.BatchInProgress, models.BatchCompleted}},
		{name: "planned straight to completed", path: []models.BatchStatus{models.BatchCompleted}},
		{name: "in_progress cannot be cancelled", path: []models.BatchStatus{models.BatchInProgress, models.BatchCancelled}, wantErr: apperr.ErrInvalidTransition},
		{name: "completed cannot go back", path: []models.BatchStatus{models.BatchCompleted, models.BatchPlanned}, wantErr: apperr.ErrInvalidTransition},
		{name: "in_progress cannot go back to planned", path: []models.BatchStatus{models.BatchInProgress, models.BatchPlanned}, wantErr: apperr.ErrInvalidTransition},
		{name: "same status is a no-op", path: []models.BatchStatus{models.BatchInProgress, models.BatchInProgress}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, db := newService(t)
			_, bagel := bagelSetup(t, db, "100")
			batch := planBatch(t, svc, ItemInput{ProductID: bagel.ID, Quantity: 5})

			var err error
			for _, next := range tc.path {
				if _, err = svc.UpdateStatus(context.Background(), batch.ID, next, baker); err != nil {
					break
				}
			}
			if tc.wantErr == nil && err != nil {
				t.Fatalf("UpdateStatus: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestRequirements_previewsShortfallWithoutMutating(t *testing.T) {
	svc, db := newService(t)
	flour, bagel := bagelSetup(t, db, "5")
	batch := planBatch(t, svc, ItemInput{ProductID: bagel.ID, Quantity: 50})

	lines, err := svc.Requirements(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("Requirements: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("lines = %+v, want 1", lines)
	}
	l := lines[0]
	if l.IngredientID != flour.ID || l.Sufficient || !l.Required.Equal(testutil.Dec("10")) || !l.Shortfall.Equal(testutil.Dec("5")) {
		t.Errorf("line = %+v, want flour required 10 short 5", l)
	}
}

func TestCreateBatch_unknownProduct_validationError(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.CreateBatch(context.Background(), CreateBatchInput{
		BatchDate: time.Now(),
		Items:     []ItemInput{{ProductID: 99, Quantity: 1}},
	}, baker)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}
