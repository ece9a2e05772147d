package production

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bakery-backend/internal/events"
	"bakery-backend/internal/inventory"
	"bakery-backend/internal/models"
	"bakery-backend/internal/testutil"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type batchFeature struct {
	dir         string
	db          *gorm.DB
	svc         *Service
	ingredients map[string]models.Ingredient
	products    map[string]models.Product
	batch       models.Batch
	err         error
}

func (f *batchFeature) reset() error {
	dir, err := os.MkdirTemp("", "bakery-batch-*")
	if err != nil {
		return err
	}
	db, err := testutil.OpenDB(filepath.Join(dir, "bakery.db"))
	if err != nil {
		return err
	}
	f.dir = dir
	f.db = db
	f.svc = NewService(db, inventory.NewBOMIndex(db), events.NewBus(zap.NewNop()), zap.NewNop())
	f.ingredients = map[string]models.Ingredient{}
	f.products = map[string]models.Product{}
	f.batch = models.Batch{}
	f.err = nil
	return nil
}

func (f *batchFeature) close() {
	if f.db != nil {
		if sqlDB, err := f.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if f.dir != "" {
		os.RemoveAll(f.dir)
	}
}

func (f *batchFeature) anIngredientWithOnHand(name, unit, onHand string) error {
	ing := models.Ingredient{Name: name, Unit: unit, OnHand: decimal.RequireFromString(onHand), ReorderThreshold: decimal.NewFromInt(1)}
	if err := f.db.Create(&ing).Error; err != nil {
		return err
	}
	f.ingredients[name] = ing
	return nil
}

func (f *batchFeature) aProductThatUses(product, qty, ingredient string) error {
	p := models.Product{Name: product, Price: decimal.RequireFromString("2.50"), Active: true}
	if err := f.db.Create(&p).Error; err != nil {
		return err
	}
	f.products[product] = p
	return f.theProductAlsoUses(product, qty, ingredient)
}

func (f *batchFeature) theProductAlsoUses(product, qty, ingredient string) error {
	p, ok := f.products[product]
	if !ok {
		return fmt.Errorf("unknown product %q", product)
	}
	ing, ok := f.ingredients[ingredient]
	if !ok {
		return fmt.Errorf("unknown ingredient %q", ingredient)
	}
	return inventory.NewBOMIndex(f.db).SetEntry(context.Background(), p.ID, ing.ID, decimal.RequireFromString(qty))
}

func (f *batchFeature) plan(items ...ItemInput) error {
	b, err := f.svc.CreateBatch(context.Background(), CreateBatchInput{
		BatchDate: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
		Shift:     "early",
		Items:     items,
	}, models.SystemActor)
	if err != nil {
		return err
	}
	f.batch = b
	return nil
}

func (f *batchFeature) aPlannedBatchOf(qty int, product string) error {
	return f.plan(ItemInput{ProductID: f.products[product].ID, Quantity: qty})
}

func (f *batchFeature) aPlannedBatchOfTwo(qtyA int, productA string, qtyB int, productB string) error {
	return f.plan(
		ItemInput{ProductID: f.products[productA].ID, Quantity: qtyA},
		ItemInput{ProductID: f.products[productB].ID, Quantity: qtyB},
	)
}

func (f *batchFeature) theBatchIsCompleted() error {
	_, f.err = f.svc.UpdateStatus(context.Background(), f.batch.ID, models.BatchCompleted, models.SystemActor)
	return nil
}

func (f *batchFeature) theBatchStatusIs(want string) error {
	if f.err != nil && want == string(models.BatchCompleted) {
		return fmt.Errorf("completion failed: %v", f.err)
	}
	b, err := f.svc.Get(context.Background(), f.batch.ID)
	if err != nil {
		return err
	}
	if string(b.Status) != want {
		return fmt.Errorf("batch status is %s, want %s", b.Status, want)
	}
	return nil
}

func (f *batchFeature) hasOnHand(name, want string) error {
	var ing models.Ingredient
	if err := f.db.First(&ing, f.ingredients[name].ID).Error; err != nil {
		return err
	}
	if !ing.OnHand.Equal(decimal.RequireFromString(want)) {
		return fmt.Errorf("%s has %s on hand, want %s", name, ing.OnHand, want)
	}
	return nil
}

func (f *batchFeature) theFreezerHolds(want int, product string) error {
	var stock models.FreezerStock
	if err := f.db.Where("product_id = ?", f.products[product].ID).First(&stock).Error; err != nil {
		return err
	}
	if stock.Quantity != want {
		return fmt.Errorf("freezer holds %d %s, want %d", stock.Quantity, product, want)
	}
	return nil
}

func (f *batchFeature) completionFailsBecauseIsShortBy(name, shortfall string) error {
	var stockErr *inventory.InsufficientStockError
	if !errors.As(f.err, &stockErr) {
		return fmt.Errorf("expected insufficient stock, got %v", f.err)
	}
	for _, s := range stockErr.Shortages {
		if s.Name == name {
			if !s.Shortfall.Equal(decimal.RequireFromString(shortfall)) {
				return fmt.Errorf("%s short by %s, want %s", name, s.Shortfall, shortfall)
			}
			return nil
		}
	}
	return fmt.Errorf("%s not among shortages %+v", name, stockErr.Shortages)
}

func initializeBatchScenario(ctx *godog.ScenarioContext) {
	f := &batchFeature{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		return ctx, f.reset()
	})
	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		f.close()
		return ctx, nil
	})

	ctx.Step(`^an ingredient "([^"]*)" in "([^"]*)" with ([\d.]+) on hand$`, f.anIngredientWithOnHand)
	ctx.Step(`^a product "([^"]*)" that uses ([\d.]+) "([^"]*)" per unit$`, f.aProductThatUses)
	ctx.Step(`^the product "([^"]*)" also uses ([\d.]+) "([^"]*)" per unit$`, f.theProductAlsoUses)
	ctx.Step(`^a planned batch of (\d+) "([^"]*)"$`, f.aPlannedBatchOf)
	ctx.Step(`^a planned batch of (\d+) "([^"]*)" and (\d+) "([^"]*)"$`, f.aPlannedBatchOfTwo)

	ctx.Step(`^the batch is completed$`, f.theBatchIsCompleted)

	ctx.Step(`^the batch status is "([^"]*)"$`, f.theBatchStatusIs)
	ctx.Step(`^"([^"]*)" has ([\d.]+) on hand$`, f.hasOnHand)
	ctx.Step(`^the freezer holds (\d+) "([^"]*)"$`, f.theFreezerHolds)
	ctx.Step(`^completion fails because "([^"]*)" is short by ([\d.]+)$`, f.completionFailsBecauseIsShortBy)
}

func TestBatchCompletionFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeBatchScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"../../features/batch_completion.feature"},
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
