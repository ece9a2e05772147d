package production

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bakery-backend/internal/apperr"
	"bakery-backend/internal/events"
	"bakery-backend/internal/inventory"
	"bakery-backend/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service runs the batch lifecycle. Completing a batch consumes ingredients and
// stocks the freezer in a single transaction.
type Service struct {
	db  *gorm.DB
	bom *inventory.BOMIndex
	bus *events.Bus
	log *zap.Logger
}

func NewService(db *gorm.DB, bom *inventory.BOMIndex, bus *events.Bus, log *zap.Logger) *Service {
	return &Service{db: db, bom: bom, bus: bus, log: log}
}

type ItemInput struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type CreateBatchInput struct {
	BatchDate time.Time
	Shift     string
	Notes     string
	Items     []ItemInput
}

type ListFilter struct {
	Status models.BatchStatus
	From   *time.Time
	To     *time.Time
}

// Result describes a status change. Consumed is set only when ingredients were deducted.
type Result struct {
	Batch     models.Batch
	Unchanged bool
	Consumed  inventory.Requirements
	Warnings  []string
}

// RequirementLine is one row of the pre-completion stock check.
type RequirementLine struct {
	IngredientID uint            `json:"ingredient_id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	Required     decimal.Decimal `json:"required"`
	OnHand       decimal.Decimal `json:"on_hand"`
	Shortfall    decimal.Decimal `json:"shortfall"`
	Sufficient   bool            `json:"sufficient"`
}

func (s *Service) CreateBatch(ctx context.Context, in CreateBatchInput, actor models.Actor) (models.Batch, error) {
	if in.BatchDate.IsZero() {
		return models.Batch{}, apperr.Validationf("batch_date is required")
	}
	if len(in.Items) == 0 {
		return models.Batch{}, apperr.Validationf("a batch needs at least one item")
	}

	batch := models.Batch{
		BatchDate: in.BatchDate,
		Shift:     in.Shift,
		Notes:     in.Notes,
		Status:    models.BatchPlanned,
	}
	for i, item := range in.Items {
		if item.Quantity < 0 {
			return models.Batch{}, apperr.Validationf("item %d has negative quantity", i+1)
		}
		batch.Items = append(batch.Items, models.BatchItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Position:  i,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range in.Items {
			var p models.Product
			if err := tx.Select("id").First(&p, item.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperr.Validationf("product %d does not exist", item.ProductID)
				}
				return err
			}
		}
		return tx.Create(&batch).Error
	})
	if err != nil {
		return models.Batch{}, err
	}

	s.log.Info("batch planned",
		zap.Uint("batch_id", batch.ID),
		zap.Int("items", len(batch.Items)),
		zap.String("actor", actor.Name),
	)
	return s.Get(ctx, batch.ID)
}

func (s *Service) Get(ctx context.Context, id uint) (models.Batch, error) {
	var batch models.Batch
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position, id") }).
		Preload("Items.Product").
		First(&batch, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return batch, apperr.NotFoundf("batch %d", id)
		}
		return batch, fmt.Errorf("load batch %d: %w", id, err)
	}
	return batch, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]models.Batch, error) {
	dbq := s.db.WithContext(ctx).Model(&models.Batch{})
	if f.Status != "" {
		dbq = dbq.Where("status = ?", f.Status)
	}
	if f.From != nil {
		dbq = dbq.Where("batch_date >= ?", *f.From)
	}
	if f.To != nil {
		dbq = dbq.Where("batch_date < ?", *f.To)
	}

	var batches []models.Batch
	err := dbq.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position, id") }).
		Preload("Items.Product").
		Order("batch_date DESC, id DESC").
		Find(&batches).Error
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

func batchLines(items []models.BatchItem) []inventory.BatchLine {
	lines := make([]inventory.BatchLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, inventory.BatchLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines
}

// Requirements previews what completing the batch would consume, without locking.
func (s *Service) Requirements(ctx context.Context, id uint) ([]RequirementLine, error) {
	batch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	reqs, err := inventory.AggregateRequirements(ctx, s.bom, batchLines(batch.Items))
	if err != nil {
		return nil, err
	}

	ids := reqs.IngredientIDs()
	var rows []models.Ingredient
	if len(ids) > 0 {
		if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("load ingredients: %w", err)
		}
	}
	byID := make(map[uint]models.Ingredient, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	out := make([]RequirementLine, 0, len(ids))
	for _, ingID := range ids {
		ing := byID[ingID]
		need := reqs[ingID]
		line := RequirementLine{
			IngredientID: ingID,
			Name:         ing.Name,
			Unit:         ing.Unit,
			Required:     need,
			OnHand:       ing.OnHand,
			Shortfall:    decimal.Zero,
			Sufficient:   ing.OnHand.GreaterThanOrEqual(need),
		}
		if !line.Sufficient {
			line.Shortfall = need.Sub(ing.OnHand)
		}
		out = append(out, line)
	}
	return out, nil
}

// UpdateStatus applies an admin status change. Moving to completed runs CompleteBatch;
// re-applying the current status is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, id uint, next models.BatchStatus, actor models.Actor) (Result, error) {
	if next == models.BatchCompleted {
		return s.CompleteBatch(ctx, id, actor)
	}

	var (
		batch models.Batch
		prev  models.BatchStatus
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = lockBatch(tx, id)
		if err != nil {
			return err
		}
		prev = batch.Status
		if prev == next {
			return nil
		}
		if !prev.CanTransitionTo(next) {
			return apperr.InvalidTransition("batch", prev, next)
		}
		if err := tx.Model(&batch).Update("status", next).Error; err != nil {
			return fmt.Errorf("update batch %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	batch, err = s.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if prev == next {
		return Result{Batch: batch, Unchanged: true}, nil
	}

	s.log.Info("batch status changed",
		zap.Uint("batch_id", id),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
		zap.String("actor", actor.Name),
	)
	evt := events.New(models.ActivityBatchStatusChanged, "batch", id,
		fmt.Sprintf("batch #%d %s -> %s", id, prev, next),
		map[string]any{"from": prev, "to": next}).WithActor(actor.ID, actor.Name)
	return Result{Batch: batch, Warnings: events.Warnings(s.bus.Publish(ctx, evt))}, nil
}

// CompleteBatch aggregates the batch's ingredient requirements, verifies every one is
// covered, deducts them and marks the batch completed, all under row locks in one
// transaction. A batch that is already completed is returned unchanged.
func (s *Service) CompleteBatch(ctx context.Context, id uint, actor models.Actor) (Result, error) {
	var (
		reqs      inventory.Requirements
		unchanged bool
		prev      models.BatchStatus
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := lockBatch(tx, id)
		if err != nil {
			return err
		}
		prev = batch.Status
		if batch.Status == models.BatchCompleted {
			unchanged = true
			return nil
		}
		if !batch.Status.CanTransitionTo(models.BatchCompleted) {
			return apperr.InvalidTransition("batch", batch.Status, models.BatchCompleted)
		}

		var items []models.BatchItem
		if err := tx.Where("batch_id = ?", id).Order("position, id").Find(&items).Error; err != nil {
			return fmt.Errorf("load batch items: %w", err)
		}

		reqs, err = inventory.AggregateRequirements(ctx, s.bom.WithTx(tx), batchLines(items))
		if err != nil {
			return err
		}

		ledger := inventory.NewLedger(tx)
		if err := ledger.CheckAvailable(ctx, reqs); err != nil {
			return err
		}
		err = ledger.DeductMany(ctx, reqs.Deductions(), inventory.DeductOptions{
			Reason:  fmt.Sprintf("batch #%d", id),
			Actor:   actor,
			BatchID: &id,
		})
		if err != nil {
			return err
		}

		if err := stockFreezer(tx, items); err != nil {
			return err
		}

		now := time.Now()
		res := tx.Model(&models.Batch{}).
			Where("id = ? AND status = ?", id, batch.Status).
			Updates(map[string]any{"status": models.BatchCompleted, "completed_at": now})
		if res.Error != nil {
			return fmt.Errorf("complete batch %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.Conflictf("batch %d changed while completing", id)
		}
		return nil
	})
	if err != nil {
		var stockErr *inventory.InsufficientStockError
		if errors.As(err, &stockErr) {
			s.log.Warn("batch completion blocked by stock",
				zap.Uint("batch_id", id),
				zap.Int("short_ingredients", len(stockErr.Shortages)),
			)
		}
		return Result{}, err
	}

	batch, err := s.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if unchanged {
		return Result{Batch: batch, Unchanged: true}, nil
	}

	s.log.Info("batch completed",
		zap.Uint("batch_id", id),
		zap.String("from", string(prev)),
		zap.Int("ingredients", len(reqs)),
		zap.String("actor", actor.Name),
	)

	produced := make(map[string]int, len(batch.Items))
	for _, it := range batch.Items {
		produced[it.Product.Name] += it.Quantity
	}
	evt := events.New(models.ActivityBatchCompleted, "batch", id,
		fmt.Sprintf("batch #%d completed", id),
		map[string]any{"produced": produced, "consumed": reqs.Strings()}).WithActor(actor.ID, actor.Name)

	return Result{
		Batch:    batch,
		Consumed: reqs,
		Warnings: events.Warnings(s.bus.Publish(ctx, evt)),
	}, nil
}

func lockBatch(tx *gorm.DB, id uint) (models.Batch, error) {
	var batch models.Batch
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&batch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return batch, apperr.NotFoundf("batch %d", id)
		}
		return batch, fmt.Errorf("lock batch %d: %w", id, err)
	}
	return batch, nil
}

// stockFreezer adds produced units to the finished-goods ledger.
func stockFreezer(tx *gorm.DB, items []models.BatchItem) error {
	perProduct := make(map[uint]int)
	for _, it := range items {
		perProduct[it.ProductID] += it.Quantity
	}
	ids := make([]uint, 0, len(perProduct))
	for id := range perProduct {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, productID := range ids {
		qty := perProduct[productID]
		if qty == 0 {
			continue
		}
		row := models.FreezerStock{ProductID: productID, Quantity: qty}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity":   gorm.Expr("freezer_stocks.quantity + excluded.quantity"),
				"updated_at": time.Now(),
			}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("stock freezer for product %d: %w", productID, err)
		}
	}
	return nil
}
