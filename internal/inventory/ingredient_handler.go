package inventory

import (
	"errors"
	"fmt"
	"strings"

	"bakery-backend/internal/apperr"
	"bakery-backend/internal/auth"
	"bakery-backend/internal/events"
	"bakery-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type IngredientResponse struct {
	ID               uint             `json:"id"`
	Name             string           `json:"name"`
	Unit             string           `json:"unit"`
	OnHand           decimal.Decimal  `json:"on_hand"`
	ReorderThreshold decimal.Decimal  `json:"reorder_threshold"`
	CostPerUnit      *decimal.Decimal `json:"cost_per_unit"`
	LowStock         bool             `json:"low_stock"`
	UpdatedAt        string           `json:"updated_at"`
}

type CreateIngredientRequest struct {
	Name             string           `json:"name"`
	Unit             string           `json:"unit"`
	OnHand           decimal.Decimal  `json:"on_hand"`
	ReorderThreshold decimal.Decimal  `json:"reorder_threshold"`
	CostPerUnit      *decimal.Decimal `json:"cost_per_unit"`
}

type UpdateIngredientRequest struct {
	Name             *string          `json:"name"`
	Unit             *string          `json:"unit"`
	OnHand           *decimal.Decimal `json:"on_hand"` // recorded as a correction
	ReorderThreshold *decimal.Decimal `json:"reorder_threshold"`
	CostPerUnit      *decimal.Decimal `json:"cost_per_unit"`
	Reason           string           `json:"reason"`
}

type AdjustIngredientRequest struct {
	Type        models.AdjustmentType `json:"type"`
	Quantity    decimal.Decimal       `json:"quantity"`
	NewQuantity *decimal.Decimal      `json:"new_quantity"`
	Reason      string                `json:"reason"`
}

type AdjustmentResponse struct {
	ID               uint                  `json:"id"`
	IngredientID     uint                  `json:"ingredient_id"`
	Type             models.AdjustmentType `json:"type"`
	Delta            decimal.Decimal       `json:"delta"`
	PreviousQuantity decimal.Decimal       `json:"previous_quantity"`
	ResultQuantity   decimal.Decimal       `json:"result_quantity"`
	Reason           string                `json:"reason"`
	ActorName        string                `json:"actor_name"`
	BatchID          *uint                 `json:"batch_id"`
	CreatedAt        string                `json:"created_at"`
}

func toIngredientResponse(i models.Ingredient) IngredientResponse {
	return IngredientResponse{
		ID:               i.ID,
		Name:             i.Name,
		Unit:             i.Unit,
		OnHand:           i.OnHand,
		ReorderThreshold: i.ReorderThreshold,
		CostPerUnit:      i.CostPerUnit,
		LowStock:         i.IsLowStock(),
		UpdatedAt:        i.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

func toAdjustmentResponse(a models.InventoryAdjustment) AdjustmentResponse {
	return AdjustmentResponse{
		ID:               a.ID,
		IngredientID:     a.IngredientID,
		Type:             a.Type,
		Delta:            a.Delta,
		PreviousQuantity: a.PreviousQuantity,
		ResultQuantity:   a.ResultQuantity,
		Reason:           a.Reason,
		ActorName:        a.ActorName,
		BatchID:          a.BatchID,
		CreatedAt:        a.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func paramID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, apperr.Validationf("invalid id %q", c.Params("id"))
	}
	return uint(id), nil
}

func loadIngredient(db *gorm.DB, id uint) (models.Ingredient, error) {
	var ing models.Ingredient
	if err := db.First(&ing, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ing, apperr.NotFoundf("ingredient %d", id)
		}
		return ing, err
	}
	return ing, nil
}

func publishAdjustment(c *fiber.Ctx, bus *events.Bus, ing models.Ingredient, adj models.InventoryAdjustment) []string {
	actor := auth.ActorFromCtx(c)
	evt := events.New(models.ActivityIngredientAdjusted, "ingredient", ing.ID,
		fmt.Sprintf("%s %s %s (%s -> %s)", ing.Name, adj.Type, adj.Delta.String(), adj.PreviousQuantity.String(), adj.ResultQuantity.String()),
		fiber.Map{
			"type":              adj.Type,
			"delta":             adj.Delta,
			"previous_quantity": adj.PreviousQuantity,
			"result_quantity":   adj.ResultQuantity,
			"reason":            adj.Reason,
		}).WithActor(actor.ID, actor.Name)
	return events.Warnings(bus.Publish(c.UserContext(), evt))
}

// GET /api/admin/ingredients?q=flour&low_stock=true
func ListIngredientsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := db.WithContext(c.UserContext()).Model(&models.Ingredient{})
		if q := strings.TrimSpace(c.Query("q")); q != "" {
			dbq = dbq.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(q)+"%")
		}
		if c.QueryBool("low_stock") {
			dbq = dbq.Where("on_hand <= reorder_threshold")
		}

		var rows []models.Ingredient
		if err := dbq.Order("name asc").Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list ingredients")
		}

		res := make([]IngredientResponse, 0, len(rows))
		for _, r := range rows {
			res = append(res, toIngredientResponse(r))
		}
		return c.JSON(res)
	}
}

// GET /api/admin/ingredients/:id
func GetIngredientHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}
		ing, err := loadIngredient(db.WithContext(c.UserContext()), id)
		if err != nil {
			return err
		}
		return c.JSON(toIngredientResponse(ing))
	}
}

// POST /api/admin/ingredients (admin only). Opening stock is booked as a receive.
func CreateIngredientHandler(db *gorm.DB, ledger *Ledger, bus *events.Bus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateIngredientRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		body.Name = strings.TrimSpace(body.Name)
		body.Unit = strings.TrimSpace(body.Unit)
		if body.Name == "" || body.Unit == "" {
			return apperr.Validationf("name and unit are required")
		}
		if body.OnHand.IsNegative() || body.ReorderThreshold.IsNegative() {
			return apperr.Validationf("on_hand and reorder_threshold cannot be negative")
		}
		if body.CostPerUnit != nil && body.CostPerUnit.IsNegative() {
			return apperr.Validationf("cost_per_unit cannot be negative")
		}

		ing := models.Ingredient{
			Name:             body.Name,
			Unit:             body.Unit,
			ReorderThreshold: body.ReorderThreshold,
			CostPerUnit:      body.CostPerUnit,
		}
		var (
			adj      models.InventoryAdjustment
			received bool
		)
		err := db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&ing).Error; err != nil {
				if apperr.IsUniqueViolation(err) {
					return apperr.Conflictf("ingredient %q already exists", ing.Name)
				}
				return err
			}
			if !body.OnHand.IsPositive() {
				return nil
			}

			var err error
			adj, err = ledger.WithTx(tx).Adjust(c.UserContext(), ing.ID, AdjustmentInput{
				Type:     models.AdjustmentReceive,
				Quantity: body.OnHand,
				Reason:   "opening stock",
				Actor:    auth.ActorFromCtx(c),
			})
			if err != nil {
				return err
			}
			received = true
			return nil
		})
		if err != nil {
			return err
		}

		var warnings []string
		if received {
			ing = adj.Ingredient
			warnings = publishAdjustment(c, bus, ing, adj)
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"ingredient": toIngredientResponse(ing),
			"warnings":   warnings,
		})
	}
}

// PUT /api/admin/ingredients/:id (admin only). Field edits and an on_hand correction
// commit together or not at all.
func UpdateIngredientHandler(db *gorm.DB, ledger *Ledger, bus *events.Bus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}

		var body UpdateIngredientRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		var (
			adj      models.InventoryAdjustment
			adjusted bool
		)
		err = db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			ing, err := loadIngredient(tx, id)
			if err != nil {
				return err
			}

			updates := map[string]any{}
			if body.Name != nil {
				name := strings.TrimSpace(*body.Name)
				if name == "" {
					return apperr.Validationf("name cannot be empty")
				}
				updates["name"] = name
			}
			if body.Unit != nil {
				unit := strings.TrimSpace(*body.Unit)
				if unit == "" {
					return apperr.Validationf("unit cannot be empty")
				}
				updates["unit"] = unit
			}
			if body.ReorderThreshold != nil {
				if body.ReorderThreshold.IsNegative() {
					return apperr.Validationf("reorder_threshold cannot be negative")
				}
				updates["reorder_threshold"] = *body.ReorderThreshold
			}
			if body.CostPerUnit != nil {
				if body.CostPerUnit.IsNegative() {
					return apperr.Validationf("cost_per_unit cannot be negative")
				}
				updates["cost_per_unit"] = *body.CostPerUnit
			}

			if len(updates) > 0 {
				if err := tx.Model(&ing).Updates(updates).Error; err != nil {
					if apperr.IsUniqueViolation(err) {
						return apperr.Conflictf("ingredient name already in use")
					}
					return err
				}
			}

			if body.OnHand == nil || body.OnHand.Equal(ing.OnHand) {
				return nil
			}
			reason := body.Reason
			if reason == "" {
				reason = "manual edit"
			}
			adj, err = ledger.WithTx(tx).Adjust(c.UserContext(), ing.ID, AdjustmentInput{
				Type:        models.AdjustmentCorrection,
				NewQuantity: body.OnHand,
				Reason:      reason,
				Actor:       auth.ActorFromCtx(c),
			})
			if err != nil {
				return err
			}
			adjusted = true
			return nil
		})
		if err != nil {
			return err
		}

		ing, err := loadIngredient(db.WithContext(c.UserContext()), id)
		if err != nil {
			return err
		}
		var warnings []string
		if adjusted {
			warnings = publishAdjustment(c, bus, ing, adj)
		}
		return c.JSON(fiber.Map{
			"ingredient": toIngredientResponse(ing),
			"warnings":   warnings,
		})
	}
}

// POST /api/admin/ingredients/:id/adjust
func AdjustIngredientHandler(ledger *Ledger, bus *events.Bus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}

		var body AdjustIngredientRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		adj, err := ledger.Adjust(c.UserContext(), id, AdjustmentInput{
			Type:        body.Type,
			Quantity:    body.Quantity,
			NewQuantity: body.NewQuantity,
			Reason:      strings.TrimSpace(body.Reason),
			Actor:       auth.ActorFromCtx(c),
		})
		if err != nil {
			return err
		}

		warnings := publishAdjustment(c, bus, adj.Ingredient, adj)
		return c.JSON(fiber.Map{
			"ingredient": toIngredientResponse(adj.Ingredient),
			"adjustment": toAdjustmentResponse(adj),
			"warnings":   warnings,
		})
	}
}

// GET /api/admin/ingredients/:id/adjustments?limit=100
func ListAdjustmentsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}
		tx := db.WithContext(c.UserContext())
		if _, err := loadIngredient(tx, id); err != nil {
			return err
		}

		limit := c.QueryInt("limit", 100)
		if limit <= 0 || limit > 500 {
			limit = 100
		}

		var rows []models.InventoryAdjustment
		err = tx.Where("ingredient_id = ?", id).
			Order("created_at DESC, id DESC").
			Limit(limit).
			Find(&rows).Error
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list adjustments")
		}

		res := make([]AdjustmentResponse, 0, len(rows))
		for _, r := range rows {
			res = append(res, toAdjustmentResponse(r))
		}
		return c.JSON(res)
	}
}

// GET /api/admin/ingredients/low-stock
func LowStockHandler(ledger *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rows, err := ledger.LowStock(c.UserContext())
		if err != nil {
			return err
		}
		res := make([]IngredientResponse, 0, len(rows))
		for _, r := range rows {
			res = append(res, toIngredientResponse(r))
		}
		return c.JSON(res)
	}
}
