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

type ProductResponse struct {
	ID     uint            `json:"id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Active bool            `json:"active"`
}

type CreateProductRequest struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type UpdateProductRequest struct {
	Name   *string          `json:"name"`
	Price  *decimal.Decimal `json:"price"`
	Active *bool            `json:"active"`
}

type BOMEntryRequest struct {
	IngredientID    uint            `json:"ingredient_id"`
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit"`
}

type ReplaceBOMRequest struct {
	Entries []BOMEntryRequest `json:"entries"`
}

type BOMEntryResponse struct {
	IngredientID    uint            `json:"ingredient_id"`
	IngredientName  string          `json:"ingredient_name"`
	Unit            string          `json:"unit"`
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit"`
}

func toProductResponse(p models.Product) ProductResponse {
	return ProductResponse{ID: p.ID, Name: p.Name, Price: p.Price, Active: p.Active}
}

// GET /api/products lists what the storefront can sell; the admin route passes all=true.
func ListProductsHandler(db *gorm.DB, all bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := db.WithContext(c.UserContext()).Model(&models.Product{})
		if !all {
			dbq = dbq.Where("active = ?", true)
		}

		var products []models.Product
		if err := dbq.Order("name asc").Find(&products).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list products")
		}

		res := make([]ProductResponse, 0, len(products))
		for _, p := range products {
			res = append(res, toProductResponse(p))
		}
		return c.JSON(res)
	}
}

// POST /api/admin/products (admin only)
func CreateProductHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateProductRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return apperr.Validationf("name is required")
		}
		if !body.Price.IsPositive() {
			return apperr.Validationf("price must be positive")
		}

		p := models.Product{Name: body.Name, Price: body.Price.Round(2), Active: true}
		if err := db.WithContext(c.UserContext()).Create(&p).Error; err != nil {
			if apperr.IsUniqueViolation(err) {
				return apperr.Conflictf("product %q already exists", p.Name)
			}
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toProductResponse(p))
	}
}

// PUT /api/admin/products/:id (admin only)
func UpdateProductHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}

		tx := db.WithContext(c.UserContext())
		var p models.Product
		if err := tx.First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFoundf("product %d", id)
			}
			return err
		}

		var body UpdateProductRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		updates := map[string]any{}
		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return apperr.Validationf("name cannot be empty")
			}
			updates["name"] = name
		}
		if body.Price != nil {
			if !body.Price.IsPositive() {
				return apperr.Validationf("price must be positive")
			}
			updates["price"] = body.Price.Round(2)
		}
		if body.Active != nil {
			updates["active"] = *body.Active
		}

		if len(updates) > 0 {
			if err := tx.Model(&p).Updates(updates).Error; err != nil {
				if apperr.IsUniqueViolation(err) {
					return apperr.Conflictf("product name already in use")
				}
				return err
			}
		}
		if err := tx.First(&p, id).Error; err != nil {
			return err
		}
		return c.JSON(toProductResponse(p))
	}
}

func bomResponse(rows []models.BillOfMaterial) []BOMEntryResponse {
	res := make([]BOMEntryResponse, 0, len(rows))
	for _, r := range rows {
		res = append(res, BOMEntryResponse{
			IngredientID:    r.IngredientID,
			IngredientName:  r.Ingredient.Name,
			Unit:            r.Ingredient.Unit,
			QuantityPerUnit: r.QuantityPerUnit,
		})
	}
	return res
}

// GET /api/admin/products/:id/bom
func GetBOMHandler(bom *BOMIndex) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}
		rows, err := bom.Entries(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(bomResponse(rows))
	}
}

// PUT /api/admin/products/:id/bom (admin only) replaces the whole recipe.
func ReplaceBOMHandler(bom *BOMIndex, bus *events.Bus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}

		var body ReplaceBOMRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		entries := make([]Requirement, 0, len(body.Entries))
		for _, e := range body.Entries {
			entries = append(entries, Requirement{IngredientID: e.IngredientID, QuantityPerUnit: e.QuantityPerUnit})
		}
		if err := bom.ReplaceForProduct(c.UserContext(), id, entries); err != nil {
			return err
		}

		rows, err := bom.Entries(c.UserContext(), id)
		if err != nil {
			return err
		}

		actor := auth.ActorFromCtx(c)
		evt := events.New(models.ActivityBOMUpdated, "product", id,
			fmt.Sprintf("recipe for product %d replaced with %d entries", id, len(rows)),
			bomResponse(rows)).WithActor(actor.ID, actor.Name)
		warnings := events.Warnings(bus.Publish(c.UserContext(), evt))

		return c.JSON(fiber.Map{
			"entries":  bomResponse(rows),
			"warnings": warnings,
		})
	}
}

// POST /api/admin/products/bom/import (admin only), multipart field "file".
func ImportBOMHandler(bom *BOMIndex, bus *events.Bus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Missing upload field 'file'")
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "Only .xlsx files are accepted")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not open upload")
		}
		defer file.Close()

		res, err := bom.ImportXLSX(c.UserContext(), file)
		if err != nil {
			return err
		}

		var warnings []string
		if res.Imported > 0 {
			actor := auth.ActorFromCtx(c)
			evt := events.New(models.ActivityBOMUpdated, "product", 0,
				fmt.Sprintf("imported %d recipe lines from %s", res.Imported, fileHeader.Filename),
				res).WithActor(actor.ID, actor.Name)
			warnings = events.Warnings(bus.Publish(c.UserContext(), evt))
		}

		return c.JSON(fiber.Map{
			"result":   res,
			"warnings": warnings,
		})
	}
}
