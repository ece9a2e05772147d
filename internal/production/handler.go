package production

import (
	"strings"
	"time"

	"bakery-backend/internal/apperr"
	"bakery-backend/internal/auth"
	"bakery-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

type CreateBatchRequest struct {
	BatchDate string      `json:"batch_date"` // YYYY-MM-DD
	Shift     string      `json:"shift"`
	Notes     string      `json:"notes"`
	Items     []ItemInput `json:"items"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type BatchItemResponse struct {
	ID          uint   `json:"id"`
	ProductID   uint   `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

type BatchResponse struct {
	ID          uint                `json:"id"`
	BatchDate   string              `json:"batch_date"`
	Shift       string              `json:"shift"`
	Notes       string              `json:"notes"`
	Status      models.BatchStatus  `json:"status"`
	CompletedAt *string             `json:"completed_at"`
	Items       []BatchItemResponse `json:"items"`
}

type FreezerStockResponse struct {
	ProductID   uint   `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UpdatedAt   string `json:"updated_at"`
}

func toBatchResponse(b models.Batch) BatchResponse {
	res := BatchResponse{
		ID:        b.ID,
		BatchDate: b.BatchDate.Format(dateLayout),
		Shift:     b.Shift,
		Notes:     b.Notes,
		Status:    b.Status,
		Items:     make([]BatchItemResponse, 0, len(b.Items)),
	}
	if b.CompletedAt != nil {
		s := b.CompletedAt.Format("2006-01-02 15:04:05")
		res.CompletedAt = &s
	}
	for _, it := range b.Items {
		res.Items = append(res.Items, BatchItemResponse{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.Product.Name,
			Quantity:    it.Quantity,
		})
	}
	return res
}

func paramID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, apperr.Validationf("invalid id %q", c.Params("id"))
	}
	return uint(id), nil
}

func parseDateQuery(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, apperr.Validationf("%s must be YYYY-MM-DD", key)
	}
	return &t, nil
}

// GET /api/admin/batches?status=planned&from=2024-05-01&to=2024-05-08
func ListBatchesHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var f ListFilter
		if raw := c.Query("status"); raw != "" {
			st, ok := models.ParseBatchStatus(raw)
			if !ok {
				return apperr.Validationf("unknown batch status %q", raw)
			}
			f.Status = st
		}
		var err error
		if f.From, err = parseDateQuery(c, "from"); err != nil {
			return err
		}
		if f.To, err = parseDateQuery(c, "to"); err != nil {
			return err
		}

		batches, err := svc.List(c.UserContext(), f)
		if err != nil {
			return err
		}
		res := make([]BatchResponse, 0, len(batches))
		for _, b := range batches {
			res = append(res, toBatchResponse(b))
		}
		return c.JSON(res)
	}
}

// POST /api/admin/batches
func CreateBatchHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateBatchRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		date, err := time.Parse(dateLayout, strings.TrimSpace(body.BatchDate))
		if err != nil {
			return apperr.Validationf("batch_date must be YYYY-MM-DD")
		}

		batch, err := svc.CreateBatch(c.UserContext(), CreateBatchInput{
			BatchDate: date,
			Shift:     strings.TrimSpace(body.Shift),
			Notes:     strings.TrimSpace(body.Notes),
			Items:     body.Items,
		}, auth.ActorFromCtx(c))
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toBatchResponse(batch))
	}
}

// GET /api/admin/batches/:id
func GetBatchHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}
		batch, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(toBatchResponse(batch))
	}
}

// GET /api/admin/batches/:id/requirements
func BatchRequirementsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}
		lines, err := svc.Requirements(c.UserContext(), id)
		if err != nil {
			return err
		}
		ready := true
		for _, l := range lines {
			ready = ready && l.Sufficient
		}
		return c.JSON(fiber.Map{
			"ready":        ready,
			"requirements": lines,
		})
	}
}

// PATCH /api/admin/batches/:id/status
func UpdateBatchStatusHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}

		var body UpdateStatusRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		next, ok := models.ParseBatchStatus(body.Status)
		if !ok {
			return apperr.Validationf("unknown batch status %q", body.Status)
		}

		res, err := svc.UpdateStatus(c.UserContext(), id, next, auth.ActorFromCtx(c))
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"batch":     toBatchResponse(res.Batch),
			"unchanged": res.Unchanged,
			"consumed":  res.Consumed,
			"warnings":  res.Warnings,
		})
	}
}

// GET /api/admin/freezer-stock
func ListFreezerStockHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var rows []models.FreezerStock
		err := db.WithContext(c.UserContext()).
			Preload("Product").
			Where("quantity > 0").
			Order("product_id").
			Find(&rows).Error
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list freezer stock")
		}

		res := make([]FreezerStockResponse, 0, len(rows))
		for _, r := range rows {
			res = append(res, FreezerStockResponse{
				ProductID:   r.ProductID,
				ProductName: r.Product.Name,
				Quantity:    r.Quantity,
				UpdatedAt:   r.UpdatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		return c.JSON(res)
	}
}
