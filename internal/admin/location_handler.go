package admin

import (
	"errors"
	"strings"

	"bakery-backend/internal/apperr"
	"bakery-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type LocationResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

type CreateLocationRequest struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Phone   *string `json:"phone"`
}

type UpdateLocationRequest struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
	Phone   *string `json:"phone"`
	Active  *bool   `json:"active"`
}

func toLocationResponse(l models.Location) LocationResponse {
	return LocationResponse{
		ID:        l.ID,
		Name:      l.Name,
		Address:   l.Address,
		Phone:     l.Phone,
		Active:    l.Active,
		CreatedAt: l.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// POST /api/admin/locations (admin only)
func CreateLocationHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateLocationRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Location name is required")
		}

		loc := models.Location{
			Name:    body.Name,
			Address: strings.TrimSpace(body.Address),
			Active:  true,
		}
		if body.Phone != nil {
			loc.Phone = strings.TrimSpace(*body.Phone)
		}

		if err := db.Create(&loc).Error; err != nil {
			if apperr.IsUniqueViolation(err) {
				return apperr.Conflictf("location %q already exists", loc.Name)
			}
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toLocationResponse(loc))
	}
}

// GET /api/locations lists active pickup locations; the admin route passes all=true.
func ListLocationsHandler(db *gorm.DB, all bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := db.Model(&models.Location{})
		if !all {
			dbq = dbq.Where("active = ?", true)
		}

		var locations []models.Location
		if err := dbq.Order("name asc").Find(&locations).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list locations")
		}

		res := make([]LocationResponse, 0, len(locations))
		for _, l := range locations {
			res = append(res, toLocationResponse(l))
		}
		return c.JSON(res)
	}
}

// PUT /api/admin/locations/:id (admin only)
func UpdateLocationHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid location id")
		}

		var loc models.Location
		if err := db.First(&loc, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Location not found")
			}
			return err
		}

		var body UpdateLocationRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		updates := map[string]any{}
		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Location name cannot be empty")
			}
			updates["name"] = name
		}
		if body.Address != nil {
			updates["address"] = strings.TrimSpace(*body.Address)
		}
		if body.Phone != nil {
			updates["phone"] = strings.TrimSpace(*body.Phone)
		}
		if body.Active != nil {
			updates["active"] = *body.Active
		}

		if len(updates) > 0 {
			if err := db.Model(&loc).Updates(updates).Error; err != nil {
				if apperr.IsUniqueViolation(err) {
					return apperr.Conflictf("location name already in use")
				}
				return err
			}
		}
		if err := db.First(&loc, loc.ID).Error; err != nil {
			return err
		}
		return c.JSON(toLocationResponse(loc))
	}
}
