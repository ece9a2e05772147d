package activity

import (
	"fmt"

	"bakery-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ActivityLogResponse struct {
	ID          uint                `json:"id"`
	CreatedAt   string              `json:"created_at"`
	UserID      *uint               `json:"user_id"`
	UserName    string              `json:"user_name"`
	Type        models.ActivityType `json:"type"`
	EntityType  string              `json:"entity_type"`
	EntityID    uint                `json:"entity_id"`
	Description string              `json:"description"`
	Data        string              `json:"data"`
}

// GET /api/admin/activity?type=batch.completed&entity_type=batch&entity_id=1&limit=100
func ListActivityHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := db.WithContext(c.UserContext()).Model(&models.ActivityLog{})

		if t := c.Query("type"); t != "" {
			dbq = dbq.Where("type = ?", t)
		}
		if et := c.Query("entity_type"); et != "" {
			dbq = dbq.Where("entity_type = ?", et)
		}
		if eidStr := c.Query("entity_id"); eidStr != "" {
			var eid uint
			if _, err := fmt.Sscan(eidStr, &eid); err != nil || eid == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "entity_id must be a positive integer")
			}
			dbq = dbq.Where("entity_id = ?", eid)
		}

		limit := c.QueryInt("limit", 100)
		if limit <= 0 || limit > 500 {
			limit = 100
		}

		var logs []models.ActivityLog
		if err := dbq.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list activity")
		}

		resp := make([]ActivityLogResponse, 0, len(logs))
		for _, l := range logs {
			resp = append(resp, ActivityLogResponse{
				ID:          l.ID,
				CreatedAt:   l.CreatedAt.Format("2006-01-02 15:04:05"),
				UserID:      l.UserID,
				UserName:    l.UserName,
				Type:        l.Type,
				EntityType:  l.EntityType,
				EntityID:    l.EntityID,
				Description: l.Description,
				Data:        l.Data,
			})
		}
		return c.JSON(resp)
	}
}
