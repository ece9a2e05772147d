package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"bakery-backend/internal/events"
	"bakery-backend/internal/models"

	"gorm.io/gorm"
)

type LogOptions struct {
	UserID      *uint
	UserName    string
	Type        models.ActivityType
	EntityType  string
	EntityID    uint
	Description string
	Data        any
}

func WriteLog(db *gorm.DB, opts LogOptions) error {
	// jsonb rejects the empty string, so absent data is stored as JSON null
	data := "null"
	if opts.Data != nil {
		b, err := json.Marshal(opts.Data)
		if err != nil {
			return fmt.Errorf("encode activity data for %s %d: %w", opts.EntityType, opts.EntityID, err)
		}
		data = string(b)
	}

	entry := models.ActivityLog{
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		Type:        opts.Type,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Description: opts.Description,
		Data:        data,
	}
	if err := db.Create(&entry).Error; err != nil {
		return fmt.Errorf("write activity log: %w", err)
	}
	return nil
}

// Subscriber records every bus event as an activity log entry.
func Subscriber(db *gorm.DB) events.Handler {
	return func(ctx context.Context, evt events.Event) error {
		return WriteLog(db.WithContext(ctx), LogOptions{
			UserID:      evt.ActorID,
			UserName:    evt.ActorName,
			Type:        evt.Name,
			EntityType:  evt.EntityType,
			EntityID:    evt.EntityID,
			Description: evt.Summary,
			Data:        evt.Payload,
		})
	}
}
