package models

import "time"

type ActivityType string

const (
	ActivityBatchCompleted     ActivityType = "batch.completed"
	ActivityBatchStatusChanged ActivityType = "batch.status_changed"
	ActivityOrderCreated       ActivityType = "order.created"
	ActivityOrderApproved      ActivityType = "order.approved"
	ActivityOrderCancelled     ActivityType = "order.cancelled"
	ActivityOrderStatusChanged ActivityType = "order.status_changed"
	ActivityOrderInvoiceRetry  ActivityType = "order.invoice_retry"
	ActivityIngredientAdjusted ActivityType = "ingredient.adjusted"
	ActivityBOMUpdated         ActivityType = "bom.updated"
)

type ActivityLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// Who did it; nil for storefront customers and background work.
	UserID   *uint  `json:"user_id"`
	UserName string `gorm:"size:100" json:"user_name"`

	Type       ActivityType `gorm:"size:40;index" json:"type"`
	EntityType string       `gorm:"size:50;index" json:"entity_type"`
	EntityID   uint         `gorm:"index" json:"entity_id"`

	Description string `gorm:"size:255" json:"description"`
	Data        string `gorm:"type:jsonb" json:"data"`
}
