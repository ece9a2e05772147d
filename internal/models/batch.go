package models

import "time"

type BatchStatus string

const (
	BatchPlanned    BatchStatus = "planned"
	BatchInProgress BatchStatus = "in_progress"
	BatchCompleted  BatchStatus = "completed"
	BatchCancelled  BatchStatus = "cancelled"
)

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchPlanned:    {BatchInProgress, BatchCompleted, BatchCancelled},
	BatchInProgress: {BatchCompleted},
}

func ParseBatchStatus(s string) (BatchStatus, bool) {
	switch st := BatchStatus(s); st {
	case BatchPlanned, BatchInProgress, BatchCompleted, BatchCancelled:
		return st, true
	}
	return "", false
}

// CanTransitionTo reports whether s may move to next. completed and cancelled are terminal.
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	for _, allowed := range batchTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Batch: production run of one or more products in a shift.
type Batch struct {
	ID          uint        `gorm:"primaryKey"`
	BatchDate   time.Time   `gorm:"index;not null"`
	Shift       string      `gorm:"size:30"`
	Notes       string      `gorm:"size:500"`
	Status      BatchStatus `gorm:"size:20;not null;index;default:planned"`
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Items []BatchItem `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE"`
}

type BatchItem struct {
	ID        uint `gorm:"primaryKey"`
	BatchID   uint `gorm:"index;not null"`
	ProductID uint `gorm:"index;not null"`
	Product   Product
	Quantity  int `gorm:"not null"` // finished units to produce
	Position  int `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
