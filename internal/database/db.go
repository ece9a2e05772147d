package database

import (
	"fmt"

	"bakery-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const InvoiceCounterName = "invoice"

// Open connects to Postgres. Duplicate-key errors are translated to gorm.ErrDuplicatedKey.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

// Migrate creates or updates every table and makes sure the invoice counter row exists.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Location{},
		&models.Ingredient{},
		&models.InventoryAdjustment{},
		&models.Product{},
		&models.BillOfMaterial{},
		&models.Batch{},
		&models.BatchItem{},
		&models.FreezerStock{},
		&models.Order{},
		&models.OrderItem{},
		&models.Invoice{},
		&models.InvoiceItem{},
		&models.InvoiceCounter{},
		&models.ActivityLog{},
	)
	if err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	counter := models.InvoiceCounter{Name: InvoiceCounterName}
	if err := db.Where("name = ?", InvoiceCounterName).FirstOrCreate(&counter).Error; err != nil {
		return fmt.Errorf("invoice counter: %w", err)
	}
	return nil
}
