// Package testutil provides utilities for testing.
package testutil

import (
	"path/filepath"
	"testing"

	"bakery-backend/internal/database"
	"bakery-backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a migrated SQLite database in a per-test temporary directory.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := OpenDB(filepath.Join(t.TempDir(), "bakery.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// OpenDB opens and migrates a SQLite database file. Callers close it.
func OpenDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	// one connection serializes transactions the way row locks do on postgres
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func CreateIngredient(t *testing.T, db *gorm.DB, name, unit, onHand, threshold string) models.Ingredient {
	t.Helper()
	ing := models.Ingredient{
		Name:             name,
		Unit:             unit,
		OnHand:           Dec(onHand),
		ReorderThreshold: Dec(threshold),
	}
	if err := db.Create(&ing).Error; err != nil {
		t.Fatalf("failed to create ingredient %s: %v", name, err)
	}
	return ing
}

func CreateProduct(t *testing.T, db *gorm.DB, name, price string) models.Product {
	t.Helper()
	p := models.Product{Name: name, Price: Dec(price), Active: true}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("failed to create product %s: %v", name, err)
	}
	return p
}

// DeactivateProduct is needed because gorm skips zero-valued bools on create.
func DeactivateProduct(t *testing.T, db *gorm.DB, p *models.Product) {
	t.Helper()
	if err := db.Model(p).Update("active", false).Error; err != nil {
		t.Fatalf("failed to deactivate product %s: %v", p.Name, err)
	}
}

func AddBOM(t *testing.T, db *gorm.DB, productID, ingredientID uint, perUnit string) {
	t.Helper()
	entry := models.BillOfMaterial{ProductID: productID, IngredientID: ingredientID, QuantityPerUnit: Dec(perUnit)}
	if err := db.Create(&entry).Error; err != nil {
		t.Fatalf("failed to create bom entry: %v", err)
	}
}

// OnHand re-reads an ingredient's quantity straight from the table.
func OnHand(t *testing.T, db *gorm.DB, ingredientID uint) decimal.Decimal {
	t.Helper()
	var ing models.Ingredient
	if err := db.First(&ing, ingredientID).Error; err != nil {
		t.Fatalf("failed to load ingredient %d: %v", ingredientID, err)
	}
	return ing.OnHand
}
