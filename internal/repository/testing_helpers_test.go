package repository

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/lms-gamification/internal/models"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	// A single connection keeps every query on the same in-memory database.
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	db := &DB{gdb}
	if err := db.AutoMigrate(); err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func uintPtr(v uint) *uint { return &v }

// createTestUser creates a test user in the database.
func createTestUser(t *testing.T, db *DB, name string, branch, area, region uint) *models.User {
	t.Helper()

	user := &models.User{
		Name:     name,
		Email:    name + "@example.com",
		Role:     models.RoleLearner,
		BranchID: uintPtr(branch),
		AreaID:   uintPtr(area),
		RegionID: uintPtr(region),
	}
	if err := NewUserRepository(db).Create(context.Background(), user); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}
