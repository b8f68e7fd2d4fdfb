package testutil

import (
	"testing"

	"notify-backend/internal/notification/domain"
	"notify-backend/internal/notification/repository"
	"notify-backend/internal/people"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens an in-memory sqlite database with every table migrated.
// The single connection keeps the in-memory database alive for the test.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("getting sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	models := append(repository.Models(), &domain.Message{}, &people.Person{})
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}

	t.Cleanup(func() {
		if err := sqlDB.Close(); err != nil {
			t.Errorf("closing test db: %v", err)
		}
	})

	return db
}
