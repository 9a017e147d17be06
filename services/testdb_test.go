package services

import (
	"fmt"
	"sync/atomic"
	"testing"

	"token-pool-system/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBCounter atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:servicetest%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	// A single connection keeps the in-memory database alive for the whole
	// test and serializes sqlite access under the concurrency tests.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.IntegrityToken{},
		&models.Usage{},
		&models.Trip{},
		&models.ErrorReport{},
		&models.BikeRating{},
		&models.Config{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}
