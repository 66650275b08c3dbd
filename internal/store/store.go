// Package store persists rooms and messages on sqlite via gorm.
package store

import (
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/parleychat/parley/internal/domain"
)

// ErrNotFound is returned when a room or message does not exist.
var ErrNotFound = errors.New("not found")

// Open opens the database at path and runs migrations. Use ":memory:" in
// tests.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&domain.Room{}, &domain.Message{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func totalPages(total int64, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
