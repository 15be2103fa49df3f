package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"taskboard-api/internal/auth"
	"taskboard-api/internal/database"
	"taskboard-api/internal/models"
)

// NewInMemoryDB creates an in-memory SQLite DB and runs migrations.
// The pool is pinned to one connection because every :memory: connection is a separate database.
func NewInMemoryDB() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
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

func MustDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewInMemoryDB()
	require.NoError(t, err)
	return db
}

// SeedUser inserts a user with password "password".
func SeedUser(t *testing.T, db *gorm.DB, id, email string, role models.Role) models.User {
	t.Helper()
	hash, err := auth.HashPassword("password")
	require.NoError(t, err)
	u := models.User{ID: id, Email: email, Name: id, Role: role, Password: hash}
	require.NoError(t, db.WithContext(context.Background()).Create(&u).Error)
	return u
}

// SeedTask inserts a todo task assigned to assigneeID with fixed dates.
func SeedTask(t *testing.T, db *gorm.DB, id, assigneeID string) models.Task {
	t.Helper()
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	task := models.Task{
		ID:                   id,
		Title:                "Task " + id,
		StartDate:            day,
		AssignDate:           day,
		ExpectedDeliveryDate: day.AddDate(0, 0, 7),
		AssigneeID:           assigneeID,
		Status:               models.StatusTodo,
		Priority:             models.PriorityMedium,
	}
	require.NoError(t, db.Create(&task).Error)
	return task
}
