// Package dbtest opens migrated in-memory databases for tests.
package dbtest

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"go_sitegen/internal/db"
	"go_sitegen/internal/model"
)

// Open returns a migrated in-memory database closed at test cleanup.
// The pool is pinned to one connection so every caller sees the same memory DB.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.Migrate(conn); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return conn
}

// CreateProject inserts a project row
func CreateProject(t testing.TB, conn *gorm.DB, userID int, slug string, status model.ProjectStatus) *model.Project {
	t.Helper()

	p := &model.Project{UserID: userID, Slug: slug, Name: slug, Status: status}
	if status.HasPublishedURL() {
		u := "https://" + slug + ".platform.example"
		p.PublishedURL = &u
	}
	if err := conn.Create(p).Error; err != nil {
		t.Fatalf("failed to create project %s: %v", slug, err)
	}
	return p
}
