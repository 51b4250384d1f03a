// Package dbtest provides migrated in-memory SQLite databases for tests.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"usertasks/internal/db"
)

// New opens a private in-memory database with the schema applied. It is
// closed when the test ends.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	gormDB, err := db.Open("sqlite", dsn, "silent")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Migrate(gormDB, false); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gormDB
}
