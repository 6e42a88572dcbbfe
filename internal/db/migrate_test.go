package db

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/SuperscriptSystems/Quillio/internal/types"
)

// The schema must migrate on the sqlite databases the test suites run
// against, so model tags cannot carry Postgres-only default expressions.
// IDs are assigned in application code at every creation site.
func TestAutoMigrateOnSQLite(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	u := &types.User{ID: uuid.New(), Email: "migrate@example.com", PasswordHash: "x"}
	if err := gdb.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	var got types.User
	if err := gdb.First(&got, "id = ?", u.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("id = %s, want %s", got.ID, u.ID)
	}
}
