package repos

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/SuperscriptSystems/Quillio/internal/db"
	"github.com/SuperscriptSystems/Quillio/internal/logger"
	"github.com/SuperscriptSystems/Quillio/internal/types"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func testLogger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

func testDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		tb.Fatalf("auto migrate: %v", err)
	}
	return gdb
}

func seedUser(tb testing.TB, gdb *gorm.DB) *types.User {
	tb.Helper()
	u := &types.User{
		ID:           uuid.New(),
		Email:        fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		PasswordHash: "x",
	}
	if err := gdb.Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func seedCourse(tb testing.TB, gdb *gorm.DB, userID uuid.UUID) *types.Course {
	tb.Helper()
	c := &types.Course{
		ID:         uuid.New(),
		UserID:     userID,
		Title:      "course",
		CourseData: datatypes.JSON([]byte(`{"course_title":"course","units":[]}`)),
	}
	if err := gdb.Create(c).Error; err != nil {
		tb.Fatalf("seed course: %v", err)
	}
	return c
}

func TestUserRepoTokenCounter(t *testing.T) {
	gdb := testDB(t)
	ctx := context.Background()
	repo := NewUserRepo(gdb, testLogger(t))
	u := seedUser(t, gdb)

	if err := repo.AddTokensUsed(ctx, nil, u.ID, 10); err != nil {
		t.Fatalf("AddTokensUsed: %v", err)
	}
	if err := repo.AddTokensUsed(ctx, nil, u.ID, 32); err != nil {
		t.Fatalf("AddTokensUsed: %v", err)
	}
	if err := repo.AddTokensUsed(ctx, nil, u.ID, 0); err != nil {
		t.Fatalf("AddTokensUsed zero: %v", err)
	}

	rows, err := repo.GetByIDs(ctx, nil, []uuid.UUID{u.ID})
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetByIDs: err=%v len=%d", err, len(rows))
	}
	if rows[0].TokensUsed != 42 {
		t.Fatalf("TokensUsed = %d, want 42", rows[0].TokensUsed)
	}
}

func TestLessonRepoOrderingAndCounts(t *testing.T) {
	gdb := testDB(t)
	ctx := context.Background()
	repo := NewLessonRepo(gdb, testLogger(t))
	u := seedUser(t, gdb)
	c := seedCourse(t, gdb, u.ID)

	var lessons []*types.Lesson
	for i, title := range []string{"c", "a", "b"} {
		lessons = append(lessons, &types.Lesson{
			ID:          uuid.New(),
			CourseID:    c.ID,
			UnitTitle:   "u",
			LessonTitle: title,
			Position:    2 - i,
		})
	}
	if _, err := repo.Create(ctx, nil, lessons); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rows, err := repo.GetByCourseIDs(ctx, nil, []uuid.UUID{c.ID})
	if err != nil || len(rows) != 3 {
		t.Fatalf("GetByCourseIDs: err=%v len=%d", err, len(rows))
	}
	if rows[0].LessonTitle != "b" || rows[2].LessonTitle != "c" {
		t.Fatalf("order = %q %q %q", rows[0].LessonTitle, rows[1].LessonTitle, rows[2].LessonTitle)
	}

	if err := repo.UpdateFields(ctx, nil, rows[0].ID, map[string]any{"completed": true}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if n, err := repo.CountCompletedByCourseID(ctx, nil, c.ID); err != nil || n != 1 {
		t.Fatalf("CountCompletedByCourseID = %d, err=%v", n, err)
	}

	if err := repo.FullDeleteByCourseIDs(ctx, nil, []uuid.UUID{c.ID}); err != nil {
		t.Fatalf("FullDeleteByCourseIDs: %v", err)
	}
	if rows, err := repo.GetByCourseIDs(ctx, nil, []uuid.UUID{c.ID}); err != nil || len(rows) != 0 {
		t.Fatalf("after delete: err=%v len=%d", err, len(rows))
	}
}

func TestUnitTestResultRepoUpsert(t *testing.T) {
	gdb := testDB(t)
	ctx := context.Background()
	repo := NewUnitTestResultRepo(gdb, testLogger(t))
	u := seedUser(t, gdb)
	c := seedCourse(t, gdb, u.ID)

	first := &types.UnitTestResult{ID: uuid.New(), UserID: u.ID, CourseID: c.ID, UnitTitle: "u1", Score: 40}
	if err := repo.Upsert(ctx, nil, first); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	retake := &types.UnitTestResult{ID: uuid.New(), UserID: u.ID, CourseID: c.ID, UnitTitle: "u1", Score: 90}
	if err := repo.Upsert(ctx, nil, retake); err != nil {
		t.Fatalf("Upsert retake: %v", err)
	}

	rows, err := repo.GetByUserAndCourse(ctx, nil, u.ID, c.ID)
	if err != nil {
		t.Fatalf("GetByUserAndCourse: %v", err)
	}
	if len(rows) != 1 || rows[0].Score != 90 {
		t.Fatalf("rows = %d, score = %v", len(rows), rows)
	}
}

func TestCourseRepoSoftAndFullDelete(t *testing.T) {
	gdb := testDB(t)
	ctx := context.Background()
	repo := NewCourseRepo(gdb, testLogger(t))
	u := seedUser(t, gdb)

	c1 := seedCourse(t, gdb, u.ID)
	if err := repo.SoftDeleteByIDs(ctx, nil, []uuid.UUID{c1.ID}); err != nil {
		t.Fatalf("SoftDeleteByIDs: %v", err)
	}
	if rows, err := repo.GetByIDs(ctx, nil, []uuid.UUID{c1.ID}); err != nil || len(rows) != 0 {
		t.Fatalf("after soft delete: err=%v len=%d", err, len(rows))
	}

	c2 := seedCourse(t, gdb, u.ID)
	if err := repo.FullDeleteByIDs(ctx, nil, []uuid.UUID{c2.ID}); err != nil {
		t.Fatalf("FullDeleteByIDs: %v", err)
	}
	var n int64
	if err := gdb.Unscoped().Model(&types.Course{}).Where("id = ?", c2.ID).Count(&n).Error; err != nil || n != 0 {
		t.Fatalf("full delete left rows: n=%d err=%v", n, err)
	}
}
