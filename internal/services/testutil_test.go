package services

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
		ID:                    uuid.New(),
		Email:                 fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		PasswordHash:          "x",
		Language:              "English",
		PreferredLessonLength: "Medium",
	}
	if err := gdb.Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func seedCourse(tb testing.TB, gdb *gorm.DB, user *types.User, data *types.CourseData) (*types.Course, []*types.Lesson) {
	tb.Helper()
	raw, err := data.JSON()
	if err != nil {
		tb.Fatalf("encode course data: %v", err)
	}
	c := &types.Course{
		ID:         uuid.New(),
		UserID:     user.ID,
		Title:      data.CourseTitle,
		Language:   user.Language,
		CourseData: datatypes.JSON(raw),
	}
	if err := gdb.Create(c).Error; err != nil {
		tb.Fatalf("seed course: %v", err)
	}
	lessons := data.LessonSkeletons(c.ID)
	if err := gdb.Create(&lessons).Error; err != nil {
		tb.Fatalf("seed lessons: %v", err)
	}
	return c, lessons
}

func twoUnitCourseData() *types.CourseData {
	return &types.CourseData{
		CourseTitle: "Photosynthesis Fundamentals",
		Units: []types.CourseUnit{
			{
				UnitTitle: "Light Reactions",
				Lessons: []types.LessonOutline{
					{LessonTitle: "Chlorophyll and Light", EstimatedTimeMinutes: 10},
					{LessonTitle: "The Electron Transport Chain", EstimatedTimeMinutes: 15},
				},
				Test: types.UnitTestOutline{TestTitle: "Light Reactions Test"},
			},
			{
				UnitTitle: "Dark Reactions",
				Lessons: []types.LessonOutline{
					{LessonTitle: "The Calvin Cycle", EstimatedTimeMinutes: 20},
				},
				Test: types.UnitTestOutline{TestTitle: "Dark Reactions Test"},
			},
		},
	}
}

// fakeClient scripts model behavior. GenerateText pops from the queue unless
// a respond hook is set; StreamText emits the configured chunks.
type fakeClient struct {
	mu sync.Mutex

	textQueue []string
	respond   func(prompt string, structured bool) (string, error)

	streamChunks []string
	streamErr    error

	imageURL string
	imageErr error

	tokensPerCall int

	textCalls   int
	streamCalls int
	imageCalls  int
	prompts     []string
}

func (f *fakeClient) GenerateText(ctx context.Context, prompt string, structured bool) (string, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textCalls++
	f.prompts = append(f.prompts, prompt)
	if f.respond != nil {
		out, err := f.respond(prompt, structured)
		return out, f.tokensPerCall, err
	}
	if len(f.textQueue) == 0 {
		return "", 0, fmt.Errorf("fake client: text queue empty for prompt %q", prompt)
	}
	out := f.textQueue[0]
	f.textQueue = f.textQueue[1:]
	return out, f.tokensPerCall, nil
}

func (f *fakeClient) StreamText(ctx context.Context, prompt string, onDelta func(string)) (string, int, error) {
	f.mu.Lock()
	f.streamCalls++
	f.prompts = append(f.prompts, prompt)
	chunks := f.streamChunks
	streamErr := f.streamErr
	f.mu.Unlock()

	var full string
	for _, ch := range chunks {
		full += ch
		if onDelta != nil {
			onDelta(ch)
		}
	}
	if streamErr != nil {
		return full, f.tokensPerCall, streamErr
	}
	return full, f.tokensPerCall, nil
}

func (f *fakeClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageCalls++
	if f.imageErr != nil {
		return "", f.imageErr
	}
	return f.imageURL, nil
}
