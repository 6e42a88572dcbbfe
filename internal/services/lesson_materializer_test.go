package services

import (
	"context"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/SuperscriptSystems/Quillio/internal/repos"
	"github.com/SuperscriptSystems/Quillio/internal/types"
)

func newLessonFixture(t *testing.T, client *fakeClient) (LessonService, *types.User, *gorm.DB, repos.LessonRepo) {
	t.Helper()
	gdb := testDB(t)
	log := testLogger(t)
	user := seedUser(t, gdb)

	userRepo := repos.NewUserRepo(gdb, log)
	courseRepo := repos.NewCourseRepo(gdb, log)
	lessonRepo := repos.NewLessonRepo(gdb, log)
	svc := NewLessonService(gdb, log, client, userRepo, courseRepo, lessonRepo)
	return svc, user, gdb, lessonRepo
}

func TestMaterializeStreamsRendersAndPersists(t *testing.T) {
	client := &fakeClient{
		streamChunks: []string{"## Chlorophyll\n\nPlants ", "absorb light.\n\n", `[IMAGE_PROMPT: "a green leaf in sunlight"]` + "\n"},
		imageURL:     "https://img.example/leaf.png",
	}
	svc, user, gdb, lessonRepo := newLessonFixture(t, client)
	ctx := context.Background()

	_, lessons := seedCourse(t, gdb, user, twoUnitCourseData())
	first := lessons[0] // Chlorophyll and Light, unit Light Reactions

	var deltas []string
	lesson, err := svc.Materialize(ctx, user, first.ID, func(d string) { deltas = append(deltas, d) })
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(deltas) != 3 {
		t.Fatalf("deltas = %d, want the raw stream chunks", len(deltas))
	}
	if !lesson.Completed {
		t.Fatal("lesson not marked completed")
	}
	body := lesson.HTMLContent
	if !strings.Contains(body, "<h2>Chlorophyll</h2>") {
		t.Fatalf("markdown not rendered: %q", body)
	}
	if !strings.Contains(body, `<img src="https://img.example/leaf.png"`) {
		t.Fatalf("image prompt not substituted: %q", body)
	}
	if !strings.Contains(body, "Next up: The Electron Transport Chain") {
		t.Fatalf("next-up link missing: %q", body)
	}

	stored, err := lessonRepo.GetByID(ctx, nil, first.ID)
	if err != nil || stored == nil {
		t.Fatalf("reload lesson: %v", err)
	}
	if stored.HTMLContent != body || !stored.Completed {
		t.Fatalf("persisted state mismatch: %+v", stored)
	}
	if n, err := svc.CompletedCount(ctx, first.CourseID); err != nil || n != 1 {
		t.Fatalf("CompletedCount = %d, err=%v", n, err)
	}
}

func TestMaterializeIsIdempotent(t *testing.T) {
	client := &fakeClient{streamChunks: []string{"Some content."}}
	svc, user, gdb, _ := newLessonFixture(t, client)
	ctx := context.Background()

	_, lessons := seedCourse(t, gdb, user, twoUnitCourseData())
	target := lessons[0]

	firstPass, err := svc.Materialize(ctx, user, target.ID, nil)
	if err != nil {
		t.Fatalf("first Materialize: %v", err)
	}
	if client.streamCalls != 1 {
		t.Fatalf("streamCalls = %d", client.streamCalls)
	}

	var replayed []string
	secondPass, err := svc.Materialize(ctx, user, target.ID, func(d string) { replayed = append(replayed, d) })
	if err != nil {
		t.Fatalf("second Materialize: %v", err)
	}
	// Replay: one chunk, the stored body, and no new model traffic.
	if client.streamCalls != 1 || client.textCalls != 0 || client.imageCalls != 0 {
		t.Fatalf("model was called on replay: stream=%d text=%d image=%d",
			client.streamCalls, client.textCalls, client.imageCalls)
	}
	if len(replayed) != 1 || replayed[0] != firstPass.HTMLContent {
		t.Fatalf("replay mismatch: %d chunks", len(replayed))
	}
	if secondPass.HTMLContent != firstPass.HTMLContent {
		t.Fatal("body changed on replay")
	}
}

func TestMaterializeImageFailureFallsBackToItalic(t *testing.T) {
	client := &fakeClient{
		streamChunks: []string{`Intro. [IMAGE_PROMPT: "diagram of the Calvin cycle"] Outro.`},
		imageErr:     errTimeout,
	}
	svc, user, gdb, _ := newLessonFixture(t, client)

	_, lessons := seedCourse(t, gdb, user, twoUnitCourseData())
	lesson, err := svc.Materialize(context.Background(), user, lessons[0].ID, nil)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if !strings.Contains(lesson.HTMLContent, `<i>[Image Prompt: "diagram of the Calvin cycle"]</i>`) {
		t.Fatalf("italic fallback missing: %q", lesson.HTMLContent)
	}
	if strings.Contains(lesson.HTMLContent, "IMAGE_PROMPT") {
		t.Fatalf("raw marker left in body: %q", lesson.HTMLContent)
	}
}

func TestMaterializeStreamFailurePersistsErrorBody(t *testing.T) {
	client := &fakeClient{
		streamChunks: []string{"partial "},
		streamErr:    errTimeout,
	}
	svc, user, gdb, lessonRepo := newLessonFixture(t, client)
	ctx := context.Background()

	_, lessons := seedCourse(t, gdb, user, twoUnitCourseData())
	target := lessons[0]

	if _, err := svc.Materialize(ctx, user, target.ID, nil); err == nil {
		t.Fatal("expected stream error")
	}
	stored, err := lessonRepo.GetByID(ctx, nil, target.ID)
	if err != nil || stored == nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.HTMLContent != errorBody {
		t.Fatalf("stored body = %q, want error body", stored.HTMLContent)
	}
	if stored.Completed {
		t.Fatal("failed lesson must not be completed")
	}

	// The error body does not count as materialized: a retry regenerates.
	client.mu.Lock()
	client.streamErr = nil
	client.streamChunks = []string{"Recovered content."}
	client.mu.Unlock()

	recovered, err := svc.Materialize(ctx, user, target.ID, nil)
	if err != nil {
		t.Fatalf("retry Materialize: %v", err)
	}
	if client.streamCalls != 2 {
		t.Fatalf("streamCalls = %d, want 2", client.streamCalls)
	}
	if !strings.Contains(recovered.HTMLContent, "Recovered content.") || !recovered.Completed {
		t.Fatalf("retry did not regenerate: %+v", recovered)
	}
}

func TestMaterializeRejectsConcurrentStream(t *testing.T) {
	client := &fakeClient{streamChunks: []string{"content"}}
	svc, user, gdb, _ := newLessonFixture(t, client)

	_, lessons := seedCourse(t, gdb, user, twoUnitCourseData())
	target := lessons[0]

	impl := svc.(*lessonService)
	if !impl.acquire(target.ID) {
		t.Fatal("guard should be free")
	}
	defer impl.release(target.ID)

	if _, err := svc.Materialize(context.Background(), user, target.ID, nil); err != ErrStreamInFlight {
		t.Fatalf("err = %v, want ErrStreamInFlight", err)
	}
}

func TestNextUpLinkUnitBoundaryAndLanguage(t *testing.T) {
	data := twoUnitCourseData()

	lastInUnit := &types.Lesson{UnitTitle: "Light Reactions", LessonTitle: "The Electron Transport Chain"}
	link := nextUpLink(data, lastInUnit, "English")
	if !strings.Contains(link, "Next up: Light Reactions Test") {
		t.Fatalf("unit boundary link = %q", link)
	}

	ru := nextUpLink(data, lastInUnit, "Русский")
	if !strings.Contains(ru, "Далее: Light Reactions Test") {
		t.Fatalf("russian link = %q", ru)
	}

	mid := &types.Lesson{UnitTitle: "Light Reactions", LessonTitle: "Chlorophyll and Light"}
	if link := nextUpLink(data, mid, "English"); !strings.Contains(link, "Next up: The Electron Transport Chain") {
		t.Fatalf("mid-unit link = %q", link)
	}
}
