package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/SuperscriptSystems/Quillio/internal/prompts"
	"github.com/SuperscriptSystems/Quillio/internal/repos"
	"github.com/SuperscriptSystems/Quillio/internal/types"
)

func TestIsTitleEdit(t *testing.T) {
	cases := []struct {
		instruction string
		want        bool
	}{
		{"Change the title to something shorter", true},
		{"Give it a better name", true},
		{"Please RENAME this course", true},
		{"call this Advanced Biology", true},
		{"Add a unit about cellular respiration", false},
		{"Remove the last lesson", false},
		// Known quirk of substring routing: mentions of renaming anything
		// route to the title path.
		{"rename the third unit", true},
	}
	for _, tc := range cases {
		if got := prompts.IsTitleEdit(tc.instruction); got != tc.want {
			t.Fatalf("IsTitleEdit(%q) = %v, want %v", tc.instruction, got, tc.want)
		}
	}
}

func newEditorFixture(t *testing.T, client *fakeClient) (EditorService, *types.User, *gorm.DB, repos.LessonRepo) {
	t.Helper()
	gdb := testDB(t)
	log := testLogger(t)
	user := seedUser(t, gdb)

	userRepo := repos.NewUserRepo(gdb, log)
	courseRepo := repos.NewCourseRepo(gdb, log)
	lessonRepo := repos.NewLessonRepo(gdb, log)
	svc := NewEditorService(gdb, log, client, userRepo, courseRepo, lessonRepo)
	return svc, user, gdb, lessonRepo
}

func singleUnitCourseData(lessonTitles ...string) *types.CourseData {
	outlines := make([]types.LessonOutline, 0, len(lessonTitles))
	for _, title := range lessonTitles {
		outlines = append(outlines, types.LessonOutline{LessonTitle: title, EstimatedTimeMinutes: 10})
	}
	return &types.CourseData{
		CourseTitle: "Biology Basics",
		Units: []types.CourseUnit{{
			UnitTitle: "Unit One",
			Lessons:   outlines,
			Test:      types.UnitTestOutline{TestTitle: "Unit One Test"},
		}},
	}
}

func TestEditTitleOnlyTouchesTitle(t *testing.T) {
	client := &fakeClient{textQueue: []string{"Biology for Everyone"}}
	svc, user, gdb, lessonRepo := newEditorFixture(t, client)
	ctx := context.Background()

	course, before := seedCourse(t, gdb, user, singleUnitCourseData("A", "B", "C"))

	edited, err := svc.Edit(ctx, user, course.ID, "change the title to something friendlier")
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if edited.Title != "Biology for Everyone" {
		t.Fatalf("title = %q", edited.Title)
	}

	var data types.CourseData
	if err := decodeJSONColumn(edited.CourseData, &data); err != nil {
		t.Fatalf("decode course_data: %v", err)
	}
	if data.CourseTitle != "Biology for Everyone" {
		t.Fatalf("course_data title = %q", data.CourseTitle)
	}
	if len(data.Units) != 1 || len(data.Units[0].Lessons) != 3 {
		t.Fatalf("structure changed on a title edit: %+v", data)
	}

	after, err := lessonRepo.GetByCourseIDs(ctx, nil, []uuid.UUID{course.ID})
	if err != nil {
		t.Fatalf("GetByCourseIDs: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("lesson rows changed on a title edit: %d -> %d", len(before), len(after))
	}
}

func TestEditTitleRejectsOverlongTitle(t *testing.T) {
	client := &fakeClient{textQueue: []string{strings.Repeat("long ", 20)}}
	svc, user, gdb, _ := newEditorFixture(t, client)

	course, _ := seedCourse(t, gdb, user, singleUnitCourseData("A"))
	if _, err := svc.Edit(context.Background(), user, course.ID, "rename it"); err == nil {
		t.Fatal("expected error for overlong title")
	}

	var reloaded types.Course
	if err := gdb.First(&reloaded, "id = ?", course.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Title != "Biology Basics" {
		t.Fatalf("title changed despite rejection: %q", reloaded.Title)
	}
}

func TestStructuralEditReconcilesLessons(t *testing.T) {
	replacement := `{
		"course_title": "Biology Basics",
		"units": [{
			"unit_title": "Unit One",
			"lessons": [
				{"lesson_title": "B", "estimated_time_minutes": 10},
				{"lesson_title": "C", "estimated_time_minutes": 10},
				{"lesson_title": "D", "estimated_time_minutes": 10}
			],
			"test": {"test_title": "Unit One Test"}
		}]
	}`
	client := &fakeClient{textQueue: []string{replacement}}
	svc, user, gdb, lessonRepo := newEditorFixture(t, client)
	ctx := context.Background()

	course, before := seedCourse(t, gdb, user, singleUnitCourseData("A", "B", "C"))

	// B has a body and progress that must survive the edit.
	var bID uuid.UUID
	for _, l := range before {
		if l.LessonTitle == "B" {
			bID = l.ID
			if err := lessonRepo.UpdateFields(ctx, nil, l.ID, map[string]any{
				"html_content": "<p>B body</p>", "completed": true,
			}); err != nil {
				t.Fatalf("seed B body: %v", err)
			}
		}
	}

	if _, err := svc.Edit(ctx, user, course.ID, "replace lesson A with a new lesson D at the end"); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	after, err := lessonRepo.GetByCourseIDs(ctx, nil, []uuid.UUID{course.ID})
	if err != nil {
		t.Fatalf("GetByCourseIDs: %v", err)
	}
	if len(after) != 3 {
		t.Fatalf("len(after) = %d, want 3", len(after))
	}
	wantOrder := []string{"B", "C", "D"}
	for i, l := range after {
		if l.LessonTitle != wantOrder[i] {
			t.Fatalf("after[%d] = %q, want %q", i, l.LessonTitle, wantOrder[i])
		}
		if l.Position != i {
			t.Fatalf("after[%d].Position = %d", i, l.Position)
		}
	}

	for _, l := range after {
		switch l.LessonTitle {
		case "B":
			if l.ID != bID {
				t.Fatal("B was recreated instead of kept")
			}
			if l.HTMLContent != "<p>B body</p>" || !l.Completed {
				t.Fatalf("B lost its body or progress: %+v", l)
			}
		case "D":
			if l.HTMLContent != "" || l.Completed {
				t.Fatalf("new lesson D should be an empty skeleton: %+v", l)
			}
		}
	}
}

func TestStructuralEditFailureLeavesCourseUntouched(t *testing.T) {
	client := &fakeClient{textQueue: []string{"sorry, no JSON today"}}
	svc, user, gdb, lessonRepo := newEditorFixture(t, client)
	ctx := context.Background()

	course, before := seedCourse(t, gdb, user, singleUnitCourseData("A", "B"))

	if _, err := svc.Edit(ctx, user, course.ID, "add more lessons"); err == nil {
		t.Fatal("expected error for malformed replacement document")
	}

	after, err := lessonRepo.GetByCourseIDs(ctx, nil, []uuid.UUID{course.ID})
	if err != nil {
		t.Fatalf("GetByCourseIDs: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("lessons changed after failed edit: %d -> %d", len(before), len(after))
	}
}
