package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/SuperscriptSystems/Quillio/internal/repos"
	"github.com/SuperscriptSystems/Quillio/internal/types"
)

// Full pipeline: topic -> diagnostic test -> answers -> evaluation ->
// assessment -> score -> course -> first lesson -> unit test.
func TestPhotosynthesisEndToEnd(t *testing.T) {
	client := &fakeClient{
		respond: func(prompt string, structured bool) (string, error) {
			switch {
			case strings.Contains(prompt, "diagnostic test"):
				return threeQuestionTest, nil
			case strings.Contains(prompt, "Evaluate the following answers"):
				return `{"assessments": [{"id": 1, "assessment": "Correct."}, {"id": 2, "assessment": "Correct."}, {"id": 3, "assessment": "Correct."}]}`, nil
			case strings.Contains(prompt, "assessing the student"):
				return "You understand the fundamentals of photosynthesis well.", nil
			case strings.Contains(prompt, "rate their knowledge"):
				return "80", nil
			case strings.Contains(prompt, "Design a personalized course"):
				return "```json\n" + photosynthesisCourseJSON + "\n```", nil
			case strings.Contains(prompt, "catchier"):
				return "Photosynthesis, Illuminated", nil
			case strings.Contains(prompt, "Write a test for the unit"):
				return threeQuestionTest, nil
			default:
				return "", errTimeout
			}
		},
		streamChunks:  []string{"# Light\n\nLeaves ", "capture photons."},
		tokensPerCall: 5,
	}

	gdb := testDB(t)
	log := testLogger(t)
	user := seedUser(t, gdb)
	ctx := context.Background()

	userRepo := repos.NewUserRepo(gdb, log)
	courseRepo := repos.NewCourseRepo(gdb, log)
	lessonRepo := repos.NewLessonRepo(gdb, log)
	resultRepo := repos.NewUnitTestResultRepo(gdb, log)
	shareRepo := repos.NewCourseShareRepo(gdb, log)
	sessions := NewMemoryTestSessionStore()

	assess := NewAssessmentService(gdb, log, client, sessions, userRepo, courseRepo, lessonRepo, resultRepo)
	courses := NewCourseService(gdb, log, client, userRepo, courseRepo, lessonRepo, resultRepo, shareRepo)
	lessonsSvc := NewLessonService(gdb, log, client, userRepo, courseRepo, lessonRepo)

	if _, err := assess.StartAssessment(ctx, user, "Photosynthesis", "high school biology"); err != nil {
		t.Fatalf("StartAssessment: %v", err)
	}
	for _, answer := range []string{"Chlorophyll", "Thylakoid", "Carbon dioxide"} {
		if _, err := assess.SubmitAnswer(ctx, user.ID, types.TestKindAssessment, answer); err != nil {
			t.Fatalf("SubmitAnswer: %v", err)
		}
	}
	snap, err := assess.CompleteAssessment(ctx, user)
	if err != nil {
		t.Fatalf("CompleteAssessment: %v", err)
	}
	if snap.Score != 80 {
		t.Fatalf("score = %d", snap.Score)
	}

	course, err := courses.CreateCourse(ctx, user, snap.Topic, snap.Assessment)
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	if course.Title != "Photosynthesis, Illuminated" {
		t.Fatalf("course title = %q", course.Title)
	}

	rows, err := lessonRepo.GetByCourseIDs(ctx, nil, []uuid.UUID{course.ID})
	if err != nil || len(rows) != 3 {
		t.Fatalf("lessons: err=%v len=%d", err, len(rows))
	}

	lesson, err := lessonsSvc.Materialize(ctx, user, rows[0].ID, nil)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if !strings.Contains(lesson.HTMLContent, "capture photons") {
		t.Fatalf("lesson body = %q", lesson.HTMLContent)
	}

	// The unit test stays gated until the whole unit is done.
	if _, err := assess.StartUnitTest(ctx, user, course.ID, "Light Reactions"); err == nil {
		t.Fatal("unit test should be gated")
	}
	if _, err := lessonsSvc.Materialize(ctx, user, rows[1].ID, nil); err != nil {
		t.Fatalf("Materialize second lesson: %v", err)
	}
	if _, err := assess.StartUnitTest(ctx, user, course.ID, "Light Reactions"); err != nil {
		t.Fatalf("StartUnitTest: %v", err)
	}
	for _, answer := range []string{"Chlorophyll", "Thylakoid", "Carbon dioxide"} {
		if _, err := assess.SubmitAnswer(ctx, user.ID, types.TestKindUnit, answer); err != nil {
			t.Fatalf("SubmitAnswer unit: %v", err)
		}
	}
	result, _, err := assess.FinishUnitTest(ctx, user)
	if err != nil {
		t.Fatalf("FinishUnitTest: %v", err)
	}
	if result.Score != 100 {
		t.Fatalf("unit score = %d", result.Score)
	}

	// Every model call was accounted against the user.
	reloaded, err := userRepo.GetByIDs(ctx, nil, []uuid.UUID{user.ID})
	if err != nil || len(reloaded) != 1 {
		t.Fatalf("reload user: %v", err)
	}
	if reloaded[0].TokensUsed == 0 {
		t.Fatal("token usage was not recorded")
	}
}
