package services

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/SuperscriptSystems/Quillio/internal/ai"
	"github.com/SuperscriptSystems/Quillio/internal/jsonextract"
	"github.com/SuperscriptSystems/Quillio/internal/logger"
	"github.com/SuperscriptSystems/Quillio/internal/prompts"
	"github.com/SuperscriptSystems/Quillio/internal/repos"
	"github.com/SuperscriptSystems/Quillio/internal/types"
)

type EditorService interface {
	// Edit applies a natural-language instruction to a course. Instructions
	// mentioning the title route to a title-only change; everything else goes
	// through a full structural rewrite with lesson reconciliation. All
	// persistence happens in one transaction; a failed model round leaves the
	// course untouched.
	Edit(ctx context.Context, user *types.User, courseID uuid.UUID, instruction string) (*types.Course, error)
}

type editorService struct {
	db     *gorm.DB
	log    *logger.Logger
	client ai.Client

	userRepo   repos.UserRepo
	courseRepo repos.CourseRepo
	lessonRepo repos.LessonRepo
}

func NewEditorService(
	db *gorm.DB,
	baseLog *logger.Logger,
	client ai.Client,
	userRepo repos.UserRepo,
	courseRepo repos.CourseRepo,
	lessonRepo repos.LessonRepo,
) EditorService {
	return &editorService{
		db:         db,
		log:        baseLog.With("service", "EditorService"),
		client:     client,
		userRepo:   userRepo,
		courseRepo: courseRepo,
		lessonRepo: lessonRepo,
	}
}

func (s *editorService) Edit(ctx context.Context, user *types.User, courseID uuid.UUID, instruction string) (*types.Course, error) {
	course, err := s.courseRepo.GetByID(ctx, nil, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil || course.UserID != user.ID {
		return nil, fmt.Errorf("course not found")
	}

	if prompts.IsTitleEdit(instruction) {
		return s.editTitle(ctx, user, course, instruction)
	}
	return s.editStructure(ctx, user, course, instruction)
}

func (s *editorService) editTitle(ctx context.Context, user *types.User, course *types.Course, instruction string) (*types.Course, error) {
	raw, tokens, err := s.client.GenerateText(ctx, prompts.BuildTitleEditPrompt(prompts.TitleEditParams{
		CurrentTitle: course.Title,
		Instruction:  instruction,
		Language:     course.Language,
	}), false)
	s.addTokens(ctx, user.ID, tokens)
	if err != nil {
		return nil, fmt.Errorf("edit title: %w", err)
	}

	title := stripQuotes(raw)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLen {
		return nil, fmt.Errorf("edit title: model returned unusable title %q", truncate(raw, 80))
	}

	data, err := courseDataOf(course)
	if err != nil {
		return nil, err
	}
	data.CourseTitle = title
	rawData, err := data.JSON()
	if err != nil {
		return nil, fmt.Errorf("encode course data: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.courseRepo.UpdateFields(ctx, tx, course.ID, map[string]any{
			"title":       title,
			"course_data": datatypes.JSON(rawData),
		})
	})
	if err != nil {
		return nil, err
	}

	course.Title = title
	course.CourseData = datatypes.JSON(rawData)
	s.log.Info("course title edited", "course_id", course.ID, "title", title)
	return course, nil
}

func (s *editorService) editStructure(ctx context.Context, user *types.User, course *types.Course, instruction string) (*types.Course, error) {
	raw, tokens, err := s.client.GenerateText(ctx, prompts.BuildStructureEditPrompt(prompts.StructureEditParams{
		CourseDataJSON: string(course.CourseData),
		Instruction:    instruction,
		Language:       course.Language,
	}), true)
	s.addTokens(ctx, user.ID, tokens)
	if err != nil {
		return nil, fmt.Errorf("edit course: %w", err)
	}

	doc, err := jsonextract.Extract(raw)
	if err != nil {
		return nil, fmt.Errorf("edit course: %w", err)
	}
	data, err := types.ParseCourseData(doc)
	if err != nil {
		return nil, fmt.Errorf("edit course: %w", err)
	}
	rawData, err := data.JSON()
	if err != nil {
		return nil, fmt.Errorf("encode course data: %w", err)
	}

	existing, err := s.lessonRepo.GetByCourseIDs(ctx, nil, []uuid.UUID{course.ID})
	if err != nil {
		return nil, err
	}
	keep, create, remove := reconcileLessons(course.ID, data, existing)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.courseRepo.UpdateFields(ctx, tx, course.ID, map[string]any{
			"title":       data.CourseTitle,
			"course_data": datatypes.JSON(rawData),
		}); err != nil {
			return err
		}
		if err := s.lessonRepo.FullDeleteByIDs(ctx, tx, remove); err != nil {
			return err
		}
		if _, err := s.lessonRepo.Create(ctx, tx, create); err != nil {
			return err
		}
		for id, pos := range keep {
			if err := s.lessonRepo.UpdateFields(ctx, tx, id, map[string]any{"position": pos}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist course edit: %w", err)
	}

	course.Title = data.CourseTitle
	course.CourseData = datatypes.JSON(rawData)
	s.log.Info("course structure edited", "course_id", course.ID,
		"kept", len(keep), "created", len(create), "removed", len(remove))
	return course, nil
}

// reconcileLessons diffs the new document against existing lesson rows by
// (unit_title, lesson_title). Surviving rows keep their body and progress and
// only get a new position; vanished rows are deleted; new leaves become empty
// skeletons.
func reconcileLessons(courseID uuid.UUID, data *types.CourseData, existing []*types.Lesson) (keep map[uuid.UUID]int, create []*types.Lesson, remove []uuid.UUID) {
	byKey := make(map[string]*types.Lesson, len(existing))
	for _, l := range existing {
		byKey[lessonKey(l.UnitTitle, l.LessonTitle)] = l
	}

	keep = make(map[uuid.UUID]int)
	seen := make(map[string]bool)
	pos := 0
	for _, u := range data.Units {
		for _, l := range u.Lessons {
			key := lessonKey(u.UnitTitle, l.LessonTitle)
			seen[key] = true
			if row, ok := byKey[key]; ok {
				keep[row.ID] = pos
			} else {
				create = append(create, &types.Lesson{
					ID:          uuid.New(),
					CourseID:    courseID,
					UnitTitle:   u.UnitTitle,
					LessonTitle: l.LessonTitle,
					Position:    pos,
				})
			}
			pos++
		}
	}
	for key, row := range byKey {
		if !seen[key] {
			remove = append(remove, row.ID)
		}
	}
	return keep, create, remove
}

func lessonKey(unitTitle, lessonTitle string) string {
	return unitTitle + "\x00" + lessonTitle
}

func (s *editorService) addTokens(ctx context.Context, userID uuid.UUID, tokens int) {
	if tokens <= 0 {
		return
	}
	if err := s.userRepo.AddTokensUsed(ctx, nil, userID, tokens); err != nil {
		s.log.Warn("token accounting failed", "user_id", userID, "tokens", tokens, "error", err)
	}
}
