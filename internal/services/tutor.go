package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/SuperscriptSystems/Quillio/internal/ai"
	"github.com/SuperscriptSystems/Quillio/internal/logger"
	"github.com/SuperscriptSystems/Quillio/internal/prompts"
	"github.com/SuperscriptSystems/Quillio/internal/repos"
	"github.com/SuperscriptSystems/Quillio/internal/types"
)

type TutorService interface {
	// Ask streams a course-aware answer to a student question. When lessonID
	// is set, that lesson's body is given to the model as context.
	Ask(ctx context.Context, user *types.User, courseID uuid.UUID, lessonID *uuid.UUID, question string, onDelta func(delta string)) (string, error)
}

type tutorService struct {
	db     *gorm.DB
	log    *logger.Logger
	client ai.Client

	userRepo   repos.UserRepo
	courseRepo repos.CourseRepo
	lessonRepo repos.LessonRepo
}

func NewTutorService(
	db *gorm.DB,
	baseLog *logger.Logger,
	client ai.Client,
	userRepo repos.UserRepo,
	courseRepo repos.CourseRepo,
	lessonRepo repos.LessonRepo,
) TutorService {
	return &tutorService{
		db:         db,
		log:        baseLog.With("service", "TutorService"),
		client:     client,
		userRepo:   userRepo,
		courseRepo: courseRepo,
		lessonRepo: lessonRepo,
	}
}

func (s *tutorService) Ask(ctx context.Context, user *types.User, courseID uuid.UUID, lessonID *uuid.UUID, question string, onDelta func(string)) (string, error) {
	course, err := s.courseRepo.GetByID(ctx, nil, courseID)
	if err != nil {
		return "", err
	}
	if course == nil || course.UserID != user.ID {
		return "", fmt.Errorf("course not found")
	}

	lessonContext := ""
	if lessonID != nil {
		lesson, err := s.lessonRepo.GetByID(ctx, nil, *lessonID)
		if err != nil {
			return "", err
		}
		if lesson != nil && lesson.CourseID == courseID {
			lessonContext = fmt.Sprintf("Lesson %q (unit %q):\n%s",
				lesson.LessonTitle, lesson.UnitTitle, truncate(lesson.HTMLContent, 8000))
		}
	}

	answer, tokens, err := s.client.StreamText(ctx, prompts.BuildTutorPrompt(prompts.TutorParams{
		CourseTitle:   course.Title,
		LessonContext: lessonContext,
		Question:      question,
		Language:      user.Language,
	}), onDelta)
	if tokens > 0 {
		if aErr := s.userRepo.AddTokensUsed(ctx, nil, user.ID, tokens); aErr != nil {
			s.log.Warn("token accounting failed", "user_id", user.ID, "error", aErr)
		}
	}
	if err != nil {
		return "", fmt.Errorf("tutor answer: %w", err)
	}
	return answer, nil
}
