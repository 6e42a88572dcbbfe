package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
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

// maxTitleLen is the hard cap for refined and edited course titles.
const maxTitleLen = 60

type CourseService interface {
	// CreateCourse synthesizes the course document from the topic and the
	// knowledge assessment, refines the title, and persists the course with
	// its lesson skeletons in one transaction.
	CreateCourse(ctx context.Context, user *types.User, topic, assessment string) (*types.Course, error)

	// GetCourse returns a course owned by the user, with its lessons.
	GetCourse(ctx context.Context, user *types.User, courseID uuid.UUID) (*types.Course, []*types.Lesson, error)

	// ListCourses returns the user's courses, newest first.
	ListCourses(ctx context.Context, user *types.User) ([]*types.Course, error)

	// SetArchived flips the archive flag.
	SetArchived(ctx context.Context, user *types.User, courseID uuid.UUID, archived bool) error

	// DeleteCourse removes the course with its lessons, unit test results and
	// shares.
	DeleteCourse(ctx context.Context, user *types.User, courseID uuid.UUID) error

	// Duplicate copies a course for the user: same document, fresh lesson
	// skeletons with no bodies or progress.
	Duplicate(ctx context.Context, user *types.User, courseID uuid.UUID) (*types.Course, error)

	// Share returns an opaque token that lets any user copy the course.
	Share(ctx context.Context, user *types.User, courseID uuid.UUID) (string, error)

	// ResolveShare copies the shared course to the requesting user.
	ResolveShare(ctx context.Context, user *types.User, token string) (*types.Course, error)
}

type courseService struct {
	db     *gorm.DB
	log    *logger.Logger
	client ai.Client

	userRepo   repos.UserRepo
	courseRepo repos.CourseRepo
	lessonRepo repos.LessonRepo
	resultRepo repos.UnitTestResultRepo
	shareRepo  repos.CourseShareRepo
}

func NewCourseService(
	db *gorm.DB,
	baseLog *logger.Logger,
	client ai.Client,
	userRepo repos.UserRepo,
	courseRepo repos.CourseRepo,
	lessonRepo repos.LessonRepo,
	resultRepo repos.UnitTestResultRepo,
	shareRepo repos.CourseShareRepo,
) CourseService {
	return &courseService{
		db:         db,
		log:        baseLog.With("service", "CourseService"),
		client:     client,
		userRepo:   userRepo,
		courseRepo: courseRepo,
		lessonRepo: lessonRepo,
		resultRepo: resultRepo,
		shareRepo:  shareRepo,
	}
}

func (s *courseService) CreateCourse(ctx context.Context, user *types.User, topic, assessment string) (*types.Course, error) {
	raw, tokens, err := s.client.GenerateText(ctx, prompts.BuildCoursePrompt(prompts.CourseParams{
		Topic:      topic,
		Assessment: assessment,
		Language:   user.Language,
		Age:        user.Age,
		Bio:        user.Bio,
	}), true)
	s.addTokens(ctx, user.ID, tokens)
	if err != nil {
		return nil, fmt.Errorf("synthesize course: %w", err)
	}

	doc, err := jsonextract.Extract(raw)
	if err != nil {
		return nil, fmt.Errorf("synthesize course: %w", err)
	}
	data, err := types.ParseCourseData(doc)
	if err != nil {
		return nil, fmt.Errorf("synthesize course: %w", err)
	}

	data.CourseTitle = s.refineTitle(ctx, user, data.CourseTitle)

	course := &types.Course{
		ID:       uuid.New(),
		UserID:   user.ID,
		Title:    data.CourseTitle,
		Language: user.Language,
	}
	rawData, err := data.JSON()
	if err != nil {
		return nil, fmt.Errorf("encode course data: %w", err)
	}
	course.CourseData = datatypes.JSON(rawData)

	lessons := data.LessonSkeletons(course.ID)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.courseRepo.Create(ctx, tx, []*types.Course{course}); err != nil {
			return err
		}
		if _, err := s.lessonRepo.Create(ctx, tx, lessons); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist course: %w", err)
	}

	s.log.Info("course created", "user_id", user.ID, "course_id", course.ID,
		"title", course.Title, "units", len(data.Units), "lessons", len(lessons))
	return course, nil
}

// refineTitle asks the model for a catchier title. Best effort: anything
// unusable (error, empty, over the cap) keeps the original.
func (s *courseService) refineTitle(ctx context.Context, user *types.User, original string) string {
	raw, tokens, err := s.client.GenerateText(ctx,
		prompts.BuildTitlePrompt(prompts.TitleParams{Title: original}), false)
	s.addTokens(ctx, user.ID, tokens)
	if err != nil {
		s.log.Warn("title refinement failed, keeping original", "error", err)
		return original
	}
	title := stripQuotes(raw)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLen {
		return original
	}
	return title
}

func (s *courseService) GetCourse(ctx context.Context, user *types.User, courseID uuid.UUID) (*types.Course, []*types.Lesson, error) {
	course, err := s.ownedCourse(ctx, user, courseID)
	if err != nil {
		return nil, nil, err
	}
	lessons, err := s.lessonRepo.GetByCourseIDs(ctx, nil, []uuid.UUID{courseID})
	if err != nil {
		return nil, nil, err
	}
	return course, lessons, nil
}

func (s *courseService) ListCourses(ctx context.Context, user *types.User) ([]*types.Course, error) {
	return s.courseRepo.GetByUserIDs(ctx, nil, []uuid.UUID{user.ID})
}

func (s *courseService) SetArchived(ctx context.Context, user *types.User, courseID uuid.UUID, archived bool) error {
	if _, err := s.ownedCourse(ctx, user, courseID); err != nil {
		return err
	}
	return s.courseRepo.UpdateFields(ctx, nil, courseID, map[string]any{"archived": archived})
}

func (s *courseService) DeleteCourse(ctx context.Context, user *types.User, courseID uuid.UUID) error {
	if _, err := s.ownedCourse(ctx, user, courseID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lessonRepo.FullDeleteByCourseIDs(ctx, tx, []uuid.UUID{courseID}); err != nil {
			return err
		}
		if err := s.resultRepo.FullDeleteByCourseIDs(ctx, tx, []uuid.UUID{courseID}); err != nil {
			return err
		}
		if err := s.shareRepo.FullDeleteByCourseIDs(ctx, tx, []uuid.UUID{courseID}); err != nil {
			return err
		}
		return s.courseRepo.FullDeleteByIDs(ctx, tx, []uuid.UUID{courseID})
	})
}

func (s *courseService) Duplicate(ctx context.Context, user *types.User, courseID uuid.UUID) (*types.Course, error) {
	src, err := s.ownedCourse(ctx, user, courseID)
	if err != nil {
		return nil, err
	}
	return s.copyCourse(ctx, user, src)
}

func (s *courseService) Share(ctx context.Context, user *types.User, courseID uuid.UUID) (string, error) {
	if _, err := s.ownedCourse(ctx, user, courseID); err != nil {
		return "", err
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate share token: %w", err)
	}
	share := &types.CourseShare{
		ID:       uuid.New(),
		CourseID: courseID,
		Token:    hex.EncodeToString(buf),
	}
	if _, err := s.shareRepo.Create(ctx, nil, []*types.CourseShare{share}); err != nil {
		return "", err
	}
	return share.Token, nil
}

func (s *courseService) ResolveShare(ctx context.Context, user *types.User, token string) (*types.Course, error) {
	share, err := s.shareRepo.GetByToken(ctx, nil, strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	if share == nil {
		return nil, fmt.Errorf("share token not found")
	}
	src, err := s.courseRepo.GetByID(ctx, nil, share.CourseID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("shared course no longer exists")
	}
	return s.copyCourse(ctx, user, src)
}

// copyCourse clones the document into a fresh course for the user. Bodies
// and progress are not carried over.
func (s *courseService) copyCourse(ctx context.Context, user *types.User, src *types.Course) (*types.Course, error) {
	var doc map[string]any
	if err := decodeJSONColumn(src.CourseData, &doc); err != nil {
		return nil, fmt.Errorf("decode course data: %w", err)
	}
	data, err := types.ParseCourseData(doc)
	if err != nil {
		return nil, fmt.Errorf("parse course data: %w", err)
	}

	course := &types.Course{
		ID:         uuid.New(),
		UserID:     user.ID,
		Title:      src.Title,
		Language:   src.Language,
		CourseData: append(datatypes.JSON(nil), src.CourseData...),
	}
	lessons := data.LessonSkeletons(course.ID)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.courseRepo.Create(ctx, tx, []*types.Course{course}); err != nil {
			return err
		}
		if _, err := s.lessonRepo.Create(ctx, tx, lessons); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("copy course: %w", err)
	}
	return course, nil
}

func (s *courseService) ownedCourse(ctx context.Context, user *types.User, courseID uuid.UUID) (*types.Course, error) {
	course, err := s.courseRepo.GetByID(ctx, nil, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil || course.UserID != user.ID {
		return nil, fmt.Errorf("course not found")
	}
	return course, nil
}

func (s *courseService) addTokens(ctx context.Context, userID uuid.UUID, tokens int) {
	if tokens <= 0 {
		return
	}
	if err := s.userRepo.AddTokensUsed(ctx, nil, userID, tokens); err != nil {
		s.log.Warn("token accounting failed", "user_id", userID, "tokens", tokens, "error", err)
	}
}
