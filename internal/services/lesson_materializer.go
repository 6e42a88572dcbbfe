package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/SuperscriptSystems/Quillio/internal/ai"
	"github.com/SuperscriptSystems/Quillio/internal/logger"
	"github.com/SuperscriptSystems/Quillio/internal/prompts"
	"github.com/SuperscriptSystems/Quillio/internal/repos"
	"github.com/SuperscriptSystems/Quillio/internal/types"
)

// ErrStreamInFlight is returned when a lesson is already being generated.
var ErrStreamInFlight = errors.New("lesson generation already in flight")

// errorBody is persisted when generation fails. It never marks the lesson
// materialized; a later request regenerates.
const errorBody = "<p>Error generating lesson content. Please try refreshing the page.</p>"

var imagePromptRe = regexp.MustCompile(`\[IMAGE_PROMPT:\s*"(.*?)"\]`)

// maxImagesPerLesson bounds concurrent image generation per finalize pass.
const maxImagesPerLesson = 3

type LessonService interface {
	// Materialize produces the lesson body. First call streams markdown
	// deltas through onDelta, then renders, resolves image prompts, appends
	// the next-up link, and persists exactly once. Later calls replay the
	// stored body without touching the model.
	Materialize(ctx context.Context, user *types.User, lessonID uuid.UUID, onDelta func(delta string)) (*types.Lesson, error)

	// CompletedCount returns how many lessons of the course are completed.
	CompletedCount(ctx context.Context, courseID uuid.UUID) (int64, error)
}

type lessonService struct {
	db     *gorm.DB
	log    *logger.Logger
	client ai.Client

	userRepo   repos.UserRepo
	courseRepo repos.CourseRepo
	lessonRepo repos.LessonRepo

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

func NewLessonService(
	db *gorm.DB,
	baseLog *logger.Logger,
	client ai.Client,
	userRepo repos.UserRepo,
	courseRepo repos.CourseRepo,
	lessonRepo repos.LessonRepo,
) LessonService {
	return &lessonService{
		db:         db,
		log:        baseLog.With("service", "LessonService"),
		client:     client,
		userRepo:   userRepo,
		courseRepo: courseRepo,
		lessonRepo: lessonRepo,
		inFlight:   make(map[uuid.UUID]struct{}),
	}
}

func (s *lessonService) Materialize(ctx context.Context, user *types.User, lessonID uuid.UUID, onDelta func(string)) (*types.Lesson, error) {
	lesson, course, err := s.loadOwned(ctx, user, lessonID)
	if err != nil {
		return nil, err
	}

	if materialized(lesson) {
		return s.replay(ctx, lesson, onDelta)
	}

	if !s.acquire(lessonID) {
		return nil, ErrStreamInFlight
	}
	defer s.release(lessonID)

	// Someone may have finished while we waited for the guard.
	lesson, err = s.lessonRepo.GetByID(ctx, nil, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson == nil {
		return nil, fmt.Errorf("lesson not found")
	}
	if materialized(lesson) {
		return s.replay(ctx, lesson, onDelta)
	}

	data, err := courseDataOf(course)
	if err != nil {
		return nil, err
	}

	// Phase one: stream raw markdown.
	markdown, tokens, streamErr := s.client.StreamText(ctx, prompts.BuildLessonPrompt(prompts.LessonParams{
		CourseTitle:          course.Title,
		UnitTitle:            lesson.UnitTitle,
		LessonTitle:          lesson.LessonTitle,
		CourseOutline:        outlineOf(data),
		Language:             user.Language,
		PreferredLength:      user.PreferredLessonLength,
		EstimatedTimeMinutes: estimatedMinutes(data, lesson),
	}), onDelta)
	s.addTokens(ctx, user.ID, tokens)
	if streamErr != nil {
		s.log.Error("lesson stream failed", "lesson_id", lessonID, "error", streamErr)
		if err := s.lessonRepo.UpdateFields(ctx, nil, lessonID, map[string]any{"html_content": errorBody}); err != nil {
			s.log.Error("persist error body", "lesson_id", lessonID, "error", err)
		}
		return nil, fmt.Errorf("materialize lesson: %w", streamErr)
	}

	// Phase two: finalize and persist exactly once.
	body, err := s.finalize(ctx, data, lesson, user, markdown)
	if err != nil {
		return nil, err
	}
	if err := s.lessonRepo.UpdateFields(ctx, nil, lessonID, map[string]any{
		"html_content": body,
		"completed":    true,
	}); err != nil {
		return nil, err
	}
	lesson.HTMLContent = body
	lesson.Completed = true

	done, err := s.lessonRepo.CountCompletedByCourseID(ctx, nil, lesson.CourseID)
	if err != nil {
		s.log.Warn("recount completed lessons", "course_id", lesson.CourseID, "error", err)
	} else {
		s.log.Info("lesson materialized", "lesson_id", lessonID, "course_id", lesson.CourseID, "completed", done)
	}
	return lesson, nil
}

func (s *lessonService) CompletedCount(ctx context.Context, courseID uuid.UUID) (int64, error) {
	return s.lessonRepo.CountCompletedByCourseID(ctx, nil, courseID)
}

// replay pushes the stored body as a single chunk and repairs the completed
// flag if an earlier run was interrupted between the two writes.
func (s *lessonService) replay(ctx context.Context, lesson *types.Lesson, onDelta func(string)) (*types.Lesson, error) {
	if onDelta != nil {
		onDelta(lesson.HTMLContent)
	}
	if !lesson.Completed {
		if err := s.lessonRepo.UpdateFields(ctx, nil, lesson.ID, map[string]any{"completed": true}); err != nil {
			return nil, err
		}
		lesson.Completed = true
	}
	return lesson, nil
}

// finalize resolves image prompts, renders markdown to HTML, and appends the
// next-up link. Prompt markers are replaced before rendering so their quotes
// survive HTML escaping; the inserted tags pass through as raw HTML.
func (s *lessonService) finalize(ctx context.Context, data *types.CourseData, lesson *types.Lesson, user *types.User, markdown string) (string, error) {
	markdown = s.resolveImagePrompts(ctx, markdown)
	htmlBody, err := renderMarkdown(markdown)
	if err != nil {
		return "", fmt.Errorf("render lesson markdown: %w", err)
	}
	htmlBody += nextUpLink(data, lesson, user.Language)
	return htmlBody, nil
}

// resolveImagePrompts replaces every [IMAGE_PROMPT: "..."] marker with a
// generated image, or an italicized placeholder when generation fails. Image
// calls run concurrently but bounded; failures are soft.
func (s *lessonService) resolveImagePrompts(ctx context.Context, body string) string {
	matches := imagePromptRe.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return body
	}

	urls := make([]string, len(matches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxImagesPerLesson)
	for i, m := range matches {
		g.Go(func() error {
			u, err := s.client.GenerateImage(gctx, m[1])
			if err != nil {
				s.log.Warn("image generation failed, using placeholder", "error", err)
				return nil
			}
			urls[i] = u
			return nil
		})
	}
	_ = g.Wait()

	i := 0
	return imagePromptRe.ReplaceAllStringFunc(body, func(match string) string {
		sub := imagePromptRe.FindStringSubmatch(match)
		prompt := sub[1]
		u := ""
		if i < len(urls) {
			u = urls[i]
		}
		i++
		if u == "" {
			// The placeholder keeps the prompt text verbatim inside the raw-HTML
			// region; escaping here would render literal &quot; entities.
			return fmt.Sprintf(`<i>[Image Prompt: "%s"]</i>`, prompt)
		}
		return fmt.Sprintf(`<img src="%s" alt="%s">`, u, html.EscapeString(prompt))
	})
}

func renderMarkdown(src string) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe()),
	)
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// nextUpLink builds the trailing navigation anchor: the next lesson in the
// unit, or the unit's test after the unit's last lesson.
func nextUpLink(data *types.CourseData, lesson *types.Lesson, language string) string {
	label := "Next up"
	if isRussian(language) {
		label = "Далее"
	}

	for _, unit := range data.Units {
		if unit.UnitTitle != lesson.UnitTitle {
			continue
		}
		for i, l := range unit.Lessons {
			if l.LessonTitle != lesson.LessonTitle {
				continue
			}
			if i+1 < len(unit.Lessons) {
				next := unit.Lessons[i+1].LessonTitle
				return fmt.Sprintf(`<br><a href="/lesson?course=%s&title=%s">%s: %s</a>`,
					lesson.CourseID, url.QueryEscape(next), label, html.EscapeString(next))
			}
			testTitle := unit.Test.TestTitle
			if strings.TrimSpace(testTitle) == "" {
				testTitle = unit.UnitTitle + " Test"
			}
			return fmt.Sprintf(`<br><a href="/unit-test?course=%s&unit=%s">%s: %s</a>`,
				lesson.CourseID, url.QueryEscape(unit.UnitTitle), label, html.EscapeString(testTitle))
		}
	}
	return ""
}

func isRussian(language string) bool {
	l := strings.ToLower(strings.TrimSpace(language))
	return l == "russian" || l == "русский"
}

func materialized(lesson *types.Lesson) bool {
	return lesson.HTMLContent != "" && lesson.HTMLContent != errorBody
}

func (s *lessonService) acquire(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *lessonService) release(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

func (s *lessonService) loadOwned(ctx context.Context, user *types.User, lessonID uuid.UUID) (*types.Lesson, *types.Course, error) {
	lesson, err := s.lessonRepo.GetByID(ctx, nil, lessonID)
	if err != nil {
		return nil, nil, err
	}
	if lesson == nil {
		return nil, nil, fmt.Errorf("lesson not found")
	}
	course, err := s.courseRepo.GetByID(ctx, nil, lesson.CourseID)
	if err != nil {
		return nil, nil, err
	}
	if course == nil || course.UserID != user.ID {
		return nil, nil, fmt.Errorf("lesson not found")
	}
	return lesson, course, nil
}

func (s *lessonService) addTokens(ctx context.Context, userID uuid.UUID, tokens int) {
	if tokens <= 0 {
		return
	}
	if err := s.userRepo.AddTokensUsed(ctx, nil, userID, tokens); err != nil {
		s.log.Warn("token accounting failed", "user_id", userID, "tokens", tokens, "error", err)
	}
}

func courseDataOf(course *types.Course) (*types.CourseData, error) {
	var doc map[string]any
	if err := decodeJSONColumn(course.CourseData, &doc); err != nil {
		return nil, fmt.Errorf("decode course data: %w", err)
	}
	data, err := types.ParseCourseData(doc)
	if err != nil {
		return nil, fmt.Errorf("parse course data: %w", err)
	}
	return data, nil
}

// outlineOf renders a compact plain-text outline for prompt context.
func outlineOf(data *types.CourseData) string {
	var b strings.Builder
	for _, u := range data.Units {
		titles := make([]string, 0, len(u.Lessons))
		for _, l := range u.Lessons {
			titles = append(titles, l.LessonTitle)
		}
		fmt.Fprintf(&b, "Unit %q: %s\n", u.UnitTitle, strings.Join(titles, ", "))
	}
	return b.String()
}

func estimatedMinutes(data *types.CourseData, lesson *types.Lesson) int {
	for _, u := range data.Units {
		if u.UnitTitle != lesson.UnitTitle {
			continue
		}
		for _, l := range u.Lessons {
			if l.LessonTitle == lesson.LessonTitle {
				return l.EstimatedTimeMinutes
			}
		}
	}
	return 0
}
