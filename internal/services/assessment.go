package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/SuperscriptSystems/Quillio/internal/ai"
	"github.com/SuperscriptSystems/Quillio/internal/jsonextract"
	"github.com/SuperscriptSystems/Quillio/internal/logger"
	"github.com/SuperscriptSystems/Quillio/internal/prompts"
	"github.com/SuperscriptSystems/Quillio/internal/repos"
	"github.com/SuperscriptSystems/Quillio/internal/types"
)

// EvaluationErrorVerdict is the sentinel verdict for an answer the model
// failed to evaluate. The pipeline never aborts on a partial evaluation.
const EvaluationErrorVerdict = "Evaluation Error"

// ErrUnitNotCompleted is returned when a unit test is requested before every
// lesson in the unit is completed.
var ErrUnitNotCompleted = errors.New("unit has uncompleted lessons")

type AssessmentService interface {
	// StartAssessment generates the diagnostic test for a topic and opens the
	// session.
	StartAssessment(ctx context.Context, user *types.User, topic, knowledge string) (*types.TestSnapshot, error)

	// CurrentQuestion returns the pending question plus (index, total).
	CurrentQuestion(ctx context.Context, userID uuid.UUID, kind string) (*types.TestQuestion, int, int, error)

	// SubmitAnswer records the answer to the current question and advances
	// the session.
	SubmitAnswer(ctx context.Context, userID uuid.UUID, kind, answer string) (*types.TestSnapshot, error)

	// CompleteAssessment evaluates all answers, produces the qualitative
	// assessment and the numeric score, and returns the final snapshot.
	CompleteAssessment(ctx context.Context, user *types.User) (*types.TestSnapshot, error)

	// EvaluateAnswers runs the batched evaluation call and returns one
	// verdict per answer, in input order. A failed or malformed call
	// degrades every missing verdict to the sentinel; the pipeline keeps
	// going.
	EvaluateAnswers(ctx context.Context, user *types.User, answers []types.AnswerRecord) ([]string, error)

	// AssessKnowledge produces the qualitative knowledge summary, falling
	// back to a fixed paragraph when the call fails.
	AssessKnowledge(ctx context.Context, user *types.User, topic string, answers []types.AnswerRecord, verdicts []string) (string, error)

	// StartUnitTest generates a unit test once every lesson in the unit is
	// completed.
	StartUnitTest(ctx context.Context, user *types.User, courseID uuid.UUID, unitTitle string) (*types.TestSnapshot, error)

	// FinishUnitTest evaluates the unit test session, stores the percentage
	// score, and returns the result with per-question verdicts.
	FinishUnitTest(ctx context.Context, user *types.User) (*types.UnitTestResult, []string, error)
}

type assessmentService struct {
	db       *gorm.DB
	log      *logger.Logger
	client   ai.Client
	sessions TestSessionStore

	userRepo   repos.UserRepo
	courseRepo repos.CourseRepo
	lessonRepo repos.LessonRepo
	resultRepo repos.UnitTestResultRepo
}

func NewAssessmentService(
	db *gorm.DB,
	baseLog *logger.Logger,
	client ai.Client,
	sessions TestSessionStore,
	userRepo repos.UserRepo,
	courseRepo repos.CourseRepo,
	lessonRepo repos.LessonRepo,
	resultRepo repos.UnitTestResultRepo,
) AssessmentService {
	return &assessmentService{
		db:         db,
		log:        baseLog.With("service", "AssessmentService"),
		client:     client,
		sessions:   sessions,
		userRepo:   userRepo,
		courseRepo: courseRepo,
		lessonRepo: lessonRepo,
		resultRepo: resultRepo,
	}
}

func (s *assessmentService) StartAssessment(ctx context.Context, user *types.User, topic, knowledge string) (*types.TestSnapshot, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("topic is required")
	}
	test, err := s.generateTest(ctx, user, prompts.BuildTestPrompt(prompts.TestParams{
		Topic:     topic,
		Knowledge: knowledge,
		Language:  user.Language,
	}))
	if err != nil {
		return nil, err
	}

	snap := &types.TestSnapshot{
		Kind:  types.TestKindAssessment,
		State: types.TestStateInProgress,
		Topic: topic,
		Test:  test,
	}
	if err := s.sessions.Save(ctx, user.ID, snap); err != nil {
		return nil, err
	}
	s.log.Info("assessment started", "user_id", user.ID, "topic", topic, "questions", len(test.Questions))
	return snap, nil
}

func (s *assessmentService) CurrentQuestion(ctx context.Context, userID uuid.UUID, kind string) (*types.TestQuestion, int, int, error) {
	snap, err := s.sessions.Load(ctx, userID, kind)
	if err != nil {
		return nil, 0, 0, err
	}
	if snap.Test == nil || snap.Index >= len(snap.Test.Questions) {
		return nil, snap.Index, questionCount(snap), fmt.Errorf("no pending question")
	}
	q := snap.Test.Questions[snap.Index]
	return &q, snap.Index, len(snap.Test.Questions), nil
}

func (s *assessmentService) SubmitAnswer(ctx context.Context, userID uuid.UUID, kind, answer string) (*types.TestSnapshot, error) {
	snap, err := s.sessions.Load(ctx, userID, kind)
	if err != nil {
		return nil, err
	}
	if snap.State != types.TestStateInProgress {
		return nil, fmt.Errorf("test session is %s, not in progress", snap.State)
	}
	if snap.Test == nil || snap.Index >= len(snap.Test.Questions) {
		return nil, fmt.Errorf("no pending question")
	}

	q := snap.Test.Questions[snap.Index]
	snap.Answers = append(snap.Answers, types.AnswerRecord{
		Question:   q.Question,
		UserAnswer: answer,
	})
	snap.Index++
	if snap.Index >= len(snap.Test.Questions) {
		snap.State = types.TestStateCompleted
	}
	if err := s.sessions.Save(ctx, userID, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *assessmentService) CompleteAssessment(ctx context.Context, user *types.User) (*types.TestSnapshot, error) {
	snap, err := s.sessions.Load(ctx, user.ID, types.TestKindAssessment)
	if err != nil {
		return nil, err
	}
	if snap.State != types.TestStateCompleted {
		return nil, fmt.Errorf("test session is %s, not completed", snap.State)
	}

	verdicts, err := s.EvaluateAnswers(ctx, user, snap.Answers)
	if err != nil {
		return nil, err
	}
	snap.Verdicts = verdicts
	snap.State = types.TestStateEvaluated
	if err := s.sessions.Save(ctx, user.ID, snap); err != nil {
		return nil, err
	}

	assessment, err := s.AssessKnowledge(ctx, user, snap.Topic, snap.Answers, verdicts)
	if err != nil {
		return nil, err
	}
	snap.Assessment = assessment

	scoreText, tokens, err := s.client.GenerateText(ctx,
		prompts.BuildScorePrompt(prompts.ScoreParams{Topic: snap.Topic, Assessment: assessment}), false)
	s.addTokens(ctx, user.ID, tokens)
	if err != nil {
		s.log.Warn("scoring call failed, recording zero score", "user_id", user.ID, "error", err)
		scoreText = ""
	}
	snap.Score = Score(scoreText)
	snap.State = types.TestStateScored

	if err := s.sessions.Save(ctx, user.ID, snap); err != nil {
		return nil, err
	}
	s.log.Info("assessment scored", "user_id", user.ID, "topic", snap.Topic, "score", snap.Score)
	return snap, nil
}

func (s *assessmentService) EvaluateAnswers(ctx context.Context, user *types.User, answers []types.AnswerRecord) ([]string, error) {
	if len(answers) == 0 {
		return nil, nil
	}

	items := make([]prompts.BatchCheckItem, 0, len(answers))
	for i, a := range answers {
		items = append(items, prompts.BatchCheckItem{
			ID:         i + 1,
			Question:   a.Question,
			UserAnswer: a.UserAnswer,
		})
	}

	raw, tokens, err := s.client.GenerateText(ctx,
		prompts.BuildBatchCheckPrompt(prompts.BatchCheckParams{Items: items, Language: user.Language}), true)
	s.addTokens(ctx, user.ID, tokens)

	byID := map[int]string{}
	if err != nil {
		s.log.Warn("batch evaluation call failed, using sentinel verdicts", "user_id", user.ID, "error", err)
	} else if doc, exErr := jsonextract.Extract(raw); exErr == nil {
		if list, ok := doc["assessments"].([]any); ok {
			for _, it := range list {
				m, ok := it.(map[string]any)
				if !ok {
					continue
				}
				id, okID := numToInt(m["id"])
				verdict, okV := m["assessment"].(string)
				if okID && okV {
					byID[id] = verdict
				}
			}
		}
	} else {
		s.log.Warn("batch evaluation output malformed, using sentinel verdicts", "user_id", user.ID, "error", exErr)
	}

	// One verdict per answer, in input order; anything the model missed gets
	// the sentinel.
	out := make([]string, len(answers))
	for i := range answers {
		if v, ok := byID[i+1]; ok && strings.TrimSpace(v) != "" {
			out[i] = v
		} else {
			out[i] = EvaluationErrorVerdict
		}
	}
	return out, nil
}

func (s *assessmentService) AssessKnowledge(ctx context.Context, user *types.User, topic string, answers []types.AnswerRecord, verdicts []string) (string, error) {
	records := make([]prompts.AnswerVerdict, 0, len(answers))
	for i, a := range answers {
		verdict := EvaluationErrorVerdict
		if i < len(verdicts) {
			verdict = verdicts[i]
		}
		records = append(records, prompts.AnswerVerdict{
			Question:   a.Question,
			UserAnswer: a.UserAnswer,
			Verdict:    verdict,
		})
	}

	text, tokens, err := s.client.GenerateText(ctx,
		prompts.BuildAssessmentPrompt(prompts.AssessmentParams{
			Topic:    topic,
			Language: user.Language,
			Records:  records,
		}), false)
	s.addTokens(ctx, user.ID, tokens)
	if err != nil {
		s.log.Warn("knowledge assessment call failed, using fallback text", "user_id", user.ID, "error", err)
		return "Could not generate assessment.", nil
	}
	return strings.TrimSpace(text), nil
}

func (s *assessmentService) StartUnitTest(ctx context.Context, user *types.User, courseID uuid.UUID, unitTitle string) (*types.TestSnapshot, error) {
	course, err := s.courseRepo.GetByID(ctx, nil, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil || course.UserID != user.ID {
		return nil, fmt.Errorf("course not found")
	}

	lessons, err := s.lessonRepo.GetByCourseIDs(ctx, nil, []uuid.UUID{courseID})
	if err != nil {
		return nil, err
	}
	var unitLessons []string
	for _, l := range lessons {
		if l.UnitTitle != unitTitle {
			continue
		}
		unitLessons = append(unitLessons, l.LessonTitle)
		if !l.Completed {
			return nil, fmt.Errorf("%w: %q", ErrUnitNotCompleted, l.LessonTitle)
		}
	}
	if len(unitLessons) == 0 {
		return nil, fmt.Errorf("unit %q not found in course", unitTitle)
	}

	test, err := s.generateTest(ctx, user, prompts.BuildUnitTestPrompt(prompts.UnitTestParams{
		CourseTitle:  course.Title,
		UnitTitle:    unitTitle,
		LessonTitles: unitLessons,
		Language:     user.Language,
	}))
	if err != nil {
		return nil, err
	}

	snap := &types.TestSnapshot{
		Kind:      types.TestKindUnit,
		State:     types.TestStateInProgress,
		CourseID:  &courseID,
		UnitTitle: unitTitle,
		Test:      test,
	}
	if err := s.sessions.Save(ctx, user.ID, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *assessmentService) FinishUnitTest(ctx context.Context, user *types.User) (*types.UnitTestResult, []string, error) {
	snap, err := s.sessions.Load(ctx, user.ID, types.TestKindUnit)
	if err != nil {
		return nil, nil, err
	}
	if snap.State != types.TestStateCompleted {
		return nil, nil, fmt.Errorf("unit test session is %s, not completed", snap.State)
	}
	if snap.CourseID == nil || snap.Test == nil {
		return nil, nil, fmt.Errorf("unit test session is incomplete")
	}

	verdicts, err := s.EvaluateAnswers(ctx, user, snap.Answers)
	if err != nil {
		return nil, nil, err
	}

	// The percentage comes from the known correct options, not from the
	// model's free-text verdicts.
	correct := 0
	for i, q := range snap.Test.Questions {
		if i >= len(snap.Answers) {
			break
		}
		if answersMatch(q, snap.Answers[i].UserAnswer) {
			correct++
		}
	}
	score := 0
	if n := len(snap.Test.Questions); n > 0 {
		score = correct * 100 / n
	}

	result := &types.UnitTestResult{
		ID:        uuid.New(),
		UserID:    user.ID,
		CourseID:  *snap.CourseID,
		UnitTitle: snap.UnitTitle,
		Score:     score,
	}
	if err := s.resultRepo.Upsert(ctx, nil, result); err != nil {
		return nil, nil, err
	}
	if err := s.sessions.Clear(ctx, user.ID, types.TestKindUnit); err != nil {
		s.log.Warn("clear unit test session", "user_id", user.ID, "error", err)
	}
	s.log.Info("unit test finished", "user_id", user.ID, "course_id", snap.CourseID, "unit", snap.UnitTitle, "score", score)
	return result, verdicts, nil
}

func (s *assessmentService) generateTest(ctx context.Context, user *types.User, prompt string) (*types.Test, error) {
	raw, tokens, err := s.client.GenerateText(ctx, prompt, true)
	s.addTokens(ctx, user.ID, tokens)
	if err != nil {
		return nil, fmt.Errorf("generate test: %w", err)
	}
	doc, err := jsonextract.Extract(raw)
	if err != nil {
		return nil, fmt.Errorf("generate test: %w", err)
	}
	var test types.Test
	if err := decodeInto(doc, &test); err != nil {
		return nil, fmt.Errorf("decode test: %w", err)
	}
	if len(test.Questions) == 0 {
		return nil, fmt.Errorf("generated test has no questions")
	}
	return &test, nil
}

func (s *assessmentService) addTokens(ctx context.Context, userID uuid.UUID, tokens int) {
	if tokens <= 0 {
		return
	}
	if err := s.userRepo.AddTokensUsed(ctx, nil, userID, tokens); err != nil {
		s.log.Warn("token accounting failed", "user_id", userID, "tokens", tokens, "error", err)
	}
}

// answersMatch accepts either the option key ("option2") or the option text
// as the user's answer.
func answersMatch(q types.TestQuestion, answer string) bool {
	a := strings.TrimSpace(answer)
	if strings.EqualFold(a, strings.TrimSpace(q.CorrectAnswer)) {
		return true
	}
	return strings.EqualFold(a, strings.TrimSpace(q.CorrectText()))
}

func questionCount(snap *types.TestSnapshot) int {
	if snap == nil || snap.Test == nil {
		return 0
	}
	return len(snap.Test.Questions)
}

// Score extracts a numeric score from model output by concatenating every
// digit in order: "92" is 92, "Your score is 7 out of 10" is 710. No digits
// means 0. The concatenation behavior is long-standing and callers rely on
// prompts that request a bare number.
func Score(text string) int {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0
	}
	return n
}

func numToInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}
