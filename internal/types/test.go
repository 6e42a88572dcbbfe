package types

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// TestQuestion is a single multiple-choice question. Options are keyed
// option1..optionN; exactly one key is the correct answer.
type TestQuestion struct {
	Question      string            `json:"question"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correct_answer"`
}

// OptionKeys returns the option keys in their natural option1..optionN order.
func (q TestQuestion) OptionKeys() []string {
	keys := make([]string, 0, len(q.Options))
	for k := range q.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CorrectText resolves the correct answer to its display text. Falls back to
// the raw correct_answer value when it is not an option key.
func (q TestQuestion) CorrectText() string {
	if v, ok := q.Options[strings.TrimSpace(q.CorrectAnswer)]; ok {
		return v
	}
	return q.CorrectAnswer
}

type Test struct {
	TestTitle string         `json:"test_title"`
	Questions []TestQuestion `json:"questions"`
}

// AnswerRecord pairs a question with what the user answered.
type AnswerRecord struct {
	Question   string `json:"question"`
	UserAnswer string `json:"user_answer"`
}

// Snapshot states for an in-flight test session.
const (
	TestStateAwaitingTopic = "awaiting_topic"
	TestStateInProgress    = "in_progress"
	TestStateCompleted     = "completed"
	TestStateEvaluated     = "evaluated"
	TestStateScored        = "scored"
)

// Snapshot kinds.
const (
	TestKindAssessment = "assessment"
	TestKindUnit       = "unit"
)

// TestSnapshotVersion guards against decoding snapshots written by an
// incompatible build.
const TestSnapshotVersion = 1

// TestSnapshot is the serialized session state for a test in progress. It is
// stored opaquely (redis) and round-trips through JSON.
type TestSnapshot struct {
	Version int    `json:"version"`
	Kind    string `json:"kind"`
	State   string `json:"state"`

	// Assessment flow context.
	Topic string `json:"topic,omitempty"`

	// Unit test flow context.
	CourseID  *uuid.UUID `json:"course_id,omitempty"`
	UnitTitle string     `json:"unit_title,omitempty"`

	Test    *Test          `json:"test,omitempty"`
	Index   int            `json:"index"`
	Answers []AnswerRecord `json:"answers,omitempty"`

	Verdicts   []string `json:"verdicts,omitempty"`
	Assessment string   `json:"assessment,omitempty"`
	Score      int      `json:"score"`
}
