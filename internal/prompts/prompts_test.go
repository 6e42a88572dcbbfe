package prompts

import (
	"strings"
	"testing"
)

func TestBuildTestPromptLanguageRule(t *testing.T) {
	p := BuildTestPrompt(TestParams{Topic: "Photosynthesis", Language: "Русский", NumQuestions: 5})
	if !strings.Contains(p, "JSON keys must stay in English") {
		t.Fatalf("missing key rule: %q", p)
	}
	if !strings.Contains(p, "Русский") {
		t.Fatalf("missing language: %q", p)
	}
	if !strings.Contains(p, "exactly 5 multiple-choice questions") {
		t.Fatalf("missing question count: %q", p)
	}
}

func TestBuildBatchCheckPromptTagsEveryItem(t *testing.T) {
	p := BuildBatchCheckPrompt(BatchCheckParams{Items: []BatchCheckItem{
		{ID: 1, Question: "q1", UserAnswer: "a1"},
		{ID: 2, Question: "q2", UserAnswer: "a2"},
	}})
	for _, want := range []string{"Item 1:", "Item 2:", `"assessments"`} {
		if !strings.Contains(p, want) {
			t.Fatalf("missing %q in %q", want, p)
		}
	}
}

func TestLessonPromptCarriesImageInstruction(t *testing.T) {
	p := BuildLessonPrompt(LessonParams{CourseTitle: "C", UnitTitle: "U", LessonTitle: "L"})
	if !strings.Contains(p, "[IMAGE_PROMPT:") {
		t.Fatalf("missing image prompt instruction: %q", p)
	}
}
