// Package prompts builds every prompt sent to the text model. Builders take
// typed parameter structs; handlers and services never assemble prompt
// strings inline.
//
// All prompts that request JSON instruct the model to keep JSON keys in
// English while writing human-readable values in the user's language.
package prompts

import (
	"fmt"
	"strings"
)

type TestParams struct {
	Topic        string
	Knowledge    string // the user's own description of what they already know
	Language     string
	NumQuestions int
}

// BuildTestPrompt requests the initial knowledge-assessment test for a topic.
func BuildTestPrompt(p TestParams) string {
	n := p.NumQuestions
	if n <= 0 {
		n = 5
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are a tutor preparing a short diagnostic test about %q.\n", p.Topic)
	if strings.TrimSpace(p.Knowledge) != "" {
		fmt.Fprintf(&b, "The student describes their current knowledge as: %q.\n", p.Knowledge)
	}
	fmt.Fprintf(&b, "Write exactly %d multiple-choice questions that reveal how deep the student's understanding goes.\n", n)
	b.WriteString("Respond with ONLY a JSON object of this exact shape:\n")
	b.WriteString(`{"test_title": "...", "questions": [{"question": "...", "options": {"option1": "...", "option2": "...", "option3": "...", "option4": "..."}, "correct_answer": "option2"}]}` + "\n")
	b.WriteString("Each question has exactly four options and exactly one correct answer, given as the option key.\n")
	writeLanguageRule(&b, p.Language)
	return b.String()
}

type UnitTestParams struct {
	CourseTitle  string
	UnitTitle    string
	LessonTitles []string
	Language     string
	NumQuestions int
}

// BuildUnitTestPrompt requests the end-of-unit test for a course unit.
func BuildUnitTestPrompt(p UnitTestParams) string {
	n := p.NumQuestions
	if n <= 0 {
		n = 5
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Write a test for the unit %q of the course %q.\n", p.UnitTitle, p.CourseTitle)
	if len(p.LessonTitles) > 0 {
		fmt.Fprintf(&b, "The unit covers these lessons: %s.\n", strings.Join(p.LessonTitles, "; "))
	}
	fmt.Fprintf(&b, "Write exactly %d multiple-choice questions covering the unit material.\n", n)
	b.WriteString("Respond with ONLY a JSON object of this exact shape:\n")
	b.WriteString(`{"test_title": "...", "questions": [{"question": "...", "options": {"option1": "...", "option2": "...", "option3": "...", "option4": "..."}, "correct_answer": "option3"}]}` + "\n")
	writeLanguageRule(&b, p.Language)
	return b.String()
}

// BatchCheckItem is one tagged answer in a batched evaluation request.
type BatchCheckItem struct {
	ID         int
	Question   string
	UserAnswer string
}

type BatchCheckParams struct {
	Items    []BatchCheckItem
	Language string
}

// BuildBatchCheckPrompt requests verdicts for a whole answer set in a single
// call. Items carry numeric ids so responses can be re-ordered.
func BuildBatchCheckPrompt(p BatchCheckParams) string {
	var b strings.Builder
	b.WriteString("Evaluate the following answers. For each item, state briefly whether the answer is correct, and if not, what the correct answer is.\n")
	for _, it := range p.Items {
		fmt.Fprintf(&b, "Item %d:\nQuestion: %s\nStudent's answer: %s\n", it.ID, it.Question, it.UserAnswer)
	}
	b.WriteString("Respond with ONLY a JSON object of this exact shape:\n")
	b.WriteString(`{"assessments": [{"id": 1, "assessment": "..."}]}` + "\n")
	b.WriteString("Include every item id exactly once.\n")
	writeLanguageRule(&b, p.Language)
	return b.String()
}

// AnswerVerdict pairs an answered question with its evaluation verdict.
type AnswerVerdict struct {
	Question   string
	UserAnswer string
	Verdict    string
}

type AssessmentParams struct {
	Topic    string
	Language string
	Records  []AnswerVerdict
}

// BuildAssessmentPrompt requests a qualitative summary of the student's
// knowledge based on the evaluated test.
func BuildAssessmentPrompt(p AssessmentParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A student took a diagnostic test about %q. Here are the questions, their answers and the evaluations:\n", p.Topic)
	for i, r := range p.Records {
		fmt.Fprintf(&b, "%d. Question: %s\nAnswer: %s\nEvaluation: %s\n", i+1, r.Question, r.UserAnswer, r.Verdict)
	}
	b.WriteString("Write one concise paragraph assessing the student's current knowledge of the topic: strengths, gaps, and what to focus on. Address the student directly. Do not use JSON or markdown.\n")
	if lang := strings.TrimSpace(p.Language); lang != "" && !strings.EqualFold(lang, "English") {
		fmt.Fprintf(&b, "Write the paragraph in %s.\n", lang)
	}
	return b.String()
}

type ScoreParams struct {
	Topic      string
	Assessment string
}

// BuildScorePrompt requests a numeric knowledge score for an assessment.
func BuildScorePrompt(p ScoreParams) string {
	return fmt.Sprintf(
		"Based on this assessment of a student's knowledge of %q, rate their knowledge from 0 to 100. Respond with the number only, no other text.\n\nAssessment: %s\n",
		p.Topic, p.Assessment)
}

type CourseParams struct {
	Topic      string
	Assessment string
	Language   string
	Age        int
	Bio        string
}

// BuildCoursePrompt requests the full structural course document.
func BuildCoursePrompt(p CourseParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Design a personalized course about %q.\n", p.Topic)
	if strings.TrimSpace(p.Assessment) != "" {
		fmt.Fprintf(&b, "The student's assessed knowledge: %s\n", p.Assessment)
	}
	if p.Age > 0 {
		fmt.Fprintf(&b, "The student is %d years old.\n", p.Age)
	}
	if strings.TrimSpace(p.Bio) != "" {
		fmt.Fprintf(&b, "About the student: %s\n", p.Bio)
	}
	b.WriteString("Split the course into units; each unit has lessons and ends with a test.\n")
	b.WriteString("Respond with ONLY a JSON object of this exact shape:\n")
	b.WriteString(`{"course_title": "...", "units": [{"unit_title": "...", "lessons": [{"lesson_title": "...", "estimated_time_minutes": 15}], "test": {"test_title": "..."}}]}` + "\n")
	writeLanguageRule(&b, p.Language)
	return b.String()
}

type TitleParams struct {
	Title string
}

// BuildTitlePrompt requests a catchier course title. The caller enforces the
// length rule; the prompt just nudges.
func BuildTitlePrompt(p TitleParams) string {
	return fmt.Sprintf(
		"Suggest a catchier, more engaging title for a course currently titled %q. Keep the same language as the original title and keep it under 60 characters. Respond with the title only, no quotes, no other text.\n",
		p.Title)
}

type LessonParams struct {
	CourseTitle          string
	UnitTitle            string
	LessonTitle          string
	CourseOutline        string // compact description of the whole course for context
	Language             string
	PreferredLength      string
	EstimatedTimeMinutes int
}

// BuildLessonPrompt requests the body of a single lesson as markdown.
func BuildLessonPrompt(p LessonParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the lesson %q from the unit %q of the course %q.\n", p.LessonTitle, p.UnitTitle, p.CourseTitle)
	if strings.TrimSpace(p.CourseOutline) != "" {
		fmt.Fprintf(&b, "Course outline for context:\n%s\n", p.CourseOutline)
	}
	if p.EstimatedTimeMinutes > 0 {
		fmt.Fprintf(&b, "The lesson should take about %d minutes to read.\n", p.EstimatedTimeMinutes)
	}
	if strings.TrimSpace(p.PreferredLength) != "" {
		fmt.Fprintf(&b, "The student prefers %s-length lessons.\n", strings.ToLower(p.PreferredLength))
	}
	b.WriteString("Write in markdown. Use headings, lists, tables and fenced code blocks where they help.\n")
	b.WriteString(`Where an illustration would help, insert a line of the exact form [IMAGE_PROMPT: "description of the image"] and continue the text after it.` + "\n")
	b.WriteString("Do not include the lesson title as a heading; start directly with the content.\n")
	if lang := strings.TrimSpace(p.Language); lang != "" && !strings.EqualFold(lang, "English") {
		fmt.Fprintf(&b, "Write the lesson in %s.\n", lang)
	}
	return b.String()
}

// TitleEditKeywords are the instruction substrings that route an edit to the
// title-only path.
var TitleEditKeywords = []string{"title", "name", "rename", "call this"}

// IsTitleEdit reports whether the instruction is a title edit. Matching is a
// case-insensitive substring check, so "rename the third unit" also routes
// here; the structural path is only taken when no keyword appears.
func IsTitleEdit(instruction string) bool {
	low := strings.ToLower(instruction)
	for _, kw := range TitleEditKeywords {
		if strings.Contains(low, kw) {
			return true
		}
	}
	return false
}

type TitleEditParams struct {
	CurrentTitle string
	Instruction  string
	Language     string
}

// BuildTitleEditPrompt requests a new course title per the user's instruction.
func BuildTitleEditPrompt(p TitleEditParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A course is titled %q. The user asked: %q.\n", p.CurrentTitle, p.Instruction)
	b.WriteString("Respond with the new course title only, under 60 characters, no quotes, no other text.\n")
	if lang := strings.TrimSpace(p.Language); lang != "" && !strings.EqualFold(lang, "English") {
		fmt.Fprintf(&b, "Keep the title in %s.\n", lang)
	}
	return b.String()
}

type StructureEditParams struct {
	CourseDataJSON string
	Instruction    string
	Language       string
}

// BuildStructureEditPrompt requests a full replacement course document
// reflecting the user's instruction.
func BuildStructureEditPrompt(p StructureEditParams) string {
	var b strings.Builder
	b.WriteString("Here is the current structure of a course as JSON:\n")
	b.WriteString(p.CourseDataJSON + "\n")
	fmt.Fprintf(&b, "The user asked for this change: %q.\n", p.Instruction)
	b.WriteString("Apply the change and respond with ONLY the complete updated JSON document in the same shape. Keep every unit and lesson the user did not ask to change exactly as it is, including titles.\n")
	writeLanguageRule(&b, p.Language)
	return b.String()
}

type TutorParams struct {
	CourseTitle   string
	LessonContext string
	Question      string
	Language      string
}

// BuildTutorPrompt requests a streamed answer to a student question in the
// context of the course they are taking.
func BuildTutorPrompt(p TutorParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a tutor for the course %q.\n", p.CourseTitle)
	if strings.TrimSpace(p.LessonContext) != "" {
		fmt.Fprintf(&b, "The student is currently studying:\n%s\n", p.LessonContext)
	}
	fmt.Fprintf(&b, "The student asks: %q.\n", p.Question)
	b.WriteString("Answer helpfully and concisely in markdown.\n")
	if lang := strings.TrimSpace(p.Language); lang != "" && !strings.EqualFold(lang, "English") {
		fmt.Fprintf(&b, "Answer in %s.\n", lang)
	}
	return b.String()
}

func writeLanguageRule(b *strings.Builder, language string) {
	lang := strings.TrimSpace(language)
	if lang == "" {
		lang = "English"
	}
	fmt.Fprintf(b, "JSON keys must stay in English exactly as shown; all human-readable values must be in %s.\n", lang)
}
