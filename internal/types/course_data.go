package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CourseData is the structural document stored on Course.CourseData. The
// model produces it as JSON; everything downstream (lesson rows, unit tests,
// edits) is derived from this shape.
type CourseData struct {
	CourseTitle string       `json:"course_title"`
	Units       []CourseUnit `json:"units"`
}

type CourseUnit struct {
	UnitTitle string         `json:"unit_title"`
	Lessons   []LessonOutline `json:"lessons"`
	Test      UnitTestOutline `json:"test"`
}

type LessonOutline struct {
	LessonTitle          string `json:"lesson_title"`
	EstimatedTimeMinutes int    `json:"estimated_time_minutes"`
}

type UnitTestOutline struct {
	TestTitle string `json:"test_title"`
}

// ParseCourseData decodes an extracted JSON object into CourseData. It is
// tolerant of numeric fields arriving as floats.
func ParseCourseData(m map[string]any) (*CourseData, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("re-encode course data: %w", err)
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var loose struct {
		CourseTitle string `json:"course_title"`
		Units       []struct {
			UnitTitle string `json:"unit_title"`
			Lessons   []struct {
				LessonTitle          string      `json:"lesson_title"`
				EstimatedTimeMinutes json.Number `json:"estimated_time_minutes"`
			} `json:"lessons"`
			Test UnitTestOutline `json:"test"`
		} `json:"units"`
	}
	if err := dec.Decode(&loose); err != nil {
		return nil, fmt.Errorf("decode course data: %w", err)
	}
	d := &CourseData{CourseTitle: strings.TrimSpace(loose.CourseTitle)}
	for _, u := range loose.Units {
		unit := CourseUnit{UnitTitle: strings.TrimSpace(u.UnitTitle), Test: u.Test}
		for _, l := range u.Lessons {
			mins := 0
			if f, err := l.EstimatedTimeMinutes.Float64(); err == nil {
				mins = int(f)
			}
			unit.Lessons = append(unit.Lessons, LessonOutline{
				LessonTitle:          strings.TrimSpace(l.LessonTitle),
				EstimatedTimeMinutes: mins,
			})
		}
		d.Units = append(d.Units, unit)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the minimal shape contract.
func (d *CourseData) Validate() error {
	if d == nil {
		return fmt.Errorf("course data is nil")
	}
	if d.CourseTitle == "" {
		return fmt.Errorf("course data missing course_title")
	}
	if len(d.Units) == 0 {
		return fmt.Errorf("course data has no units")
	}
	for i, u := range d.Units {
		if u.UnitTitle == "" {
			return fmt.Errorf("unit %d missing unit_title", i)
		}
		if len(u.Lessons) == 0 {
			return fmt.Errorf("unit %q has no lessons", u.UnitTitle)
		}
		for j, l := range u.Lessons {
			if l.LessonTitle == "" {
				return fmt.Errorf("unit %q lesson %d missing lesson_title", u.UnitTitle, j)
			}
		}
	}
	return nil
}

// LessonSkeletons flattens the document into Lesson rows in stable
// unit-major order.
func (d *CourseData) LessonSkeletons(courseID uuid.UUID) []*Lesson {
	var out []*Lesson
	pos := 0
	for _, u := range d.Units {
		for _, l := range u.Lessons {
			out = append(out, &Lesson{
				ID:          uuid.New(),
				CourseID:    courseID,
				UnitTitle:   u.UnitTitle,
				LessonTitle: l.LessonTitle,
				Position:    pos,
			})
			pos++
		}
	}
	return out
}

// JSON encodes the document for the courses.course_data column.
func (d *CourseData) JSON() ([]byte, error) {
	return json.Marshal(d)
}
