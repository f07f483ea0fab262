package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the publication states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam is the read-only exam configuration this engine consumes. Exams are
// authored by external tooling and never modified while an attempt is open.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Status          ExamStatus `json:"status"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	PassingScore    float64    `json:"passing_score"`
	// AllowRetake permits a new attempt even after a completed passing one.
	AllowRetake        bool `json:"allow_retake"`
	RandomizeQuestions bool `json:"randomize_questions"`
	// BrowserSecurityEnabled activates the proctoring monitor for attempts
	// of this exam. The two fields below are ignored when it is false.
	BrowserSecurityEnabled bool `json:"browser_security_enabled"`
	// AllowWarningsBeforeViolations selects warning-counting mode: qualifying
	// events increment security_warnings instead of security_violations.
	AllowWarningsBeforeViolations bool `json:"allow_warnings_before_violations"`
	MaxViolations                 int  `json:"max_violations"`

	Sections []Section `json:"sections,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Section is an ordered, independently timed sub-part of a sectioned exam.
type Section struct {
	ID              uuid.UUID `json:"id"`
	ExamID          uuid.UUID `json:"exam_id"`
	Title           string    `json:"title"`
	Position        int       `json:"position"`
	DurationMinutes int       `json:"duration_minutes"`
}

// AvailableNow reports whether the exam can be started at the given instant:
// published and inside its scheduled window (open-ended bounds permitted).
func (e *Exam) AvailableNow(now time.Time) bool {
	if e.Status != ExamStatusPublished {
		return false
	}
	if e.ScheduledStart != nil && now.Before(*e.ScheduledStart) {
		return false
	}
	if e.ScheduledEnd != nil && now.After(*e.ScheduledEnd) {
		return false
	}
	return true
}

// Sectioned reports whether the exam declares explicit sections. A
// non-sectioned exam runs as a single implicit section spanning the whole
// duration.
func (e *Exam) Sectioned() bool {
	return len(e.Sections) > 0
}

// SectionByID returns the section with the given ID, or nil.
func (e *Exam) SectionByID(id uuid.UUID) *Section {
	for i := range e.Sections {
		if e.Sections[i].ID == id {
			return &e.Sections[i]
		}
	}
	return nil
}

// NextSection returns the section following the given position, or nil when
// none remain. Sections are compared by their authored position order.
func (e *Exam) NextSection(afterPosition int) *Section {
	var next *Section
	for i := range e.Sections {
		s := &e.Sections[i]
		if s.Position <= afterPosition {
			continue
		}
		if next == nil || s.Position < next.Position {
			next = s
		}
	}
	return next
}

// ExamPayload is the Redis-cached payload sent to students (no correctness flags).
type ExamPayload struct {
	ExamID    uuid.UUID            `json:"exam_id"`
	Title     string               `json:"title"`
	Duration  int                  `json:"duration_minutes"`
	Sections  []Section            `json:"sections,omitempty"`
	Questions []QuestionForStudent `json:"questions"`
}
