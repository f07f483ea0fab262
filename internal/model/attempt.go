package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states. Grading progress is
// tracked separately by Attempt.IsGraded so a completed attempt can still be
// waiting on manual grading.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
)

// Attempt is one student's in-progress or completed run of an exam. At most
// one IN_PROGRESS attempt exists per (exam, student) pair; the database
// enforces this with a partial unique index.
type Attempt struct {
	ID                 uuid.UUID     `json:"id"`
	ExamID             uuid.UUID     `json:"exam_id"`
	StudentID          int           `json:"student_id"`
	Status             AttemptStatus `json:"status"`
	CurrentSectionID   *uuid.UUID    `json:"current_section_id,omitempty"`
	SecurityViolations int           `json:"security_violations"`
	SecurityWarnings   int           `json:"security_warnings"`
	// QuestionOrder is fixed once at attempt creation and never re-randomized
	// on resume.
	QuestionOrder []uuid.UUID `json:"question_order,omitempty"`
	Score         *float64    `json:"score,omitempty"`
	IsGraded      bool        `json:"is_graded"`
	Passed        *bool       `json:"passed,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
}

// Open reports whether the attempt is still accepting progress.
func (a *Attempt) Open() bool {
	return a.Status == AttemptStatusInProgress
}

// Frozen reports whether the attempt's submitted content may no longer be
// altered: completed and fully graded.
func (a *Attempt) Frozen() bool {
	return a.Status == AttemptStatusCompleted && a.IsGraded
}

// SectionAttempt tracks one section's run inside an attempt. SectionID is nil
// for the implicit whole-exam section of a non-sectioned exam.
// RemainingSeconds is monotonically non-increasing while the section is
// active and is only written after StartedAt is set.
type SectionAttempt struct {
	ID               uuid.UUID  `json:"id"`
	AttemptID        uuid.UUID  `json:"attempt_id"`
	SectionID        *uuid.UUID `json:"section_id,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	RemainingSeconds int        `json:"remaining_seconds"`
}

// Active reports whether the section has started and not yet completed.
func (sa *SectionAttempt) Active() bool {
	return sa.StartedAt != nil && sa.CompletedAt == nil
}

// SubmitResult is the outcome of a completion request. Idempotent: repeated
// submissions of the same attempt return the same result.
type SubmitResult struct {
	Graded bool     `json:"graded"`
	Passed *bool    `json:"passed,omitempty"`
	Score  *float64 `json:"score,omitempty"`
	// AutoSubmitted is true when the completion was forced by the timer or
	// the security monitor rather than requested by the student.
	AutoSubmitted bool   `json:"auto_submitted,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// QuestionProgress is the per-question entry of an attempt's progress map.
type QuestionProgress struct {
	Answered        bool `json:"answered"`
	MarkedForReview bool `json:"marked_for_review"`
}

// AttemptState is the read-only projection served to the exam-taking UI.
type AttemptState struct {
	Attempt          *Attempt                       `json:"attempt"`
	ActiveSection    *SectionAttempt                `json:"active_section,omitempty"`
	RemainingSeconds int                            `json:"remaining_seconds"`
	Progress         map[uuid.UUID]QuestionProgress `json:"progress"`
}

// SectionUpdateTimeRequest is the payload for a client timer checkpoint.
type SectionUpdateTimeRequest struct {
	RemainingSeconds int `json:"remaining_seconds" binding:"min=0"`
}

// MarkForReviewRequest toggles the review flag on a question.
type MarkForReviewRequest struct {
	Marked *bool `json:"marked" binding:"required"`
}

// SubmitRequest is the payload for a manual or forced submission.
type SubmitRequest struct {
	Force bool `json:"force"`
}
