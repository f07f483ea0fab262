package model

import (
	"time"

	"github.com/google/uuid"
)

// Answer is a student's response to one question of an attempt. Unique per
// (attempt, question); repeated writes update in place.
type Answer struct {
	ID               uuid.UUID  `json:"id"`
	AttemptID        uuid.UUID  `json:"attempt_id"`
	QuestionID       uuid.UUID  `json:"question_id"`
	SelectedChoiceID *uuid.UUID `json:"selected_choice_id,omitempty"`
	TextAnswer       *string    `json:"text_answer,omitempty"`
	Score            *float64   `json:"score,omitempty"`
	IsGraded         bool       `json:"is_graded"`
	MarkedForReview  bool       `json:"marked_for_review"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Answered reports whether the answer carries actual content, as opposed to a
// placeholder row created by a review mark.
func (a *Answer) Answered() bool {
	return a.SelectedChoiceID != nil || (a.TextAnswer != nil && *a.TextAnswer != "")
}

// UpsertAnswerRequest carries an answer write. Which field applies is decided
// by the question's stored type, never by the client.
type UpsertAnswerRequest struct {
	SelectedChoiceID *uuid.UUID `json:"selected_choice_id,omitempty"`
	TextAnswer       *string    `json:"text_answer,omitempty"`
}

// ManualGradeRequest supplies an externally determined score for a
// short-answer or essay answer.
type ManualGradeRequest struct {
	Score float64 `json:"score" binding:"min=0"`
}
