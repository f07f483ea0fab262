package model

import (
	"github.com/google/uuid"
)

// QuestionType is the variant tag for question behavior. The answer store and
// grading engine switch exhaustively over this type.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeShortAnswer    QuestionType = "SHORT_ANSWER"
	QuestionTypeEssay          QuestionType = "ESSAY"
)

// Objective reports whether answers of this type are scored automatically.
func (t QuestionType) Objective() bool {
	return t == QuestionTypeMultipleChoice
}

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeMultipleChoice, QuestionTypeShortAnswer, QuestionTypeEssay:
		return true
	}
	return false
}

// Question is a single exam question. SectionID is nil for questions of a
// non-sectioned exam.
type Question struct {
	ID        uuid.UUID    `json:"id"`
	ExamID    uuid.UUID    `json:"exam_id"`
	SectionID *uuid.UUID   `json:"section_id,omitempty"`
	Type      QuestionType `json:"type"`
	Text      string       `json:"text"`
	Points    float64      `json:"points"`
	Position  int          `json:"position"`
	Choices   []Choice     `json:"choices,omitempty"`
}

// Choice is one selectable option of a multiple-choice question.
type Choice struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"question_id"`
	Text       string    `json:"text"`
	Position   int       `json:"position"`
	IsCorrect  bool      `json:"-"`
}

// CorrectChoiceID returns the ID of the correct choice, or uuid.Nil when the
// question has none recorded.
func (q *Question) CorrectChoiceID() uuid.UUID {
	for _, c := range q.Choices {
		if c.IsCorrect {
			return c.ID
		}
	}
	return uuid.Nil
}

// QuestionForStudent is a question stripped for delivery: choices carry no
// correctness flags and the JSON tag on Choice.IsCorrect keeps them out of
// serialized payloads.
type QuestionForStudent struct {
	ID        uuid.UUID    `json:"id"`
	SectionID *uuid.UUID   `json:"section_id,omitempty"`
	Type      QuestionType `json:"type"`
	Text      string       `json:"text"`
	Points    float64      `json:"points"`
	Position  int          `json:"position"`
	Choices   []Choice     `json:"choices,omitempty"`
}
