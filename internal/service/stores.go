package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/edushift/examgate-backend/internal/model"
	"github.com/edushift/examgate-backend/internal/repository"
)

// Store interfaces narrow the repository surface each service needs. The
// pgx-backed repositories satisfy them; tests substitute in-memory fakes.
// Absent rows surface as pgx.ErrNoRows from either implementation.

// ExamStore reads the exam catalog.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListPublished(ctx context.Context) ([]model.Exam, error)
}

// QuestionStore reads questions and choices.
type QuestionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// AttemptStore persists attempts.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	GetOpenByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error)
	HasPassed(ctx context.Context, examID uuid.UUID, studentID int) (bool, error)
	CompleteIfOpen(ctx context.Context, id uuid.UUID) (bool, error)
	SetCurrentSection(ctx context.Context, id uuid.UUID, sectionID *uuid.UUID) error
	SetGrade(ctx context.Context, id uuid.UUID, score *float64, isGraded bool, passed *bool) error
	IncrementWarnings(ctx context.Context, id uuid.UUID) (int, error)
	IncrementViolations(ctx context.Context, id uuid.UUID) (int, error)
	ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]repository.AttemptResult, int64, error)
}

// SectionAttemptStore persists per-section attempt rows.
type SectionAttemptStore interface {
	Provision(ctx context.Context, sa *model.SectionAttempt) (*model.SectionAttempt, error)
	GetByAttemptAndSection(ctx context.Context, attemptID uuid.UUID, sectionID *uuid.UUID) (*model.SectionAttempt, error)
	GetActive(ctx context.Context, attemptID uuid.UUID) (*model.SectionAttempt, error)
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.SectionAttempt, error)
	Start(ctx context.Context, id uuid.UUID) error
	CompleteIfActive(ctx context.Context, id uuid.UUID) (bool, error)
	CompleteAllOpen(ctx context.Context, attemptID uuid.UUID) error
	UpdateRemaining(ctx context.Context, id uuid.UUID, remainingSeconds int) error
}

// AnswerStore persists answers.
type AnswerStore interface {
	UpsertChoice(ctx context.Context, attemptID, questionID, choiceID uuid.UUID) error
	UpsertText(ctx context.Context, attemptID, questionID uuid.UUID, text string) error
	UpsertReviewMark(ctx context.Context, attemptID, questionID uuid.UUID, marked bool) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Answer, error)
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error)
	BulkSetScores(ctx context.Context, ids []uuid.UUID, scores []float64) error
	SetManualScore(ctx context.Context, id uuid.UUID, score float64) error
}
