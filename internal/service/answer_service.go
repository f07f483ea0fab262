package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edushift/examgate-backend/internal/config"
	"github.com/edushift/examgate-backend/internal/model"
)

// AnswerService is the answer store: idempotent per-question upserts that are
// independent of grading and attempt progression. Which field an upsert
// touches is decided by the question's stored type, never by the client.
type AnswerService struct {
	attempts AttemptStore
	quests   QuestionStore
	answers  AnswerStore
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewAnswerService creates a new AnswerService.
func NewAnswerService(attempts AttemptStore, quests QuestionStore, answers AnswerStore, rdb *redis.Client, log zerolog.Logger) *AnswerService {
	return &AnswerService{
		attempts: attempts,
		quests:   quests,
		answers:  answers,
		rdb:      rdb,
		log:      log.With().Str("component", "answer_service").Logger(),
	}
}

// Upsert records a student's response. Repeated writes update in place and
// leave grading state and the review flag untouched. Writes against a
// completed, fully graded attempt are rejected.
func (s *AnswerService) Upsert(ctx context.Context, attemptID, questionID uuid.UUID, studentID int, req *model.UpsertAnswerRequest) error {
	attempt, question, err := s.ownedQuestion(ctx, attemptID, questionID, studentID)
	if err != nil {
		return err
	}
	if attempt.Frozen() {
		return ErrAttemptFrozen
	}

	switch question.Type {
	case model.QuestionTypeMultipleChoice:
		if req.SelectedChoiceID == nil {
			return ErrValidation
		}
		if !choiceBelongs(question, *req.SelectedChoiceID) {
			return ErrValidation
		}
		if err := s.answers.UpsertChoice(ctx, attemptID, questionID, *req.SelectedChoiceID); err != nil {
			return fmt.Errorf("upsert choice answer: %w", err)
		}
		s.mirrorAutosave(ctx, attemptID, questionID, req.SelectedChoiceID.String())
	case model.QuestionTypeShortAnswer, model.QuestionTypeEssay:
		if req.TextAnswer == nil {
			return ErrValidation
		}
		if err := s.answers.UpsertText(ctx, attemptID, questionID, *req.TextAnswer); err != nil {
			return fmt.Errorf("upsert text answer: %w", err)
		}
		s.mirrorAutosave(ctx, attemptID, questionID, *req.TextAnswer)
	default:
		return ErrValidation
	}
	return nil
}

// SetMarkedForReview toggles the review flag, creating a placeholder answer
// row when the question has not been answered yet. The flag does not alter
// submitted content, so it is not subject to the frozen check.
func (s *AnswerService) SetMarkedForReview(ctx context.Context, attemptID, questionID uuid.UUID, studentID int, marked bool) error {
	_, _, err := s.ownedQuestion(ctx, attemptID, questionID, studentID)
	if err != nil {
		return err
	}
	if err := s.answers.UpsertReviewMark(ctx, attemptID, questionID, marked); err != nil {
		return fmt.Errorf("upsert review mark: %w", err)
	}
	return nil
}

// List returns all answers of an attempt for state reconstruction after a
// page reload.
func (s *AnswerService) List(ctx context.Context, attemptID uuid.UUID, studentID int) ([]model.Answer, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrUnauthorized
	}
	return s.answers.ListByAttempt(ctx, attemptID)
}

func (s *AnswerService) ownedQuestion(ctx context.Context, attemptID, questionID uuid.UUID, studentID int) (*model.Attempt, *model.Question, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, nil, ErrUnauthorized
	}

	question, err := s.quests.GetByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("get question: %w", err)
	}
	if question.ExamID != attempt.ExamID {
		return nil, nil, ErrNotFound
	}
	return attempt, question, nil
}

// mirrorAutosave keeps the Redis answers hash in sync for cheap progress
// reads. Best effort; PostgreSQL holds the canonical row.
func (s *AnswerService) mirrorAutosave(ctx context.Context, attemptID, questionID uuid.UUID, value string) {
	key := config.CacheKey.AttemptAnswersKey(attemptID.String())
	if err := s.rdb.HSet(ctx, key, questionID.String(), value).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Autosave mirror failed")
	}
}

func choiceBelongs(q *model.Question, choiceID uuid.UUID) bool {
	for _, c := range q.Choices {
		if c.ID == choiceID {
			return true
		}
	}
	return false
}
