package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edushift/examgate-backend/internal/model"
)

// AnswerRepository handles answer rows. Every write is an idempotent UPSERT
// keyed by (attempt_id, question_id) that touches only its own field; grading
// state and the review flag survive answer rewrites.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

const answerColumns = `id, attempt_id, question_id, selected_choice_id, text_answer,
	score, is_graded, marked_for_review, updated_at`

func scanAnswer(row pgxRow) (*model.Answer, error) {
	a := &model.Answer{}
	err := row.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &a.SelectedChoiceID,
		&a.TextAnswer, &a.Score, &a.IsGraded, &a.MarkedForReview, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UpsertChoice records a multiple-choice selection.
func (r *AnswerRepository) UpsertChoice(ctx context.Context, attemptID, questionID, choiceID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO answers (attempt_id, question_id, selected_choice_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET selected_choice_id = EXCLUDED.selected_choice_id, updated_at = NOW()`,
		attemptID, questionID, choiceID)
	return err
}

// UpsertText records a short-answer or essay response.
func (r *AnswerRepository) UpsertText(ctx context.Context, attemptID, questionID uuid.UUID, text string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO answers (attempt_id, question_id, text_answer)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET text_answer = EXCLUDED.text_answer, updated_at = NOW()`,
		attemptID, questionID, text)
	return err
}

// UpsertReviewMark flags a question for review, creating a placeholder answer
// row when the student has not answered yet.
func (r *AnswerRepository) UpsertReviewMark(ctx context.Context, attemptID, questionID uuid.UUID, marked bool) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO answers (attempt_id, question_id, marked_for_review)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET marked_for_review = EXCLUDED.marked_for_review, updated_at = NOW()`,
		attemptID, questionID, marked)
	return err
}

// GetByID retrieves one answer.
func (r *AnswerRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Answer, error) {
	return scanAnswer(r.pool.QueryRow(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE id = $1`, id))
}

// ListByAttempt retrieves all answers of an attempt for state reconstruction
// and grading.
func (r *AnswerRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, *a)
	}
	return answers, rows.Err()
}

// BulkSetScores persists objective grading results in one statement. Grading
// is idempotent, so re-writing an already graded answer is harmless.
func (r *AnswerRepository) BulkSetScores(ctx context.Context, ids []uuid.UUID, scores []float64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE answers AS a
		 SET score = t.score, is_graded = TRUE
		 FROM (
			SELECT u.id, u.score
			FROM UNNEST($1::uuid[], $2::float8[]) AS u (id, score)
		 ) AS t
		 WHERE a.id = t.id`,
		ids, scores)
	return err
}

// SetManualScore stores an externally supplied score for a manually graded
// answer.
func (r *AnswerRepository) SetManualScore(ctx context.Context, id uuid.UUID, score float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE answers SET score = $1, is_graded = TRUE, updated_at = NOW() WHERE id = $2`,
		score, id)
	return err
}
