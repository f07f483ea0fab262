package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edushift/examgate-backend/internal/model"
)

// QuestionRepository reads questions and choices from the catalog.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// GetByID retrieves a single question with its choices.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q := &model.Question{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, section_id, type, text, points, position
		 FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.ExamID, &q.SectionID, &q.Type, &q.Text, &q.Points, &q.Position)
	if err != nil {
		return nil, err
	}

	choices, err := r.listChoices(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	q.Choices = choices[id]
	return q, nil
}

// ListByExam retrieves all questions of an exam ordered by position, with
// choices attached.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, section_id, type, text, points, position
		 FROM questions
		 WHERE exam_id = $1
		 ORDER BY position ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	var ids []uuid.UUID
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.SectionID, &q.Type, &q.Text, &q.Points, &q.Position); err != nil {
			return nil, err
		}
		questions = append(questions, q)
		ids = append(ids, q.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return questions, nil
	}

	choices, err := r.listChoices(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range questions {
		questions[i].Choices = choices[questions[i].ID]
	}
	return questions, nil
}

func (r *QuestionRepository) listChoices(ctx context.Context, questionIDs []uuid.UUID) (map[uuid.UUID][]model.Choice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, question_id, text, position, is_correct
		 FROM choices
		 WHERE question_id = ANY($1)
		 ORDER BY question_id, position ASC`, questionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]model.Choice)
	for rows.Next() {
		var c model.Choice
		if err := rows.Scan(&c.ID, &c.QuestionID, &c.Text, &c.Position, &c.IsCorrect); err != nil {
			return nil, err
		}
		out[c.QuestionID] = append(out[c.QuestionID], c)
	}
	return out, rows.Err()
}
