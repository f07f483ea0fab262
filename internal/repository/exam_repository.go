package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edushift/examgate-backend/internal/model"
)

// ExamRepository reads the exam catalog. The catalog is authored externally;
// this engine never writes to it.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, title, status, scheduled_start, scheduled_end, duration_minutes,
	passing_score, allow_retake, randomize_questions, browser_security_enabled,
	allow_warnings_before_violations, max_violations, created_at, updated_at`

func scanExam(row pgxRow, e *model.Exam) error {
	return row.Scan(
		&e.ID, &e.Title, &e.Status, &e.ScheduledStart, &e.ScheduledEnd, &e.DurationMinutes,
		&e.PassingScore, &e.AllowRetake, &e.RandomizeQuestions, &e.BrowserSecurityEnabled,
		&e.AllowWarningsBeforeViolations, &e.MaxViolations, &e.CreatedAt, &e.UpdatedAt,
	)
}

// pgxRow is the scan surface shared by QueryRow results and Rows.
type pgxRow interface {
	Scan(dest ...any) error
}

// GetByID retrieves an exam with its sections ordered by position.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id), e)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, title, position, duration_minutes
		 FROM sections
		 WHERE exam_id = $1
		 ORDER BY position ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s model.Section
		if err := rows.Scan(&s.ID, &s.ExamID, &s.Title, &s.Position, &s.DurationMinutes); err != nil {
			return nil, err
		}
		e.Sections = append(e.Sections, s)
	}
	return e, rows.Err()
}

// ListPublished retrieves all published exams, used for lobby listings and
// cache prewarming.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams WHERE status = $1 ORDER BY scheduled_start ASC NULLS LAST`,
		model.ExamStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}
