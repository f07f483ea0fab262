package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edushift/examgate-backend/internal/model"
)

// AttemptRepository handles attempt persistence. The open-attempt invariant
// (at most one IN_PROGRESS attempt per exam-student pair) is backed by a
// partial unique index; creation races resolve to the existing row.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, exam_id, student_id, status, current_section_id,
	security_violations, security_warnings, question_order, score, is_graded,
	passed, started_at, completed_at`

func scanAttempt(row pgxRow) (*model.Attempt, error) {
	a := &model.Attempt{}
	var order []byte
	err := row.Scan(
		&a.ID, &a.ExamID, &a.StudentID, &a.Status, &a.CurrentSectionID,
		&a.SecurityViolations, &a.SecurityWarnings, &order, &a.Score, &a.IsGraded,
		&a.Passed, &a.StartedAt, &a.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(order) > 0 {
		if err := json.Unmarshal(order, &a.QuestionOrder); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Create inserts a new attempt. Returns pgx.ErrNoRows when an open attempt
// for the same exam-student pair already exists (concurrent start); callers
// re-fetch the winner.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	order, err := json.Marshal(a.QuestionOrder)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (exam_id, student_id, status, current_section_id, question_order)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (exam_id, student_id) WHERE status = 'IN_PROGRESS' DO NOTHING
		 RETURNING id, started_at`,
		a.ExamID, a.StudentID, model.AttemptStatusInProgress, a.CurrentSectionID, order,
	).Scan(&a.ID, &a.StartedAt)
}

// GetByID retrieves an attempt.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// GetOpenByExamAndStudent retrieves the student's IN_PROGRESS attempt for an
// exam, if any.
func (r *AttemptRepository) GetOpenByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE exam_id = $1 AND student_id = $2 AND status = $3`,
		examID, studentID, model.AttemptStatusInProgress))
}

// HasPassed reports whether the student already holds a completed, passing
// attempt for the exam.
func (r *AttemptRepository) HasPassed(ctx context.Context, examID uuid.UUID, studentID int) (bool, error) {
	var passed bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM attempts
		   WHERE exam_id = $1 AND student_id = $2 AND status = $3 AND passed = TRUE
		 )`, examID, studentID, model.AttemptStatusCompleted,
	).Scan(&passed)
	return passed, err
}

// CompleteIfOpen performs the atomic completion transition: complete iff
// currently not completed. Returns true when this caller won the transition;
// losers must re-read the attempt and report the winner's result.
func (r *AttemptRepository) CompleteIfOpen(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, completed_at = NOW(), current_section_id = NULL
		 WHERE id = $2 AND status = $3`,
		model.AttemptStatusCompleted, id, model.AttemptStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetCurrentSection records the active section pointer.
func (r *AttemptRepository) SetCurrentSection(ctx context.Context, id uuid.UUID, sectionID *uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts SET current_section_id = $1 WHERE id = $2`, sectionID, id)
	return err
}

// SetGrade persists a grading result. Score and passed stay NULL while manual
// grading is pending.
func (r *AttemptRepository) SetGrade(ctx context.Context, id uuid.UUID, score *float64, isGraded bool, passed *bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts SET score = $1, is_graded = $2, passed = $3 WHERE id = $4`,
		score, isGraded, passed, id)
	return err
}

// IncrementWarnings atomically bumps the warning counter of an open attempt
// and returns the new value. Returns pgx.ErrNoRows when the attempt is no
// longer open, so late events are logged without counting.
func (r *AttemptRepository) IncrementWarnings(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`UPDATE attempts
		 SET security_warnings = security_warnings + 1
		 WHERE id = $1 AND status = $2
		 RETURNING security_warnings`,
		id, model.AttemptStatusInProgress,
	).Scan(&n)
	return n, err
}

// IncrementViolations atomically bumps the violation counter of an open
// attempt and returns the new value.
func (r *AttemptRepository) IncrementViolations(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`UPDATE attempts
		 SET security_violations = security_violations + 1
		 WHERE id = $1 AND status = $2
		 RETURNING security_violations`,
		id, model.AttemptStatusInProgress,
	).Scan(&n)
	return n, err
}

// AttemptResult is one row of an exam's results listing.
type AttemptResult struct {
	AttemptID   uuid.UUID           `json:"attempt_id"`
	StudentID   int                 `json:"student_id"`
	Status      model.AttemptStatus `json:"status"`
	Score       *float64            `json:"score"`
	IsGraded    bool                `json:"is_graded"`
	Passed      *bool               `json:"passed"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt *time.Time          `json:"completed_at"`
}

// ListByExam retrieves paginated attempt results for an exam.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]AttemptResult, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE exam_id = $1`, examID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, student_id, status, score, is_graded, passed, started_at, completed_at
		 FROM attempts
		 WHERE exam_id = $1
		 ORDER BY started_at ASC
		 LIMIT $2 OFFSET $3`,
		examID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []AttemptResult
	for rows.Next() {
		var res AttemptResult
		if err := rows.Scan(&res.AttemptID, &res.StudentID, &res.Status, &res.Score,
			&res.IsGraded, &res.Passed, &res.StartedAt, &res.CompletedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}
