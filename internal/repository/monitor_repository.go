package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MonitorRepository aggregates live proctoring data for an exam.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// GetAnsweredCounts returns answered-question counts per student for an exam.
// Placeholder rows created by review marks are excluded.
func (r *MonitorRepository) GetAnsweredCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT at.student_id, COUNT(an.id)
		 FROM attempts at
		 JOIN answers an ON an.attempt_id = at.id
		 WHERE at.exam_id = $1
		   AND (an.selected_choice_id IS NOT NULL OR COALESCE(an.text_answer, '') <> '')
		 GROUP BY at.student_id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var studentID int
		var n int64
		if err := rows.Scan(&studentID, &n); err != nil {
			return nil, err
		}
		counts[studentID] = n
	}
	return counts, rows.Err()
}

// GetViolationCounts returns qualifying security event counts per student for
// an exam.
func (r *MonitorRepository) GetViolationCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT at.student_id, COUNT(ev.id)
		 FROM attempts at
		 JOIN attempt_security_events ev ON ev.attempt_id = at.id
		 WHERE at.exam_id = $1 AND ev.is_violation = TRUE
		 GROUP BY at.student_id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var studentID int
		var n int64
		if err := rows.Scan(&studentID, &n); err != nil {
			return nil, err
		}
		counts[studentID] = n
	}
	return counts, rows.Err()
}
