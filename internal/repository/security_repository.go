package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edushift/examgate-backend/internal/model"
)

// SecurityRepository reads the append-only security log. Writes happen in the
// security log worker, which batch-inserts queued events.
type SecurityRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityRepository creates a new SecurityRepository.
func NewSecurityRepository(pool *pgxpool.Pool) *SecurityRepository {
	return &SecurityRepository{pool: pool}
}

// ListByAttempt retrieves an attempt's security log in recorded order.
func (r *SecurityRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.SecurityEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, event_type, is_violation, event_data, recorded_at
		 FROM attempt_security_events
		 WHERE attempt_id = $1
		 ORDER BY id ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.SecurityEvent
	for rows.Next() {
		var e model.SecurityEvent
		if err := rows.Scan(&e.ID, &e.AttemptID, &e.Type, &e.IsViolation, &e.Data, &e.RecordedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
