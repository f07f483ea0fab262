package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edushift/examgate-backend/internal/model"
)

// SectionAttemptRepository handles per-section attempt rows. A NULL
// section_id denotes the implicit whole-exam section of a non-sectioned exam.
type SectionAttemptRepository struct {
	pool *pgxpool.Pool
}

// NewSectionAttemptRepository creates a new SectionAttemptRepository.
func NewSectionAttemptRepository(pool *pgxpool.Pool) *SectionAttemptRepository {
	return &SectionAttemptRepository{pool: pool}
}

const sectionAttemptColumns = `id, attempt_id, section_id, started_at, completed_at, remaining_seconds`

func scanSectionAttempt(row pgxRow) (*model.SectionAttempt, error) {
	sa := &model.SectionAttempt{}
	err := row.Scan(&sa.ID, &sa.AttemptID, &sa.SectionID, &sa.StartedAt, &sa.CompletedAt, &sa.RemainingSeconds)
	if err != nil {
		return nil, err
	}
	return sa, nil
}

// Provision creates the section attempt if absent and returns the stored row
// either way. Two concurrent provisions converge on a single row through the
// unique (attempt_id, section_id) constraint.
func (r *SectionAttemptRepository) Provision(ctx context.Context, sa *model.SectionAttempt) (*model.SectionAttempt, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO section_attempts (attempt_id, section_id, started_at, remaining_seconds)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (attempt_id, section_id) DO NOTHING
		 RETURNING `+sectionAttemptColumns,
		sa.AttemptID, sa.SectionID, sa.StartedAt, sa.RemainingSeconds,
	).Scan(&sa.ID, &sa.AttemptID, &sa.SectionID, &sa.StartedAt, &sa.CompletedAt, &sa.RemainingSeconds)
	if err == nil {
		return sa, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	// Lost the insert race — the existing row wins.
	return r.GetByAttemptAndSection(ctx, sa.AttemptID, sa.SectionID)
}

// GetByAttemptAndSection retrieves one section attempt. sectionID nil matches
// the implicit section row.
func (r *SectionAttemptRepository) GetByAttemptAndSection(ctx context.Context, attemptID uuid.UUID, sectionID *uuid.UUID) (*model.SectionAttempt, error) {
	return scanSectionAttempt(r.pool.QueryRow(ctx,
		`SELECT `+sectionAttemptColumns+`
		 FROM section_attempts
		 WHERE attempt_id = $1 AND section_id IS NOT DISTINCT FROM $2`,
		attemptID, sectionID))
}

// GetActive retrieves the attempt's started, not-yet-completed section row.
func (r *SectionAttemptRepository) GetActive(ctx context.Context, attemptID uuid.UUID) (*model.SectionAttempt, error) {
	return scanSectionAttempt(r.pool.QueryRow(ctx,
		`SELECT `+sectionAttemptColumns+`
		 FROM section_attempts
		 WHERE attempt_id = $1 AND started_at IS NOT NULL AND completed_at IS NULL
		 ORDER BY started_at DESC
		 LIMIT 1`, attemptID))
}

// ListByAttempt retrieves all section attempts of an attempt.
func (r *SectionAttemptRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.SectionAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sectionAttemptColumns+`
		 FROM section_attempts
		 WHERE attempt_id = $1
		 ORDER BY started_at ASC NULLS LAST`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SectionAttempt
	for rows.Next() {
		sa, err := scanSectionAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sa)
	}
	return out, rows.Err()
}

// Start stamps started_at on a provisioned-but-unstarted section attempt.
// Idempotent: an already started section keeps its original timestamp.
func (r *SectionAttemptRepository) Start(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE section_attempts SET started_at = NOW()
		 WHERE id = $1 AND started_at IS NULL`, id)
	return err
}

// CompleteIfActive stamps completed_at iff the section is not already
// completed. Returns true when this caller performed the transition.
func (r *SectionAttemptRepository) CompleteIfActive(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE section_attempts SET completed_at = NOW()
		 WHERE id = $1 AND completed_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteAllOpen closes every unfinished section of an attempt; used by the
// forced-submission path.
func (r *SectionAttemptRepository) CompleteAllOpen(ctx context.Context, attemptID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE section_attempts SET completed_at = NOW()
		 WHERE attempt_id = $1 AND completed_at IS NULL`, attemptID)
	return err
}

// UpdateRemaining checkpoints the countdown. LEAST keeps remaining_seconds
// monotonically non-increasing even when checkpoints arrive out of order, and
// the guard refuses writes before the section has started.
func (r *SectionAttemptRepository) UpdateRemaining(ctx context.Context, id uuid.UUID, remainingSeconds int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE section_attempts
		 SET remaining_seconds = LEAST(remaining_seconds, $1)
		 WHERE id = $2 AND started_at IS NOT NULL AND completed_at IS NULL`,
		remainingSeconds, id)
	return err
}
