package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edushift/examgate-backend/internal/config"
	"github.com/edushift/examgate-backend/internal/model"
)

// forceSubmitter is the completion hook the monitor fires on a threshold
// breach. The lifecycle manager's completion guard makes repeated calls safe.
type forceSubmitter interface {
	ForceSubmit(ctx context.Context, attemptID uuid.UUID, reason string) (*model.SubmitResult, error)
}

// SecurityService is the proctoring monitor: it accepts discrete event
// reports, appends them to the attempt's security log, advances the
// warning/violation counters atomically, and forces submission when the
// exam's threshold is breached.
type SecurityService struct {
	attempts  AttemptStore
	exams     ExamStore
	events    SecurityEventStore
	submitter forceSubmitter
	rdb       *redis.Client
	log       zerolog.Logger
}

// SecurityEventStore reads the persisted security log.
type SecurityEventStore interface {
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.SecurityEvent, error)
}

// NewSecurityService creates a new SecurityService.
func NewSecurityService(attempts AttemptStore, exams ExamStore, events SecurityEventStore, submitter forceSubmitter, rdb *redis.Client, log zerolog.Logger) *SecurityService {
	return &SecurityService{
		attempts:  attempts,
		exams:     exams,
		events:    events,
		submitter: submitter,
		rdb:       rdb,
		log:       log.With().Str("component", "security_service").Logger(),
	}
}

// Report processes one proctoring event for an attempt. Events on completed
// attempts are still logged but never count or re-trigger submission; exams
// without browser security acknowledge without recording anything.
func (s *SecurityService) Report(ctx context.Context, attemptID uuid.UUID, studentID int, req *model.ReportSecurityEventRequest) (*model.SecurityEventResult, error) {
	if !req.Type.Known() {
		return nil, ErrValidation
	}

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

	exam, err := s.exams.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	result := &model.SecurityEventResult{
		Violations: attempt.SecurityViolations,
		Warnings:   attempt.SecurityWarnings,
	}
	if !exam.BrowserSecurityEnabled {
		return result, nil
	}

	isViolation := req.Type.CountsAsViolation()
	s.appendLog(ctx, attemptID, req.Type, isViolation, req.Data)

	if !attempt.Open() || !isViolation {
		s.publishMonitor(ctx, exam.ID, attempt, req.Type, result)
		return result, nil
	}

	// Warning mode counts qualifying events as warnings, strict mode as
	// violations; the untracked counter stays untouched in either mode.
	var count int
	if exam.AllowWarningsBeforeViolations {
		count, err = s.attempts.IncrementWarnings(ctx, attemptID)
	} else {
		count, err = s.attempts.IncrementViolations(ctx, attemptID)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Attempt was completed between the read and the increment —
			// the event stays logged, nothing more happens.
			s.publishMonitor(ctx, exam.ID, attempt, req.Type, result)
			return result, nil
		}
		return nil, fmt.Errorf("increment security counter: %w", err)
	}

	if exam.AllowWarningsBeforeViolations {
		result.Warnings = count
	} else {
		result.Violations = count
	}

	if exam.MaxViolations > 0 && count >= exam.MaxViolations {
		reason := fmt.Sprintf("security violation limit reached (%d/%d)", count, exam.MaxViolations)
		if _, err := s.submitter.ForceSubmit(ctx, attemptID, reason); err != nil {
			// Leave the attempt open; the next event or timer tick retries.
			s.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Auto-submit failed")
		} else {
			result.AutoSubmitted = true
			result.Reason = reason
			s.log.Warn().
				Str("attempt_id", attemptID.String()).
				Int("count", count).
				Msg("Attempt auto-submitted by security monitor")
		}
	}

	s.publishMonitor(ctx, exam.ID, attempt, req.Type, result)
	return result, nil
}

// GetLog returns an attempt's persisted security log in recorded order.
func (s *SecurityService) GetLog(ctx context.Context, attemptID uuid.UUID) ([]model.SecurityEvent, error) {
	return s.events.ListByAttempt(ctx, attemptID)
}

// appendLog queues the event for batched persistence. The queue is FIFO, so
// the log keeps report order.
func (s *SecurityService) appendLog(ctx context.Context, attemptID uuid.UUID, t model.SecurityEventType, isViolation bool, data json.RawMessage) {
	payload, _ := json.Marshal(map[string]interface{}{
		"attempt_id":   attemptID.String(),
		"event_type":   t,
		"is_violation": isViolation,
		"event_data":   data,
		"timestamp":    time.Now().Unix(),
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.SecurityLogQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Security log enqueue failed")
	}
}

// publishMonitor broadcasts the event to proctor dashboards subscribed to the
// exam's monitor channel. Best effort.
func (s *SecurityService) publishMonitor(ctx context.Context, examID uuid.UUID, attempt *model.Attempt, t model.SecurityEventType, result *model.SecurityEventResult) {
	payload, _ := json.Marshal(map[string]interface{}{
		"attempt_id":     attempt.ID.String(),
		"student_id":     attempt.StudentID,
		"event_type":     t,
		"violations":     result.Violations,
		"warnings":       result.Warnings,
		"auto_submitted": result.AutoSubmitted,
	})
	_ = s.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), payload).Err()
}
