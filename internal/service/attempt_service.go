package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edushift/examgate-backend/internal/config"
	"github.com/edushift/examgate-backend/internal/grading"
	"github.com/edushift/examgate-backend/internal/model"
	"github.com/edushift/examgate-backend/internal/repository"
	"github.com/edushift/examgate-backend/internal/timer"
)

// AttemptService is the attempt lifecycle manager. It holds the only write
// authority over attempt status; the timer coordinator and security monitor
// submit *through* it, and every completion funnels into the conditional
// completeAndGrade transition so grading runs exactly once.
type AttemptService struct {
	exams    ExamStore
	quests   QuestionStore
	attempts AttemptStore
	sections SectionAttemptStore
	answers  AnswerStore
	rdb      *redis.Client
	timers   *timer.Registry
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	exams ExamStore,
	quests QuestionStore,
	attempts AttemptStore,
	sections SectionAttemptStore,
	answers AnswerStore,
	rdb *redis.Client,
	timers *timer.Registry,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		exams:    exams,
		quests:   quests,
		attempts: attempts,
		sections: sections,
		answers:  answers,
		rdb:      rdb,
		timers:   timers,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// LobbyStatus represents the concrete state of an exam in the student lobby.
type LobbyStatus string

const (
	LobbyStatusUpcoming   LobbyStatus = "UPCOMING"
	LobbyStatusAvailable  LobbyStatus = "AVAILABLE"
	LobbyStatusInProgress LobbyStatus = "IN_PROGRESS"
	LobbyStatusCompleted  LobbyStatus = "COMPLETED"
)

// LobbyExam represents an exam as displayed in the student lobby.
type LobbyExam struct {
	model.Exam
	LobbyStatus LobbyStatus          `json:"lobby_status"`
	Status      *model.AttemptStatus `json:"attempt_status,omitempty"`
	FinalScore  *float64             `json:"final_score,omitempty"`
}

// GetLobby returns the published exams with the student's attempt status
// overlaid. Enrollment scoping happens upstream of this engine.
func (s *AttemptService) GetLobby(ctx context.Context, studentID int) ([]LobbyExam, error) {
	exams, err := s.exams.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published exams: %w", err)
	}

	var lobby []LobbyExam
	now := time.Now()

	for i := range exams {
		exam := &exams[i]
		entry := LobbyExam{Exam: *exam}

		open, err := s.attempts.GetOpenByExamAndStudent(ctx, exam.ID, studentID)
		switch {
		case err == nil:
			entry.LobbyStatus = LobbyStatusInProgress
			entry.Status = &open.Status
		case errors.Is(err, pgx.ErrNoRows):
			passed, err := s.attempts.HasPassed(ctx, exam.ID, studentID)
			if err != nil {
				return nil, fmt.Errorf("check passed attempt: %w", err)
			}
			switch {
			case passed && !exam.AllowRetake:
				entry.LobbyStatus = LobbyStatusCompleted
			case exam.ScheduledStart != nil && exam.ScheduledStart.After(now):
				entry.LobbyStatus = LobbyStatusUpcoming
			case exam.AvailableNow(now):
				entry.LobbyStatus = LobbyStatusAvailable
			default:
				continue // Window already closed — hide from the lobby.
			}
		default:
			return nil, fmt.Errorf("get open attempt: %w", err)
		}

		lobby = append(lobby, entry)
	}

	return lobby, nil
}

// StartOrResume returns the student's open attempt for the exam, creating one
// when none exists. Creation validates availability and retake rules; resume
// re-seeds the countdown from persisted state and never re-randomizes the
// question order.
func (s *AttemptService) StartOrResume(ctx context.Context, examID uuid.UUID, studentID int) (*model.AttemptState, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	existing, err := s.attempts.GetOpenByExamAndStudent(ctx, examID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing attempt: %w", err)
	}
	if existing != nil {
		return s.resume(ctx, exam, existing)
	}

	now := time.Now()
	if !exam.AvailableNow(now) {
		return nil, ErrNotAvailable
	}
	if !exam.AllowRetake {
		passed, err := s.attempts.HasPassed(ctx, examID, studentID)
		if err != nil {
			return nil, fmt.Errorf("check passed attempt: %w", err)
		}
		if passed {
			return nil, ErrAlreadyCompleted
		}
	}

	order, err := s.buildQuestionOrder(ctx, exam)
	if err != nil {
		return nil, err
	}

	var firstSectionID *uuid.UUID
	durationMinutes := exam.DurationMinutes
	if exam.Sectioned() {
		first := &exam.Sections[0]
		firstSectionID = &first.ID
		durationMinutes = first.DurationMinutes
	}

	attempt := &model.Attempt{
		ExamID:           examID,
		StudentID:        studentID,
		Status:           model.AttemptStatusInProgress,
		CurrentSectionID: firstSectionID,
		QuestionOrder:    order,
		StartedAt:        now,
	}

	if err := s.attempts.Create(ctx, attempt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent start detected — the winner's attempt stands.
			winner, fetchErr := s.attempts.GetOpenByExamAndStudent(ctx, examID, studentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", fetchErr)
			}
			return s.resume(ctx, exam, winner)
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	sa := &model.SectionAttempt{
		AttemptID:        attempt.ID,
		SectionID:        firstSectionID,
		StartedAt:        &now,
		RemainingSeconds: durationMinutes * 60,
	}
	if sa, err = s.sections.Provision(ctx, sa); err != nil {
		return nil, fmt.Errorf("provision section attempt: %w", err)
	}

	s.cacheRemaining(ctx, attempt.ID, sa.RemainingSeconds)
	s.startTimer(attempt.ID, sa.RemainingSeconds)

	return s.buildState(ctx, exam, attempt, sa)
}

// resume returns an already-open attempt, re-seeding cache and timer.
func (s *AttemptService) resume(ctx context.Context, exam *model.Exam, attempt *model.Attempt) (*model.AttemptState, error) {
	sa, err := s.sections.GetActive(ctx, attempt.ID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get active section: %w", err)
		}
		sa = nil
	}

	if sa != nil {
		s.cacheRemaining(ctx, attempt.ID, sa.RemainingSeconds)
		s.startTimer(attempt.ID, sa.RemainingSeconds)
	}
	return s.buildState(ctx, exam, attempt, sa)
}

// GetState is the read-only projection of an attempt for the exam-taking UI.
func (s *AttemptService) GetState(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.AttemptState, error) {
	attempt, exam, err := s.ownedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	var sa *model.SectionAttempt
	if attempt.Open() {
		sa, err = s.sections.GetActive(ctx, attemptID)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("get active section: %w", err)
			}
			sa = nil
		}
	}

	return s.buildState(ctx, exam, attempt, sa)
}

// SectionStart activates a section: provisions its SectionAttempt with the
// full section duration if needed, stamps started_at once, and (re)starts the
// countdown. Idempotent for an already-started section.
func (s *AttemptService) SectionStart(ctx context.Context, attemptID, sectionID uuid.UUID, studentID int) (*model.SectionAttempt, error) {
	attempt, exam, err := s.ownedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if !attempt.Open() {
		return nil, ErrAlreadyCompleted
	}

	section := exam.SectionByID(sectionID)
	if section == nil {
		return nil, ErrNotFound
	}

	now := time.Now()
	sa, err := s.sections.Provision(ctx, &model.SectionAttempt{
		AttemptID:        attemptID,
		SectionID:        &section.ID,
		StartedAt:        &now,
		RemainingSeconds: section.DurationMinutes * 60,
	})
	if err != nil {
		return nil, fmt.Errorf("provision section attempt: %w", err)
	}
	if sa.StartedAt == nil {
		if err := s.sections.Start(ctx, sa.ID); err != nil {
			return nil, fmt.Errorf("start section attempt: %w", err)
		}
		sa.StartedAt = &now
	}

	if err := s.attempts.SetCurrentSection(ctx, attemptID, &section.ID); err != nil {
		return nil, fmt.Errorf("set current section: %w", err)
	}

	s.cacheRemaining(ctx, attemptID, sa.RemainingSeconds)
	s.startTimer(attemptID, sa.RemainingSeconds)
	return sa, nil
}

// SectionUpdateTime checkpoints the countdown reported by the client. The
// storage layer keeps remaining_seconds monotonically non-increasing; a
// failed checkpoint write is logged and tolerated because the next one
// supersedes it.
func (s *AttemptService) SectionUpdateTime(ctx context.Context, attemptID uuid.UUID, sectionID *uuid.UUID, studentID, remainingSeconds int) error {
	attempt, _, err := s.ownedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return err
	}
	if !attempt.Open() {
		return ErrAlreadyCompleted
	}

	sa, err := s.sections.GetByAttemptAndSection(ctx, attemptID, sectionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get section attempt: %w", err)
	}
	if sa.StartedAt == nil {
		return ErrValidation
	}

	if remainingSeconds < sa.RemainingSeconds {
		s.cacheRemaining(ctx, attemptID, remainingSeconds)
	}
	if err := s.sections.UpdateRemaining(ctx, sa.ID, remainingSeconds); err != nil {
		// Fine-grained checkpoint loss does not corrupt attempt correctness.
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Time checkpoint write failed")
	}
	return nil
}

// QueueTimeCheckpoint enqueues a countdown checkpoint for batched
// persistence; the high-frequency WebSocket tick path uses this instead of a
// direct write per tick.
func (s *AttemptService) QueueTimeCheckpoint(ctx context.Context, attemptID, sectionAttemptID uuid.UUID, remainingSeconds int) error {
	payload := fmt.Sprintf(`{"section_attempt_id":%q,"remaining_seconds":%d}`, sectionAttemptID, remainingSeconds)
	s.cacheRemaining(ctx, attemptID, remainingSeconds)
	return s.rdb.RPush(ctx, config.WorkerKey.TimeCheckpointQueue, payload).Err()
}

// AdvanceSection completes the given section and activates the next one, or
// finishes the attempt when no sections remain. Idempotent: advancing an
// already-completed section (or attempt) confirms the existing state.
func (s *AttemptService) AdvanceSection(ctx context.Context, attemptID, sectionID uuid.UUID, studentID int) (*model.Section, *model.SubmitResult, error) {
	attempt, exam, err := s.ownedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, nil, err
	}
	if !attempt.Open() {
		result := submitResultFromAttempt(attempt)
		return nil, result, nil
	}

	if !exam.Sectioned() {
		result, err := s.completeAndGrade(ctx, attemptID)
		return nil, result, err
	}

	section := exam.SectionByID(sectionID)
	if section == nil {
		return nil, nil, ErrNotFound
	}

	sa, err := s.sections.GetByAttemptAndSection(ctx, attemptID, &section.ID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("get section attempt: %w", err)
	}
	if sa != nil {
		if _, err := s.sections.CompleteIfActive(ctx, sa.ID); err != nil {
			return nil, nil, fmt.Errorf("complete section attempt: %w", err)
		}
	}

	next := exam.NextSection(section.Position)
	if next == nil {
		result, err := s.completeAndGrade(ctx, attemptID)
		return nil, result, err
	}

	now := time.Now()
	nextSA, err := s.sections.Provision(ctx, &model.SectionAttempt{
		AttemptID:        attemptID,
		SectionID:        &next.ID,
		StartedAt:        &now,
		RemainingSeconds: next.DurationMinutes * 60,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("provision next section: %w", err)
	}
	if nextSA.StartedAt == nil {
		if err := s.sections.Start(ctx, nextSA.ID); err != nil {
			return nil, nil, fmt.Errorf("start next section: %w", err)
		}
	}
	if err := s.attempts.SetCurrentSection(ctx, attemptID, &next.ID); err != nil {
		return nil, nil, fmt.Errorf("set current section: %w", err)
	}

	s.cacheRemaining(ctx, attemptID, nextSA.RemainingSeconds)
	s.startTimer(attemptID, nextSA.RemainingSeconds)
	return next, nil, nil
}

// Submit finishes a non-sectioned attempt, or any attempt when forced by the
// student, the timer, or the security monitor. Submitting an already
// completed attempt is a no-op returning the stored result.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID, studentID int, force bool) (*model.SubmitResult, error) {
	attempt, exam, err := s.ownedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if !attempt.Open() {
		return submitResultFromAttempt(attempt), nil
	}
	if exam.Sectioned() && !force {
		return nil, ErrValidation
	}
	return s.completeAndGrade(ctx, attemptID)
}

// ForceSubmit completes an attempt on behalf of the engine itself (timer
// expiry, security threshold). It bypasses the ownership check and tags the
// result with the triggering reason.
func (s *AttemptService) ForceSubmit(ctx context.Context, attemptID uuid.UUID, reason string) (*model.SubmitResult, error) {
	result, err := s.completeAndGrade(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	result.AutoSubmitted = true
	result.Reason = reason
	return result, nil
}

// completeAndGrade is the single completion path. The conditional update in
// CompleteIfOpen decides the winner; losers re-read and report the winner's
// result instead of re-running side effects.
func (s *AttemptService) completeAndGrade(ctx context.Context, attemptID uuid.UUID) (*model.SubmitResult, error) {
	won, err := s.attempts.CompleteIfOpen(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("complete attempt: %w", err)
	}
	if !won {
		attempt, err := s.attempts.GetByID(ctx, attemptID)
		if err != nil {
			return nil, fmt.Errorf("read completed attempt: %w", err)
		}
		return submitResultFromAttempt(attempt), nil
	}

	s.timers.Stop(attemptID)
	if err := s.sections.CompleteAllOpen(ctx, attemptID); err != nil {
		return nil, fmt.Errorf("close open sections: %w", err)
	}
	s.rdb.Del(ctx, config.CacheKey.AttemptRemainingKey(attemptID.String()))

	return s.grade(ctx, attemptID)
}

// grade scores objective answers, persists them, and aggregates. Safe to
// re-run: objective re-scoring is deterministic and aggregation is pure.
func (s *AttemptService) grade(ctx context.Context, attemptID uuid.UUID) (*model.SubmitResult, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	exam, err := s.exams.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	questions, err := s.quests.ListByExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	answers, err := s.answers.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	scores := grading.ScoreObjective(questions, answers)
	if len(scores) > 0 {
		ids := make([]uuid.UUID, len(scores))
		values := make([]float64, len(scores))
		for i, sc := range scores {
			ids[i] = sc.AnswerID
			values[i] = sc.Score
		}
		if err := s.answers.BulkSetScores(ctx, ids, values); err != nil {
			return nil, fmt.Errorf("persist objective scores: %w", err)
		}
	}
	grading.ApplyScores(answers, scores)

	res := grading.Aggregate(questions, answers, exam.PassingScore)

	result := &model.SubmitResult{Graded: res.FullyGraded}
	if res.FullyGraded {
		score := res.ScorePercent
		passed := res.Passed
		result.Score = &score
		result.Passed = &passed
		if err := s.attempts.SetGrade(ctx, attemptID, &score, true, &passed); err != nil {
			return nil, fmt.Errorf("persist grade: %w", err)
		}
	} else {
		// Score and pass/fail stay pending until manual grades arrive.
		if err := s.attempts.SetGrade(ctx, attemptID, nil, false, nil); err != nil {
			return nil, fmt.Errorf("persist pending grade: %w", err)
		}
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Bool("fully_graded", res.FullyGraded).
		Float64("score_percent", res.ScorePercent).
		Msg("Attempt graded")

	return result, nil
}

// GradeAnswer stores a manually determined score for a short-answer or essay
// answer of a completed attempt, then re-runs finalization. Re-entrant until
// every manual answer is graded.
func (s *AttemptService) GradeAnswer(ctx context.Context, attemptID, answerID uuid.UUID, score float64) (*model.SubmitResult, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.Open() {
		return nil, ErrValidation
	}

	answer, err := s.answers.GetByID(ctx, answerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get answer: %w", err)
	}
	if answer.AttemptID != attemptID {
		return nil, ErrNotFound
	}

	question, err := s.quests.GetByID(ctx, answer.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	if question.Type.Objective() {
		return nil, ErrValidation
	}
	if score < 0 || score > question.Points {
		return nil, ErrValidation
	}

	if err := s.answers.SetManualScore(ctx, answerID, score); err != nil {
		return nil, fmt.Errorf("persist manual score: %w", err)
	}
	return s.Finalize(ctx, attemptID)
}

// Finalize re-runs aggregation over the persisted grading state of a
// completed attempt. Once no manual answer remains ungraded it fills in the
// attempt's score and pass/fail.
func (s *AttemptService) Finalize(ctx context.Context, attemptID uuid.UUID) (*model.SubmitResult, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.Open() {
		return nil, ErrValidation
	}
	return s.grade(ctx, attemptID)
}

// ListResults returns paginated attempt results for an exam.
func (s *AttemptService) ListResults(ctx context.Context, examID uuid.UUID, page, perPage int) ([]repository.AttemptResult, int64, error) {
	return s.attempts.ListByExam(ctx, examID, page, perPage)
}

// ────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ────────────────────────────────────────────────────────────────────────────

// ownedAttempt loads an attempt and its exam, enforcing caller ownership.
func (s *AttemptService) ownedAttempt(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, *model.Exam, error) {
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

	exam, err := s.exams.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, nil, fmt.Errorf("get exam: %w", err)
	}
	return attempt, exam, nil
}

// buildQuestionOrder fixes the attempt's question order: authored position
// order, shuffled once when the exam requests randomization.
func (s *AttemptService) buildQuestionOrder(ctx context.Context, exam *model.Exam) ([]uuid.UUID, error) {
	questions, err := s.quests.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	order := make([]uuid.UUID, len(questions))
	for i := range questions {
		order[i] = questions[i].ID
	}
	if exam.RandomizeQuestions {
		rand.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}
	return order, nil
}

// buildState assembles the AttemptState projection.
func (s *AttemptService) buildState(ctx context.Context, exam *model.Exam, attempt *model.Attempt, sa *model.SectionAttempt) (*model.AttemptState, error) {
	answers, err := s.answers.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	progress := make(map[uuid.UUID]model.QuestionProgress, len(answers))
	for i := range answers {
		a := &answers[i]
		progress[a.QuestionID] = model.QuestionProgress{
			Answered:        a.Answered(),
			MarkedForReview: a.MarkedForReview,
		}
	}

	state := &model.AttemptState{
		Attempt:       attempt,
		ActiveSection: sa,
		Progress:      progress,
	}
	if sa != nil {
		state.RemainingSeconds = s.remainingFastPath(ctx, attempt.ID, sa)
	}
	return state, nil
}

// remainingFastPath reads the countdown from Redis with a PostgreSQL
// fallback; on a cache miss the value is healed back into Redis so the next
// read is fast.
func (s *AttemptService) remainingFastPath(ctx context.Context, attemptID uuid.UUID, sa *model.SectionAttempt) int {
	key := config.CacheKey.AttemptRemainingKey(attemptID.String())

	val, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		if n, parseErr := strconv.Atoi(val); parseErr == nil {
			if n < sa.RemainingSeconds {
				return n
			}
			return sa.RemainingSeconds
		}
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Redis remaining read failed")
	}

	// Cache miss — persisted row is the source of truth. Self-heal.
	s.cacheRemaining(ctx, attemptID, sa.RemainingSeconds)
	return sa.RemainingSeconds
}

// persistedRemaining is the reconcile hook handed to timer coordinators.
func (s *AttemptService) persistedRemaining(attemptID uuid.UUID) timer.RemainingFunc {
	return func(ctx context.Context) (int, error) {
		sa, err := s.sections.GetActive(ctx, attemptID)
		if err != nil {
			return 0, err
		}
		return sa.RemainingSeconds, nil
	}
}

func (s *AttemptService) cacheRemaining(ctx context.Context, attemptID uuid.UUID, remainingSeconds int) {
	key := config.CacheKey.AttemptRemainingKey(attemptID.String())
	if err := s.rdb.Set(ctx, key, remainingSeconds, 0).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Redis remaining write failed")
	}
}

// startTimer (re)starts the attempt's server-side countdown. Expiry funnels
// into ForceSubmit, which is idempotent through the completion guard.
func (s *AttemptService) startTimer(attemptID uuid.UUID, seedSeconds int) {
	if s.timers == nil {
		return
	}
	s.timers.Start(context.Background(), attemptID, seedSeconds,
		s.persistedRemaining(attemptID),
		func(ctx context.Context) error {
			_, err := s.ForceSubmit(ctx, attemptID, "time expired")
			return err
		},
	)
}

func submitResultFromAttempt(a *model.Attempt) *model.SubmitResult {
	return &model.SubmitResult{
		Graded: a.IsGraded,
		Passed: a.Passed,
		Score:  a.Score,
	}
}
