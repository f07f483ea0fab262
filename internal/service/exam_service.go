package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edushift/examgate-backend/internal/config"
	"github.com/edushift/examgate-backend/internal/model"
)

const examPayloadTTL = 6 * time.Hour

// ExamService serves the student-facing exam catalog. Payloads are assembled
// once, stripped of correctness flags, and cached in Redis so every attempt
// in a session does not re-read the question bank.
type ExamService struct {
	exams  ExamStore
	quests QuestionStore
	rdb    *redis.Client
	log    zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(exams ExamStore, quests QuestionStore, rdb *redis.Client, log zerolog.Logger) *ExamService {
	return &ExamService{
		exams:  exams,
		quests: quests,
		rdb:    rdb,
		log:    log.With().Str("component", "exam_service").Logger(),
	}
}

// GetExamPayload returns the student-facing payload for an exam, from cache
// when possible.
func (s *ExamService) GetExamPayload(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	key := config.CacheKey.ExamPayloadKey(examID.String())
	raw, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		var payload model.ExamPayload
		if err := json.Unmarshal([]byte(raw), &payload); err == nil {
			return &payload, nil
		}
		s.log.Warn().Str("exam_id", examID.String()).Msg("Corrupt cached exam payload, rebuilding")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Exam payload cache read failed")
	}

	payload, err := s.buildPayload(ctx, examID)
	if err != nil {
		return nil, err
	}
	s.cachePayload(ctx, payload)
	return payload, nil
}

// PrewarmAllCaches loads every published exam's payload into Redis. Called at
// startup so the first wave of students hits warm caches.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.exams.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}
	for _, exam := range exams {
		payload, err := s.buildPayload(ctx, exam.ID)
		if err != nil {
			s.log.Error().Err(err).Str("exam_id", exam.ID.String()).Msg("Prewarm failed for exam")
			continue
		}
		s.cachePayload(ctx, payload)
	}
	s.log.Info().Int("count", len(exams)).Msg("Exam payload caches prewarmed")
	return nil
}

// GetExamDuration returns the exam duration in minutes, with a Redis fast
// path for the timer reconcile loop.
func (s *ExamService) GetExamDuration(ctx context.Context, examID uuid.UUID) (int, error) {
	key := config.CacheKey.ExamDurationKey(examID.String())
	if minutes, err := s.rdb.Get(ctx, key).Int(); err == nil {
		return minutes, nil
	}

	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("get exam: %w", err)
	}
	if err := s.rdb.Set(ctx, key, exam.DurationMinutes, examPayloadTTL).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Exam duration cache write failed")
	}
	return exam.DurationMinutes, nil
}

func (s *ExamService) buildPayload(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	questions, err := s.quests.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].Position < questions[j].Position })

	stripped := make([]model.QuestionForStudent, 0, len(questions))
	for _, q := range questions {
		stripped = append(stripped, model.QuestionForStudent{
			ID:        q.ID,
			SectionID: q.SectionID,
			Type:      q.Type,
			Text:      q.Text,
			Points:    q.Points,
			Position:  q.Position,
			Choices:   q.Choices,
		})
	}

	return &model.ExamPayload{
		ExamID:    exam.ID,
		Title:     exam.Title,
		Duration:  exam.DurationMinutes,
		Sections:  exam.Sections,
		Questions: stripped,
	}, nil
}

func (s *ExamService) cachePayload(ctx context.Context, payload *model.ExamPayload) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Msg("Exam payload marshal failed")
		return
	}
	key := config.CacheKey.ExamPayloadKey(payload.ExamID.String())
	if err := s.rdb.Set(ctx, key, raw, examPayloadTTL).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Exam payload cache write failed")
	}
	durationKey := config.CacheKey.ExamDurationKey(payload.ExamID.String())
	if err := s.rdb.Set(ctx, durationKey, payload.Duration, examPayloadTTL).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Exam duration cache write failed")
	}
}
