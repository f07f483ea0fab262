package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/edushift/examgate-backend/internal/model"
	"github.com/edushift/examgate-backend/internal/repository"
)

// In-memory stand-ins for the pgx repositories. They imitate the SQL-level
// contracts the services depend on: pgx.ErrNoRows for absent rows, the
// conditional transitions (CompleteIfOpen, guarded increments), and the
// one-open-attempt constraint.

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()}), mr
}

type fakeExamStore struct {
	mu    sync.Mutex
	exams map[uuid.UUID]*model.Exam
}

func newFakeExamStore(exams ...*model.Exam) *fakeExamStore {
	s := &fakeExamStore{exams: make(map[uuid.UUID]*model.Exam)}
	for _, e := range exams {
		s.exams[e.ID] = e
	}
	return s
}

func (s *fakeExamStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (s *fakeExamStore) ListPublished(_ context.Context) ([]model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Exam
	for _, e := range s.exams {
		if e.Status == model.ExamStatusPublished {
			out = append(out, *e)
		}
	}
	return out, nil
}

type fakeQuestionStore struct {
	questions []model.Question
}

func (s *fakeQuestionStore) GetByID(_ context.Context, id uuid.UUID) (*model.Question, error) {
	for i := range s.questions {
		if s.questions[i].ID == id {
			cp := s.questions[i]
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *fakeQuestionStore) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	var out []model.Question
	for i := range s.questions {
		if s.questions[i].ExamID == examID {
			out = append(out, s.questions[i])
		}
	}
	return out, nil
}

type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.Attempt
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{attempts: make(map[uuid.UUID]*model.Attempt)}
}

func (s *fakeAttemptStore) Create(_ context.Context, a *model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.attempts {
		if existing.ExamID == a.ExamID && existing.StudentID == a.StudentID && existing.Open() {
			return pgx.ErrNoRows
		}
	}
	a.ID = uuid.New()
	a.StartedAt = time.Now()
	cp := *a
	s.attempts[a.ID] = &cp
	return nil
}

func (s *fakeAttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (s *fakeAttemptStore) GetOpenByExamAndStudent(_ context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.ExamID == examID && a.StudentID == studentID && a.Open() {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *fakeAttemptStore) HasPassed(_ context.Context, examID uuid.UUID, studentID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.ExamID == examID && a.StudentID == studentID &&
			a.Status == model.AttemptStatusCompleted && a.Passed != nil && *a.Passed {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeAttemptStore) CompleteIfOpen(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok || !a.Open() {
		return false, nil
	}
	now := time.Now()
	a.Status = model.AttemptStatusCompleted
	a.CompletedAt = &now
	a.CurrentSectionID = nil
	return true, nil
}

func (s *fakeAttemptStore) SetCurrentSection(_ context.Context, id uuid.UUID, sectionID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.attempts[id]; ok {
		a.CurrentSectionID = sectionID
	}
	return nil
}

func (s *fakeAttemptStore) SetGrade(_ context.Context, id uuid.UUID, score *float64, isGraded bool, passed *bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.Score = score
	a.IsGraded = isGraded
	a.Passed = passed
	return nil
}

func (s *fakeAttemptStore) IncrementWarnings(_ context.Context, id uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok || !a.Open() {
		return 0, pgx.ErrNoRows
	}
	a.SecurityWarnings++
	return a.SecurityWarnings, nil
}

func (s *fakeAttemptStore) IncrementViolations(_ context.Context, id uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok || !a.Open() {
		return 0, pgx.ErrNoRows
	}
	a.SecurityViolations++
	return a.SecurityViolations, nil
}

func (s *fakeAttemptStore) ListByExam(_ context.Context, examID uuid.UUID, page, perPage int) ([]repository.AttemptResult, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.AttemptResult
	for _, a := range s.attempts {
		if a.ExamID != examID {
			continue
		}
		out = append(out, repository.AttemptResult{
			AttemptID:   a.ID,
			StudentID:   a.StudentID,
			Status:      a.Status,
			Score:       a.Score,
			IsGraded:    a.IsGraded,
			Passed:      a.Passed,
			StartedAt:   a.StartedAt,
			CompletedAt: a.CompletedAt,
		})
	}
	return out, int64(len(out)), nil
}

type fakeSectionStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*model.SectionAttempt
}

func newFakeSectionStore() *fakeSectionStore {
	return &fakeSectionStore{rows: make(map[uuid.UUID]*model.SectionAttempt)}
}

func sectionIDsMatch(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *fakeSectionStore) Provision(_ context.Context, sa *model.SectionAttempt) (*model.SectionAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rows {
		if existing.AttemptID == sa.AttemptID && sectionIDsMatch(existing.SectionID, sa.SectionID) {
			cp := *existing
			return &cp, nil
		}
	}
	sa.ID = uuid.New()
	cp := *sa
	s.rows[sa.ID] = &cp
	return sa, nil
}

func (s *fakeSectionStore) GetByAttemptAndSection(_ context.Context, attemptID uuid.UUID, sectionID *uuid.UUID) (*model.SectionAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sa := range s.rows {
		if sa.AttemptID == attemptID && sectionIDsMatch(sa.SectionID, sectionID) {
			cp := *sa
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *fakeSectionStore) GetActive(_ context.Context, attemptID uuid.UUID) (*model.SectionAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *model.SectionAttempt
	for _, sa := range s.rows {
		if sa.AttemptID != attemptID || !sa.Active() {
			continue
		}
		if best == nil || sa.StartedAt.After(*best.StartedAt) {
			best = sa
		}
	}
	if best == nil {
		return nil, pgx.ErrNoRows
	}
	cp := *best
	return &cp, nil
}

func (s *fakeSectionStore) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.SectionAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.SectionAttempt
	for _, sa := range s.rows {
		if sa.AttemptID == attemptID {
			out = append(out, *sa)
		}
	}
	return out, nil
}

func (s *fakeSectionStore) Start(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sa, ok := s.rows[id]; ok && sa.StartedAt == nil {
		now := time.Now()
		sa.StartedAt = &now
	}
	return nil
}

func (s *fakeSectionStore) CompleteIfActive(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa, ok := s.rows[id]
	if !ok || sa.CompletedAt != nil {
		return false, nil
	}
	now := time.Now()
	sa.CompletedAt = &now
	return true, nil
}

func (s *fakeSectionStore) CompleteAllOpen(_ context.Context, attemptID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, sa := range s.rows {
		if sa.AttemptID == attemptID && sa.CompletedAt == nil {
			sa.CompletedAt = &now
		}
	}
	return nil
}

func (s *fakeSectionStore) UpdateRemaining(_ context.Context, id uuid.UUID, remainingSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa, ok := s.rows[id]
	if !ok || !sa.Active() {
		return nil
	}
	if remainingSeconds < sa.RemainingSeconds {
		sa.RemainingSeconds = remainingSeconds
	}
	return nil
}

type fakeAnswerStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*model.Answer
}

func newFakeAnswerStore() *fakeAnswerStore {
	return &fakeAnswerStore{rows: make(map[uuid.UUID]*model.Answer)}
}

func (s *fakeAnswerStore) find(attemptID, questionID uuid.UUID) *model.Answer {
	for _, a := range s.rows {
		if a.AttemptID == attemptID && a.QuestionID == questionID {
			return a
		}
	}
	return nil
}

func (s *fakeAnswerStore) upsert(attemptID, questionID uuid.UUID, mutate func(*model.Answer)) {
	a := s.find(attemptID, questionID)
	if a == nil {
		a = &model.Answer{ID: uuid.New(), AttemptID: attemptID, QuestionID: questionID}
		s.rows[a.ID] = a
	}
	mutate(a)
	a.UpdatedAt = time.Now()
}

func (s *fakeAnswerStore) UpsertChoice(_ context.Context, attemptID, questionID, choiceID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsert(attemptID, questionID, func(a *model.Answer) {
		a.SelectedChoiceID = &choiceID
		a.TextAnswer = nil
	})
	return nil
}

func (s *fakeAnswerStore) UpsertText(_ context.Context, attemptID, questionID uuid.UUID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsert(attemptID, questionID, func(a *model.Answer) {
		a.TextAnswer = &text
		a.SelectedChoiceID = nil
	})
	return nil
}

func (s *fakeAnswerStore) UpsertReviewMark(_ context.Context, attemptID, questionID uuid.UUID, marked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsert(attemptID, questionID, func(a *model.Answer) {
		a.MarkedForReview = marked
	})
	return nil
}

func (s *fakeAnswerStore) GetByID(_ context.Context, id uuid.UUID) (*model.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (s *fakeAnswerStore) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Answer
	for _, a := range s.rows {
		if a.AttemptID == attemptID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *fakeAnswerStore) BulkSetScores(_ context.Context, ids []uuid.UUID, scores []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range ids {
		if a, ok := s.rows[id]; ok {
			score := scores[i]
			a.Score = &score
			a.IsGraded = true
		}
	}
	return nil
}

func (s *fakeAnswerStore) SetManualScore(_ context.Context, id uuid.UUID, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.Score = &score
	a.IsGraded = true
	return nil
}

type fakeSecurityEventStore struct {
	mu     sync.Mutex
	events []model.SecurityEvent
}

func (s *fakeSecurityEventStore) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.SecurityEvent
	for _, ev := range s.events {
		if ev.AttemptID == attemptID {
			out = append(out, ev)
		}
	}
	return out, nil
}
