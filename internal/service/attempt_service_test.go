package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edushift/examgate-backend/internal/config"
	"github.com/edushift/examgate-backend/internal/model"
	"github.com/edushift/examgate-backend/internal/service"
	"github.com/edushift/examgate-backend/internal/timer"
)

const studentID = 42

func publishedExam() *model.Exam {
	return &model.Exam{
		ID:              uuid.New(),
		Title:           "Algebra Midterm",
		Status:          model.ExamStatusPublished,
		DurationMinutes: 30,
		PassingScore:    60,
	}
}

func sectionedExam() *model.Exam {
	exam := publishedExam()
	exam.Sections = []model.Section{
		{ID: uuid.New(), ExamID: exam.ID, Title: "Part One", Position: 1, DurationMinutes: 10},
		{ID: uuid.New(), ExamID: exam.ID, Title: "Part Two", Position: 2, DurationMinutes: 10},
	}
	return exam
}

func mcQuestionFor(examID uuid.UUID, points float64) model.Question {
	q := model.Question{
		ID:     uuid.New(),
		ExamID: examID,
		Type:   model.QuestionTypeMultipleChoice,
		Points: points,
	}
	q.Choices = []model.Choice{
		{ID: uuid.New(), QuestionID: q.ID, IsCorrect: true},
		{ID: uuid.New(), QuestionID: q.ID},
	}
	return q
}

func essayQuestionFor(examID uuid.UUID, points float64) model.Question {
	return model.Question{
		ID:     uuid.New(),
		ExamID: examID,
		Type:   model.QuestionTypeEssay,
		Points: points,
	}
}

type attemptFixture struct {
	exams    *fakeExamStore
	quests   *fakeQuestionStore
	attempts *fakeAttemptStore
	sections *fakeSectionStore
	answers  *fakeAnswerStore
	timers   *timer.Registry
	mr       *miniredis.Miniredis
	svc      *service.AttemptService
}

func newAttemptFixture(t *testing.T, exam *model.Exam, questions []model.Question) *attemptFixture {
	t.Helper()
	rdb, mr := newTestRedis(t)

	f := &attemptFixture{
		mr:       mr,
		exams:    newFakeExamStore(exam),
		quests:   &fakeQuestionStore{questions: questions},
		attempts: newFakeAttemptStore(),
		sections: newFakeSectionStore(),
		answers:  newFakeAnswerStore(),
		timers:   timer.NewRegistry(timer.Options{TickInterval: time.Hour}, zerolog.Nop()),
	}
	f.svc = service.NewAttemptService(f.exams, f.quests, f.attempts, f.sections, f.answers, rdb, f.timers, zerolog.Nop())
	t.Cleanup(f.timers.StopAll)
	return f
}

func TestStartCreatesAttempt(t *testing.T) {
	exam := publishedExam()
	q1 := mcQuestionFor(exam.ID, 5)
	q2 := mcQuestionFor(exam.ID, 5)
	f := newAttemptFixture(t, exam, []model.Question{q1, q2})

	state, err := f.svc.StartOrResume(context.Background(), exam.ID, studentID)
	if err != nil {
		t.Fatalf("StartOrResume: %v", err)
	}

	if !state.Attempt.Open() {
		t.Fatalf("new attempt must be open, got status %s", state.Attempt.Status)
	}
	if state.RemainingSeconds != 30*60 {
		t.Fatalf("expected full duration 1800s, got %d", state.RemainingSeconds)
	}
	if state.ActiveSection == nil || state.ActiveSection.SectionID != nil {
		t.Fatalf("non-sectioned exam must run on the implicit section, got %+v", state.ActiveSection)
	}
	if len(state.Attempt.QuestionOrder) != 2 ||
		state.Attempt.QuestionOrder[0] != q1.ID || state.Attempt.QuestionOrder[1] != q2.ID {
		t.Fatalf("expected authored question order, got %v", state.Attempt.QuestionOrder)
	}
}

func TestStartRejectsUnavailableExam(t *testing.T) {
	exam := publishedExam()
	exam.Status = model.ExamStatusDraft
	f := newAttemptFixture(t, exam, nil)

	if _, err := f.svc.StartOrResume(context.Background(), exam.ID, studentID); !errors.Is(err, service.ErrNotAvailable) {
		t.Fatalf("draft exam: expected ErrNotAvailable, got %v", err)
	}

	past := time.Now().Add(-time.Hour)
	exam.Status = model.ExamStatusPublished
	exam.ScheduledEnd = &past
	f = newAttemptFixture(t, exam, nil)
	if _, err := f.svc.StartOrResume(context.Background(), exam.ID, studentID); !errors.Is(err, service.ErrNotAvailable) {
		t.Fatalf("closed window: expected ErrNotAvailable, got %v", err)
	}

	if _, err := f.svc.StartOrResume(context.Background(), uuid.New(), studentID); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("unknown exam: expected ErrNotFound, got %v", err)
	}
}

func TestStartResumesOpenAttempt(t *testing.T) {
	exam := publishedExam()
	exam.RandomizeQuestions = true
	questions := []model.Question{mcQuestionFor(exam.ID, 1), mcQuestionFor(exam.ID, 1), mcQuestionFor(exam.ID, 1)}
	f := newAttemptFixture(t, exam, questions)

	first, err := f.svc.StartOrResume(context.Background(), exam.ID, studentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := f.svc.StartOrResume(context.Background(), exam.ID, studentID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}

	if first.Attempt.ID != second.Attempt.ID {
		t.Fatal("resume must return the existing open attempt")
	}
	if len(first.Attempt.QuestionOrder) != len(second.Attempt.QuestionOrder) {
		t.Fatal("question order length changed on resume")
	}
	for i := range first.Attempt.QuestionOrder {
		if first.Attempt.QuestionOrder[i] != second.Attempt.QuestionOrder[i] {
			t.Fatal("question order must never re-randomize on resume")
		}
	}
}

func TestStartAfterPassedAttempt(t *testing.T) {
	exam := publishedExam()
	f := newAttemptFixture(t, exam, nil)

	passed := true
	score := 80.0
	now := time.Now()
	prior := uuid.New()
	f.attempts.attempts[prior] = &model.Attempt{
		ID: prior, ExamID: exam.ID, StudentID: studentID,
		Status: model.AttemptStatusCompleted, IsGraded: true,
		Passed: &passed, Score: &score, CompletedAt: &now,
	}

	if _, err := f.svc.StartOrResume(context.Background(), exam.ID, studentID); !errors.Is(err, service.ErrAlreadyCompleted) {
		t.Fatalf("no-retake exam after a pass: expected ErrAlreadyCompleted, got %v", err)
	}

	exam.AllowRetake = true
	f.exams.exams[exam.ID] = exam
	if _, err := f.svc.StartOrResume(context.Background(), exam.ID, studentID); err != nil {
		t.Fatalf("retake exam must allow a fresh attempt, got %v", err)
	}
}

// racingAttemptStore inserts a competing attempt right before the caller's
// create, reproducing a double-submit of the start endpoint.
type racingAttemptStore struct {
	*fakeAttemptStore
	examID uuid.UUID
	once   sync.Once
	winner uuid.UUID
}

func (s *racingAttemptStore) Create(ctx context.Context, a *model.Attempt) error {
	s.once.Do(func() {
		w := &model.Attempt{ExamID: s.examID, StudentID: a.StudentID, Status: model.AttemptStatusInProgress}
		_ = s.fakeAttemptStore.Create(ctx, w)
		s.winner = w.ID
	})
	return s.fakeAttemptStore.Create(ctx, a)
}

func TestConcurrentStartResolvesToWinner(t *testing.T) {
	exam := publishedExam()
	rdb, _ := newTestRedis(t)
	racing := &racingAttemptStore{fakeAttemptStore: newFakeAttemptStore(), examID: exam.ID}
	timers := timer.NewRegistry(timer.Options{TickInterval: time.Hour}, zerolog.Nop())
	t.Cleanup(timers.StopAll)
	svc := service.NewAttemptService(newFakeExamStore(exam), &fakeQuestionStore{}, racing,
		newFakeSectionStore(), newFakeAnswerStore(), rdb, timers, zerolog.Nop())

	state, err := svc.StartOrResume(context.Background(), exam.ID, studentID)
	if err != nil {
		t.Fatalf("StartOrResume: %v", err)
	}
	if state.Attempt.ID != racing.winner {
		t.Fatalf("loser must resume the winner's attempt, got %s want %s", state.Attempt.ID, racing.winner)
	}
}

func TestAdvanceThroughSections(t *testing.T) {
	exam := sectionedExam()
	q1 := mcQuestionFor(exam.ID, 5)
	q1.SectionID = &exam.Sections[0].ID
	q2 := mcQuestionFor(exam.ID, 5)
	q2.SectionID = &exam.Sections[1].ID
	f := newAttemptFixture(t, exam, []model.Question{q1, q2})
	ctx := context.Background()

	state, err := f.svc.StartOrResume(ctx, exam.ID, studentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	attemptID := state.Attempt.ID
	if state.RemainingSeconds != 600 {
		t.Fatalf("first section must carry its own 600s budget, got %d", state.RemainingSeconds)
	}
	if state.Attempt.CurrentSectionID == nil || *state.Attempt.CurrentSectionID != exam.Sections[0].ID {
		t.Fatalf("current section must be the first section, got %v", state.Attempt.CurrentSectionID)
	}

	// Answer both questions correctly while moving through.
	if err := f.answers.UpsertChoice(ctx, attemptID, q1.ID, q1.Choices[0].ID); err != nil {
		t.Fatal(err)
	}
	if err := f.answers.UpsertChoice(ctx, attemptID, q2.ID, q2.Choices[0].ID); err != nil {
		t.Fatal(err)
	}

	next, result, err := f.svc.AdvanceSection(ctx, attemptID, exam.Sections[0].ID, studentID)
	if err != nil {
		t.Fatalf("advance to section two: %v", err)
	}
	if result != nil {
		t.Fatal("advancing mid-exam must not finish the attempt")
	}
	if next == nil || next.ID != exam.Sections[1].ID {
		t.Fatalf("expected section two next, got %+v", next)
	}

	sa1, err := f.sections.GetByAttemptAndSection(ctx, attemptID, &exam.Sections[0].ID)
	if err != nil {
		t.Fatalf("section one row: %v", err)
	}
	if sa1.CompletedAt == nil {
		t.Fatal("section one must be completed after advancing past it")
	}
	sa2, err := f.sections.GetByAttemptAndSection(ctx, attemptID, &exam.Sections[1].ID)
	if err != nil {
		t.Fatalf("section two row: %v", err)
	}
	if !sa2.Active() || sa2.RemainingSeconds != 600 {
		t.Fatalf("section two must be active with a fresh 600s budget, got %+v", sa2)
	}

	next, result, err = f.svc.AdvanceSection(ctx, attemptID, exam.Sections[1].ID, studentID)
	if err != nil {
		t.Fatalf("advance past last section: %v", err)
	}
	if next != nil {
		t.Fatalf("no section may follow the last one, got %+v", next)
	}
	if result == nil || !result.Graded {
		t.Fatalf("finishing the last section must grade the attempt, got %+v", result)
	}
	if result.Score == nil || *result.Score != 100 {
		t.Fatalf("two correct answers must score 100, got %+v", result.Score)
	}

	attempt, _ := f.attempts.GetByID(ctx, attemptID)
	if attempt.Open() {
		t.Fatal("attempt must be completed after the last section")
	}
}

func TestAdvanceSectionIdempotentAfterCompletion(t *testing.T) {
	exam := sectionedExam()
	f := newAttemptFixture(t, exam, nil)
	ctx := context.Background()

	state, err := f.svc.StartOrResume(ctx, exam.ID, studentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.Submit(ctx, state.Attempt.ID, studentID, true); err != nil {
		t.Fatalf("forced submit: %v", err)
	}

	next, result, err := f.svc.AdvanceSection(ctx, state.Attempt.ID, exam.Sections[0].ID, studentID)
	if err != nil {
		t.Fatalf("advance on completed attempt: %v", err)
	}
	if next != nil || result == nil {
		t.Fatalf("completed attempt must confirm its stored result, got next=%+v result=%+v", next, result)
	}
}

func TestSubmitSectionedRequiresForce(t *testing.T) {
	exam := sectionedExam()
	f := newAttemptFixture(t, exam, nil)
	ctx := context.Background()

	state, err := f.svc.StartOrResume(ctx, exam.ID, studentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := f.svc.Submit(ctx, state.Attempt.ID, studentID, false); !errors.Is(err, service.ErrValidation) {
		t.Fatalf("plain submit of a sectioned exam: expected ErrValidation, got %v", err)
	}
	if _, err := f.svc.Submit(ctx, state.Attempt.ID, studentID, true); err != nil {
		t.Fatalf("forced submit: %v", err)
	}
}

func TestSubmitIdempotent(t *testing.T) {
	exam := publishedExam()
	q := mcQuestionFor(exam.ID, 4)
	f := newAttemptFixture(t, exam, []model.Question{q})
	ctx := context.Background()

	state, err := f.svc.StartOrResume(ctx, exam.ID, studentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.answers.UpsertChoice(ctx, state.Attempt.ID, q.ID, q.Choices[0].ID); err != nil {
		t.Fatal(err)
	}

	first, err := f.svc.Submit(ctx, state.Attempt.ID, studentID, false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := f.svc.Submit(ctx, state.Attempt.ID, studentID, false)
	if err != nil {
		t.Fatalf("repeat submit: %v", err)
	}

	if !first.Graded || !second.Graded {
		t.Fatalf("both submissions must report graded, got %+v / %+v", first, second)
	}
	if *first.Score != *second.Score || *first.Score != 100 {
		t.Fatalf("repeat submit must return the stored result, got %v and %v", *first.Score, *second.Score)
	}

	// Completion clears the countdown cache and forgets the timer.
	if f.mr.Exists(config.CacheKey.AttemptRemainingKey(state.Attempt.ID.String())) {
		t.Fatal("completion must delete the cached countdown")
	}
	if f.timers.Get(state.Attempt.ID) != nil {
		t.Fatal("completion must stop and forget the attempt's timer")
	}
}

func TestSubmitOwnership(t *testing.T) {
	exam := publishedExam()
	f := newAttemptFixture(t, exam, nil)
	ctx := context.Background()

	state, err := f.svc.StartOrResume(ctx, exam.ID, studentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.Submit(ctx, state.Attempt.ID, studentID+1, false); !errors.Is(err, service.ErrUnauthorized) {
		t.Fatalf("foreign student: expected ErrUnauthorized, got %v", err)
	}
}

func TestManualGradingFinalizesAttempt(t *testing.T) {
	exam := publishedExam()
	mc := mcQuestionFor(exam.ID, 10)
	essay := essayQuestionFor(exam.ID, 10)
	f := newAttemptFixture(t, exam, []model.Question{mc, essay})
	ctx := context.Background()

	state, err := f.svc.StartOrResume(ctx, exam.ID, studentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	attemptID := state.Attempt.ID
	if err := f.answers.UpsertChoice(ctx, attemptID, mc.ID, mc.Choices[0].ID); err != nil {
		t.Fatal(err)
	}
	if err := f.answers.UpsertText(ctx, attemptID, essay.ID, "long-form response"); err != nil {
		t.Fatal(err)
	}

	essayAnswer := f.answers.find(attemptID, essay.ID)
	mcAnswer := f.answers.find(attemptID, mc.ID)

	// Grading before submission is rejected.
	if _, err := f.svc.GradeAnswer(ctx, attemptID, essayAnswer.ID, 5); !errors.Is(err, service.ErrValidation) {
		t.Fatalf("grading an open attempt: expected ErrValidation, got %v", err)
	}

	result, err := f.svc.Submit(ctx, attemptID, studentID, false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Graded {
		t.Fatal("attempt with a pending essay must not be fully graded at submit")
	}
	if result.Score != nil || result.Passed != nil {
		t.Fatalf("score and pass/fail must stay pending, got %+v", result)
	}

	if _, err := f.svc.GradeAnswer(ctx, attemptID, mcAnswer.ID, 5); !errors.Is(err, service.ErrValidation) {
		t.Fatalf("manual grade of an objective answer: expected ErrValidation, got %v", err)
	}
	if _, err := f.svc.GradeAnswer(ctx, attemptID, essayAnswer.ID, 11); !errors.Is(err, service.ErrValidation) {
		t.Fatalf("score above question points: expected ErrValidation, got %v", err)
	}
	if _, err := f.svc.GradeAnswer(ctx, uuid.New(), essayAnswer.ID, 5); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("unknown attempt: expected ErrNotFound, got %v", err)
	}

	result, err = f.svc.GradeAnswer(ctx, attemptID, essayAnswer.ID, 8)
	if err != nil {
		t.Fatalf("manual grade: %v", err)
	}
	if !result.Graded {
		t.Fatal("last manual grade must finalize the attempt")
	}
	if result.Score == nil || *result.Score != 90 {
		t.Fatalf("10 + 8 of 20 points must score 90, got %+v", result.Score)
	}
	if result.Passed == nil || !*result.Passed {
		t.Fatalf("90 must pass a 60 threshold, got %+v", result.Passed)
	}

	// Finalize is re-entrant; a second run confirms the same outcome.
	again, err := f.svc.Finalize(ctx, attemptID)
	if err != nil {
		t.Fatalf("re-finalize: %v", err)
	}
	if !again.Graded || *again.Score != *result.Score {
		t.Fatalf("re-finalization changed the result: %+v vs %+v", again, result)
	}
}

func TestSectionUpdateTimeMonotonic(t *testing.T) {
	exam := sectionedExam()
	f := newAttemptFixture(t, exam, nil)
	ctx := context.Background()

	state, err := f.svc.StartOrResume(ctx, exam.ID, studentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	attemptID := state.Attempt.ID
	sectionID := exam.Sections[0].ID

	if err := f.svc.SectionUpdateTime(ctx, attemptID, &sectionID, studentID, 500); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	sa, _ := f.sections.GetByAttemptAndSection(ctx, attemptID, &sectionID)
	if sa.RemainingSeconds != 500 {
		t.Fatalf("expected remaining 500, got %d", sa.RemainingSeconds)
	}

	// A late, higher checkpoint never pushes the countdown back up.
	if err := f.svc.SectionUpdateTime(ctx, attemptID, &sectionID, studentID, 580); err != nil {
		t.Fatalf("stale checkpoint: %v", err)
	}
	sa, _ = f.sections.GetByAttemptAndSection(ctx, attemptID, &sectionID)
	if sa.RemainingSeconds != 500 {
		t.Fatalf("stale checkpoint must not raise remaining, got %d", sa.RemainingSeconds)
	}

	// Section two has no provisioned row yet; its checkpoints are rejected.
	if err := f.svc.SectionUpdateTime(ctx, attemptID, &exam.Sections[1].ID, studentID, 300); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("unstarted section checkpoint: expected ErrNotFound, got %v", err)
	}
}

func TestTimerExpiryForcesSubmit(t *testing.T) {
	exam := publishedExam()
	exam.DurationMinutes = 0 // countdown starts expired
	rdb, _ := newTestRedis(t)
	attempts := newFakeAttemptStore()
	timers := timer.NewRegistry(timer.Options{TickInterval: time.Millisecond}, zerolog.Nop())
	t.Cleanup(timers.StopAll)
	svc := service.NewAttemptService(newFakeExamStore(exam), &fakeQuestionStore{}, attempts,
		newFakeSectionStore(), newFakeAnswerStore(), rdb, timers, zerolog.Nop())

	state, err := svc.StartOrResume(context.Background(), exam.ID, studentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		attempt, err := attempts.GetByID(context.Background(), state.Attempt.ID)
		if err != nil {
			t.Fatalf("get attempt: %v", err)
		}
		if !attempt.Open() {
			if !attempt.IsGraded {
				t.Fatal("expired attempt must be graded")
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("timer never force-submitted the expired attempt")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestGetLobbyStatuses(t *testing.T) {
	available := publishedExam()
	upcoming := publishedExam()
	future := time.Now().Add(time.Hour)
	upcoming.ScheduledStart = &future
	closed := publishedExam()
	past := time.Now().Add(-time.Hour)
	closed.ScheduledEnd = &past
	inProgress := publishedExam()
	passedExam := publishedExam()

	f := newAttemptFixture(t, available, nil)
	for _, e := range []*model.Exam{upcoming, closed, inProgress, passedExam} {
		f.exams.exams[e.ID] = e
	}

	openAttempt := &model.Attempt{ExamID: inProgress.ID, StudentID: studentID, Status: model.AttemptStatusInProgress}
	if err := f.attempts.Create(context.Background(), openAttempt); err != nil {
		t.Fatal(err)
	}
	passed := true
	now := time.Now()
	doneID := uuid.New()
	f.attempts.attempts[doneID] = &model.Attempt{
		ID: doneID, ExamID: passedExam.ID, StudentID: studentID,
		Status: model.AttemptStatusCompleted, IsGraded: true, Passed: &passed, CompletedAt: &now,
	}

	lobby, err := f.svc.GetLobby(context.Background(), studentID)
	if err != nil {
		t.Fatalf("GetLobby: %v", err)
	}

	byExam := make(map[uuid.UUID]service.LobbyExam, len(lobby))
	for _, entry := range lobby {
		byExam[entry.Exam.ID] = entry
	}

	if got := byExam[available.ID].LobbyStatus; got != service.LobbyStatusAvailable {
		t.Fatalf("available exam: got %s", got)
	}
	if got := byExam[upcoming.ID].LobbyStatus; got != service.LobbyStatusUpcoming {
		t.Fatalf("upcoming exam: got %s", got)
	}
	if got := byExam[inProgress.ID].LobbyStatus; got != service.LobbyStatusInProgress {
		t.Fatalf("in-progress exam: got %s", got)
	}
	if got := byExam[passedExam.ID].LobbyStatus; got != service.LobbyStatusCompleted {
		t.Fatalf("passed exam without retake: got %s", got)
	}
	if _, ok := byExam[closed.ID]; ok {
		t.Fatal("closed-window exam must be hidden from the lobby")
	}
}
