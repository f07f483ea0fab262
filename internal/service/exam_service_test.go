package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edushift/examgate-backend/internal/config"
	"github.com/edushift/examgate-backend/internal/model"
	"github.com/edushift/examgate-backend/internal/service"
)

func TestGetExamPayloadStripsCorrectness(t *testing.T) {
	exam := publishedExam()
	q := mcQuestionFor(exam.ID, 5)
	q.Position = 2
	q2 := mcQuestionFor(exam.ID, 5)
	q2.Position = 1

	rdb, mr := newTestRedis(t)
	svc := service.NewExamService(newFakeExamStore(exam), &fakeQuestionStore{questions: []model.Question{q, q2}}, rdb, zerolog.Nop())

	payload, err := svc.GetExamPayload(context.Background(), exam.ID)
	if err != nil {
		t.Fatalf("GetExamPayload: %v", err)
	}
	if payload.ExamID != exam.ID || len(payload.Questions) != 2 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Questions[0].Position != 1 || payload.Questions[1].Position != 2 {
		t.Fatalf("questions must be position-sorted, got %+v", payload.Questions)
	}

	// Serialized form must not leak which choice is correct.
	cached, err := mr.Get(config.CacheKey.ExamPayloadKey(exam.ID.String()))
	if err != nil {
		t.Fatalf("payload not cached: %v", err)
	}
	if strings.Contains(cached, "is_correct") || strings.Contains(cached, "IsCorrect") {
		t.Fatal("cached payload leaks correctness flags")
	}
}

func TestGetExamPayloadServesFromCache(t *testing.T) {
	exam := publishedExam()
	rdb, mr := newTestRedis(t)
	svc := service.NewExamService(newFakeExamStore(exam), &fakeQuestionStore{}, rdb, zerolog.Nop())

	stale := model.ExamPayload{ExamID: exam.ID, Title: "Cached Title", Duration: 99}
	raw, _ := json.Marshal(stale)
	if err := mr.Set(config.CacheKey.ExamPayloadKey(exam.ID.String()), string(raw)); err != nil {
		t.Fatal(err)
	}

	payload, err := svc.GetExamPayload(context.Background(), exam.ID)
	if err != nil {
		t.Fatalf("GetExamPayload: %v", err)
	}
	if payload.Title != "Cached Title" || payload.Duration != 99 {
		t.Fatalf("cache hit must short-circuit the store, got %+v", payload)
	}
}

func TestGetExamPayloadRebuildsOnCorruptCache(t *testing.T) {
	exam := publishedExam()
	rdb, mr := newTestRedis(t)
	svc := service.NewExamService(newFakeExamStore(exam), &fakeQuestionStore{}, rdb, zerolog.Nop())

	if err := mr.Set(config.CacheKey.ExamPayloadKey(exam.ID.String()), "{not json"); err != nil {
		t.Fatal(err)
	}

	payload, err := svc.GetExamPayload(context.Background(), exam.ID)
	if err != nil {
		t.Fatalf("GetExamPayload: %v", err)
	}
	if payload.Title != exam.Title {
		t.Fatalf("corrupt cache must rebuild from the store, got %+v", payload)
	}
}

func TestGetExamPayloadUnknownExam(t *testing.T) {
	rdb, _ := newTestRedis(t)
	svc := service.NewExamService(newFakeExamStore(), &fakeQuestionStore{}, rdb, zerolog.Nop())

	if _, err := svc.GetExamPayload(context.Background(), uuid.New()); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPrewarmAllCaches(t *testing.T) {
	published := publishedExam()
	draft := publishedExam()
	draft.Status = model.ExamStatusDraft

	rdb, mr := newTestRedis(t)
	svc := service.NewExamService(newFakeExamStore(published, draft), &fakeQuestionStore{}, rdb, zerolog.Nop())

	if err := svc.PrewarmAllCaches(context.Background()); err != nil {
		t.Fatalf("PrewarmAllCaches: %v", err)
	}

	if !mr.Exists(config.CacheKey.ExamPayloadKey(published.ID.String())) {
		t.Fatal("published exam must be prewarmed")
	}
	if mr.Exists(config.CacheKey.ExamPayloadKey(draft.ID.String())) {
		t.Fatal("draft exam must not be prewarmed")
	}
	if !mr.Exists(config.CacheKey.ExamDurationKey(published.ID.String())) {
		t.Fatal("duration cache must be filled alongside the payload")
	}
}

func TestGetExamDurationFastPath(t *testing.T) {
	exam := publishedExam()
	rdb, mr := newTestRedis(t)
	svc := service.NewExamService(newFakeExamStore(exam), &fakeQuestionStore{}, rdb, zerolog.Nop())

	minutes, err := svc.GetExamDuration(context.Background(), exam.ID)
	if err != nil || minutes != exam.DurationMinutes {
		t.Fatalf("cold read: got %d, %v", minutes, err)
	}

	// A second read serves the cached value even when the store changes.
	if err := mr.Set(config.CacheKey.ExamDurationKey(exam.ID.String()), "77"); err != nil {
		t.Fatal(err)
	}
	minutes, err = svc.GetExamDuration(context.Background(), exam.ID)
	if err != nil || minutes != 77 {
		t.Fatalf("warm read: got %d, %v", minutes, err)
	}
}
