package grading

import (
	"testing"

	"github.com/google/uuid"

	"github.com/edushift/examgate-backend/internal/model"
)

func mcQuestion(points float64) (model.Question, uuid.UUID) {
	correct := uuid.New()
	q := model.Question{
		ID:     uuid.New(),
		Type:   model.QuestionTypeMultipleChoice,
		Points: points,
		Choices: []model.Choice{
			{ID: correct, IsCorrect: true},
			{ID: uuid.New()},
			{ID: uuid.New()},
		},
	}
	return q, correct
}

func choiceAnswer(q model.Question, choiceID uuid.UUID) model.Answer {
	return model.Answer{
		ID:               uuid.New(),
		QuestionID:       q.ID,
		SelectedChoiceID: &choiceID,
	}
}

func TestScoreObjective(t *testing.T) {
	q1, correct1 := mcQuestion(2)
	q2, _ := mcQuestion(3)
	essay := model.Question{ID: uuid.New(), Type: model.QuestionTypeEssay, Points: 5}

	text := "some essay text"
	answers := []model.Answer{
		choiceAnswer(q1, correct1),
		choiceAnswer(q2, q2.Choices[1].ID), // wrong
		{ID: uuid.New(), QuestionID: essay.ID, TextAnswer: &text},
	}

	scores := ScoreObjective([]model.Question{q1, q2, essay}, answers)
	if len(scores) != 2 {
		t.Fatalf("expected 2 objective scores, got %d", len(scores))
	}
	if scores[0].AnswerID != answers[0].ID || scores[0].Score != 2 {
		t.Fatalf("expected full points for correct choice, got %+v", scores[0])
	}
	if scores[1].AnswerID != answers[1].ID || scores[1].Score != 0 {
		t.Fatalf("expected zero for wrong choice, got %+v", scores[1])
	}
}

func TestScoreObjectiveDeterministic(t *testing.T) {
	q, correct := mcQuestion(1)
	answers := []model.Answer{choiceAnswer(q, correct)}

	first := ScoreObjective([]model.Question{q}, answers)
	second := ScoreObjective([]model.Question{q}, answers)
	if len(first) != 1 || len(second) != 1 || first[0] != second[0] {
		t.Fatalf("re-scoring changed the result: %+v vs %+v", first, second)
	}
}

func TestAggregateObjectiveOnly(t *testing.T) {
	// Five MC questions, one point each. Five correct out of ten total
	// points yields 50% against a passing score of 60: graded and failed.
	questions := make([]model.Question, 0, 10)
	answers := make([]model.Answer, 0, 5)
	for i := 0; i < 10; i++ {
		q, correct := mcQuestion(1)
		questions = append(questions, q)
		if i < 5 {
			a := choiceAnswer(q, correct)
			answers = append(answers, a)
		}
	}

	scores := ScoreObjective(questions, answers)
	ApplyScores(answers, scores)
	res := Aggregate(questions, answers, 60)

	if !res.FullyGraded {
		t.Fatal("objective-only attempt must be fully graded immediately")
	}
	if res.EarnedPoints != 5 || res.TotalPoints != 10 {
		t.Fatalf("expected 5/10 points, got %.1f/%.1f", res.EarnedPoints, res.TotalPoints)
	}
	if res.ScorePercent != 50 {
		t.Fatalf("expected 50%%, got %.2f", res.ScorePercent)
	}
	if res.Passed {
		t.Fatal("50%% must not pass a 60%% threshold")
	}
}

func TestAggregatePendingEssay(t *testing.T) {
	q, correct := mcQuestion(5)
	essay := model.Question{ID: uuid.New(), Type: model.QuestionTypeEssay, Points: 5}
	questions := []model.Question{q, essay}

	text := "pending manual grade"
	answers := []model.Answer{
		choiceAnswer(q, correct),
		{ID: uuid.New(), QuestionID: essay.ID, TextAnswer: &text},
	}

	ApplyScores(answers, ScoreObjective(questions, answers))
	res := Aggregate(questions, answers, 60)
	if res.FullyGraded {
		t.Fatal("ungraded essay must keep the attempt pending")
	}
	if res.Passed {
		t.Fatal("pass/fail must not be decided while grading is pending")
	}

	// Manual grade arrives; the same aggregation now finalizes.
	manual := 4.0
	answers[1].Score = &manual
	answers[1].IsGraded = true

	res = Aggregate(questions, answers, 60)
	if !res.FullyGraded {
		t.Fatal("attempt must be fully graded after the manual score")
	}
	if res.EarnedPoints != 9 {
		t.Fatalf("expected 9 earned points, got %.1f", res.EarnedPoints)
	}
	if res.ScorePercent != 90 {
		t.Fatalf("expected 90%%, got %.2f", res.ScorePercent)
	}
	if !res.Passed {
		t.Fatal("90%% must pass a 60%% threshold")
	}
}

func TestAggregateUnansweredEssayDoesNotBlock(t *testing.T) {
	q, correct := mcQuestion(1)
	essay := model.Question{ID: uuid.New(), Type: model.QuestionTypeEssay, Points: 5}
	questions := []model.Question{q, essay}

	// No answer row for the essay at all: nothing awaits manual grading.
	answers := []model.Answer{choiceAnswer(q, correct)}
	ApplyScores(answers, ScoreObjective(questions, answers))

	res := Aggregate(questions, answers, 10)
	if !res.FullyGraded {
		t.Fatal("an unanswered essay must not block full grading")
	}
	if res.TotalPoints != 6 {
		t.Fatalf("expected total 6, got %.1f", res.TotalPoints)
	}
}

func TestAggregateEmptyExam(t *testing.T) {
	res := Aggregate(nil, nil, 50)
	if res.ScorePercent != 0 {
		t.Fatalf("zero-point exam must score 0, got %.2f", res.ScorePercent)
	}
	if !res.FullyGraded {
		t.Fatal("empty exam is trivially graded")
	}
}
