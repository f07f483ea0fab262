// Package grading scores exam attempts. Objective answers are scored
// immediately; short-answer and essay scores arrive later through manual
// grading, after which aggregation is simply re-run. Every function here is a
// pure computation over its inputs: grading twice yields the same result.
package grading

import (
	"github.com/google/uuid"

	"github.com/edushift/examgate-backend/internal/model"
)

// AnswerScore is the objective score computed for a single answer.
type AnswerScore struct {
	AnswerID uuid.UUID
	Score    float64
}

// Result is the aggregate outcome of grading an attempt.
type Result struct {
	EarnedPoints float64
	TotalPoints  float64
	ScorePercent float64
	// FullyGraded is false while any short-answer or essay response still
	// awaits a manual score.
	FullyGraded bool
	Passed      bool
}

// ScoreObjective computes scores for every answer whose question is
// multiple-choice: full points when the selected choice is the correct one,
// zero otherwise. Answers to unknown questions are skipped.
func ScoreObjective(questions []model.Question, answers []model.Answer) []AnswerScore {
	byID := questionIndex(questions)

	var scores []AnswerScore
	for i := range answers {
		a := &answers[i]
		q, ok := byID[a.QuestionID]
		if !ok {
			continue
		}

		switch q.Type {
		case model.QuestionTypeMultipleChoice:
			score := 0.0
			if a.SelectedChoiceID != nil && *a.SelectedChoiceID == q.CorrectChoiceID() {
				score = q.Points
			}
			scores = append(scores, AnswerScore{AnswerID: a.ID, Score: score})
		case model.QuestionTypeShortAnswer, model.QuestionTypeEssay:
			// Manual grading territory — left for the external grader.
		}
	}
	return scores
}

// Aggregate folds graded answers into an attempt-level result. The answers
// slice must reflect persisted grading state: objective answers already
// scored, manual answers scored only if a grader has supplied a value.
func Aggregate(questions []model.Question, answers []model.Answer, passingScore float64) Result {
	byID := questionIndex(questions)

	res := Result{FullyGraded: true}
	for i := range questions {
		res.TotalPoints += questions[i].Points
	}

	for i := range answers {
		a := &answers[i]
		q, ok := byID[a.QuestionID]
		if !ok {
			continue
		}

		if a.IsGraded && a.Score != nil {
			res.EarnedPoints += *a.Score
		}

		switch q.Type {
		case model.QuestionTypeShortAnswer, model.QuestionTypeEssay:
			if !a.IsGraded {
				res.FullyGraded = false
			}
		case model.QuestionTypeMultipleChoice:
		}
	}

	if res.TotalPoints > 0 {
		res.ScorePercent = res.EarnedPoints / res.TotalPoints * 100
	}
	if res.FullyGraded {
		res.Passed = res.ScorePercent >= passingScore
	}
	return res
}

// ApplyScores marks the given answers graded in place with their computed
// scores, mirroring what the storage layer persists so a following Aggregate
// sees consistent state without a re-read.
func ApplyScores(answers []model.Answer, scores []AnswerScore) {
	byAnswer := make(map[uuid.UUID]float64, len(scores))
	for _, s := range scores {
		byAnswer[s.AnswerID] = s.Score
	}
	for i := range answers {
		if score, ok := byAnswer[answers[i].ID]; ok {
			s := score
			answers[i].Score = &s
			answers[i].IsGraded = true
		}
	}
}

func questionIndex(questions []model.Question) map[uuid.UUID]*model.Question {
	byID := make(map[uuid.UUID]*model.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}
	return byID
}
