// Package scoring grades a fixed question set against a candidate's answers.
//
// Score is a pure function: the same (questions, answers) always produce the
// same Result, which is what lets the lifecycle re-derive and verify stored
// scores at any time.
package scoring

import (
	"github.com/stemsi/exstem-assessment/internal/model"
)

// NotApplicable is reported as the correct answer of coding questions.
const NotApplicable = "N/A"

// Result is the outcome of grading a whole session.
type Result struct {
	Score       float64                `json:"score"`
	TotalPoints float64                `json:"total_points"`
	Percentage  float64                `json:"percentage"`
	Results     []model.QuestionResult `json:"results"`
}

// Score grades answers against questions in question order.
//
// mcq answers must match the correct answer exactly (case-sensitive) and earn
// all or nothing. Coding answers earn full points when non-empty; actual
// grading is left to the external plagiarism/execution pipeline.
func Score(questions []model.Question, answers map[string]model.Answer) Result {
	res := Result{Results: make([]model.QuestionResult, 0, len(questions))}

	var score, total int
	for _, q := range questions {
		points := q.EffectivePoints()
		total += points

		ans, answered := answers[q.ID]
		r := model.QuestionResult{
			QuestionID:      q.ID,
			CandidateAnswer: ans.AnswerText,
		}

		switch q.Type {
		case model.QuestionTypeMCQ:
			r.CorrectAnswer = q.CorrectAnswer
			r.IsCorrect = answered && ans.AnswerText == q.CorrectAnswer
		case model.QuestionTypeCoding:
			r.CorrectAnswer = NotApplicable
			r.IsCorrect = answered && ans.AnswerText != ""
		}

		if r.IsCorrect {
			r.PointsAwarded = points
			score += points
		}
		res.Results = append(res.Results, r)
	}

	res.Score = float64(score)
	res.TotalPoints = float64(total)
	if total > 0 {
		res.Percentage = float64(score) / float64(total) * 100
	}
	return res
}

// Apply copies a Result onto the session's stored score fields.
func Apply(s *model.AssessmentSession, r Result) {
	s.Score = r.Score
	s.TotalPoints = r.TotalPoints
	s.Percentage = r.Percentage
	s.Results = r.Results
}
