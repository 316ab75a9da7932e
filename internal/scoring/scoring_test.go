package scoring

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stemsi/exstem-assessment/internal/model"
)

func mcq(id, correct string, points int) model.Question {
	return model.Question{
		ID:            id,
		Type:          model.QuestionTypeMCQ,
		Text:          "Pick one",
		Points:        points,
		Options:       []string{"A", "B", "C"},
		CorrectAnswer: correct,
	}
}

func coding(id string, points int) model.Question {
	return model.Question{ID: id, Type: model.QuestionTypeCoding, Text: "Write it", Points: points}
}

func answers(pairs ...string) map[string]model.Answer {
	out := make(map[string]model.Answer, len(pairs)/2)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i+1 < len(pairs); i += 2 {
		out[pairs[i]] = model.Answer{QuestionID: pairs[i], AnswerText: pairs[i+1], SubmittedAt: at}
	}
	return out
}

func TestScoreMCQ(t *testing.T) {
	tests := []struct {
		name       string
		answers    map[string]model.Answer
		wantOK     bool
		wantPoints int
	}{
		{name: "correct", answers: answers("q1", "B"), wantOK: true, wantPoints: 10},
		{name: "wrong", answers: answers("q1", "A"), wantOK: false, wantPoints: 0},
		{name: "case sensitive", answers: answers("q1", "b"), wantOK: false, wantPoints: 0},
		{name: "missing", answers: answers(), wantOK: false, wantPoints: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score([]model.Question{mcq("q1", "B", 10)}, tt.answers)
			if len(got.Results) != 1 {
				t.Fatalf("results = %d, want 1", len(got.Results))
			}
			r := got.Results[0]
			if r.IsCorrect != tt.wantOK {
				t.Fatalf("is_correct = %v, want %v", r.IsCorrect, tt.wantOK)
			}
			if r.PointsAwarded != tt.wantPoints {
				t.Fatalf("points_awarded = %d, want %d", r.PointsAwarded, tt.wantPoints)
			}
			if r.CorrectAnswer != "B" {
				t.Fatalf("correct_answer = %q, want %q", r.CorrectAnswer, "B")
			}
			if got.TotalPoints != 10 {
				t.Fatalf("total_points = %v, want 10", got.TotalPoints)
			}
		})
	}
}

func TestScoreCodingRewardsNonEmptySubmission(t *testing.T) {
	questions := []model.Question{coding("c1", 20), coding("c2", 20), coding("c3", 20), coding("c4", 20)}
	got := Score(questions, answers("c1", "func main() {}", "c2", "   ", "c3", ""))

	if !got.Results[0].IsCorrect || got.Results[0].PointsAwarded != 20 {
		t.Fatalf("c1 = %+v, want full credit", got.Results[0])
	}
	if !got.Results[1].IsCorrect {
		t.Fatalf("c2 whitespace answer is non-empty and should earn credit")
	}
	if got.Results[2].IsCorrect {
		t.Fatalf("c3 empty answer should not earn credit")
	}
	if got.Results[3].IsCorrect {
		t.Fatalf("c4 missing answer should not earn credit")
	}
	for _, r := range got.Results {
		if r.CorrectAnswer != NotApplicable {
			t.Fatalf("correct_answer = %q, want %q", r.CorrectAnswer, NotApplicable)
		}
	}
	if got.Score != 40 || got.TotalPoints != 80 {
		t.Fatalf("score = %v/%v, want 40/80", got.Score, got.TotalPoints)
	}
}

func TestScoreDefaultsPoints(t *testing.T) {
	got := Score([]model.Question{mcq("q1", "A", 0)}, answers("q1", "A"))
	if got.TotalPoints != model.DefaultQuestionPoints {
		t.Fatalf("total_points = %v, want %d", got.TotalPoints, model.DefaultQuestionPoints)
	}
	if got.Results[0].PointsAwarded != model.DefaultQuestionPoints {
		t.Fatalf("points_awarded = %d, want %d", got.Results[0].PointsAwarded, model.DefaultQuestionPoints)
	}
}

func TestScorePercentage(t *testing.T) {
	t.Run("all correct", func(t *testing.T) {
		questions := []model.Question{mcq("q1", "A", 10), mcq("q2", "C", 5)}
		got := Score(questions, answers("q1", "A", "q2", "C"))
		if got.Percentage != 100.0 {
			t.Fatalf("percentage = %v, want 100", got.Percentage)
		}
	})

	t.Run("no questions", func(t *testing.T) {
		got := Score(nil, answers("q1", "A"))
		if got.Percentage != 0 || got.TotalPoints != 0 || got.Score != 0 {
			t.Fatalf("got %+v, want zero result", got)
		}
		if got.Results == nil || len(got.Results) != 0 {
			t.Fatalf("results = %v, want empty slice", got.Results)
		}
	})

	t.Run("partial", func(t *testing.T) {
		questions := []model.Question{mcq("q1", "A", 10), mcq("q2", "C", 10), mcq("q3", "B", 10)}
		got := Score(questions, answers("q1", "A"))
		want := float64(10) / float64(30) * 100
		if got.Percentage != want {
			t.Fatalf("percentage = %v, want %v", got.Percentage, want)
		}
	})
}

func TestScoreIgnoresAnswersForUnknownQuestions(t *testing.T) {
	got := Score([]model.Question{mcq("q1", "A", 10)}, answers("q1", "A", "ghost", "A"))
	if len(got.Results) != 1 || got.Score != 10 {
		t.Fatalf("got %+v, want only q1 scored", got)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	questions := []model.Question{mcq("q1", "A", 10), coding("c1", 15), mcq("q2", "D", 7)}
	given := answers("q1", "A", "c1", "print(1)", "q2", "B")

	first, err := json.Marshal(Score(questions, given))
	if err != nil {
		t.Fatalf("marshal first: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := json.Marshal(Score(questions, given))
		if err != nil {
			t.Fatalf("marshal run %d: %v", i, err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("run %d differs:\n%s\n%s", i, first, again)
		}
	}
}

func TestScoreFollowsQuestionOrder(t *testing.T) {
	questions := []model.Question{mcq("z", "A", 1), mcq("a", "A", 1), mcq("m", "A", 1)}
	got := Score(questions, answers())
	order := []string{"z", "a", "m"}
	for i, id := range order {
		if got.Results[i].QuestionID != id {
			t.Fatalf("results[%d] = %s, want %s", i, got.Results[i].QuestionID, id)
		}
	}
}

func TestApply(t *testing.T) {
	s := &model.AssessmentSession{}
	r := Score([]model.Question{mcq("q1", "A", 10)}, answers("q1", "A"))
	Apply(s, r)
	if s.Score != 10 || s.TotalPoints != 10 || s.Percentage != 100 || len(s.Results) != 1 {
		t.Fatalf("session = %+v", s)
	}
}
