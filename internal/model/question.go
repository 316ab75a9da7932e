package model

// QuestionType distinguishes auto-graded multiple choice from coding tasks.
type QuestionType string

const (
	QuestionTypeMCQ    QuestionType = "mcq"
	QuestionTypeCoding QuestionType = "coding"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	return t == QuestionTypeMCQ || t == QuestionTypeCoding
}

// DefaultQuestionPoints applies when a question carries no points value.
const DefaultQuestionPoints = 10

// Question is immutable once its session is created.
type Question struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type"`
	Text          string       `json:"text"`
	Points        int          `json:"points"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer,omitempty"`
	TestCases     []TestCase   `json:"test_cases,omitempty"`
}

// TestCase is an example input/output pair shown with coding questions.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

// EffectivePoints returns Points, or DefaultQuestionPoints when unset.
func (q Question) EffectivePoints() int {
	if q.Points <= 0 {
		return DefaultQuestionPoints
	}
	return q.Points
}

// ForCandidate strips the answer key.
func (q Question) ForCandidate() Question {
	c := q.clone()
	c.CorrectAnswer = ""
	return c
}

func (q Question) clone() Question {
	c := q
	if q.Options != nil {
		c.Options = append([]string(nil), q.Options...)
	}
	if q.TestCases != nil {
		c.TestCases = append([]TestCase(nil), q.TestCases...)
	}
	return c
}
