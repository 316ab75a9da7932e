package lifecycle

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// NormalizeAnswer turns an answer payload of any JSON shape into text.
// Strings are unquoted, null and empty payloads become "", and anything else
// keeps its JSON encoding.
func NormalizeAnswer(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	r := gjson.ParseBytes(raw)
	switch r.Type {
	case gjson.String:
		return r.String()
	case gjson.Null:
		return ""
	}
	return strings.TrimSpace(r.Raw)
}

// BuildAnswers normalises submitted answers against the session's questions.
// Answers for unknown questions are rejected.
func BuildAnswers(s *model.AssessmentSession, in []model.AnswerInput, now time.Time) ([]model.Answer, error) {
	verr := &ValidationError{}
	out := make([]model.Answer, 0, len(in))
	at := now.UTC()

	for i, a := range in {
		if _, ok := s.Question(a.QuestionID); !ok {
			verr.Add(fmt.Sprintf("answers[%d].question_id", i), fmt.Sprintf("unknown question %q", a.QuestionID))
			continue
		}
		out = append(out, model.Answer{
			QuestionID:  a.QuestionID,
			AnswerText:  NormalizeAnswer(a.Answer),
			SubmittedAt: at,
		})
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return out, nil
}
