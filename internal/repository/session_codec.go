package repository

import (
	"encoding/json"
	"fmt"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// sessionDocs holds the JSON-encoded columns of a session row.
type sessionDocs struct {
	questions []byte
	answers   []byte
	integrity []byte
	results   []byte
}

func encodeSessionDocs(s *model.AssessmentSession) (sessionDocs, error) {
	var (
		docs sessionDocs
		err  error
	)
	if docs.questions, err = json.Marshal(nonNilQuestions(s.Questions)); err != nil {
		return docs, fmt.Errorf("encode questions: %w", err)
	}
	if docs.answers, err = encodeAnswers(s.Answers); err != nil {
		return docs, err
	}
	if docs.integrity, err = encodeIntegrity(s.Integrity); err != nil {
		return docs, err
	}
	if docs.results, err = encodeResults(s.Results); err != nil {
		return docs, err
	}
	return docs, nil
}

func encodeAnswers(answers map[string]model.Answer) ([]byte, error) {
	if answers == nil {
		answers = map[string]model.Answer{}
	}
	b, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}
	return b, nil
}

func encodeIntegrity(integrity model.Integrity) ([]byte, error) {
	b, err := json.Marshal(integrity.Clone())
	if err != nil {
		return nil, fmt.Errorf("encode integrity: %w", err)
	}
	return b, nil
}

func encodeResults(results []model.QuestionResult) ([]byte, error) {
	if results == nil {
		results = []model.QuestionResult{}
	}
	b, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	return b, nil
}

func decodeSessionDocs(s *model.AssessmentSession, docs sessionDocs) error {
	if err := unmarshalDoc(docs.questions, &s.Questions); err != nil {
		return fmt.Errorf("decode questions: %w", err)
	}
	if err := unmarshalDoc(docs.answers, &s.Answers); err != nil {
		return fmt.Errorf("decode answers: %w", err)
	}
	if err := unmarshalDoc(docs.integrity, &s.Integrity); err != nil {
		return fmt.Errorf("decode integrity: %w", err)
	}
	if err := unmarshalDoc(docs.results, &s.Results); err != nil {
		return fmt.Errorf("decode results: %w", err)
	}

	s.Questions = nonNilQuestions(s.Questions)
	if s.Answers == nil {
		s.Answers = map[string]model.Answer{}
	}
	if s.Results == nil {
		s.Results = []model.QuestionResult{}
	}
	s.Integrity = s.Integrity.Clone()
	return nil
}

func unmarshalDoc(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func nonNilQuestions(q []model.Question) []model.Question {
	if q == nil {
		return []model.Question{}
	}
	return q
}
