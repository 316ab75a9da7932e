package validator

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	govalidator "github.com/go-playground/validator/v10"

	"github.com/stemsi/exstem-assessment/internal/model"
)

func TestDomainTags(t *testing.T) {
	Setup()

	v, ok := binding.Validator.Engine().(*govalidator.Validate)
	if !ok {
		t.Fatal("gin validator engine is not go-playground/validator")
	}

	tests := []struct {
		name    string
		value   any
		wantErr string
	}{
		{name: "valid violation", value: model.ReportViolationRequest{Kind: "tab_switch"}},
		{name: "unknown violation", value: model.ReportViolationRequest{Kind: "screen_share"}, wantErr: "kind"},
		{name: "valid question", value: model.QuestionInput{ID: "q1", Type: "coding", Text: "?"}},
		{name: "unknown question type", value: model.QuestionInput{ID: "q1", Type: "essay", Text: "?"}, wantErr: "type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.value)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("err = %v, want nil", err)
				}
				return
			}
			fields := TranslateErrors(err)
			if _, ok := fields[tt.wantErr]; !ok {
				t.Fatalf("fields = %v, want %s", fields, tt.wantErr)
			}
		})
	}
}
