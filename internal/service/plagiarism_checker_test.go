package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestHTTPPlagiarismChecker(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    float64
		wantErr bool
	}{
		{name: "flat reply", status: http.StatusOK, body: `{"similarity_score": 42.5}`, want: 42.5},
		{name: "data envelope", status: http.StatusOK, body: `{"data": {"similarity_score": 7}}`, want: 7},
		{name: "missing score", status: http.StatusOK, body: `{"ok": true}`, wantErr: true},
		{name: "out of range", status: http.StatusOK, body: `{"similarity_score": 140}`, wantErr: true},
		{name: "server error", status: http.StatusBadRequest, body: `{"error": "bad"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/similarity" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
					t.Errorf("authorization = %q", auth)
				}
				_ = json.NewDecoder(r.Body).Decode(&got)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			checker := NewHTTPPlagiarismChecker(srv.URL, "tok", 2*time.Second)
			score, err := checker.Check(context.Background(), PlagiarismJob{
				SessionID:  uuid.New(),
				JobID:      "job-1",
				QuestionID: "c1",
				Answer:     "print(1)",
			})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("score = %v, want error", score)
				}
				return
			}
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if score != tt.want {
				t.Fatalf("score = %v, want %v", score, tt.want)
			}
			if got["content"] != "print(1)" || got["group"] != "job-1" {
				t.Fatalf("request body = %v", got)
			}
		})
	}
}
