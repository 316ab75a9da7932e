package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/handler"
	"github.com/stemsi/exstem-assessment/internal/integrity"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/repository"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
)

var t0 = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

type envelope struct {
	Data       json.RawMessage      `json:"data"`
	Error      *response.ErrorBody  `json:"error"`
	Pagination *response.Pagination `json:"pagination"`
}

type testServer struct {
	t      *testing.T
	engine *gin.Engine
	auth   *service.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	validator.Setup()

	log := zerolog.Nop()
	sessions := service.NewAssessmentService(
		repository.NewMemorySessionStore(),
		integrity.NewPolicy(2*time.Second),
		log,
		service.WithClock(func() time.Time { return t0.Add(5 * time.Minute) }),
	)
	integ := service.NewIntegrityService(sessions, log)
	auth := service.NewAuthService("router-test-secret")

	handlers := &Handlers{
		Assessment: handler.NewAssessmentHandler(sessions, integ),
		Internal:   handler.NewInternalHandler(sessions, integ),
		Recruiter:  handler.NewRecruiterHandler(sessions),
		WS:         handler.NewWSHandler(sessions, integ, log, nil),
	}
	cfg := &config.Config{GinMode: gin.TestMode, CompressionMinBytes: 1024}

	return &testServer{t: t, engine: SetupRouter(auth, handlers, cfg, nil), auth: auth}
}

func (s *testServer) token(role service.Role, subject string, jobIDs ...string) string {
	s.t.Helper()
	tok, err := s.auth.IssueToken(role, subject, jobIDs, time.Hour)
	if err != nil {
		s.t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (s *testServer) do(method, path, token string, body interface{}) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			s.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code, env
}

func (s *testServer) createSession(applicationID string) string {
	s.t.Helper()
	code, env := s.do(http.MethodPost, "/api/v1/internal/sessions", s.token(service.RoleService, "job-service"), model.CreateSessionRequest{
		ApplicationID:    applicationID,
		CandidateID:      "cand-1",
		JobID:            "job-1",
		TimeLimitMinutes: 60,
		Questions: []model.QuestionInput{
			{ID: "q1", Type: "mcq", Text: "2+2?", Points: 10, Options: []string{"3", "4"}, CorrectAnswer: "4"},
		},
	})
	if code != http.StatusCreated {
		s.t.Fatalf("create: status %d error %+v", code, env.Error)
	}
	var sess model.AssessmentSession
	if err := json.Unmarshal(env.Data, &sess); err != nil {
		s.t.Fatalf("decode session: %v", err)
	}
	return sess.ID.String()
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	if code, _ := s.do(http.MethodGet, "/health", "", nil); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
}

func TestCandidateFlow(t *testing.T) {
	s := newTestServer(t)
	id := s.createSession("app-1")
	base := "/api/v1/sessions/" + id
	cand := s.token(service.RoleCandidate, "cand-1")

	code, env := s.do(http.MethodGet, base, cand, nil)
	if code != http.StatusOK {
		t.Fatalf("get: %d %+v", code, env.Error)
	}
	if strings.Contains(string(env.Data), "correct_answer") {
		t.Fatalf("answer key leaked before completion: %s", env.Data)
	}

	if code, _ := s.do(http.MethodGet, base, s.token(service.RoleCandidate, "someone-else"), nil); code != http.StatusNotFound {
		t.Fatalf("foreign candidate: status %d, want 404", code)
	}

	if code, env := s.do(http.MethodPost, base+"/start", cand, nil); code != http.StatusOK {
		t.Fatalf("start: %d %+v", code, env.Error)
	}
	code, env = s.do(http.MethodPost, base+"/start", cand, nil)
	if code != http.StatusConflict || env.Error.Code != response.ErrInvalidTransition {
		t.Fatalf("second start: %d %+v", code, env.Error)
	}

	if code, env := s.do(http.MethodPut, base+"/answers/q1", cand, map[string]string{"answer": "4"}); code != http.StatusOK {
		t.Fatalf("autosave: %d %+v", code, env.Error)
	}
	code, env = s.do(http.MethodPut, base+"/answers/ghost", cand, map[string]string{"answer": "4"})
	if code != http.StatusUnprocessableEntity || env.Error.Code != response.ErrValidation {
		t.Fatalf("autosave unknown question: %d %+v", code, env.Error)
	}

	code, env = s.do(http.MethodPost, base+"/violations", cand, map[string]string{"kind": "tab_switch"})
	if code != http.StatusOK || !strings.Contains(string(env.Data), `"accepted":true`) {
		t.Fatalf("violation: %d %s", code, env.Data)
	}
	if code, _ := s.do(http.MethodPost, base+"/violations", cand, map[string]string{"kind": "screen_share"}); code != http.StatusBadRequest {
		t.Fatalf("unknown violation kind: status %d, want 400", code)
	}

	code, env = s.do(http.MethodGet, base+"/results", cand, nil)
	if code != http.StatusConflict || env.Error.Code != response.ErrResultsNotReady {
		t.Fatalf("early results: %d %+v", code, env.Error)
	}

	code, env = s.do(http.MethodPost, base+"/submit", cand, nil)
	if code != http.StatusOK {
		t.Fatalf("submit: %d %+v", code, env.Error)
	}
	var view model.CandidateView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Status != model.SessionStatusCompleted || view.Result == nil || view.Result.Percentage != 100 {
		t.Fatalf("submitted view = %+v", view)
	}

	code, env = s.do(http.MethodGet, base+"/results", s.token(service.RoleRecruiter, "rec-1", "job-1"), nil)
	if code != http.StatusOK {
		t.Fatalf("recruiter results: %d %+v", code, env.Error)
	}
}

func TestAuthorization(t *testing.T) {
	s := newTestServer(t)
	id := s.createSession("app-1")

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		wantCode int
	}{
		{"no token", http.MethodGet, "/api/v1/sessions/" + id, "", http.StatusUnauthorized},
		{"candidate on internal", http.MethodGet, "/api/v1/internal/applications/app-1/session", s.token(service.RoleCandidate, "cand-1"), http.StatusForbidden},
		{"service lookup", http.MethodGet, "/api/v1/internal/applications/app-1/session", s.token(service.RoleService, "svc"), http.StatusOK},
		{"unknown application", http.MethodGet, "/api/v1/internal/applications/nope/session", s.token(service.RoleService, "svc"), http.StatusNotFound},
		{"recruiter wrong job", http.MethodGet, "/api/v1/recruiter/sessions/" + id, s.token(service.RoleRecruiter, "rec", "job-2"), http.StatusNotFound},
		{"recruiter list other job", http.MethodGet, "/api/v1/recruiter/jobs/job-1/sessions", s.token(service.RoleRecruiter, "rec", "job-2"), http.StatusForbidden},
		{"recruiter full view", http.MethodGet, "/api/v1/recruiter/sessions/" + id, s.token(service.RoleRecruiter, "rec", "job-1"), http.StatusOK},
		{"malformed id", http.MethodGet, "/api/v1/sessions/not-a-uuid", s.token(service.RoleCandidate, "cand-1"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, env := s.do(tt.method, tt.path, tt.token, nil); code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%+v)", code, tt.wantCode, env.Error)
			}
		})
	}
}

func TestDuplicateApplicationConflict(t *testing.T) {
	s := newTestServer(t)
	s.createSession("app-1")

	code, env := s.do(http.MethodPost, "/api/v1/internal/sessions", s.token(service.RoleService, "svc"), model.CreateSessionRequest{
		ApplicationID: "app-1", CandidateID: "cand-2", JobID: "job-1", TimeLimitMinutes: 30,
	})
	if code != http.StatusConflict || env.Error.Code != response.ErrConflict {
		t.Fatalf("duplicate: %d %+v", code, env.Error)
	}
}

func TestRecruiterListPagination(t *testing.T) {
	s := newTestServer(t)
	for _, app := range []string{"app-1", "app-2", "app-3"} {
		s.createSession(app)
	}

	code, env := s.do(http.MethodGet, "/api/v1/recruiter/jobs/job-1/sessions?per_page=2", s.token(service.RoleRecruiter, "rec"), nil)
	if code != http.StatusOK {
		t.Fatalf("list: %d %+v", code, env.Error)
	}
	if env.Pagination == nil || env.Pagination.TotalItems != 3 || env.Pagination.TotalPages != 2 {
		t.Fatalf("pagination = %+v", env.Pagination)
	}
	var data struct {
		Sessions []handler.SessionSummary `json:"sessions"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(data.Sessions) != 2 {
		t.Fatalf("page size = %d, want 2", len(data.Sessions))
	}
}
