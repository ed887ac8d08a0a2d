package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"edutalks/internal/auth"
	"edutalks/internal/availability"
	"edutalks/internal/backend"
	"edutalks/internal/calls"
	"edutalks/internal/clock"
	"edutalks/internal/config"
	"edutalks/internal/reporting"
	"edutalks/pkg/logger"

	"github.com/gin-gonic/gin"
)

type stubBackend struct {
	mu       sync.Mutex
	initErr  error
	rateErr  error
	ratings  []calls.RatingSubmission
	endCalls []string
}

func (b *stubBackend) InitiateCall(ctx context.Context, req calls.InitiateRequest) (calls.InitiateResult, error) {
	if b.initErr != nil {
		return calls.InitiateResult{}, b.initErr
	}
	return calls.InitiateResult{CallID: "call-1", Status: "Ringing"}, nil
}

func (b *stubBackend) EndCall(ctx context.Context, callID, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endCalls = append(b.endCalls, callID)
	return nil
}

func (b *stubBackend) RateCall(ctx context.Context, sub calls.RatingSubmission) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ratings = append(b.ratings, sub)
	return b.rateErr
}

type stubLister struct {
	list       []calls.Candidate
	refreshErr error
}

func (l *stubLister) Candidates() []calls.Candidate { return append([]calls.Candidate(nil), l.list...) }

func (l *stubLister) RefreshNow(ctx context.Context) ([]calls.Candidate, error) {
	if l.refreshErr != nil {
		return nil, l.refreshErr
	}
	return l.Candidates(), nil
}

func (l *stubLister) Status() availability.Status {
	return availability.Status{Running: true, Count: len(l.list)}
}

type stubHistory struct {
	page, size int
	err        error
}

func (s *stubHistory) History(ctx context.Context, pageNumber, pageSize int) (backend.HistoryPage, error) {
	s.page, s.size = pageNumber, pageSize
	if s.err != nil {
		return backend.HistoryPage{}, s.err
	}
	return backend.HistoryPage{Items: []backend.CallRecord{{CallID: "old-1"}}, PageNumber: pageNumber, PageSize: pageSize, TotalCount: 1}, nil
}

type stubReports struct {
	got reporting.TimeRange
}

func (s *stubReports) CallsSummary(ctx context.Context, r reporting.TimeRange) (reporting.CallsSummary, error) {
	s.got = r
	return reporting.CallsSummary{Range: r, Attempts: 3}, nil
}

type fixture struct {
	engine  *gin.Engine
	backend *stubBackend
	lister  *stubLister
	history *stubHistory
	reports *stubReports
	clk     *clock.Fake
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewFake(time.Time{})
	be := &stubBackend{}
	lister := &stubLister{list: []calls.Candidate{{ID: "u-2", DisplayName: "Bob"}}}
	ctrl, err := calls.NewController(calls.Options{
		Backend:    be,
		Candidates: lister,
		Clock:      clk,
		Rand:       rand.New(rand.NewSource(7)),
		Logger:     logger.Discard(),
	})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	h := Handlers{
		Calls:      ctrl,
		Candidates: lister,
		History:    &stubHistory{},
		Reports:    &stubReports{},
		Now:        clk.Now,
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u-1", c.GetHeader("X-Test-Role"))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.GET("/me", h.Me)
	r.GET("/candidates", h.ListCandidates)
	r.POST("/candidates/refresh", h.RefreshCandidates)
	r.GET("/call", h.GetCall)
	r.POST("/call/start", h.StartCall)
	r.POST("/call/end", h.EndCall)
	r.POST("/call/connected", h.MarkConnected)
	r.POST("/call/rating", h.SubmitRating)
	r.POST("/call/block", h.BlockCallee)
	r.POST("/call/reset", h.ResetCall)
	r.GET("/calls/history", h.CallHistory)
	r.GET("/admin/reports/calls", h.CallsReport)

	return fixture{
		engine:  r,
		backend: be,
		lister:  lister,
		history: h.History.(*stubHistory),
		reports: h.Reports.(*stubReports),
		clk:     clk,
	}
}

func (f fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Test-Role", "learner")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, w.Body.String())
		}
	}
	return w.Code, out
}

func TestHandlers_CallLifecycle(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/call/start", `{"topic_id":"t-1"}`)
	if code != http.StatusOK || body["status"] != "ringing" || body["call_id"] != "call-1" {
		t.Fatalf("start: %d %v", code, body)
	}

	code, body = f.do(t, http.MethodPost, "/call/start", "")
	if code != http.StatusConflict {
		t.Fatalf("second start: expected 409, got %d %v", code, body)
	}

	code, body = f.do(t, http.MethodPost, "/call/connected", `{"call_id":"call-1"}`)
	if code != http.StatusOK || body["applied"] != true {
		t.Fatalf("connected: %d %v", code, body)
	}

	f.clk.Advance(3 * time.Second)

	code, body = f.do(t, http.MethodPost, "/call/end", "")
	if code != http.StatusOK || body["status"] != "ended" || body["duration_seconds"] != float64(3) {
		t.Fatalf("end: %d %v", code, body)
	}

	code, body = f.do(t, http.MethodPost, "/call/rating", `{"stars":6}`)
	if code != http.StatusBadRequest {
		t.Fatalf("bad rating: expected 400, got %d %v", code, body)
	}

	code, body = f.do(t, http.MethodPost, "/call/rating", `{"stars":4,"feedback":"nice"}`)
	if code != http.StatusOK || body["status"] != "idle" {
		t.Fatalf("rating: %d %v", code, body)
	}
	if len(f.backend.ratings) != 1 || f.backend.ratings[0].Stars != 4 {
		t.Fatalf("unexpected ratings: %+v", f.backend.ratings)
	}
}

func TestHandlers_RatingRequiresStars(t *testing.T) {
	f := newFixture(t)
	if code, _ := f.do(t, http.MethodPost, "/call/rating", `{}`); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestHandlers_RatingFailureIsBadGateway(t *testing.T) {
	f := newFixture(t)
	f.backend.rateErr = errors.New("boom")
	f.do(t, http.MethodPost, "/call/start", "")
	f.do(t, http.MethodPost, "/call/connected", "")
	f.do(t, http.MethodPost, "/call/end", "")

	code, _ := f.do(t, http.MethodPost, "/call/rating", `{"stars":3}`)
	if code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", code)
	}
	_, body := f.do(t, http.MethodGet, "/call", "")
	if body["status"] != "idle" {
		t.Fatalf("session must be idle after failed rating, got %v", body)
	}
}

func TestHandlers_StartErrors(t *testing.T) {
	f := newFixture(t)
	f.backend.initErr = &backend.StatusError{Method: "POST", Path: "/api/v1/calls/initiate", Code: 500}
	code, body := f.do(t, http.MethodPost, "/call/start", "")
	if code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d %v", code, body)
	}

	f.lister.list = nil
	code, _ = f.do(t, http.MethodPost, "/call/start", "")
	if code != http.StatusConflict {
		t.Fatalf("no candidates: expected 409, got %d", code)
	}
}

func TestHandlers_BlockRequiresTerminal(t *testing.T) {
	f := newFixture(t)
	if code, _ := f.do(t, http.MethodPost, "/call/block", ""); code != http.StatusConflict {
		t.Fatalf("expected 409 from idle, got %d", code)
	}
	f.do(t, http.MethodPost, "/call/start", "")
	f.clk.Advance(calls.DefaultRingTimeout)
	code, body := f.do(t, http.MethodPost, "/call/block", "")
	if code != http.StatusOK || body["status"] != "idle" {
		t.Fatalf("block after timeout: %d %v", code, body)
	}
}

func TestHandlers_ResetEndsBackendCall(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/call/start", "")
	code, body := f.do(t, http.MethodPost, "/call/reset", "")
	if code != http.StatusOK || body["status"] != "idle" {
		t.Fatalf("reset: %d %v", code, body)
	}
	if len(f.backend.endCalls) != 1 || f.backend.endCalls[0] != "call-1" {
		t.Fatalf("expected backend end for call-1, got %v", f.backend.endCalls)
	}
}

func TestHandlers_Candidates(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/candidates", "")
	if code != http.StatusOK {
		t.Fatalf("list: %d", code)
	}
	if items, _ := body["items"].([]any); len(items) != 1 {
		t.Fatalf("expected 1 candidate, got %v", body)
	}

	f.lister.refreshErr = errors.New("down")
	if code, _ := f.do(t, http.MethodPost, "/candidates/refresh", ""); code != http.StatusBadGateway {
		t.Fatalf("refresh failure: expected 502, got %d", code)
	}
}

func TestHandlers_History(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/calls/history?page=2&page_size=5", "")
	if code != http.StatusOK || body["total_count"] != float64(1) {
		t.Fatalf("history: %d %v", code, body)
	}
	if f.history.page != 2 || f.history.size != 5 {
		t.Fatalf("unexpected paging %d/%d", f.history.page, f.history.size)
	}
	if code, _ := f.do(t, http.MethodGet, "/calls/history?page_size=500", ""); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized page, got %d", code)
	}
	if code, _ := f.do(t, http.MethodGet, "/calls/history?page=x", ""); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad page, got %d", code)
	}
}

func TestHandlers_CallsReportRange(t *testing.T) {
	f := newFixture(t)
	code, _ := f.do(t, http.MethodGet, "/admin/reports/calls", "")
	if code != http.StatusOK {
		t.Fatalf("report: %d", code)
	}
	if !f.reports.got.To.Equal(f.clk.Now()) || f.reports.got.To.Sub(f.reports.got.From) != defaultReportWindow {
		t.Fatalf("unexpected default range %+v", f.reports.got)
	}

	code, _ = f.do(t, http.MethodGet, "/admin/reports/calls?from=2024-01-02T00:00:00Z&to=2024-01-01T00:00:00Z", "")
	if code != http.StatusBadRequest {
		t.Fatalf("inverted range: expected 400, got %d", code)
	}
}

func TestHandlers_Me(t *testing.T) {
	f := newFixture(t)
	_, body := f.do(t, http.MethodGet, "/me", "")
	if body["user_id"] != "u-1" || body["role"] != "learner" {
		t.Fatalf("unexpected identity %v", body)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		calls.ErrInvalidRating: http.StatusBadRequest,
		calls.ErrNoCandidates:  http.StatusConflict,
		calls.ErrInvalidState:  http.StatusConflict,
		calls.ErrRatingFailed:  http.StatusBadGateway,
		errors.New("other"):    http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Fatalf("%v: expected %d, got %d", err, want, got)
		}
	}
	wrapped := errors.Join(calls.ErrCallInitiationFailed, calls.ErrSessionActiveElsewhere)
	if got := statusFor(wrapped); got != http.StatusConflict {
		t.Fatalf("lease refusal: expected 409, got %d", got)
	}
}

func TestHandlers_Health(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := Handlers{Checks: map[string]func(context.Context) error{
		"postgres": func(context.Context) error { return nil },
	}}
	r := gin.New()
	r.GET("/healthz", h.Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	h.Checks["redis"] = func(context.Context) error { return errors.New("down") }
	r = gin.New()
	r.GET("/healthz", h.Health)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "down") {
		t.Fatalf("expected 503 naming the failure, got %d %s", w.Code, w.Body.String())
	}
}

func TestHandlers_RefreshToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	pair, _ := m.IssuePair(time.Now(), "u-1", "learner")

	h := Handlers{Tokens: m}
	r := gin.New()
	r.POST("/auth/refresh", h.RefreshToken)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := post(`{"refresh_token":"` + pair.RefreshToken + `"}`); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "access_token") {
		t.Fatalf("expected new pair, got %d %s", w.Code, w.Body.String())
	}
	if w := post(`{"refresh_token":"` + pair.AccessToken + `"}`); w.Code != http.StatusUnauthorized {
		t.Fatalf("access token must not refresh, got %d", w.Code)
	}
	if w := post(`{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
