package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"edutalks/internal/auth"
	"edutalks/internal/availability"
	"edutalks/internal/backend"
	"edutalks/internal/calls"
	"edutalks/internal/reporting"
	"edutalks/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallController is the subset of *calls.Controller the API drives.
type CallController interface {
	Snapshot() calls.Session
	Start(ctx context.Context, topicID string) (calls.Session, error)
	End(ctx context.Context, reason string) calls.Session
	MarkConnected(callID string) bool
	SubmitRating(ctx context.Context, stars int, feedback string) error
	BlockAndReset(ctx context.Context) error
	Reset(ctx context.Context) calls.Session
}

// CandidateLister is the subset of *availability.Poller the API reads.
type CandidateLister interface {
	Candidates() []calls.Candidate
	RefreshNow(ctx context.Context) ([]calls.Candidate, error)
	Status() availability.Status
}

type HistorySource interface {
	History(ctx context.Context, pageNumber, pageSize int) (backend.HistoryPage, error)
}

type TokenRefresher interface {
	Refresh(refreshToken string, now time.Time) (auth.TokenPair, error)
}

type Reports interface {
	CallsSummary(ctx context.Context, r reporting.TimeRange) (reporting.CallsSummary, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Calls      CallController
	Candidates CandidateLister
	History    HistorySource
	Reports    Reports
	Tokens     TokenRefresher

	// Checks are run by Health. Any failure turns the response into 503.
	Checks map[string]func(ctx context.Context) error

	// Now defaults to time.Now.
	Now func() time.Time
}

const (
	defaultPageSize     = 20
	maxPageSize         = 100
	defaultReportWindow = 7 * 24 * time.Hour
)

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h Handlers) Health(c *gin.Context) {
	failed := gin.H{}
	for name, check := range h.Checks {
		if err := check(c.Request.Context()); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failed": failed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) Me(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role})
}

// --- Auth ---

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshToken exchanges a local API refresh token for a new pair.
func (h Handlers) RefreshToken(c *gin.Context) {
	if h.Tokens == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	pair, err := h.Tokens.Refresh(req.RefreshToken, h.now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// --- Candidates ---

func (h Handlers) ListCandidates(c *gin.Context) {
	list := h.Candidates.Candidates()
	c.JSON(http.StatusOK, gin.H{"items": list, "poller": h.Candidates.Status()})
}

func (h Handlers) RefreshCandidates(c *gin.Context) {
	list, err := h.Candidates.RefreshNow(c.Request.Context())
	if err != nil {
		logger.From(c.Request.Context()).Warn("candidate refresh failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "candidate refresh failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list})
}

// --- Call session ---

type startRequest struct {
	TopicID string `json:"topic_id"`
}

type endRequest struct {
	Reason string `json:"reason"`
}

type connectedRequest struct {
	CallID string `json:"call_id"`
}

type ratingRequest struct {
	Stars    *int   `json:"stars"`
	Feedback string `json:"feedback"`
}

func (h Handlers) GetCall(c *gin.Context) {
	c.JSON(http.StatusOK, h.Calls.Snapshot())
}

func (h Handlers) StartCall(c *gin.Context) {
	var req startRequest
	if !bindOptional(c, &req) {
		return
	}
	s, err := h.Calls.Start(c.Request.Context(), req.TopicID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h Handlers) EndCall(c *gin.Context) {
	var req endRequest
	if !bindOptional(c, &req) {
		return
	}
	c.JSON(http.StatusOK, h.Calls.End(c.Request.Context(), req.Reason))
}

// MarkConnected lets the presentation shell report that the callee answered
// when the status comes from a channel the agent does not listen to.
func (h Handlers) MarkConnected(c *gin.Context) {
	var req connectedRequest
	if !bindOptional(c, &req) {
		return
	}
	applied := h.Calls.MarkConnected(req.CallID)
	c.JSON(http.StatusOK, gin.H{"applied": applied, "session": h.Calls.Snapshot()})
}

func (h Handlers) SubmitRating(c *gin.Context) {
	var req ratingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Stars == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "stars required"})
		return
	}
	if err := h.Calls.SubmitRating(c.Request.Context(), *req.Stars, req.Feedback); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Calls.Snapshot())
}

func (h Handlers) BlockCallee(c *gin.Context) {
	if err := h.Calls.BlockAndReset(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Calls.Snapshot())
}

func (h Handlers) ResetCall(c *gin.Context) {
	c.JSON(http.StatusOK, h.Calls.Reset(c.Request.Context()))
}

// --- History ---

func (h Handlers) CallHistory(c *gin.Context) {
	if h.History == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "history not configured"})
		return
	}
	page, ok := intQuery(c, "page", 1)
	if !ok {
		return
	}
	size, ok := intQuery(c, "page_size", defaultPageSize)
	if !ok {
		return
	}
	if page < 1 || size < 1 || size > maxPageSize {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "page must be >= 1 and page_size within 1..100"})
		return
	}
	out, err := h.History.History(c.Request.Context(), page, size)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Admin ---

// CallsReport summarizes the local session journal.
// Query: from, to as RFC3339. Defaults to the last 7 days.
func (h Handlers) CallsReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "reporting not configured"})
		return
	}
	to := h.now().UTC()
	from := to.Add(-defaultReportWindow)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		to = t
	}
	if !from.Before(to) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be before to"})
		return
	}
	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.TimeRange{From: from, To: to})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// bindOptional binds a JSON body when one is present.
func bindOptional(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return false
	}
	return true
}

func intQuery(c *gin.Context, key string, def int) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": key + " must be an integer"})
		return 0, false
	}
	return n, true
}
