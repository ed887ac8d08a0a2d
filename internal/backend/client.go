package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"edutalks/internal/auth"
	"edutalks/internal/calls"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultTimeout = 60 * time.Second
	tokenLeeway    = 30 * time.Second
	refreshTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
)

type Options struct {
	BaseURL    string
	Tokens     *TokenStore
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

// Client is an HTTP client for the EduTalks REST API.
//
// Requests carry the learner's bearer token. A 401 triggers one token refresh,
// shared by every request that hit it, and one retry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *TokenStore
	log        *slog.Logger
	now        func() time.Time

	refreshGroup singleflight.Group
}

func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		tokens:     opts.Tokens,
		log:        opts.Logger,
		now:        opts.Now,
	}
	if c.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.tokens == nil {
		c.tokens = NewTokenStore("", "")
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListAvailable fetches the learners who can currently receive a call.
func (c *Client) ListAvailable(ctx context.Context, q calls.CandidateFilter) ([]calls.Candidate, error) {
	query := url.Values{}
	if q.PreferredLanguage != "" {
		query.Set("preferredLanguage", q.PreferredLanguage)
	}
	if q.Search != "" {
		query.Set("search", q.Search)
	}
	body, err := c.do(ctx, http.MethodGet, "/api/v1/calls/available-users", query, nil)
	if err != nil {
		return nil, err
	}
	return decodeCandidates(body)
}

// InitiateCall asks the backend to ring the callee.
func (c *Client) InitiateCall(ctx context.Context, req calls.InitiateRequest) (calls.InitiateResult, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/v1/calls/initiate", nil, req)
	if err != nil {
		return calls.InitiateResult{}, err
	}
	return decodeInitiate(body)
}

// EndCall ends the call. The body is the reason as a bare JSON string.
func (c *Client) EndCall(ctx context.Context, callID, reason string) error {
	_, err := c.do(ctx, http.MethodPost, callPath(callID, "end"), nil, reason)
	return err
}

// RateCall submits the star rating as a bare JSON number. The API has no
// field for free-text feedback.
func (c *Client) RateCall(ctx context.Context, sub calls.RatingSubmission) error {
	if sub.Feedback != "" {
		c.log.Debug("rating feedback not sent; unsupported by api", "call_id", sub.CallID)
	}
	_, err := c.do(ctx, http.MethodPost, callPath(sub.CallID, "rate"), nil, sub.Stars)
	return err
}

// History fetches one page of the learner's call history.
func (c *Client) History(ctx context.Context, pageNumber, pageSize int) (HistoryPage, error) {
	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	query := url.Values{}
	query.Set("pageNumber", strconv.Itoa(pageNumber))
	query.Set("pageSize", strconv.Itoa(pageSize))
	body, err := c.do(ctx, http.MethodGet, "/api/v1/calls/history", query, nil)
	if err != nil {
		return HistoryPage{}, err
	}
	return decodeHistory(body, pageNumber, pageSize)
}

// AccessToken returns the current access token, refreshing it first when it
// is a JWT about to expire.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if err := c.ensureFresh(ctx); err != nil {
		return "", err
	}
	return c.tokens.Access(), nil
}

func callPath(callID, action string) string {
	return fmt.Sprintf("/api/v1/calls/%s/%s", url.PathEscape(callID), action)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in any) ([]byte, error) {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	if err := c.ensureFresh(ctx); err != nil {
		c.log.Warn("proactive token refresh failed", "err", err)
	}

	body, code, err := c.send(ctx, method, path, query, payload, true)
	if err != nil {
		return nil, err
	}
	if code == http.StatusUnauthorized && c.tokens.Refresh() != "" {
		if err := c.refresh(ctx); err != nil {
			return nil, err
		}
		body, code, err = c.send(ctx, method, path, query, payload, true)
		if err != nil {
			return nil, err
		}
	}
	if code < 200 || code > 299 {
		return nil, &StatusError{Method: method, Path: path, Code: code, Message: serverMessage(body)}
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, payload []byte, authorize bool) ([]byte, int, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorize {
		if tok := c.tokens.Access(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) ensureFresh(ctx context.Context) error {
	if c.tokens.Refresh() == "" {
		return nil
	}
	access := c.tokens.Access()
	if access != "" && !auth.Expired(access, c.now(), tokenLeeway) {
		return nil
	}
	return c.refresh(ctx)
}

// refresh exchanges the refresh token for a new pair. Concurrent callers share
// one request, which outlives the cancellation of the caller that started it.
// On failure both tokens are dropped.
func (c *Client) refresh(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		rt := c.tokens.Refresh()
		if rt == "" {
			return nil, ErrNoRefreshToken
		}
		payload, _ := json.Marshal(map[string]string{"refreshToken": rt})
		body, code, err := c.send(ctx, http.MethodPost, "/api/v1/auth/refresh-token", nil, payload, false)
		if err != nil {
			return nil, err
		}
		if code < 200 || code > 299 {
			c.tokens.Clear()
			return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, &StatusError{Method: http.MethodPost, Path: "/api/v1/auth/refresh-token", Code: code, Message: serverMessage(body)})
		}
		access, next, err := decodeTokens(body)
		if err != nil || access == "" {
			c.tokens.Clear()
			return nil, ErrRefreshFailed
		}
		c.tokens.Set(access, next)
		c.log.Info("backend token refreshed")
		return nil, nil
	})
	return err
}
