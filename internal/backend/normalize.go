package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"edutalks/internal/calls"
)

// availableUser accepts the field spellings the API has used over time.
type availableUser struct {
	UserID            string `json:"userId"`
	ID                string `json:"id"`
	FullName          string `json:"fullName"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	PreferredLanguage string `json:"preferredLanguage"`
	LastActiveAt      string `json:"lastActiveAt"`
}

func (u availableUser) candidate() (calls.Candidate, bool) {
	id := firstNonEmpty(u.UserID, u.ID)
	if id == "" {
		return calls.Candidate{}, false
	}
	c := calls.Candidate{
		ID:                id,
		DisplayName:       firstNonEmpty(u.FullName, u.Name, u.Email, id),
		PreferredLanguage: u.PreferredLanguage,
	}
	if t, ok := parseTime(u.LastActiveAt); ok {
		c.LastActiveAt = &t
	}
	return c, true
}

// decodeCandidates accepts a bare array or an object carrying the list under
// data, items or users. Unknown shapes decode to an empty list.
func decodeCandidates(body []byte) ([]calls.Candidate, error) {
	raw, err := unwrapList(body, "data", "items", "users")
	if err != nil {
		return nil, fmt.Errorf("decode available users: %w", err)
	}
	if raw == nil {
		return []calls.Candidate{}, nil
	}
	var users []availableUser
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("decode available users: %w", err)
	}
	out := make([]calls.Candidate, 0, len(users))
	for _, u := range users {
		if c, ok := u.candidate(); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// unwrapList returns the JSON array found at the top level or under one of
// keys, descending at most two levels. nil means no list was found.
func unwrapList(body []byte, keys ...string) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	for depth := 0; depth < 3; depth++ {
		if len(body) == 0 || string(body) == "null" {
			return nil, nil
		}
		switch body[0] {
		case '[':
			return body, nil
		case '{':
		default:
			return nil, fmt.Errorf("unexpected JSON value %q", truncate(string(body), 32))
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, err
		}
		var next json.RawMessage
		for _, k := range keys {
			if v, ok := obj[k]; ok {
				next = v
				break
			}
		}
		if next == nil {
			return nil, nil
		}
		body = bytes.TrimSpace(next)
	}
	return nil, nil
}

// callObject is the call representation returned by initiate and history.
type callObject struct {
	CallID           string   `json:"callId"`
	CallerID         string   `json:"callerId"`
	CallerName       string   `json:"callerName"`
	CalleeID         string   `json:"calleeId"`
	CalleeName       string   `json:"calleeName"`
	Status           string   `json:"status"`
	InitiatedAt      string   `json:"initiatedAt"`
	AcceptedAt       string   `json:"acceptedAt"`
	EndedAt          string   `json:"endedAt"`
	DurationSeconds  float64  `json:"durationSeconds"`
	TopicID          string   `json:"topicId"`
	TopicTitle       string   `json:"topicTitle"`
	Rating           *float64 `json:"callQualityRating"`
	RemainingSeconds *float64 `json:"remainingSeconds"`
}

func decodeInitiate(body []byte) (calls.InitiateResult, error) {
	var envelope struct {
		Data *callObject `json:"data"`
		callObject
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return calls.InitiateResult{}, fmt.Errorf("decode initiate response: %w", err)
	}
	obj := envelope.callObject
	if envelope.Data != nil && envelope.Data.CallID != "" {
		obj = *envelope.Data
	}
	if obj.CallID == "" {
		return calls.InitiateResult{}, calls.ErrMissingCallID
	}
	res := calls.InitiateResult{CallID: obj.CallID, Status: obj.Status}
	if obj.RemainingSeconds != nil && *obj.RemainingSeconds > 0 {
		res.RemainingSeconds = int(*obj.RemainingSeconds)
	}
	return res, nil
}

// CallRecord is one entry of the learner's call history.
type CallRecord struct {
	CallID          string     `json:"call_id"`
	CallerID        string     `json:"caller_id,omitempty"`
	CallerName      string     `json:"caller_name,omitempty"`
	CalleeID        string     `json:"callee_id,omitempty"`
	CalleeName      string     `json:"callee_name,omitempty"`
	Status          string     `json:"status,omitempty"`
	InitiatedAt     *time.Time `json:"initiated_at,omitempty"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	TopicID         string     `json:"topic_id,omitempty"`
	TopicTitle      string     `json:"topic_title,omitempty"`
	Rating          *int       `json:"rating,omitempty"`
}

type HistoryPage struct {
	Items      []CallRecord `json:"items"`
	PageNumber int          `json:"page_number"`
	PageSize   int          `json:"page_size"`
	TotalCount int          `json:"total_count"`
}

func (o callObject) record() CallRecord {
	r := CallRecord{
		CallID:          o.CallID,
		CallerID:        o.CallerID,
		CallerName:      o.CallerName,
		CalleeID:        o.CalleeID,
		CalleeName:      o.CalleeName,
		Status:          o.Status,
		DurationSeconds: int(o.DurationSeconds),
		TopicID:         o.TopicID,
		TopicTitle:      o.TopicTitle,
	}
	if t, ok := parseTime(o.InitiatedAt); ok {
		r.InitiatedAt = &t
	}
	if t, ok := parseTime(o.AcceptedAt); ok {
		r.AcceptedAt = &t
	}
	if t, ok := parseTime(o.EndedAt); ok {
		r.EndedAt = &t
	}
	if o.Rating != nil {
		v := int(*o.Rating)
		r.Rating = &v
	}
	return r
}

func decodeHistory(body []byte, pageNumber, pageSize int) (HistoryPage, error) {
	page := HistoryPage{PageNumber: pageNumber, PageSize: pageSize}

	var meta struct {
		TotalCount *int `json:"totalCount"`
		Total      *int `json:"total"`
		PageNumber *int `json:"pageNumber"`
		PageSize   *int `json:"pageSize"`
	}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &meta); err != nil {
			return HistoryPage{}, fmt.Errorf("decode call history: %w", err)
		}
	}

	raw, err := unwrapList(body, "items", "data", "calls")
	if err != nil {
		return HistoryPage{}, fmt.Errorf("decode call history: %w", err)
	}
	var objs []callObject
	if raw != nil {
		if err := json.Unmarshal(raw, &objs); err != nil {
			return HistoryPage{}, fmt.Errorf("decode call history: %w", err)
		}
	}
	page.Items = make([]CallRecord, 0, len(objs))
	for _, o := range objs {
		page.Items = append(page.Items, o.record())
	}

	switch {
	case meta.TotalCount != nil:
		page.TotalCount = *meta.TotalCount
	case meta.Total != nil:
		page.TotalCount = *meta.Total
	default:
		page.TotalCount = len(page.Items)
	}
	if meta.PageNumber != nil {
		page.PageNumber = *meta.PageNumber
	}
	if meta.PageSize != nil {
		page.PageSize = *meta.PageSize
	}
	return page, nil
}

func decodeTokens(body []byte) (access, refresh string, err error) {
	var payload struct {
		AccessToken      string          `json:"accessToken"`
		AccessTokenSnake string          `json:"access_token"`
		Token            string          `json:"token"`
		RefreshToken     string          `json:"refreshToken"`
		RefreshSnake     string          `json:"refresh_token"`
		Data             json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", "", fmt.Errorf("decode refresh response: %w", err)
	}
	access = firstNonEmpty(payload.AccessToken, payload.AccessTokenSnake, payload.Token)
	refresh = firstNonEmpty(payload.RefreshToken, payload.RefreshSnake)
	if access == "" && len(payload.Data) > 0 && payload.Data[0] == '{' {
		return decodeTokens(payload.Data)
	}
	return access, refresh, nil
}

func parseTime(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.9999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
