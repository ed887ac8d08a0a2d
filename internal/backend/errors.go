package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNoRefreshToken: a 401 arrived and there is nothing to refresh with.
	ErrNoRefreshToken = errors.New("backend: no refresh token")
	// ErrRefreshFailed: the refresh endpoint returned no usable access token.
	ErrRefreshFailed = errors.New("backend: unable to refresh token")
)

// StatusError is a non-2xx response from the EduTalks API.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.Code)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

func IsUnauthorized(err error) bool { return IsStatus(err, http.StatusUnauthorized) }

// serverMessage extracts a human-readable message from an error body.
func serverMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Title   string `json:"title"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, m := range []string{payload.Message, payload.Error, payload.Title} {
			if m = strings.TrimSpace(m); m != "" {
				return m
			}
		}
		return ""
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
