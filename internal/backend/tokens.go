package backend

import "sync"

// TokenStore holds the learner's EduTalks credentials.
type TokenStore struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

func NewTokenStore(access, refresh string) *TokenStore {
	return &TokenStore{access: access, refresh: refresh}
}

func (s *TokenStore) Access() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

func (s *TokenStore) Refresh() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// Set replaces the access token and, when non-empty, the refresh token.
func (s *TokenStore) Set(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	if refresh != "" {
		s.refresh = refresh
	}
}

// Clear drops both tokens after a failed refresh.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access, s.refresh = "", ""
}
