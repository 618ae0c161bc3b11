package core

import (
	"agrorec/pkg/domain"
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrSessionClosed is returned by a session used after Logout.
var ErrSessionClosed = errors.New("session closed")

// Credentials is the opaque identity handed over by the authentication
// provider. It is not validated beyond being present.
type Credentials struct {
	UserID string
	Email  string
}

// Session scopes repository calls to one authenticated user.
type Session struct {
	svc   *Service
	creds Credentials

	mu     sync.Mutex
	closed bool
}

// Login opens a session for creds.
func (s *Service) Login(creds Credentials) (*Session, error) {
	creds.UserID = strings.TrimSpace(creds.UserID)
	if creds.UserID == "" {
		return nil, domain.ValidationError{Entity: EntityUserProfile, Field: "userId", Message: "required"}
	}
	s.logger.Info("session opened", "user_id", creds.UserID)
	return &Session{svc: s, creds: creds}, nil
}

// UserID returns the authenticated user id.
func (s *Session) UserID() string { return s.creds.UserID }

// Email returns the authenticated user email.
func (s *Session) Email() string { return s.creds.Email }

func (s *Session) active() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// CreateRecommendation stores form as owned by the session user. A missing
// technician email defaults to the session email.
func (s *Session) CreateRecommendation(ctx context.Context, form Recommendation) (string, error) {
	if err := s.active(); err != nil {
		return "", err
	}
	if form.Technician.Email == "" {
		form.Technician.Email = s.creds.Email
	}
	return s.svc.recommendations.Create(ctx, form, s.creds.UserID)
}

// ListRecommendations lists the records visible to the session user.
func (s *Session) ListRecommendations(ctx context.Context, page, pageSize int, filters ListFilters) (Page, error) {
	if err := s.active(); err != nil {
		return Page{}, err
	}
	return s.svc.recommendations.List(ctx, s.creds.UserID, page, pageSize, filters)
}

// LastRecommendation returns the most recent record visible to the session user.
func (s *Session) LastRecommendation(ctx context.Context) (Recommendation, bool, error) {
	if err := s.active(); err != nil {
		return Recommendation{}, false, err
	}
	return s.svc.recommendations.Last(ctx, s.creds.UserID)
}

// Profile returns the cached profile of the session user.
func (s *Session) Profile(ctx context.Context) (UserProfile, bool, error) {
	if err := s.active(); err != nil {
		return UserProfile{}, false, err
	}
	return s.svc.profiles.Get(ctx, s.creds.UserID)
}

// SaveProfile caches name and signature for the session user.
func (s *Session) SaveProfile(ctx context.Context, name string, signature *string) (UserProfile, error) {
	if err := s.active(); err != nil {
		return UserProfile{}, err
	}
	return s.svc.profiles.Put(ctx, s.creds.UserID, UserProfile{
		Email:     s.creds.Email,
		Name:      name,
		Signature: signature,
	})
}

// Logout ends the session. The local store is wiped only when confirmed is
// true; otherwise the call is a no-op and reports false.
func (s *Session) Logout(ctx context.Context, confirmed bool) (bool, error) {
	if !confirmed {
		s.svc.logger.Info("logout not confirmed, keeping local data", "user_id", s.creds.UserID)
		return false, nil
	}
	if err := s.svc.ClearAll(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.svc.logger.Info("session closed", "user_id", s.creds.UserID)
	return true, nil
}
