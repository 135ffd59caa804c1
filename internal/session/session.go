// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package session implements the login-session capability spec §9 calls
// for in place of framework-managed, request-local auth state: "a plain
// User record and a Session/Auth capability used by endpoint handlers".
// It is the thing that makes "authenticated subject is available after
// login" true for the authorize endpoint's unauthenticated-user detour.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/opentrusty/opentrusty/internal/id"
)

// Domain errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Session represents a logged-in user's browser session.
type Session struct {
	ID         string
	UserID     string
	IPAddress  string
	UserAgent  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// IsExpired reports whether the session has outlived its absolute lifetime.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsIdle reports whether the session has been idle longer than idleTimeout.
func (s *Session) IsIdle(idleTimeout time.Duration) bool {
	return time.Since(s.LastSeenAt) > idleTimeout
}

// Repository persists Sessions.
type Repository interface {
	Create(session *Session) error
	Get(sessionID string) (*Session, error)
	Update(session *Session) error
	Delete(sessionID string) error
	DeleteByUserID(userID string) error
	DeleteExpired() error
}

// Service issues and validates login sessions.
type Service struct {
	repo        Repository
	lifetime    time.Duration
	idleTimeout time.Duration
}

// NewService creates a session service with the given absolute lifetime
// and idle timeout.
func NewService(repo Repository, lifetime, idleTimeout time.Duration) *Service {
	return &Service{repo: repo, lifetime: lifetime, idleTimeout: idleTimeout}
}

// Create starts a new session for userID.
func (s *Service) Create(ctx context.Context, userID, ipAddress, userAgent string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:         id.NewUUIDv7(),
		UserID:     userID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		ExpiresAt:  now.Add(s.lifetime),
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.repo.Create(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get loads a session, rejecting it if it has expired or gone idle.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.repo.Get(sessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	if sess.IsExpired() || sess.IsIdle(s.idleTimeout) {
		_ = s.repo.Delete(sessionID)
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Refresh bumps last-seen-at so the idle timeout doesn't elapse under
// continued activity.
func (s *Service) Refresh(ctx context.Context, sessionID string) error {
	sess, err := s.repo.Get(sessionID)
	if err != nil {
		return ErrSessionNotFound
	}
	sess.LastSeenAt = time.Now()
	return s.repo.Update(sess)
}

// Destroy ends a session, used by the ambient logout endpoint.
func (s *Service) Destroy(ctx context.Context, sessionID string) error {
	return s.repo.Delete(sessionID)
}

// CleanupExpired sweeps sessions past their absolute lifetime. Run
// periodically from a background ticker (spec §5: "no in-process mutable
// singletons are required" beyond this kind of best-effort housekeeping).
func (s *Service) CleanupExpired(ctx context.Context) error {
	return s.repo.DeleteExpired()
}
