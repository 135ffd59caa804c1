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

// Package identity provisions and authenticates the human Subjects this
// issuer signs tokens on behalf of. Registration and credential
// verification are ambient concerns (spec §1 scopes the HTML/forms out,
// but assumes "authenticated subject is available after login"); this
// package is that contract's implementation.
package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opentrusty/opentrusty/internal/audit"
	"github.com/opentrusty/opentrusty/internal/id"
	"github.com/opentrusty/opentrusty/internal/secrethash"
)

// Profile carries the display attributes supplied at registration or
// updated afterward.
type Profile struct {
	FirstName         string
	LastName          string
	Username          string
	ProfilePictureURL string
}

// Service provides identity-related business logic: registration,
// password authentication with lockout, and profile maintenance.
type Service struct {
	repo               UserRepository
	hasher             *secrethash.Hasher
	auditLogger        audit.Logger
	lockoutMaxAttempts int
	lockoutDuration    time.Duration
}

// NewService creates a new identity service.
func NewService(
	repo UserRepository,
	hasher *secrethash.Hasher,
	auditLogger audit.Logger,
	lockoutMaxAttempts int,
	lockoutDuration time.Duration,
) *Service {
	return &Service{
		repo:               repo,
		hasher:             hasher,
		auditLogger:        auditLogger,
		lockoutMaxAttempts: lockoutMaxAttempts,
		lockoutDuration:    lockoutDuration,
	}
}

// Register creates a new User with an email/password credential pair
// (spec §3 User lifecycle: "created via registration").
func (s *Service) Register(ctx context.Context, email, password string, profile Profile) (*User, error) {
	if !isValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if !isStrongPassword(password) {
		return nil, ErrWeakPassword
	}

	if existing, err := s.repo.GetByEmail(email); err == nil && existing != nil {
		return nil, ErrUserAlreadyExists
	}

	user := &User{
		ID:                id.NewUUIDv7(),
		Email:             email,
		EmailVerified:     false,
		FirstName:         profile.FirstName,
		LastName:          profile.LastName,
		Username:          profile.Username,
		ProfilePictureURL: profile.ProfilePictureURL,
	}

	if err := s.repo.Create(user); err != nil {
		return nil, fmt.Errorf("identity: create user: %w", err)
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("identity: hash password: %w", err)
	}
	if err := s.repo.AddCredentials(&Credentials{UserID: user.ID, PasswordHash: passwordHash}); err != nil {
		return nil, fmt.Errorf("identity: add credentials: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserCreated,
		ActorID:  user.ID,
		Resource: audit.ResourceUser,
		Metadata: map[string]any{audit.AttrEmail: email},
	})

	return user, nil
}

// Authenticate verifies email/password credentials, enforcing the
// configured failed-attempt lockout.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.GetByEmail(email)
	if err != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			Resource: email,
			Metadata: map[string]any{audit.AttrReason: "user_not_found"},
		})
		return nil, ErrInvalidCredentials
	}

	if user.LockedUntil != nil && user.LockedUntil.After(time.Now()) {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: audit.ResourceSession,
			Metadata: map[string]any{audit.AttrReason: "locked_out"},
		})
		return nil, ErrAccountLocked
	}

	credentials, err := s.repo.GetCredentials(user.ID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	valid, err := secrethash.Verify(password, credentials.PasswordHash)
	if err != nil || !valid {
		attempts := user.FailedLoginAttempts + 1
		var lockedUntil *time.Time
		if attempts >= s.lockoutMaxAttempts {
			until := time.Now().Add(s.lockoutDuration)
			lockedUntil = &until
			s.auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeUserLocked,
				ActorID:  user.ID,
				Resource: audit.ResourceSession,
				Metadata: map[string]any{audit.AttrAttempts: attempts},
			})
		}
		_ = s.repo.UpdateLockout(user.ID, attempts, lockedUntil)

		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: audit.ResourceSession,
			Metadata: map[string]any{audit.AttrReason: "invalid_password", audit.AttrAttempts: attempts},
		})
		return nil, ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		_ = s.repo.UpdateLockout(user.ID, 0, nil)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginSuccess,
		ActorID:  user.ID,
		Resource: audit.ResourceSession,
	})

	return user, nil
}

// GetByEmail retrieves a user by email.
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	user, err := s.repo.GetByEmail(email)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// GetUser retrieves a user by id, the lookup UserInfo and the token
// endpoint both depend on (spec §3 UserStore contract).
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetByID(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateProfile updates the display attributes of an existing user.
func (s *Service) UpdateProfile(ctx context.Context, userID string, profile Profile) error {
	user, err := s.repo.GetByID(userID)
	if err != nil {
		return ErrUserNotFound
	}

	user.FirstName = profile.FirstName
	user.LastName = profile.LastName
	user.Username = profile.Username
	user.ProfilePictureURL = profile.ProfilePictureURL
	return s.repo.Update(user)
}

// ChangePassword rotates a user's password after verifying the old one.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	credentials, err := s.repo.GetCredentials(userID)
	if err != nil {
		return ErrUserNotFound
	}

	valid, err := secrethash.Verify(oldPassword, credentials.PasswordHash)
	if err != nil || !valid {
		return ErrInvalidCredentials
	}

	if !isStrongPassword(newPassword) {
		return ErrWeakPassword
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("identity: hash password: %w", err)
	}

	if err := s.repo.UpdatePassword(userID, newHash); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePasswordChanged,
		ActorID:  userID,
		Resource: audit.ResourceUserCredentials,
	})
	return nil
}

// MarkEmailVerified flips email_verified on a token-confirmed
// verification (spec §3 User lifecycle).
func (s *Service) MarkEmailVerified(ctx context.Context, userID string) error {
	user, err := s.repo.GetByID(userID)
	if err != nil {
		return ErrUserNotFound
	}
	if user.EmailVerified {
		return nil
	}
	user.EmailVerified = true
	if err := s.repo.Update(user); err != nil {
		return err
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeEmailVerified,
		ActorID:  userID,
		Resource: audit.ResourceUser,
	})
	return nil
}

func isValidEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && len(email) < 255
}

func isStrongPassword(password string) bool {
	return len(password) >= 8
}
