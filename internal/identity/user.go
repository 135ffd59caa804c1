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

package identity

import (
	"errors"
	"time"
)

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password does not meet security requirements")
	ErrAccountLocked      = errors.New("account is locked")
)

// User is the Subject persisted entity (spec §3): email unique, display
// attributes carried directly on the record. There is no tenant partition
// in this core — every user shares a single issuer.
type User struct {
	ID                string
	Email             string
	EmailVerified     bool
	FirstName         string
	LastName          string
	Username          string
	ProfilePictureURL string

	FailedLoginAttempts int
	LockedUntil         *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// DisplayName returns the UserInfo "name" claim (spec §4.8 step 5):
// the username if set, else the concatenated given/family name.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	return name
}

// Credentials is the password credential attached to a User, stored
// separately so an identity provisioned without a password is
// representable.
type Credentials struct {
	UserID       string
	PasswordHash string
	UpdatedAt    time.Time
}

// UserRepository is the persistence capability spec §1 calls out as an
// external collaborator ("a UserStore with lookup-by-id and
// lookup-by-email"), extended with the credential and lockout operations
// the ambient login endpoint needs.
type UserRepository interface {
	Create(user *User) error
	AddCredentials(credentials *Credentials) error
	GetByID(id string) (*User, error)
	GetByEmail(email string) (*User, error)
	Update(user *User) error
	UpdateLockout(userID string, failedAttempts int, lockedUntil *time.Time) error
	Delete(id string) error
	GetCredentials(userID string) (*Credentials, error)
	UpdatePassword(userID string, passwordHash string) error
}
