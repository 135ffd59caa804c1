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

package grantstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// AuthCode is the value bound to an authorization code at issuance
// (spec §3, AuthCode grant). IssuedAccessJTI/IssuedRefreshKey are filled in
// by the token endpoint once the code has been exchanged, so that a
// detected replay (spec §9) can revoke what the first, legitimate exchange
// minted.
type AuthCode struct {
	UserID              string    `json:"user_id"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scopes              []string  `json:"scopes"`
	Nonce               string    `json:"nonce,omitempty"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	IssuedAt            time.Time `json:"issued_at"`
	IssuedAccessJTI     string    `json:"issued_access_jti,omitempty"`
	IssuedRefreshKey    string    `json:"issued_refresh_key,omitempty"`
}

// PutAuthCode stores a freshly minted auth code under auth_code:<code>
// with the configured AUTH_CODE_TTL.
func (s *Store) PutAuthCode(ctx context.Context, code string, rec AuthCode, ttl time.Duration) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("grantstore: marshal auth code: %w", err)
	}
	return s.put(ctx, prefixAuthCode+code, b, ttl)
}

// GetAuthCode loads the record bound to code, or ErrNotFound if it has
// expired or never existed.
func (s *Store) GetAuthCode(ctx context.Context, code string) (*AuthCode, error) {
	b, err := s.get(ctx, prefixAuthCode+code)
	if err != nil {
		return nil, err
	}
	var rec AuthCode
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("grantstore: unmarshal auth code: %w", err)
	}
	return &rec, nil
}

// ClaimAuthCode atomically marks code as used via a SETNX claim key,
// admitting exactly one winner across any interleaving of concurrent
// exchanges (spec §4.7 step 8, §9). It never does a read-modify-write on
// the payload key itself, which is the race the original source shipped.
func (s *Store) ClaimAuthCode(ctx context.Context, code string, ttl time.Duration) error {
	won, err := s.claim(ctx, prefixAuthCodeClaim+code, ttl)
	if err != nil {
		return err
	}
	if !won {
		return ErrAlreadyClaimed
	}
	return nil
}

// RecordAuthCodeIssuance overwrites the auth-code record with pointers to
// what the winning exchange minted, so a later replay can be revoked
// (spec §9 open question). Best-effort: called after the code is already
// claimed, so a failure here does not unwind the issued tokens.
func (s *Store) RecordAuthCodeIssuance(ctx context.Context, code string, rec AuthCode, ttl time.Duration) error {
	return s.PutAuthCode(ctx, code, rec, ttl)
}

// DeleteAuthCode removes both the payload and claim keys for code, used
// when revoking a replayed code's grant entirely.
func (s *Store) DeleteAuthCode(ctx context.Context, code string) error {
	if err := s.delete(ctx, prefixAuthCode+code); err != nil {
		return err
	}
	return s.delete(ctx, prefixAuthCodeClaim+code)
}

// RefreshToken is the record bound to a refresh-token string (spec §3,
// RefreshToken record). Exp is absolute, fixed to REFRESH_TOKEN_EXPIRATION
// per spec §9's resolution of the original's inconsistent TTL source.
type RefreshToken struct {
	UserID   string    `json:"user_id"`
	ClientID string    `json:"client_id"`
	Scopes   []string  `json:"scopes"`
	Exp      time.Time `json:"exp"`
}

// PutRefreshToken stores rec under refresh_token:<token> with ttl equal to
// the remaining time until rec.Exp.
func (s *Store) PutRefreshToken(ctx context.Context, token string, rec RefreshToken, ttl time.Duration) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("grantstore: marshal refresh token: %w", err)
	}
	return s.put(ctx, prefixRefreshToken+token, b, ttl)
}

// GetRefreshToken loads the record for token, or ErrNotFound.
func (s *Store) GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	b, err := s.get(ctx, prefixRefreshToken+token)
	if err != nil {
		return nil, err
	}
	var rec RefreshToken
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("grantstore: unmarshal refresh token: %w", err)
	}
	return &rec, nil
}

// DeleteRefreshToken removes token, the "delete-before-mint" half of
// rotation (spec §5, §8 "Refresh rotation"): the caller deletes the old
// record before minting its successor so at most one successor per
// rotation is ever issued, even under a concurrent replay of the same
// refresh token.
func (s *Store) DeleteRefreshToken(ctx context.Context, token string) error {
	return s.delete(ctx, prefixRefreshToken+token)
}

// ClaimRefreshToken closes the rotation race the same way ClaimAuthCode
// closes the code-replay race: only the first presentation of a given
// refresh token wins the claim and may proceed to delete-then-mint.
func (s *Store) ClaimRefreshToken(ctx context.Context, token string, ttl time.Duration) error {
	won, err := s.claim(ctx, prefixRefreshClaimed+token, ttl)
	if err != nil {
		return err
	}
	if !won {
		return ErrAlreadyClaimed
	}
	return nil
}

// Blacklist records token as revoked, keyed by the exact access-token
// string, for ttl equal to its remaining lifetime (spec §3, Revocation
// record; §4.9).
func (s *Store) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	return s.put(ctx, prefixBlacklist+token, []byte("1"), ttl)
}

// IsBlacklisted reports whether token has been revoked and not yet
// reached its natural expiry.
func (s *Store) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	_, err := s.get(ctx, prefixBlacklist+token)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// OIDCContext is the in-progress authorize request carried across a login
// detour (spec §3, OIDC session context). It is keyed by the user's login
// session identifier, not serialized into the URL, per §9's design note.
type OIDCContext struct {
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	State               string    `json:"state"`
	Scope               string    `json:"scope"`
	Nonce               string    `json:"nonce,omitempty"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

// PutOIDCContext stores ctx under oidc_ctx:<sessionKey> with the
// AUTH_CODE_TTL, which also bounds the session context's own expiry.
func (s *Store) PutOIDCContext(ctx context.Context, sessionKey string, rec OIDCContext, ttl time.Duration) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("grantstore: marshal oidc context: %w", err)
	}
	return s.put(ctx, prefixOIDCContext+sessionKey, b, ttl)
}

// GetOIDCContext loads the stored context for sessionKey, or ErrNotFound
// if it was never stored or has expired.
func (s *Store) GetOIDCContext(ctx context.Context, sessionKey string) (*OIDCContext, error) {
	b, err := s.get(ctx, prefixOIDCContext+sessionKey)
	if err != nil {
		return nil, err
	}
	var rec OIDCContext
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("grantstore: unmarshal oidc context: %w", err)
	}
	return &rec, nil
}

// DeleteOIDCContext removes the resumed context so it cannot be replayed.
func (s *Store) DeleteOIDCContext(ctx context.Context, sessionKey string) error {
	return s.delete(ctx, prefixOIDCContext+sessionKey)
}

// EmailVerification maps an opaque, single-use token to the user it
// confirms (spec §3, Email-verification token; supplemented feature,
// SPEC_FULL §5).
type EmailVerification struct {
	UserID string `json:"user_id"`
}

// PutEmailVerification stores rec under email_verification:<token>.
func (s *Store) PutEmailVerification(ctx context.Context, token string, rec EmailVerification, ttl time.Duration) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("grantstore: marshal email verification: %w", err)
	}
	return s.put(ctx, prefixEmailVerify+token, b, ttl)
}

// GetEmailVerification loads the record for token, or ErrNotFound.
func (s *Store) GetEmailVerification(ctx context.Context, token string) (*EmailVerification, error) {
	b, err := s.get(ctx, prefixEmailVerify+token)
	if err != nil {
		return nil, err
	}
	var rec EmailVerification
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("grantstore: unmarshal email verification: %w", err)
	}
	return &rec, nil
}

// DeleteEmailVerification removes token, enforcing single use.
func (s *Store) DeleteEmailVerification(ctx context.Context, token string) error {
	return s.delete(ctx, prefixEmailVerify+token)
}
