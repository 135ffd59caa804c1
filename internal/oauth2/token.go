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

package oauth2

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opentrusty/opentrusty/internal/grantstore"
	"github.com/opentrusty/opentrusty/internal/id"
	"github.com/opentrusty/opentrusty/internal/uri"
)

// ExchangeAuthCode implements grant_type=authorization_code (spec §4.7
// steps 1-14). The code is claimed via grantstore's compare-and-set
// before it is ever read for its payload, closing the replay race the
// original implementation left open (spec §9): a second presentation of
// the same code loses the claim and is rejected before it can learn
// anything about the grant it is trying to steal.
func (e *Engine) ExchangeAuthCode(ctx context.Context, clientID, clientSecret, code, redirectURI, codeVerifier string) (*TokenResponse, error) {
	client, err := e.clients.Authenticate(clientID, clientSecret)
	if err != nil {
		return nil, NewError(ErrInvalidClient, "client authentication failed")
	}

	if err := e.grants.ClaimAuthCode(ctx, code, e.cfg.AuthCodeTTL); err != nil {
		if errors.Is(err, grantstore.ErrAlreadyClaimed) {
			e.revokeReplayedCode(ctx, code)
			return nil, NewError(ErrInvalidGrant, "authorization code already used")
		}
		return nil, NewError(ErrServerError, "grant store unavailable")
	}

	rec, err := e.grants.GetAuthCode(ctx, code)
	if err != nil {
		return nil, NewError(ErrInvalidGrant, "authorization code expired or unknown")
	}

	if rec.ClientID != client.ClientID {
		return nil, NewError(ErrInvalidGrant, "authorization code was not issued to this client")
	}
	if !uri.Equal(rec.RedirectURI, redirectURI) {
		return nil, NewError(ErrInvalidGrant, "redirect_uri does not match the authorize request")
	}
	if !validatePKCE(rec.CodeChallenge, rec.CodeChallengeMethod, codeVerifier) {
		return nil, NewError(ErrInvalidGrant, "code_verifier does not match the code_challenge")
	}

	if _, err := e.users.GetUser(ctx, rec.UserID); err != nil {
		return nil, NewError(ErrInvalidGrant, "subject no longer exists")
	}

	resp, err := e.mintTokens(ctx, rec.UserID, client.ClientID, rec.Scopes, rec.Nonce, true)
	if err != nil {
		return nil, err
	}

	rec.IssuedAccessJTI = resp.jti
	rec.IssuedRefreshKey = resp.refreshKey
	_ = e.grants.RecordAuthCodeIssuance(ctx, code, *rec, e.cfg.AuthCodeTTL)

	return resp.TokenResponse, nil
}

// revokeReplayedCode is the best-effort response to a detected code
// replay (spec §9 open question): it revokes the tokens the legitimate,
// winning exchange minted, on the assumption that a second presentation
// means the code leaked.
func (e *Engine) revokeReplayedCode(ctx context.Context, code string) {
	rec, err := e.grants.GetAuthCode(ctx, code)
	if err != nil {
		return
	}
	if rec.IssuedRefreshKey != "" {
		_ = e.grants.DeleteRefreshToken(ctx, rec.IssuedRefreshKey)
	}
	if rec.IssuedAccessJTI != "" {
		_ = e.grants.Blacklist(ctx, rec.IssuedAccessJTI, e.cfg.AccessTokenTTL)
	}
}

// RefreshAccessToken implements grant_type=refresh_token (spec §4.7
// steps 1, 10-14 applied to the refresh grant; spec §5/§8 "delete before
// mint" rotation). The presented token is claimed, then deleted, and
// only then is its successor minted, so at most one successor is ever
// issued per rotation even if the same refresh token is replayed
// concurrently.
func (e *Engine) RefreshAccessToken(ctx context.Context, clientID, clientSecret, refreshToken, requestedScope string) (*TokenResponse, error) {
	client, err := e.clients.Authenticate(clientID, clientSecret)
	if err != nil {
		return nil, NewError(ErrInvalidClient, "client authentication failed")
	}

	if err := e.grants.ClaimRefreshToken(ctx, refreshToken, e.cfg.RefreshTokenTTL); err != nil {
		if errors.Is(err, grantstore.ErrAlreadyClaimed) {
			return nil, NewError(ErrInvalidGrant, "refresh token already used")
		}
		return nil, NewError(ErrServerError, "grant store unavailable")
	}

	rec, err := e.grants.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, NewError(ErrInvalidGrant, "refresh token expired or unknown")
	}
	if rec.ClientID != client.ClientID {
		return nil, NewError(ErrInvalidGrant, "refresh token was not issued to this client")
	}
	if !rec.Exp.IsZero() && time.Now().After(rec.Exp) {
		return nil, NewError(ErrInvalidGrant, "token_expired")
	}

	if _, err := e.users.GetUser(ctx, rec.UserID); err != nil {
		return nil, NewError(ErrUserNotFound, "subject no longer exists")
	}

	scopes := rec.Scopes
	if requestedScope != "" {
		narrowed, err := narrowScope(rec.Scopes, requestedScope)
		if err != nil {
			return nil, NewError(ErrInvalidScope, "requested scope exceeds the original grant")
		}
		scopes = narrowed
	}

	if err := e.grants.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return nil, NewError(ErrServerError, "grant store unavailable")
	}

	resp, err := e.mintTokens(ctx, rec.UserID, client.ClientID, scopes, "", e.cfg.IssueIDTokenOnRefresh)
	if err != nil {
		return nil, err
	}
	return resp.TokenResponse, nil
}

type mintResult struct {
	*TokenResponse
	jti        string
	refreshKey string
}

// mintTokens signs an access token and a rotation-eligible refresh token,
// and an ID token when withIDToken is set and the grant carries the
// openid scope (spec §4.7 step 13, §4.8 note on id_token-on-refresh being
// a configuration flag rather than unconditional).
func (e *Engine) mintTokens(ctx context.Context, userID, clientID string, scopes []string, nonce string, withIDToken bool) (*mintResult, error) {
	accessToken, accessExp, err := e.tokens.SignAccessToken(userID, clientID, scopes, e.cfg.AccessTokenTTL)
	if err != nil {
		return nil, NewError(ErrServerError, "failed to sign access token")
	}

	refreshKey := id.NewToken(64)
	refreshRec := grantstore.RefreshToken{
		UserID:   userID,
		ClientID: clientID,
		Scopes:   scopes,
		Exp:      accessExp.Add(e.cfg.RefreshTokenTTL - e.cfg.AccessTokenTTL),
	}
	if err := e.grants.PutRefreshToken(ctx, refreshKey, refreshRec, e.cfg.RefreshTokenTTL); err != nil {
		return nil, fmt.Errorf("oauth2: store refresh token: %w", err)
	}

	resp := &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(e.cfg.AccessTokenTTL.Seconds()),
		RefreshToken: refreshKey,
		Scope:        strings.Join(scopes, " "),
	}

	if withIDToken && hasScope(strings.Join(scopes, " "), ScopeOpenID) {
		idToken, err := e.tokens.SignIDToken(userID, clientID, nonce, e.cfg.IDTokenTTL)
		if err != nil {
			return nil, NewError(ErrServerError, "failed to sign id token")
		}
		resp.IDToken = idToken
	}

	return &mintResult{TokenResponse: resp, jti: accessToken, refreshKey: refreshKey}, nil
}

// narrowScope implements RFC 6749 §6: a refresh request may ask for a
// subset of the originally granted scope but never more.
func narrowScope(granted []string, requested string) ([]string, error) {
	requestedScopes := strings.Fields(requested)
	grantedSet := make(map[string]bool, len(granted))
	for _, s := range granted {
		grantedSet[s] = true
	}
	for _, s := range requestedScopes {
		if !grantedSet[s] {
			return nil, fmt.Errorf("oauth2: scope %q exceeds original grant", s)
		}
	}
	return requestedScopes, nil
}
