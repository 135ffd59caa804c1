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

// Package oauth2 is the Authorization Code grant with PKCE (spec §4.6,
// §4.7): client registration and authentication, the Authorize and Token
// endpoints' domain logic, UserInfo claim assembly and revocation. HTTP
// framing lives in internal/transport/http; this package only ever speaks
// in terms of validated requests and protocol Errors.
package oauth2

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opentrusty/opentrusty/internal/grantstore"
	"github.com/opentrusty/opentrusty/internal/id"
	"github.com/opentrusty/opentrusty/internal/identity"
	"github.com/opentrusty/opentrusty/internal/oidc"
)

// EngineConfig carries the TTLs and feature flags an Engine is
// parameterized on (spec §6/§9): every client shares these, there is no
// per-client override.
type EngineConfig struct {
	AccessTokenTTL        time.Duration
	RefreshTokenTTL       time.Duration
	IDTokenTTL            time.Duration
	AuthCodeTTL           time.Duration
	IssueIDTokenOnRefresh bool
}

// Engine orchestrates the Authorization Code grant end to end: it is the
// one type that touches the ClientRegistry, the grantstore, the token
// signer and the user store together.
type Engine struct {
	clients *ClientRegistry
	grants  *grantstore.Store
	tokens  *oidc.Service
	users   *identity.Service
	cfg     EngineConfig
}

// NewEngine wires the Engine's four collaborators.
func NewEngine(clients *ClientRegistry, grants *grantstore.Store, tokens *oidc.Service, users *identity.Service, cfg EngineConfig) *Engine {
	return &Engine{clients: clients, grants: grants, tokens: tokens, users: users, cfg: cfg}
}

// AuthorizeRequest is the validated shape of a GET /authorize request
// (spec §4.6).
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// TokenResponse is the JSON body returned from a successful /token
// request (spec §4.7 step 14, RFC 6749 §5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// ValidateClientAndRedirect resolves req.ClientID and checks that
// req.RedirectURI is one of its registered URIs (spec §4.6 steps 1-3).
// It is split out from ValidateAuthorizeRequest because a redirect_uri
// failure must not redirect the error back to the caller (RFC 6749
// §4.1.2.1): the handler needs the client/redirect-uri check to succeed
// before it is safe to build any redirect at all.
func (e *Engine) ValidateClientAndRedirect(ctx context.Context, clientID, redirectURI string) (*Client, error) {
	client, err := e.clients.Get(clientID)
	if err != nil {
		return nil, NewError(ErrInvalidClient, "unknown client")
	}
	if !client.ValidateRedirectURI(redirectURI) {
		return nil, NewError(ErrInvalidRedirectURI, "redirect_uri does not match a registered URI")
	}
	return client, nil
}

// ValidateAuthorizeRequest checks everything else the authorize endpoint
// must reject before a code can be issued: response_type, scope, and
// the code_challenge_method (spec §4.6 steps 4-7). Once this returns nil,
// any further failure is reported by redirecting with an error instead of
// rendering one directly.
func (e *Engine) ValidateAuthorizeRequest(client *Client, req AuthorizeRequest) error {
	if req.ResponseType != "code" {
		return NewError(ErrUnsupportedResponseType, "only the 'code' response_type is supported").WithState(req.State)
	}
	if hasScope(req.Scope, ScopeOpenID) && req.Nonce == "" {
		return NewError(ErrInvalidRequest, "nonce is required when the 'openid' scope is requested").WithState(req.State)
	}
	if !client.GrantedScopes(req.Scope).any() {
		return NewError(ErrInvalidScope, "requested scope does not intersect the client's allowed scopes").WithState(req.State)
	}
	if !validCodeChallengeMethod(req.CodeChallengeMethod) {
		return NewError(ErrInvalidRequest, "unsupported code_challenge_method").WithState(req.State)
	}
	if req.CodeChallengeMethod != "" && req.CodeChallenge == "" {
		return NewError(ErrInvalidRequest, "code_challenge_method given without a code_challenge").WithState(req.State)
	}
	return nil
}

// IssueAuthCode mints a single-use authorization code bound to userID and
// the validated request (spec §4.6 step 8). The bound scopes are the
// granted subset — the intersection of req.Scope with client's
// AllowedScopes (spec §3 AuthCode.scopes, §4.6 step 6) — not the raw
// requested scope string.
func (e *Engine) IssueAuthCode(ctx context.Context, client *Client, userID string, req AuthorizeRequest) (string, error) {
	code := id.NewToken(32)
	rec := grantstore.AuthCode{
		UserID:              userID,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scopes:              client.GrantedScopes(req.Scope).Scopes(),
		Nonce:               req.Nonce,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		IssuedAt:            time.Now(),
	}
	if err := e.grants.PutAuthCode(ctx, code, rec, e.cfg.AuthCodeTTL); err != nil {
		return "", fmt.Errorf("oauth2: issue auth code: %w", err)
	}
	return code, nil
}

// LoginContextKey derives the grantstore key an in-progress authorize
// request is parked under while the user completes the ambient login
// detour (spec §9 design note: carried server-side, not serialized into
// the URL).
func LoginContextKey(loginSessionID string) string {
	return loginSessionID
}

// ParkAuthorizeRequest stores req under the caller's login session id so
// it can be resumed once the user authenticates.
func (e *Engine) ParkAuthorizeRequest(ctx context.Context, loginSessionID string, req AuthorizeRequest) error {
	rec := grantstore.OIDCContext{
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		State:               req.State,
		Scope:               req.Scope,
		Nonce:               req.Nonce,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Timestamp:           time.Now(),
	}
	return e.grants.PutOIDCContext(ctx, LoginContextKey(loginSessionID), rec, e.cfg.AuthCodeTTL)
}

// ResumeAuthorizeRequest loads and deletes the parked request for
// loginSessionID, turning it back into an AuthorizeRequest so the
// /authorize/resume handler can re-run it to completion.
func (e *Engine) ResumeAuthorizeRequest(ctx context.Context, loginSessionID string) (*AuthorizeRequest, error) {
	rec, err := e.grants.GetOIDCContext(ctx, LoginContextKey(loginSessionID))
	if err != nil {
		return nil, err
	}
	_ = e.grants.DeleteOIDCContext(ctx, LoginContextKey(loginSessionID))
	return &AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            rec.ClientID,
		RedirectURI:         rec.RedirectURI,
		Scope:               rec.Scope,
		State:               rec.State,
		Nonce:               rec.Nonce,
		CodeChallenge:       rec.CodeChallenge,
		CodeChallengeMethod: rec.CodeChallengeMethod,
	}, nil
}

func hasScope(scope, want string) bool {
	for _, s := range strings.Fields(scope) {
		if s == want {
			return true
		}
	}
	return false
}
