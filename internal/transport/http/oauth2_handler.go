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

package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/opentrusty/opentrusty/internal/audit"
	"github.com/opentrusty/opentrusty/internal/id"
	"github.com/opentrusty/opentrusty/internal/oauth2"
	"github.com/opentrusty/opentrusty/internal/observability/logger"
)

// Authorize implements GET /authorize (spec §4.6). A client/redirect_uri
// failure is rendered directly (RFC 6749 §4.1.2.1: it is never safe to
// redirect an error to a redirect_uri that hasn't been validated yet).
// Every other failure is reported by redirecting back with an
// error/error_description/state query.
// @Summary Authorization Endpoint
// @Description Starts the Authorization Code grant with PKCE
// @Tags OAuth2
// @Param client_id query string true "Client ID"
// @Param redirect_uri query string true "Redirect URI"
// @Param response_type query string true "Must be 'code'"
// @Param scope query string true "Requested scope, must include 'openid'"
// @Param state query string false "Opaque value echoed back to the client"
// @Param nonce query string false "OIDC nonce, echoed into the ID token"
// @Param code_challenge query string false "PKCE challenge"
// @Param code_challenge_method query string false "plain or S256"
// @Success 302 {string} string "Redirects to redirect_uri with a code, or to the login detour"
// @Router /authorize [get]
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := oauth2.AuthorizeRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		Nonce:               q.Get("nonce"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}

	client, err := h.engine.ValidateClientAndRedirect(r.Context(), req.ClientID, req.RedirectURI)
	if err != nil {
		respondOAuthError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.engine.ValidateAuthorizeRequest(client, req); err != nil {
		redirectWithError(w, r, req.RedirectURI, err)
		return
	}

	sessionID := h.getSessionFromCookie(r)
	sess, sessErr := h.sessionService.Get(r.Context(), sessionID)
	if sessErr != nil {
		continuation := id.NewToken(32)
		if err := h.engine.ParkAuthorizeRequest(r.Context(), continuation, req); err != nil {
			respondOAuthError(w, http.StatusInternalServerError, oauth2.NewError(oauth2.ErrServerError, "failed to park authorize request"))
			return
		}
		loginURL := h.loginRedirectURL + "?continuation=" + url.QueryEscape(continuation)
		http.Redirect(w, r, loginURL, http.StatusFound)
		return
	}

	h.finishAuthorize(w, r, client, sess.UserID, req)
}

// AuthorizeResume implements GET /authorize/resume: once the login
// detour completes, the caller's new session lets the parked request be
// re-run to completion (spec §9 design note: carried server-side, never
// serialized into the URL).
// @Summary Resume a parked authorization request
// @Tags OAuth2
// @Param continuation query string true "Continuation token returned by /authorize"
// @Success 302 {string} string "Redirects to redirect_uri with a code"
// @Router /authorize/resume [get]
func (h *Handler) AuthorizeResume(w http.ResponseWriter, r *http.Request) {
	continuation := r.URL.Query().Get("continuation")
	if continuation == "" {
		respondOAuthError(w, http.StatusBadRequest, oauth2.NewError(oauth2.ErrSessionLost, "missing continuation token"))
		return
	}

	req, err := h.engine.ResumeAuthorizeRequest(r.Context(), continuation)
	if err != nil {
		// The parked context's grantstore TTL is AUTH_CODE_TTL (spec §3
		// OIDC session context), so a lookup miss here means it expired.
		respondOAuthError(w, http.StatusBadRequest, oauth2.NewError(oauth2.ErrSessionExpired, "authorization session expired, please start over"))
		return
	}

	// spec §4.6: "re-invoke the authorize flow with the stored parameters"
	// — re-run every check the original /authorize request went through.
	client, err := h.engine.ValidateClientAndRedirect(r.Context(), req.ClientID, req.RedirectURI)
	if err != nil {
		respondOAuthError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.engine.ValidateAuthorizeRequest(client, *req); err != nil {
		redirectWithError(w, r, req.RedirectURI, err)
		return
	}

	h.finishAuthorize(w, r, client, GetUserID(r.Context()), *req)
}

func (h *Handler) finishAuthorize(w http.ResponseWriter, r *http.Request, client *oauth2.Client, userID string, req oauth2.AuthorizeRequest) {
	code, err := h.engine.IssueAuthCode(r.Context(), client, userID, req)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue authorization code", logger.Error(err))
		redirectWithError(w, r, req.RedirectURI, oauth2.NewError(oauth2.ErrServerError, "failed to issue authorization code").WithState(req.State))
		return
	}

	target, _ := url.Parse(req.RedirectURI)
	values := target.Query()
	values.Set("code", code)
	if req.State != "" {
		values.Set("state", req.State)
	}
	target.RawQuery = values.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// Token implements POST /token (spec §4.7): grant_type=authorization_code
// and grant_type=refresh_token.
// @Summary Token Endpoint
// @Description Exchanges a code or refresh token for an access token
// @Tags OAuth2
// @Accept x-www-form-urlencoded
// @Produce json
// @Param grant_type formData string true "authorization_code or refresh_token"
// @Success 200 {object} oauth2.TokenResponse
// @Failure 400 {object} oauth2.Error
// @Router /token [post]
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondOAuthError(w, http.StatusBadRequest, oauth2.NewError(oauth2.ErrInvalidRequest, "malformed form body"))
		return
	}

	grantType := r.PostForm.Get("grant_type")
	clientID := r.PostForm.Get("client_id")
	clientSecret := r.PostForm.Get("client_secret")
	if clientID == "" {
		if username, password, ok := r.BasicAuth(); ok {
			clientID, clientSecret = username, password
		}
	}

	var resp *oauth2.TokenResponse
	var err error

	switch grantType {
	case "authorization_code":
		resp, err = h.engine.ExchangeAuthCode(
			r.Context(),
			clientID, clientSecret,
			r.PostForm.Get("code"),
			r.PostForm.Get("redirect_uri"),
			r.PostForm.Get("code_verifier"),
		)
	case "refresh_token":
		resp, err = h.engine.RefreshAccessToken(
			r.Context(),
			clientID, clientSecret,
			r.PostForm.Get("refresh_token"),
			r.PostForm.Get("scope"),
		)
	default:
		err = oauth2.NewError(oauth2.ErrUnsupportedGrantType, "grant_type must be authorization_code or refresh_token")
	}

	if err != nil {
		slog.ErrorContext(r.Context(), "token request failed", logger.Error(err))
		respondOAuthError(w, http.StatusBadRequest, err)
		return
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:     audit.TypeTokenIssued,
		Resource: audit.ResourceToken,
		Metadata: map[string]any{"client_id": clientID, "grant_type": grantType},
	})

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	respondJSON(w, http.StatusOK, resp)
}

// UserInfo implements GET /userinfo (spec §4.8), a bearer-protected
// resource endpoint.
// @Summary UserInfo Endpoint
// @Tags OIDC
// @Produce json
// @Success 200 {object} oauth2.UserInfoClaims
// @Failure 401 {object} oauth2.Error
// @Router /userinfo [get]
func (h *Handler) UserInfo(w http.ResponseWriter, r *http.Request) {
	claims, err := h.engine.UserInfo(r.Context(), bearerToken(r))
	if err != nil {
		// spec §4.8 step 4: a subject deleted after token issuance is a
		// 404, not a 401 — every other UserInfo failure is bearer-auth.
		if oauthErr := asOAuthError(err); oauthErr.Code == oauth2.ErrUserNotFound {
			respondOAuthError(w, http.StatusNotFound, err)
			return
		}
		respondOAuthError(w, http.StatusUnauthorized, err)
		return
	}
	respondJSON(w, http.StatusOK, claims)
}

// RevokeToken implements POST /logout as token revocation (spec §4.9): the
// access token to revoke is carried in the Authorization header, the same
// way every other protected endpoint (UserInfo) takes it, not as a form
// field. An optional refresh_token form field is accepted as an extension
// (spec §5) so a client can revoke both halves of a grant in one call.
// Missing, invalid, or expired tokens are reported as 400 with the
// matching error code rather than swallowed as success.
// @Summary Revocation Endpoint
// @Tags OAuth2
// @Param Authorization header string true "Bearer access token"
// @Param refresh_token formData string false "Refresh token to revoke alongside the access token"
// @Success 204 {string} string "No Content"
// @Failure 400 {object} oauth2.Error
// @Router /logout [post]
func (h *Handler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	refreshToken := r.PostForm.Get("refresh_token")

	if err := h.engine.Revoke(r.Context(), h.auditLogger, bearerToken(r), refreshToken); err != nil {
		respondJSON(w, http.StatusBadRequest, asOAuthError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RegisterClient provisions a new OAuth2 client. Multi-tenancy and RBAC
// are out of scope (spec Non-goals): any authenticated user may register
// a client, the way a developer-console-less core would via an API key
// or service account in a single-tenant deployment.
// @Summary Register an OAuth2 client
// @Tags OAuth2
// @Accept json
// @Produce json
// @Success 201 {object} map[string]any
// @Router /clients [post]
func (h *Handler) RegisterClient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string   `json:"name"`
		RedirectURIs  []string `json:"redirect_uris"`
		AllowedScopes []string `json:"allowed_scopes"`
		Confidential  bool     `json:"confidential"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	client, secret, err := h.clients.Register(r.Context(), req.Name, req.RedirectURIs, req.AllowedScopes, req.Confidential)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to register client", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to register client")
		return
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:     audit.TypeClientCreated,
		ActorID:  GetUserID(r.Context()),
		Resource: audit.ResourceClient,
	})

	respondJSON(w, http.StatusCreated, map[string]any{
		"client_id":     client.ClientID,
		"client_secret": secret,
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func redirectWithError(w http.ResponseWriter, r *http.Request, redirectURI string, err error) {
	target, parseErr := url.Parse(redirectURI)
	if parseErr != nil || redirectURI == "" {
		respondOAuthError(w, http.StatusBadRequest, err)
		return
	}

	oauthErr := asOAuthError(err)
	values := target.Query()
	values.Set("error", oauthErr.Code)
	if oauthErr.Description != "" {
		values.Set("error_description", oauthErr.Description)
	}
	if oauthErr.State != "" {
		values.Set("state", oauthErr.State)
	}
	target.RawQuery = values.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func asOAuthError(err error) *oauth2.Error {
	var oauthErr *oauth2.Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return oauth2.NewError(oauth2.ErrServerError, err.Error())
}

// respondOAuthError serializes a protocol error to the wire, choosing
// the HTTP status from the error code rather than always answering with
// defaultStatus (RFC 6749 §5.2 ties invalid_client to 401).
func respondOAuthError(w http.ResponseWriter, defaultStatus int, err error) {
	oauthErr := asOAuthError(err)

	status := defaultStatus
	switch oauthErr.Code {
	case oauth2.ErrInvalidClient, oauth2.ErrMissingToken, oauth2.ErrInvalidToken, oauth2.ErrBearerTokenExpired, oauth2.ErrTokenRevoked:
		status = http.StatusUnauthorized
	case oauth2.ErrServerError:
		status = http.StatusInternalServerError
	}

	respondJSON(w, status, oauthErr)
}
