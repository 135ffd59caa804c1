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
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentrusty/opentrusty/internal/audit"
	"github.com/opentrusty/opentrusty/internal/grantstore"
	"github.com/opentrusty/opentrusty/internal/id"
	"github.com/opentrusty/opentrusty/internal/identity"
	"github.com/opentrusty/opentrusty/internal/oidc"
	"github.com/opentrusty/opentrusty/internal/secrethash"
)

// in-memory ClientRepository fake.
type fakeClientRepo struct {
	byClientID map[string]*Client
}

func newFakeClientRepo() *fakeClientRepo {
	return &fakeClientRepo{byClientID: map[string]*Client{}}
}

func (r *fakeClientRepo) Create(c *Client) error {
	r.byClientID[c.ClientID] = c
	return nil
}
func (r *fakeClientRepo) GetByClientID(clientID string) (*Client, error) {
	c, ok := r.byClientID[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return c, nil
}
func (r *fakeClientRepo) GetByID(id string) (*Client, error) {
	for _, c := range r.byClientID {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, ErrClientNotFound
}
func (r *fakeClientRepo) Update(c *Client) error {
	r.byClientID[c.ClientID] = c
	return nil
}
func (r *fakeClientRepo) Delete(id string) error { return nil }

// in-memory UserRepository fake.
type fakeUserRepo struct {
	byID          map[string]*identity.User
	credsByUserID map[string]*identity.Credentials
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[string]*identity.User{}, credsByUserID: map[string]*identity.Credentials{}}
}

func (r *fakeUserRepo) Create(u *identity.User) error { r.byID[u.ID] = u; return nil }
func (r *fakeUserRepo) AddCredentials(c *identity.Credentials) error {
	r.credsByUserID[c.UserID] = c
	return nil
}
func (r *fakeUserRepo) GetByID(id string) (*identity.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return u, nil
}
func (r *fakeUserRepo) GetByEmail(email string) (*identity.User, error) {
	for _, u := range r.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}
func (r *fakeUserRepo) Update(u *identity.User) error { r.byID[u.ID] = u; return nil }
func (r *fakeUserRepo) UpdateLockout(userID string, attempts int, until *time.Time) error {
	return nil
}
func (r *fakeUserRepo) Delete(id string) error { delete(r.byID, id); return nil }
func (r *fakeUserRepo) GetCredentials(userID string) (*identity.Credentials, error) {
	c, ok := r.credsByUserID[userID]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return c, nil
}
func (r *fakeUserRepo) UpdatePassword(userID, hash string) error {
	r.credsByUserID[userID].PasswordHash = hash
	return nil
}

type testHarness struct {
	engine  *Engine
	clients *ClientRegistry
	grants  *grantstore.Store
	users   *identity.Service
	user    *identity.User
	client  *Client
	secret  string
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	grants := grantstore.NewFromClient(rdb)

	hasher := secrethash.NewDefaultHasher()
	clientRepo := newFakeClientRepo()
	clients := NewClientRegistry(clientRepo, hasher)

	userRepo := newFakeUserRepo()
	users := identity.NewService(userRepo, hasher, &audit.SlogLogger{}, 5, 15*time.Minute)

	tokens := oidc.NewService("https://issuer.test", "0123456789abcdef0123456789abcdef")

	engine := NewEngine(clients, grants, tokens, users, EngineConfig{
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		IDTokenTTL:      time.Minute,
		AuthCodeTTL:     time.Minute,
	})

	ctx := context.Background()
	user, err := users.Register(ctx, "user@example.com", "correct horse battery", identity.Profile{FirstName: "Ada"})
	require.NoError(t, err)

	client, secret, err := clients.Register(ctx, "test app", []string{"https://rp.test/cb"}, []string{ScopeOpenID, ScopeProfile, ScopeEmail}, true)
	require.NoError(t, err)

	return &testHarness{engine: engine, clients: clients, grants: grants, users: users, user: user, client: client, secret: secret}
}

func pkcePair() (verifier, challenge string) {
	verifier = "fixed-test-verifier-0123456789abcdefghijklmno"
	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:])
}

func TestAuthorizationCodeGrant_EndToEnd(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	verifier, challenge := pkcePair()

	req := AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            h.client.ClientID,
		RedirectURI:         "https://rp.test/cb",
		Scope:               "openid profile email",
		State:               "state-1",
		Nonce:               "n1",
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	}

	client, err := h.engine.ValidateClientAndRedirect(ctx, req.ClientID, req.RedirectURI)
	require.NoError(t, err)
	require.NoError(t, h.engine.ValidateAuthorizeRequest(client, req))

	code, err := h.engine.IssueAuthCode(ctx, h.client, h.user.ID, req)
	require.NoError(t, err)
	require.NotEmpty(t, code)

	resp, err := h.engine.ExchangeAuthCode(ctx, h.client.ClientID, h.secret, code, req.RedirectURI, verifier)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.NotEmpty(t, resp.IDToken)
	assert.Equal(t, "Bearer", resp.TokenType)

	var idClaims oidc.IDTokenClaims
	_, err = jwt.ParseWithClaims(resp.IDToken, &idClaims, func(*jwt.Token) (any, error) {
		return []byte("0123456789abcdef0123456789abcdef"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, h.user.ID, idClaims.Subject)
	assert.Equal(t, "n1", idClaims.Nonce)
	assert.Contains(t, idClaims.Audience, h.client.ClientID)

	claims, err := h.engine.UserInfo(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, h.user.ID, claims.Subject)
	assert.Equal(t, h.user.Email, claims.Email)
	assert.Equal(t, "Ada", claims.GivenName)
}

func TestExchangeAuthCode_ReplayRejected(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	verifier, challenge := pkcePair()

	req := AuthorizeRequest{
		ResponseType: "code", ClientID: h.client.ClientID, RedirectURI: "https://rp.test/cb",
		Scope: "openid", CodeChallenge: challenge, CodeChallengeMethod: "S256",
	}
	code, err := h.engine.IssueAuthCode(ctx, h.client, h.user.ID, req)
	require.NoError(t, err)

	_, err = h.engine.ExchangeAuthCode(ctx, h.client.ClientID, h.secret, code, req.RedirectURI, verifier)
	require.NoError(t, err)

	_, err = h.engine.ExchangeAuthCode(ctx, h.client.ClientID, h.secret, code, req.RedirectURI, verifier)
	require.Error(t, err)
	var oauthErr *Error
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, ErrInvalidGrant, oauthErr.Code)
}

func TestExchangeAuthCode_WrongVerifierRejected(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	_, challenge := pkcePair()

	req := AuthorizeRequest{
		ResponseType: "code", ClientID: h.client.ClientID, RedirectURI: "https://rp.test/cb",
		Scope: "openid", CodeChallenge: challenge, CodeChallengeMethod: "S256",
	}
	code, err := h.engine.IssueAuthCode(ctx, h.client, h.user.ID, req)
	require.NoError(t, err)

	_, err = h.engine.ExchangeAuthCode(ctx, h.client.ClientID, h.secret, code, req.RedirectURI, "the-wrong-verifier-entirely-too")
	require.Error(t, err)
}

func TestRefreshAccessToken_RotatesAndNarrowsScope(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	verifier, challenge := pkcePair()

	req := AuthorizeRequest{
		ResponseType: "code", ClientID: h.client.ClientID, RedirectURI: "https://rp.test/cb",
		Scope: "openid profile email", CodeChallenge: challenge, CodeChallengeMethod: "S256",
	}
	code, err := h.engine.IssueAuthCode(ctx, h.client, h.user.ID, req)
	require.NoError(t, err)
	first, err := h.engine.ExchangeAuthCode(ctx, h.client.ClientID, h.secret, code, req.RedirectURI, verifier)
	require.NoError(t, err)

	refreshed, err := h.engine.RefreshAccessToken(ctx, h.client.ClientID, h.secret, first.RefreshToken, "openid profile")
	require.NoError(t, err)
	assert.Equal(t, "openid profile", refreshed.Scope)
	assert.NotEqual(t, first.AccessToken, refreshed.AccessToken)

	_, err = h.engine.RefreshAccessToken(ctx, h.client.ClientID, h.secret, first.RefreshToken, "")
	require.Error(t, err)

	_, err = h.engine.RefreshAccessToken(ctx, h.client.ClientID, h.secret, refreshed.RefreshToken, "openid profile email admin")
	require.Error(t, err)
}

func TestRevoke_BlacklistsAccessToken(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	verifier, challenge := pkcePair()

	req := AuthorizeRequest{
		ResponseType: "code", ClientID: h.client.ClientID, RedirectURI: "https://rp.test/cb",
		Scope: "openid", CodeChallenge: challenge, CodeChallengeMethod: "S256",
	}
	code, err := h.engine.IssueAuthCode(ctx, h.client, h.user.ID, req)
	require.NoError(t, err)
	resp, err := h.engine.ExchangeAuthCode(ctx, h.client.ClientID, h.secret, code, req.RedirectURI, verifier)
	require.NoError(t, err)

	_, err = h.engine.UserInfo(ctx, resp.AccessToken)
	require.NoError(t, err)

	require.NoError(t, h.engine.Revoke(ctx, &audit.SlogLogger{}, resp.AccessToken, resp.RefreshToken))

	_, err = h.engine.UserInfo(ctx, resp.AccessToken)
	require.Error(t, err)

	_, err = h.engine.RefreshAccessToken(ctx, h.client.ClientID, h.secret, resp.RefreshToken, "")
	require.Error(t, err)
}

func TestValidateClientAndRedirect_UnknownClient(t *testing.T) {
	h := newTestHarness(t)
	_, err := h.engine.ValidateClientAndRedirect(context.Background(), "no-such-client", "https://rp.test/cb")
	require.Error(t, err)
	var oauthErr *Error
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, ErrInvalidClient, oauthErr.Code)
}

func TestValidateClientAndRedirect_UnregisteredRedirectURI(t *testing.T) {
	h := newTestHarness(t)
	_, err := h.engine.ValidateClientAndRedirect(context.Background(), h.client.ClientID, "https://evil.test/cb")
	require.Error(t, err)
	var oauthErr *Error
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, ErrInvalidRedirectURI, oauthErr.Code)
}

func TestParkAndResumeAuthorizeRequest(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	req := AuthorizeRequest{
		ClientID: h.client.ClientID, RedirectURI: "https://rp.test/cb",
		Scope: "openid", State: "abc",
	}
	loginSessionID := id.NewUUIDv7()
	require.NoError(t, h.engine.ParkAuthorizeRequest(ctx, loginSessionID, req))

	resumed, err := h.engine.ResumeAuthorizeRequest(ctx, loginSessionID)
	require.NoError(t, err)
	assert.Equal(t, req.ClientID, resumed.ClientID)
	assert.Equal(t, req.State, resumed.State)

	_, err = h.engine.ResumeAuthorizeRequest(ctx, loginSessionID)
	assert.Error(t, err)
}

func TestValidateAuthorizeRequest_OpenIDRequiresNonce(t *testing.T) {
	h := newTestHarness(t)
	req := AuthorizeRequest{ResponseType: "code", ClientID: h.client.ClientID, RedirectURI: "https://rp.test/cb", Scope: "openid"}

	err := h.engine.ValidateAuthorizeRequest(h.client, req)
	require.Error(t, err)
	var oauthErr *Error
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, ErrInvalidRequest, oauthErr.Code)
}

func TestValidateAuthorizeRequest_ScopeIntersectionNotSubset(t *testing.T) {
	h := newTestHarness(t)
	// h.client is only allowed openid/profile/email; requesting an
	// unrecognized scope alongside an allowed one must still succeed,
	// granting only the intersection (spec §4.6 step 6).
	req := AuthorizeRequest{ResponseType: "code", ClientID: h.client.ClientID, RedirectURI: "https://rp.test/cb", Scope: "openid admin", Nonce: "n1"}
	require.NoError(t, h.engine.ValidateAuthorizeRequest(h.client, req))

	code, err := h.engine.IssueAuthCode(context.Background(), h.client, h.user.ID, req)
	require.NoError(t, err)

	rec, err := h.grants.GetAuthCode(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, []string{"openid"}, rec.Scopes)
}

func TestValidateAuthorizeRequest_ScopeNoIntersectionRejected(t *testing.T) {
	h := newTestHarness(t)
	req := AuthorizeRequest{ResponseType: "code", ClientID: h.client.ClientID, RedirectURI: "https://rp.test/cb", Scope: "admin"}

	err := h.engine.ValidateAuthorizeRequest(h.client, req)
	require.Error(t, err)
	var oauthErr *Error
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, ErrInvalidScope, oauthErr.Code)
}
