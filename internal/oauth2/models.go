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
	"strings"
	"time"

	"github.com/opentrusty/opentrusty/internal/uri"
)

// Domain errors
var (
	ErrClientNotFound           = errorString("client not found")
	ErrClientAlreadyExists      = errorString("client already exists")
	ErrDomainInvalidRedirectURI = errorString("invalid redirect URI")
	ErrDomainInvalidScope       = errorString("invalid scope")
	ErrDomainInvalidGrantType   = errorString("invalid grant type")
	ErrCodeExpired              = errorString("authorization code expired")
	ErrCodeAlreadyUsed          = errorString("authorization code already used")
	ErrCodeNotFound             = errorString("authorization code not found")
	ErrDomainInvalidClient      = errorString("invalid client credentials")
	ErrTokenExpired             = errorString("token expired")
	ErrTokenRevoked             = errorString("token revoked")
	ErrTokenNotFound            = errorString("token not found")
)

type errorString string

func (e errorString) Error() string { return string(e) }

// Scope names recognized by this core (spec §3).
const (
	ScopeOpenID  = "openid"
	ScopeProfile = "profile"
	ScopeEmail   = "email"
)

// Client is the Application registered with this authorization server
// (spec §3, Application/Client). Unlike the multi-tenant original, a
// client's token lifetimes are not configurable per-client: every client
// shares the process-wide AccessTokenExpiration/RefreshTokenExpiration/
// IDTokenExpiration from OIDCConfig (spec §9 open question resolution).
type Client struct {
	ID               string
	ClientID         string
	ClientSecretHash string
	ClientName       string
	RedirectURIs     []string
	AllowedScopes    []string
	IsConfidential   bool
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

// ValidateRedirectURI reports whether redirectURI matches one of the
// client's registered URIs once both sides are canonicalized (spec §4.1).
func (c *Client) ValidateRedirectURI(redirectURI string) bool {
	for _, registered := range c.RedirectURIs {
		if uri.Equal(registered, redirectURI) {
			return true
		}
	}
	return false
}

// GrantedScopes intersects requestedScope with c.AllowedScopes (spec
// §4.6 step 6, §3 AuthCode.scopes "granted subset"). An empty request is
// always accepted and grants no scopes.
func (c *Client) GrantedScopes(requestedScope string) Grant {
	requested := strings.Fields(requestedScope)
	if len(requested) == 0 {
		return Grant{requestedEmpty: true}
	}

	allowed := make(map[string]bool, len(c.AllowedScopes))
	for _, s := range c.AllowedScopes {
		allowed[s] = true
	}

	var granted []string
	for _, s := range requested {
		if allowed[s] {
			granted = append(granted, s)
		}
	}
	return Grant{scopes: granted}
}

// Grant is the result of intersecting a requested scope string against a
// client's allowed scopes.
type Grant struct {
	scopes         []string
	requestedEmpty bool
}

// any reports whether the request is acceptable: either nothing was
// requested, or at least one requested scope was granted.
func (g Grant) any() bool {
	return g.requestedEmpty || len(g.scopes) > 0
}

// Scopes returns the granted scope list.
func (g Grant) Scopes() []string {
	return g.scopes
}

// ClientRepository persists the durable Application/Client entity
// (backed by Postgres; spec §3 calls this out as the one entity that
// outlives a single grant).
type ClientRepository interface {
	Create(client *Client) error
	GetByClientID(clientID string) (*Client, error)
	GetByID(id string) (*Client, error)
	Update(client *Client) error
	Delete(id string) error
}
