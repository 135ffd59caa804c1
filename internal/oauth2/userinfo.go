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
	"strings"

	"github.com/opentrusty/opentrusty/internal/oidc"
)

// UserInfoClaims is the /userinfo response body (spec §4.8 step 5, OIDC
// Core §5.3.2). Fields outside the granted scope are left zero and
// omitted by the `omitempty` tags rather than sent as empty strings.
type UserInfoClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email,omitempty"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
	GivenName     string `json:"given_name,omitempty"`
	FamilyName    string `json:"family_name,omitempty"`
	Picture       string `json:"profile_picture,omitempty"`
}

// UserInfo implements the bearer-protected UserInfo endpoint (spec §4.8):
// verify the access token, then assemble only the claims its scopes
// authorize.
func (e *Engine) UserInfo(ctx context.Context, bearerToken string) (*UserInfoClaims, error) {
	if bearerToken == "" {
		return nil, NewError(ErrMissingToken, "missing bearer token")
	}

	claims, err := e.tokens.VerifyAccessToken(bearerToken)
	if err != nil {
		if err == oidc.ErrTokenExpired {
			return nil, NewError(ErrBearerTokenExpired, "access token expired")
		}
		return nil, NewError(ErrInvalidToken, "access token invalid")
	}

	blacklisted, err := e.grants.IsBlacklisted(ctx, bearerToken)
	if err != nil {
		return nil, NewError(ErrServerError, "grant store unavailable")
	}
	if blacklisted {
		return nil, NewError(ErrTokenRevoked, "access token revoked")
	}

	user, err := e.users.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, NewError(ErrUserNotFound, "subject no longer exists")
	}

	out := &UserInfoClaims{Subject: user.ID}
	scope := strings.Join(claims.Scopes, " ")
	if hasScope(scope, ScopeEmail) {
		out.Email = user.Email
		verified := user.EmailVerified
		out.EmailVerified = &verified
	}
	if hasScope(scope, ScopeProfile) {
		out.Name = user.DisplayName()
		out.GivenName = user.FirstName
		out.FamilyName = user.LastName
		out.Picture = user.ProfilePictureURL
	}
	return out, nil
}
