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
	"time"

	"github.com/opentrusty/opentrusty/internal/audit"
	"github.com/opentrusty/opentrusty/internal/oidc"
)

// Revoke implements the /logout revocation endpoint (spec §4.9): the
// access token carried in the Authorization header is verified and
// blacklisted for its remaining lifetime. Unlike RFC 7009 §2.2 (which
// always answers success), spec §4.9 requires missing, malformed, or
// expired tokens to be reported as errors rather than swallowed.
// refreshToken is an optional extension (spec §5 "independent
// RevokeRefreshToken capability"): when given, its record is deleted
// outright so it can't be exchanged again either.
func (e *Engine) Revoke(ctx context.Context, auditLogger audit.Logger, accessToken, refreshToken string) error {
	if accessToken == "" {
		return NewError(ErrMissingToken, "missing bearer token")
	}

	claims, err := e.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		if err == oidc.ErrTokenExpired {
			return NewError(ErrBearerTokenExpired, "access token expired")
		}
		return NewError(ErrInvalidToken, "access token invalid")
	}

	remaining := claims.ExpiresAt.Time.Sub(time.Now())
	if remaining > 0 {
		if err := e.grants.Blacklist(ctx, accessToken, remaining); err != nil {
			return NewError(ErrServerError, "grant store unavailable")
		}
	}
	if auditLogger != nil {
		auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeTokenRevoked,
			ActorID:  claims.UserID,
			Resource: audit.ResourceToken,
		})
	}

	if refreshToken != "" {
		_ = e.grants.DeleteRefreshToken(ctx, refreshToken)
	}

	return nil
}
