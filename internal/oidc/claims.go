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

package oidc

import "github.com/golang-jwt/jwt/v5"

// AccessTokenClaims is the claim set of a signed access token (spec §3):
// user_id, client_id, scopes, exp. It carries no server-side record unless
// revoked — validity is entirely determined by the signature and exp.
type AccessTokenClaims struct {
	UserID   string   `json:"user_id"`
	ClientID string   `json:"client_id"`
	Scopes   []string `json:"scopes"`
	jwt.RegisteredClaims
}

// IDTokenClaims is the claim set of a signed ID token (spec §3):
// iss, sub, aud, iat, exp, optional nonce.
type IDTokenClaims struct {
	Nonce string `json:"nonce,omitempty"`
	jwt.RegisteredClaims
}
