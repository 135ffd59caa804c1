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

// Package oidc is the Token Signer/Verifier (spec §4.4), Discovery
// document builder (§4.10) and JWKS endpoint (§4.11). It signs with
// HS256 over a single process-wide secret; RSA/ES key rotation is an
// explicit Non-goal, kept only as a naming seam (DiscoveryDocument's
// IDTokenSigningAlgValuesSupported is a slice, not a constant, so an
// asymmetric algorithm could be added without reshaping the document).
package oidc

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Service signs and verifies access tokens and ID tokens, and serves the
// two discovery documents derived from that configuration.
type Service struct {
	issuer string
	secret []byte
}

// NewService builds a Service. secret must be at least 32 bytes; config
// validation (internal/config) already enforces this before it reaches
// here.
func NewService(issuer, secret string) *Service {
	return &Service{issuer: issuer, secret: []byte(secret)}
}

// Issuer returns the configured issuer URL, used verbatim as the `iss`
// and `aud`-adjacent claims and in the discovery document.
func (s *Service) Issuer() string {
	return s.issuer
}

// SignAccessToken mints a signed access token carrying user_id,
// client_id and scopes (spec §3 AccessToken), expiring after ttl.
func (s *Service) SignAccessToken(userID, clientID string, scopes []string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := AccessTokenClaims{
		UserID:   userID,
		ClientID: clientID,
		Scopes:   scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("oidc: sign access token: %w", err)
	}
	return token, exp, nil
}

// SignIDToken mints a signed ID token (spec §3 ID Token): iss, sub, aud,
// iat, exp, and nonce when the authorize request carried one.
func (s *Service) SignIDToken(userID, clientID, nonce string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := IDTokenClaims{
		Nonce: nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("oidc: sign id token: %w", err)
	}
	return token, nil
}

// VerifyAccessToken validates signature and expiry and returns the
// decoded claims. Per spec §4.4, exp is compared against the wall clock
// with no grace period; jwt/v5's default leeway is zero.
func (s *Service) VerifyAccessToken(tokenString string) (*AccessTokenClaims, error) {
	var claims AccessTokenClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("oidc: unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		switch {
		case jwtErrorIs(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenInvalid
		}
	}
	return &claims, nil
}

func jwtErrorIs(err, target error) bool {
	for e := err; e != nil; e = unwrap(e) {
		if e == target {
			return true
		}
	}
	return false
}

func unwrap(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}

// DiscoveryDocument is the `/.well-known/openid-configuration` body
// (spec §4.10, OIDC Discovery §3).
type DiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserInfoEndpoint                  string   `json:"userinfo_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
}

// Discovery builds the discovery document from the configured issuer and
// the fixed route table (spec §6).
func (s *Service) Discovery() DiscoveryDocument {
	return DiscoveryDocument{
		Issuer:                            s.issuer,
		AuthorizationEndpoint:             s.issuer + "/authorize",
		TokenEndpoint:                     s.issuer + "/token",
		UserInfoEndpoint:                  s.issuer + "/userinfo",
		JWKSURI:                           s.issuer + "/jwks",
		ResponseTypesSupported:            []string{"code"},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{"HS256"},
		ScopesSupported:                   []string{"openid", "email", "profile"},
		ClaimsSupported:                   []string{"sub", "email", "email_verified", "name", "given_name", "family_name"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post"},
		CodeChallengeMethodsSupported:     []string{"plain", "S256"},
	}
}

// JWK is a single entry of a JSON Web Key Set (RFC 7517).
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// JWKS is the `/jwks` response body.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWKS returns an empty key set: HS256 is symmetric, so there is no
// public key material to export (spec §4.11).
func (s *Service) JWKS() JWKS {
	return JWKS{Keys: []JWK{}}
}
