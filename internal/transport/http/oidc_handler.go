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
	"net/http"
)

// Discovery returns the OpenID Connect metadata (spec §4.10, OIDC
// Discovery §4.2: Content-Type MUST be application/json).
// @Summary OIDC Discovery
// @Description Returns OpenID Connect configuration metadata
// @Tags OIDC
// @Produce json
// @Success 200 {object} oidc.DiscoveryDocument
// @Router /.well-known/openid-configuration [get]
func (h *Handler) Discovery(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.oidcService.Discovery())
}

// JWKS returns the JSON Web Key Set (spec §4.11, RFC 7517). Always
// empty: this core signs with HS256, which has no public key material.
// @Summary JWKS
// @Description Returns the JSON Web Key Set for verifying signatures
// @Tags OIDC
// @Produce json
// @Success 200 {object} oidc.JWKS
// @Router /jwks [get]
func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.oidcService.JWKS())
}
