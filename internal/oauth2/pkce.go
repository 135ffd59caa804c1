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
	"crypto/sha256"
	"encoding/base64"
)

// validatePKCE implements the code_verifier check of RFC 7636 §4.6. If no
// code_challenge was recorded at authorize time, PKCE was not in use and
// the exchange is accepted regardless of any verifier presented (spec
// §4.5 rule 1).
func validatePKCE(challenge, method, verifier string) bool {
	if challenge == "" {
		return true
	}
	if verifier == "" {
		return false
	}

	switch method {
	case "", "plain":
		return challenge == verifier
	case "S256":
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return challenge == computed
	default:
		return false
	}
}

// validCodeChallengeMethod reports whether method is one this core
// implements. An empty method is valid only when challenge is also empty.
func validCodeChallengeMethod(method string) bool {
	return method == "" || method == "plain" || method == "S256"
}
