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

import "errors"

// Verify distinguishes these three outcomes (spec §4.4), so callers can map
// to the right bearer-path error code (token_expired, invalid_token).
var (
	ErrTokenExpired = errors.New("oidc: token expired")
	ErrTokenInvalid = errors.New("oidc: token invalid")
)
