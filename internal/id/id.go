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

// Package id generates the primary-key identifiers used by the durable
// stores (users, clients) and the high-entropy bearer tokens the protocol
// engine hands out (auth codes, refresh tokens, client_ids). UUIDv7 keeps
// primary keys time-sortable without exposing a monotonic counter; NewToken
// draws directly from a CSPRNG for anything an attacker might try to guess.
package id

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// NewUUIDv7 returns a new time-ordered UUID. It panics only if the runtime
// entropy source is broken, which google/uuid treats as unrecoverable.
func NewUUIDv7() string {
	v7, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return v7.String()
}

// NewToken returns a URL-safe, unpadded base64 encoding of nBytes read
// from crypto/rand (spec §3: client_id "random, URL-safe, ≥32 bytes
// entropy"; refresh tokens "generate 64-byte URL-safe random"). It panics
// only if the runtime entropy source is broken, the same failure mode
// NewUUIDv7 treats as unrecoverable.
func NewToken(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("id: entropy source failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
