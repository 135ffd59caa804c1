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

// Package secrethash hashes client secrets (and, ambiently, user passwords)
// with Argon2id, a memory-hard KDF, so that a leaked database dump does not
// yield usable secrets.
package secrethash

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Hasher hashes and verifies secrets with Argon2id.
type Hasher struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

// NewHasher builds a Hasher from tunable Argon2id parameters.
func NewHasher(memory, iterations uint32, parallelism uint8, saltLength, keyLength uint32) *Hasher {
	return &Hasher{
		memory:      memory,
		iterations:  iterations,
		parallelism: parallelism,
		saltLength:  saltLength,
		keyLength:   keyLength,
	}
}

// Hash returns an encoded Argon2id hash of secret: `=m=M,t=T,p=P$salt$hash`,
// self-describing so the parameters can change across deployments without
// invalidating stored hashes.
func (h *Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("secrethash: generate salt: %w", err)
	}

	sum := argon2.IDKey([]byte(secret), salt, h.iterations, h.memory, h.parallelism, h.keyLength)

	encoded := fmt.Sprintf(
		"=%d=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memory,
		h.iterations,
		h.parallelism,
		encode(salt),
		encode(sum),
	)
	return encoded, nil
}

// Verify reports whether secret matches encodedHash, in constant time with
// respect to the hash contents.
func Verify(secret, encodedHash string) (bool, error) {
	version, memory, iterations, parallelism, salt, expected, err := decode(encodedHash)
	if err != nil {
		return false, err
	}
	if version != argon2.Version {
		return false, fmt.Errorf("secrethash: unsupported argon2 version %d", version)
	}

	actual := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, uint32(len(expected)))
	if len(actual) != len(expected) {
		return false, nil
	}
	return subtle.ConstantTimeCompare(actual, expected) == 1, nil
}
