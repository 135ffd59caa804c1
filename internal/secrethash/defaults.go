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

package secrethash

// Default Argon2id parameters, chosen per the OWASP password-storage
// cheat sheet's minimum recommendation for a single-pass, 64MiB profile.
const (
	DefaultMemory      = 64 * 1024 // KiB
	DefaultIterations  = 3
	DefaultParallelism = 2
	DefaultSaltLength  = 16
	DefaultKeyLength   = 32
)

// NewDefaultHasher returns a Hasher configured with DefaultMemory,
// DefaultIterations, DefaultParallelism, DefaultSaltLength and
// DefaultKeyLength.
func NewDefaultHasher() *Hasher {
	return NewHasher(DefaultMemory, DefaultIterations, DefaultParallelism, DefaultSaltLength, DefaultKeyLength)
}
