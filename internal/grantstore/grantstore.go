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

// Package grantstore is the TTL-bounded key/value store backing every
// ephemeral OAuth2/OIDC record: authorization codes, refresh-token
// records, the access-token revocation blacklist, OIDC session context
// carried across a login detour, and email-verification tokens.
//
// It is backed by Redis so that the single-use guarantee on an
// authorization code holds across replicas: a claim is a compare-and-set
// against the stored "used" marker, never a read-then-write race.
package grantstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key has expired or was never written.
var ErrNotFound = errors.New("grantstore: not found")

// ErrAlreadyClaimed is returned by Claim when the code/token was already
// used by a prior, winning exchange.
var ErrAlreadyClaimed = errors.New("grantstore: already claimed")

// Key namespaces, per spec: auth_code:, refresh_token:, blacklisted_token:,
// email_verification:, oidc_ctx:<session>.
const (
	prefixAuthCode       = "auth_code:"
	prefixRefreshToken   = "refresh_token:"
	prefixBlacklist      = "blacklisted_token:"
	prefixEmailVerify    = "email_verification:"
	prefixOIDCContext    = "oidc_ctx:"
	prefixAuthCodeClaim  = "auth_code_claim:" // SETNX claim marker, separate from the code's payload key
	prefixRefreshClaimed = "refresh_claim:"
)

// Store is a thin, typed wrapper over a Redis client. Every write carries
// a TTL; there is no untimed key in this store.
type Store struct {
	rdb *redis.Client
}

// Config configures the Redis connection backing the grant store.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// New dials Redis and returns a Store. It does not ping eagerly; the first
// operation surfaces a connection failure as a 5xx to the caller, per the
// "never fall back to in-memory" failure model.
func New(cfg Config) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
}

// NewFromClient wraps an already-configured Redis client, useful for tests
// that point at a miniredis instance.
func NewFromClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Close releases the underlying Redis connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping verifies connectivity, used at startup so a misconfigured store
// fails fast instead of surfacing as a mysterious first-request 5xx.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("grantstore: ttl must be positive, got %s", ttl)
	}
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("grantstore: get %s: %w", key, err)
	}
	return b, nil
}

func (s *Store) delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// claim is the compare-and-set primitive used to admit exactly one winner
// among concurrent presentations of the same single-use key: it creates
// the claim marker with SETNX and reports whether this call was the one
// that created it. ttl bounds the marker to the same lifetime as the
// record it guards, so it never outlives (or leaks past) the thing it
// protects.
func (s *Store) claim(ctx context.Context, claimKey string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, claimKey, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("grantstore: claim %s: %w", claimKey, err)
	}
	return ok, nil
}
