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

package grantstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromClient(rdb)
}

func TestAuthCodeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := AuthCode{UserID: "u1", ClientID: "c1", RedirectURI: "https://rp.test/cb"}
	require.NoError(t, s.PutAuthCode(ctx, "code-1", rec, time.Minute))

	got, err := s.GetAuthCode(ctx, "code-1")
	require.NoError(t, err)
	assert.Equal(t, rec.UserID, got.UserID)
	assert.Equal(t, rec.ClientID, got.ClientID)

	_, err = s.GetAuthCode(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaimAuthCodeSingleUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutAuthCode(ctx, "code-1", AuthCode{UserID: "u1"}, time.Minute))

	require.NoError(t, s.ClaimAuthCode(ctx, "code-1", time.Minute))
	err := s.ClaimAuthCode(ctx, "code-1", time.Minute)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

// TestClaimAuthCodeConcurrent exercises the invariant from spec §8: across
// any interleaving of concurrent exchanges presenting the same code,
// exactly one succeeds.
func TestClaimAuthCodeConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutAuthCode(ctx, "code-1", AuthCode{UserID: "u1"}, time.Minute))

	const attempts = 25
	var wg sync.WaitGroup
	wins := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.ClaimAuthCode(ctx, "code-1", time.Minute)
			wins <- err == nil
		}()
	}
	wg.Wait()
	close(wins)

	winCount := 0
	for w := range wins {
		if w {
			winCount++
		}
	}
	assert.Equal(t, 1, winCount)
}

func TestRefreshTokenRotation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := RefreshToken{UserID: "u1", ClientID: "c1", Exp: time.Now().Add(time.Hour)}
	require.NoError(t, s.PutRefreshToken(ctx, "r1", rec, time.Hour))

	got, err := s.GetRefreshToken(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	require.NoError(t, s.DeleteRefreshToken(ctx, "r1"))
	_, err = s.GetRefreshToken(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlacklist(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	revoked, err := s.IsBlacklisted(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.Blacklist(ctx, "tok", time.Minute))

	revoked, err = s.IsBlacklisted(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestOIDCContextRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := OIDCContext{ClientID: "c1", RedirectURI: "https://rp.test/cb", State: "xyz", Timestamp: time.Now()}
	require.NoError(t, s.PutOIDCContext(ctx, "sess-1", rec, time.Minute))

	got, err := s.GetOIDCContext(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, rec.ClientID, got.ClientID)

	require.NoError(t, s.DeleteOIDCContext(ctx, "sess-1"))
	_, err = s.GetOIDCContext(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
