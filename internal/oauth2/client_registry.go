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
	"context"
	"fmt"

	"github.com/opentrusty/opentrusty/internal/id"
	"github.com/opentrusty/opentrusty/internal/secrethash"
)

// ClientRegistry is the Application Registry (spec §4.3): it provisions
// Clients and authenticates the `client_id`/`client_secret` pair the token
// endpoint receives over client_secret_post.
type ClientRegistry struct {
	repo   ClientRepository
	hasher *secrethash.Hasher
}

// NewClientRegistry builds a ClientRegistry over repo, hashing new secrets
// with hasher (the same Argon2id hasher identity.Service uses for user
// passwords — spec §9: one KDF, two secret kinds).
func NewClientRegistry(repo ClientRepository, hasher *secrethash.Hasher) *ClientRegistry {
	return &ClientRegistry{repo: repo, hasher: hasher}
}

// Register creates a new Client, returning the plaintext secret exactly
// once; only its Argon2id hash is persisted.
func (r *ClientRegistry) Register(ctx context.Context, name string, redirectURIs, allowedScopes []string, confidential bool) (client *Client, plaintextSecret string, err error) {
	plaintextSecret = id.NewToken(32)
	hash, err := r.hasher.Hash(plaintextSecret)
	if err != nil {
		return nil, "", fmt.Errorf("oauth2: hash client secret: %w", err)
	}

	client = &Client{
		ID:               id.NewUUIDv7(),
		ClientID:         id.NewToken(32),
		ClientSecretHash: hash,
		ClientName:       name,
		RedirectURIs:     redirectURIs,
		AllowedScopes:    allowedScopes,
		IsConfidential:   confidential,
		IsActive:         true,
	}
	if err := r.repo.Create(client); err != nil {
		return nil, "", fmt.Errorf("oauth2: create client: %w", err)
	}
	return client, plaintextSecret, nil
}

// Get loads a Client by its public client_id, rejecting soft-deleted and
// deactivated clients the same way a not-found client is rejected (spec
// §4.6 step 1, §4.7 step 2).
func (r *ClientRegistry) Get(clientID string) (*Client, error) {
	client, err := r.repo.GetByClientID(clientID)
	if err != nil {
		return nil, ErrClientNotFound
	}
	if !client.IsActive || client.DeletedAt != nil {
		return nil, ErrClientNotFound
	}
	return client, nil
}

// Authenticate verifies clientSecret against the stored hash in constant
// time (spec §4.7 step 2). A public client (IsConfidential == false)
// presenting no secret is accepted without a hash comparison; a
// confidential client always requires one.
func (r *ClientRegistry) Authenticate(clientID, clientSecret string) (*Client, error) {
	client, err := r.Get(clientID)
	if err != nil {
		return nil, err
	}

	if !client.IsConfidential && clientSecret == "" {
		return client, nil
	}

	valid, err := secrethash.Verify(clientSecret, client.ClientSecretHash)
	if err != nil || !valid {
		return nil, ErrDomainInvalidClient
	}
	return client, nil
}
