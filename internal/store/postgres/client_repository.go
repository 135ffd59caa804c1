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

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/opentrusty/internal/oauth2"
)

// ClientRepository implements oauth2.ClientRepository.
type ClientRepository struct {
	db *DB
}

// NewClientRepository creates a new client repository.
func NewClientRepository(db *DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// Create creates a new OAuth2 client.
func (r *ClientRepository) Create(client *oauth2.Client) error {
	ctx := context.Background()
	now := time.Now()

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO oauth2_clients (
			id, client_id, client_secret_hash, client_name,
			redirect_uris, allowed_scopes, is_confidential, is_active,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		client.ID, client.ClientID, client.ClientSecretHash, client.ClientName,
		client.RedirectURIs, client.AllowedScopes, client.IsConfidential, client.IsActive,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	client.CreatedAt = now
	client.UpdatedAt = now
	return nil
}

func (r *ClientRepository) scanOne(row pgx.Row) (*oauth2.Client, error) {
	var client oauth2.Client
	var deletedAt sql.NullTime

	err := row.Scan(
		&client.ID, &client.ClientID, &client.ClientSecretHash, &client.ClientName,
		&client.RedirectURIs, &client.AllowedScopes, &client.IsConfidential, &client.IsActive,
		&client.CreatedAt, &client.UpdatedAt, &deletedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, oauth2.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	if deletedAt.Valid {
		client.DeletedAt = &deletedAt.Time
	}
	return &client, nil
}

const clientColumns = `
	id, client_id, client_secret_hash, client_name,
	redirect_uris, allowed_scopes, is_confidential, is_active,
	created_at, updated_at, deleted_at
`

// GetByClientID retrieves a client by its public client_id.
func (r *ClientRepository) GetByClientID(clientID string) (*oauth2.Client, error) {
	row := r.db.pool.QueryRow(context.Background(), `
		SELECT `+clientColumns+`
		FROM oauth2_clients
		WHERE client_id = $1 AND deleted_at IS NULL
	`, clientID)
	return r.scanOne(row)
}

// GetByID retrieves a client by its internal ID.
func (r *ClientRepository) GetByID(id string) (*oauth2.Client, error) {
	row := r.db.pool.QueryRow(context.Background(), `
		SELECT `+clientColumns+`
		FROM oauth2_clients
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	return r.scanOne(row)
}

// Update updates client information.
func (r *ClientRepository) Update(client *oauth2.Client) error {
	ctx := context.Background()

	result, err := r.db.pool.Exec(ctx, `
		UPDATE oauth2_clients SET
			client_name = $2,
			redirect_uris = $3,
			allowed_scopes = $4,
			is_confidential = $5,
			is_active = $6,
			updated_at = $7
		WHERE id = $1 AND deleted_at IS NULL
	`,
		client.ID, client.ClientName, client.RedirectURIs, client.AllowedScopes,
		client.IsConfidential, client.IsActive, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return oauth2.ErrClientNotFound
	}
	return nil
}

// Delete soft-deletes a client.
func (r *ClientRepository) Delete(id string) error {
	ctx := context.Background()

	result, err := r.db.pool.Exec(ctx, `
		UPDATE oauth2_clients SET deleted_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return oauth2.ErrClientNotFound
	}
	return nil
}
