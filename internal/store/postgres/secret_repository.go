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
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/opentrusty/pkibridge/internal/broker"
	"github.com/opentrusty/pkibridge/internal/secretstore"
)

// SecretRepository implements broker.SecretRepository
type SecretRepository struct {
	db *DB
}

// NewSecretRepository creates a new secret repository
func NewSecretRepository(db *DB) *SecretRepository {
	return &SecretRepository{db: db}
}

// Create stores secret metadata
func (r *SecretRepository) Create(ctx context.Context, secret *broker.Secret) error {
	meta, err := encodeMeta(secret.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO secrets (id, secret_type, metadata, created_at)
		VALUES ($1, $2, $3::jsonb, $4)
	`, secret.ID, string(secret.Type), meta, secret.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create secret: %w", err)
	}
	return nil
}

// GetByID retrieves secret metadata
func (r *SecretRepository) GetByID(ctx context.Context, id string) (*broker.Secret, error) {
	var (
		secret     broker.Secret
		secretType string
		raw        []byte
	)
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, secret_type, metadata, created_at
		FROM secrets
		WHERE id = $1
	`, id).Scan(&secret.ID, &secretType, &raw, &secret.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, broker.ErrSecretNotFound
		}
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}

	secret.Type = secretstore.SecretType(secretType)
	if secret.Metadata, err = decodeMeta[secretstore.Metadata](raw); err != nil {
		return nil, err
	}
	return &secret, nil
}

// Delete removes secret metadata
func (r *SecretRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM secrets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return broker.ErrSecretNotFound
	}
	return nil
}
