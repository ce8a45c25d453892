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

//go:build integration
// +build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentrusty/pkibridge/internal/broker"
	"github.com/opentrusty/pkibridge/internal/certmanager"
	"github.com/opentrusty/pkibridge/internal/secretstore"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	cfg := Config{
		Host:         getenv("DB_HOST", "localhost"),
		Port:         getenv("DB_PORT", "5432"),
		User:         getenv("DB_USER", "pkibridge"),
		Password:     getenv("DB_PASSWORD", "pkibridge_dev_password"),
		Database:     getenv("DB_NAME", "pkibridge"),
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 1,
	}

	db, err := New(ctx, cfg)
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to database: %v", err)
	}
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	return db
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// TestPurpose: Validates that secret metadata round-trips through JSONB.
// Scope: Database Integration Test
// Expected: Metadata and type are returned unchanged; delete removes the row once.
func TestSecretRepository_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewSecretRepository(db)
	ctx := context.Background()

	secret := &broker.Secret{
		ID:        uuid.NewString(),
		Type:      secretstore.SecretTypePrivate,
		Metadata:  secretstore.Metadata{"key_id": "12", "convert_to_pem": "true", "generated": "true"},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Create(ctx, secret))

	got, err := repo.GetByID(ctx, secret.ID)
	require.NoError(t, err)
	assert.Equal(t, secret.Type, got.Type)
	assert.Equal(t, secret.Metadata, got.Metadata)

	require.NoError(t, repo.Delete(ctx, secret.ID))
	assert.ErrorIs(t, repo.Delete(ctx, secret.ID), broker.ErrSecretNotFound)
	_, err = repo.GetByID(ctx, secret.ID)
	assert.ErrorIs(t, err, broker.ErrSecretNotFound)
}

// TestPurpose: Validates order persistence including plugin meta updates.
// Scope: Database Integration Test
// Expected: Updated status, request id and certificate are read back.
func TestOrderRepository_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()
	defer db.pool.Exec(ctx, "DELETE FROM orders WHERE status = 'CERTIFICATE_GENERATED' AND request_type = 'custom'")

	now := time.Now().UTC().Truncate(time.Microsecond)
	order := &broker.Order{
		ID:          uuid.NewString(),
		RequestType: certmanager.RequestTypeCustom,
		Meta:        certmanager.OrderMeta{"profile_id": "caServerCert"},
		PluginMeta:  certmanager.PluginMeta{},
		Status:      broker.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, repo.Create(ctx, order))

	order.PluginMeta["request_id"] = "42"
	order.Status = string(certmanager.StatusCertificateGenerated)
	order.Certificate = []byte("cert")
	require.NoError(t, repo.Update(ctx, order))

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "42", got.PluginMeta["request_id"])
	assert.Equal(t, "caServerCert", got.Meta["profile_id"])
	assert.Equal(t, []byte("cert"), got.Certificate)
	assert.Equal(t, order.Status, got.Status)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, broker.ErrOrderNotFound)
}
