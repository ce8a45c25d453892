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

package broker

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/opentrusty/pkibridge/internal/audit"
	"github.com/opentrusty/pkibridge/internal/observability/logger"
	"github.com/opentrusty/pkibridge/internal/secretstore"
)

// StoreSecret archives secret material and records its metadata
func (s *Service) StoreSecret(ctx context.Context, dto *secretstore.SecretDTO) (_ *Secret, err error) {
	ctx, finish := s.startSpan(ctx, "store_secret", attribute.String("secret.type", string(dto.Type)))
	defer func() { finish(err) }()

	if !dto.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSecretType, dto.Type)
	}
	if !s.store.StoreSecretSupports(dto.KeySpec) {
		return nil, ErrUnsupportedKeySpec
	}

	meta, err := s.store.StoreSecret(ctx, dto)
	s.metrics.RecordSecretOp(ctx, "store", outcome(err))
	if err != nil {
		s.auditFailure(ctx, audit.TypeSecretStored, "", err)
		return nil, fmt.Errorf("failed to store secret: %w", err)
	}

	secret, err := s.saveSecret(ctx, dto.Type, meta)
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeSecretStored,
		ActorID:  ActorFromContext(ctx),
		Resource: secret.ID,
		Outcome:  "success",
		Metadata: audit.Redact(meta),
	})
	return secret, nil
}

// GetSecret retrieves a secret. secretType may be empty; otherwise it must
// match the stored type.
// transWrappedSessionKey is passed to the store for this call only.
func (s *Service) GetSecret(ctx context.Context, id string, secretType secretstore.SecretType, transWrappedSessionKey string) (_ *secretstore.SecretDTO, err error) {
	ctx, finish := s.startSpan(ctx, "get_secret", attribute.String("secret.id", id))
	defer func() { finish(err) }()

	secret, err := s.secrets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// The store's session key rules depend on the kind, so only the
	// stored kind may be requested.
	if secretType != "" && secretType != secret.Type {
		return nil, fmt.Errorf("%w: secret %s is %q, not %q", ErrInvalidSecretType, id, secret.Type, secretType)
	}
	secretType = secret.Type

	meta := secret.Metadata.Clone()
	if transWrappedSessionKey != "" {
		meta[secretstore.MetaTransWrappedSessionKey] = transWrappedSessionKey
	}

	dto, err := s.store.GetSecret(ctx, secretType, meta)
	s.metrics.RecordSecretOp(ctx, "get", outcome(err))
	if err != nil {
		s.auditFailure(ctx, audit.TypeSecretRetrieved, id, err)
		return nil, fmt.Errorf("failed to retrieve secret %s: %w", id, err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeSecretRetrieved,
		ActorID:  ActorFromContext(ctx),
		Resource: id,
		Outcome:  "success",
		Metadata: map[string]any{
			"secret_type": string(secretType),
			"wrapped":     transWrappedSessionKey != "",
		},
	})
	return dto, nil
}

// DeleteSecret removes a secret from the store and forgets its metadata
func (s *Service) DeleteSecret(ctx context.Context, id string) (err error) {
	ctx, finish := s.startSpan(ctx, "delete_secret", attribute.String("secret.id", id))
	defer func() { finish(err) }()

	secret, err := s.secrets.GetByID(ctx, id)
	if err != nil {
		return err
	}

	err = s.store.DeleteSecret(ctx, secret.Metadata)
	s.metrics.RecordSecretOp(ctx, "delete", outcome(err))
	if err != nil {
		s.auditFailure(ctx, audit.TypeSecretDeleted, id, err)
		return fmt.Errorf("failed to delete secret %s: %w", id, err)
	}
	if err := s.secrets.Delete(ctx, id); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeSecretDeleted,
		ActorID:  ActorFromContext(ctx),
		Resource: id,
		Outcome:  "success",
	})
	return nil
}

// GenerateSymmetricKey generates a symmetric key inside the store
func (s *Service) GenerateSymmetricKey(ctx context.Context, spec secretstore.KeySpec) (_ *Secret, err error) {
	ctx, finish := s.startSpan(ctx, "generate_symmetric_key", attribute.String("key.alg", spec.Alg))
	defer func() { finish(err) }()

	if !s.store.GenerateSupports(spec) {
		return nil, ErrUnsupportedKeySpec
	}

	meta, err := s.store.GenerateSymmetricKey(ctx, spec)
	s.metrics.RecordSecretOp(ctx, "generate_symmetric", outcome(err))
	if err != nil {
		s.auditFailure(ctx, audit.TypeKeyGenerated, "", err)
		return nil, fmt.Errorf("failed to generate symmetric key: %w", err)
	}

	secret, err := s.saveSecret(ctx, secretstore.SecretTypeSymmetric, meta)
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeKeyGenerated,
		ActorID:  ActorFromContext(ctx),
		Resource: secret.ID,
		Outcome:  "success",
		Metadata: audit.Redact(meta),
	})
	return secret, nil
}

// GenerateAsymmetricKey generates a key pair and records one secret per part
func (s *Service) GenerateAsymmetricKey(ctx context.Context, spec secretstore.KeySpec) (_ *KeyPair, err error) {
	ctx, finish := s.startSpan(ctx, "generate_asymmetric_key",
		attribute.String("key.alg", spec.Alg),
		attribute.Int("key.bit_length", spec.BitLength),
	)
	defer func() { finish(err) }()

	if !s.store.GenerateSupports(spec) {
		return nil, ErrUnsupportedKeySpec
	}

	asym, err := s.store.GenerateAsymmetricKey(ctx, spec)
	s.metrics.RecordSecretOp(ctx, "generate_asymmetric", outcome(err))
	if err != nil {
		s.auditFailure(ctx, audit.TypeKeyPairGenerated, "", err)
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	pair := &KeyPair{}
	if pair.Private, err = s.saveSecret(ctx, secretstore.SecretTypePrivate, asym.PrivateKeyMeta); err != nil {
		return nil, err
	}
	if pair.Public, err = s.saveSecret(ctx, secretstore.SecretTypePublic, asym.PublicKeyMeta); err != nil {
		return nil, err
	}
	if asym.PassphraseMeta != nil {
		if pair.Passphrase, err = s.saveSecret(ctx, secretstore.SecretTypePassphrase, asym.PassphraseMeta); err != nil {
			return nil, err
		}
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeKeyPairGenerated,
		ActorID:  ActorFromContext(ctx),
		Resource: pair.Private.ID,
		Outcome:  "success",
		Metadata: map[string]any{
			"public_id":      pair.Public.ID,
			"has_passphrase": pair.Passphrase != nil,
			"alg":            spec.Alg,
			"bit_length":     spec.BitLength,
		},
	})
	return pair, nil
}

func (s *Service) saveSecret(ctx context.Context, secretType secretstore.SecretType, meta secretstore.Metadata) (*Secret, error) {
	secret := &Secret{
		ID:        newID(),
		Type:      secretType,
		Metadata:  meta,
		CreatedAt: s.now(),
	}
	if err := s.secrets.Create(ctx, secret); err != nil {
		return nil, fmt.Errorf("failed to save %s secret metadata: %w", secretType, err)
	}
	slog.DebugContext(ctx, "secret recorded",
		logger.Component("broker"),
		logger.SecretID(secret.ID),
		logger.SecretType(string(secretType)),
		logger.KeyID(meta[secretstore.MetaKeyID]),
	)
	return secret, nil
}

func (s *Service) auditFailure(ctx context.Context, eventType, resource string, err error) {
	slog.WarnContext(ctx, "plugin operation failed",
		logger.Component("broker"),
		logger.Operation(eventType),
		logger.SecretID(resource),
		logger.Error(err),
	)
	s.auditLogger.Log(ctx, audit.Event{
		Type:     eventType,
		ActorID:  ActorFromContext(ctx),
		Resource: resource,
		Outcome:  "failure",
		Metadata: map[string]any{"error": err.Error()},
	})
}
