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

package secretstore

import (
	"context"
	"fmt"
)

// Store is the contract a secret store backend implements
type Store interface {
	// StoreSecret archives a secret and returns the metadata needed to retrieve it
	StoreSecret(ctx context.Context, secret *SecretDTO) (Metadata, error)

	// GetSecret retrieves a secret previously stored or generated
	GetSecret(ctx context.Context, secretType SecretType, meta Metadata) (*SecretDTO, error)

	// DeleteSecret removes a secret, if the backend supports it
	DeleteSecret(ctx context.Context, meta Metadata) error

	// GenerateSymmetricKey generates a key inside the backend
	GenerateSymmetricKey(ctx context.Context, spec KeySpec) (Metadata, error)

	// GenerateAsymmetricKey generates a key pair inside the backend
	GenerateAsymmetricKey(ctx context.Context, spec KeySpec) (*AsymmetricKeyMetadata, error)

	// GenerateSupports reports whether the backend can generate keys for spec
	GenerateSupports(spec KeySpec) bool

	// StoreSecretSupports reports whether the backend can store secrets for spec
	StoreSecretSupports(spec KeySpec) bool
}

// GeneralError reports a usage or configuration problem with a secret.
// It is never retryable.
type GeneralError struct {
	Reason string
}

func (e *GeneralError) Error() string {
	return fmt.Sprintf("secret store error: %s", e.Reason)
}

// NewGeneralError creates a GeneralError
func NewGeneralError(format string, args ...any) *GeneralError {
	return &GeneralError{Reason: fmt.Sprintf(format, args...)}
}

// AlgorithmNotSupportedError reports an algorithm the backend cannot handle
type AlgorithmNotSupportedError struct {
	Alg string
}

func (e *AlgorithmNotSupportedError) Error() string {
	return fmt.Sprintf("secret store error: algorithm %s not supported", e.Alg)
}
