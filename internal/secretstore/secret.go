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

import "strconv"

// SecretType is the kind of secret material carried by a SecretDTO
type SecretType string

const (
	SecretTypeSymmetric   SecretType = "symmetric"
	SecretTypePublic      SecretType = "public"
	SecretTypePrivate     SecretType = "private"
	SecretTypePassphrase  SecretType = "passphrase"
	SecretTypeCertificate SecretType = "certificate"
	SecretTypeOpaque      SecretType = "opaque"
)

// Valid reports whether t is one of the known secret types
func (t SecretType) Valid() bool {
	switch t {
	case SecretTypeSymmetric, SecretTypePublic, SecretTypePrivate,
		SecretTypePassphrase, SecretTypeCertificate, SecretTypeOpaque:
		return true
	}
	return false
}

// Caller-neutral algorithm names
const (
	AlgorithmAES           = "aes"
	AlgorithmDES           = "des"
	AlgorithmDESede        = "desede"
	AlgorithmDSA           = "dsa"
	AlgorithmRSA           = "rsa"
	AlgorithmDiffieHellman = "diffie_hellman"
	AlgorithmEC            = "ec"
)

// KeySpec describes the key a secret holds or a generation call should produce.
// A zero BitLength or empty Mode means the field is unset.
type KeySpec struct {
	Alg        string `json:"alg,omitempty"`
	BitLength  int    `json:"bit_length,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Passphrase []byte `json:"-"`
}

// SecretDTO carries secret material between the caller and a Store
type SecretDTO struct {
	Type         SecretType
	Secret       []byte
	KeySpec      KeySpec
	ContentType  string
	TransportKey []byte
}

// Metadata is the opaque, caller-owned state a Store needs to find a secret
// again. The Store never persists it.
type Metadata map[string]string

// Metadata keys
const (
	MetaKeyID                  = "key_id"
	MetaAlg                    = "alg"
	MetaBitLength              = "bit_length"
	MetaSecretMode             = "secret_mode"
	MetaGenerated              = "generated"
	MetaConvertToPEM           = "convert_to_pem"
	MetaPassphraseKeyID        = "passphrase_key_id"
	MetaTransWrappedSessionKey = "trans_wrapped_session_key"
)

// Flag reports whether a boolean marker is set
func (m Metadata) Flag(key string) bool {
	v, ok := m[key]
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// Has reports whether key is present, regardless of its value
func (m Metadata) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// KeySpec rebuilds the echoed key spec. The passphrase is never stored.
func (m Metadata) KeySpec() KeySpec {
	spec := KeySpec{
		Alg:  m[MetaAlg],
		Mode: m[MetaSecretMode],
	}
	if v, ok := m[MetaBitLength]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			spec.BitLength = n
		}
	}
	return spec
}

// Clone returns a shallow copy of m
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// AsymmetricKeyMetadata groups the metadata produced by asymmetric generation.
// PassphraseMeta is nil when no passphrase was supplied.
type AsymmetricKeyMetadata struct {
	PrivateKeyMeta Metadata
	PublicKeyMeta  Metadata
	PassphraseMeta Metadata
}
