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

package dogtag

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/opentrusty/pkibridge/internal/observability/logger"
	"github.com/opentrusty/pkibridge/internal/pki"
	"github.com/opentrusty/pkibridge/internal/secretstore"
)

// KeyClient is the KRA surface the plugin needs
type KeyClient interface {
	ArchivePKIOptions(ctx context.Context, clientKeyID, dataType string, pkiArchiveOptions []byte, keyAlgorithm string, keySize int) (*pki.KeyRequestResponse, error)
	ArchiveKey(ctx context.Context, clientKeyID, dataType string, data []byte, keyAlgorithm string, keySize int) (*pki.KeyRequestResponse, error)
	RetrieveKey(ctx context.Context, keyID string, transWrappedSessionKey []byte) (*pki.Key, error)
	GenerateSymmetricKey(ctx context.Context, clientKeyID, keyAlgorithm string, keySize int, usages []string) (*pki.KeyRequestResponse, error)
	GenerateAsymmetricKey(ctx context.Context, clientKeyID, keyAlgorithm string, keySize int, usages []string) (*pki.KeyRequestResponse, error)
	GetKeyInfo(ctx context.Context, keyID string) (*pki.KeyInfo, error)
	SetTransportCert(cert *x509.Certificate)
}

// KRAPlugin is a secret store backed by a Dogtag KRA.
//
// All state lives in the metadata handed back to the caller; the plugin
// itself only holds the key client and is safe for concurrent use.
type KRAPlugin struct {
	keys KeyClient
}

var _ secretstore.Store = (*KRAPlugin)(nil)

// NewKRAPlugin creates a KRA plugin. When transport is non-nil it is
// installed on the key client for session-key wrapping.
func NewKRAPlugin(keys KeyClient, transport *x509.Certificate) *KRAPlugin {
	if transport != nil {
		keys.SetTransportCert(transport)
	}
	return &KRAPlugin{keys: keys}
}

// newClientKeyID returns a random correlation id for a KRA request
func newClientKeyID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// StoreSecret archives a secret.
//
// With a transport key the secret is expected to be a PKIArchiveOptions
// structure (RFC 2511 section 6.4) prepared by the client and is passed
// through untouched. Otherwise the key client wraps the plaintext itself.
func (p *KRAPlugin) StoreSecret(ctx context.Context, secret *secretstore.SecretDTO) (secretstore.Metadata, error) {
	if secret == nil {
		return nil, secretstore.NewGeneralError("no secret to store")
	}

	clientKeyID := newClientKeyID()
	var (
		resp *pki.KeyRequestResponse
		err  error
	)
	if secret.TransportKey != nil {
		resp, err = p.keys.ArchivePKIOptions(ctx, clientKeyID, pki.DataTypePassphrase, secret.Secret, "", 0)
	} else {
		resp, err = p.keys.ArchiveKey(ctx, clientKeyID, pki.DataTypePassphrase, secret.Secret, "", 0)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to archive secret: %w", err)
	}

	meta := secretstore.Metadata{secretstore.MetaKeyID: resp.KeyID()}
	echoKeySpec(meta, secret.KeySpec)

	slog.DebugContext(ctx, "secret archived",
		logger.Component("kra"),
		logger.KeyID(resp.KeyID()),
		logger.SecretType(string(secret.Type)),
	)
	return meta, nil
}

// GetSecret retrieves a secret described by meta.
//
// Asymmetric keys generated in the KRA are returned PEM encoded when meta
// carries the convert_to_pem marker. Secrets the KRA generated are returned
// base64 encoded, archived secrets are returned as stored.
func (p *KRAPlugin) GetSecret(ctx context.Context, secretType secretstore.SecretType, meta secretstore.Metadata) (*secretstore.SecretDTO, error) {
	keyID := meta[secretstore.MetaKeyID]
	if keyID == "" {
		return nil, secretstore.NewGeneralError("%s not found in secret metadata", secretstore.MetaKeyID)
	}

	spec := meta.KeySpec()
	generated := meta.Flag(secretstore.MetaGenerated)

	passphrase, err := p.passphraseForPrivateKey(ctx, secretType, meta, spec)
	if err != nil {
		return nil, err
	}

	twsk, err := transWrappedSessionKey(secretType, meta)
	if err != nil {
		return nil, err
	}

	var recovered []byte
	if meta.Has(secretstore.MetaConvertToPEM) {
		switch secretType {
		case secretstore.SecretTypePublic:
			recovered, err = p.publicKeyPEM(ctx, keyID, spec)
		case secretstore.SecretTypePrivate:
			recovered, err = p.privateKeyPEM(ctx, keyID, spec, passphrase)
		default:
			err = secretstore.NewGeneralError("%s is only valid for public and private keys, not %s",
				secretstore.MetaConvertToPEM, secretType)
		}
		if err != nil {
			return nil, err
		}
	} else {
		key, err := p.keys.RetrieveKey(ctx, keyID, twsk)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve key %s: %w", keyID, err)
		}
		if twsk != nil {
			recovered = key.EncryptedData
		} else {
			recovered = key.Data
		}
	}

	// Generated keys are stored raw by the KRA while callers expect base64.
	if generated {
		recovered = []byte(base64.StdEncoding.EncodeToString(recovered))
	}

	slog.DebugContext(ctx, "secret retrieved",
		logger.Component("kra"),
		logger.KeyID(keyID),
		logger.SecretType(string(secretType)),
	)
	return &secretstore.SecretDTO{
		Type:    secretType,
		Secret:  recovered,
		KeySpec: spec,
	}, nil
}

func (p *KRAPlugin) publicKeyPEM(ctx context.Context, keyID string, spec secretstore.KeySpec) ([]byte, error) {
	if spec.Alg == "" {
		return nil, &secretstore.AlgorithmNotSupportedError{Alg: "None"}
	}

	// The public half is an attribute of the archived pair, not a key of its own
	info, err := p.keys.GetKeyInfo(ctx, keyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get key info for %s: %w", keyID, err)
	}

	switch strings.ToUpper(spec.Alg) {
	case pki.AlgorithmRSA:
		return encodeRSAPublicKeyPEM(info.PublicKey)
	case pki.AlgorithmDSA:
		return encodeDSAPublicKey(info.PublicKey)
	default:
		return nil, &secretstore.AlgorithmNotSupportedError{Alg: strings.ToUpper(spec.Alg)}
	}
}

func (p *KRAPlugin) privateKeyPEM(ctx context.Context, keyID string, spec secretstore.KeySpec, passphrase []byte) ([]byte, error) {
	if spec.Alg == "" {
		return nil, &secretstore.AlgorithmNotSupportedError{Alg: "None"}
	}

	alg := strings.ToUpper(spec.Alg)
	if alg != pki.AlgorithmRSA && alg != pki.AlgorithmDSA {
		return nil, &secretstore.AlgorithmNotSupportedError{Alg: alg}
	}

	key, err := p.keys.RetrieveKey(ctx, keyID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve key %s: %w", keyID, err)
	}

	if alg == pki.AlgorithmRSA {
		return encodeRSAPrivateKeyPEM(key.Data, passphrase)
	}
	return encodeDSAPrivateKey(key.Data)
}

// passphraseForPrivateKey resolves the separately archived passphrase of an
// RSA private key. The passphrase is stored base64 encoded.
func (p *KRAPlugin) passphraseForPrivateKey(ctx context.Context, secretType secretstore.SecretType, meta secretstore.Metadata, spec secretstore.KeySpec) ([]byte, error) {
	if secretType == "" || spec.Alg == "" {
		return nil, nil
	}
	passphraseKeyID, ok := meta[secretstore.MetaPassphraseKeyID]
	if !ok {
		return nil, nil
	}

	switch strings.ToUpper(spec.Alg) {
	case pki.AlgorithmRSA:
	case pki.AlgorithmDSA:
		return nil, secretstore.NewGeneralError("DSA keys should not have a passphrase in the database, for being used during retrieval.")
	default:
		return nil, secretstore.NewGeneralError("Secrets of type %s should not have a passphrase in the database, for being used during retrieval.", secretType)
	}

	key, err := p.keys.RetrieveKey(ctx, passphraseKeyID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve passphrase %s: %w", passphraseKeyID, err)
	}
	if len(key.Data) == 0 {
		return nil, nil
	}

	passphrase, err := base64.StdEncoding.DecodeString(string(key.Data))
	if err != nil {
		return nil, secretstore.NewGeneralError("stored passphrase %s is not base64 encoded", passphraseKeyID)
	}
	return passphrase, nil
}

// transWrappedSessionKey returns the caller's session key, which is only
// usable for secrets the KRA returns as opaque bytes.
func transWrappedSessionKey(secretType secretstore.SecretType, meta secretstore.Metadata) ([]byte, error) {
	encoded := meta[secretstore.MetaTransWrappedSessionKey]
	if encoded == "" {
		return nil, nil
	}
	if secretType == secretstore.SecretTypePublic || secretType == secretstore.SecretTypePrivate {
		return nil, notSupported("Encryption using session key is not supported when retrieving a %s key.", secretType)
	}

	twsk, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, secretstore.NewGeneralError("%s is not base64 encoded", secretstore.MetaTransWrappedSessionKey)
	}
	return twsk, nil
}

// DeleteSecret does nothing: the KRA has no key deletion primitive, so
// archived keys outlive their metadata.
func (p *KRAPlugin) DeleteSecret(ctx context.Context, meta secretstore.Metadata) error {
	slog.DebugContext(ctx, "kra has no delete primitive, leaving key archived",
		logger.Component("kra"),
		logger.KeyID(meta[secretstore.MetaKeyID]),
	)
	return nil
}

// GenerateSymmetricKey generates a key in the KRA. The result is marked
// generated so retrieval base64-encodes it.
func (p *KRAPlugin) GenerateSymmetricKey(ctx context.Context, spec secretstore.KeySpec) (secretstore.Metadata, error) {
	alg, ok := MapAlgorithm(spec.Alg)
	if !ok {
		return nil, ErrAlgorithmInvalid
	}
	if len(spec.Passphrase) > 0 {
		return nil, notSupported("Passphrase encryption is not supported for symmetric key generating algorithms.")
	}

	resp, err := p.keys.GenerateSymmetricKey(ctx, newClientKeyID(), alg, spec.BitLength,
		[]string{pki.UsageDecrypt, pki.UsageEncrypt})
	if err != nil {
		return nil, fmt.Errorf("failed to generate symmetric key: %w", err)
	}

	meta := secretstore.Metadata{
		secretstore.MetaKeyID:     resp.KeyID(),
		secretstore.MetaGenerated: "true",
	}
	echoKeySpec(meta, spec)

	slog.DebugContext(ctx, "symmetric key generated",
		logger.Component("kra"),
		logger.KeyID(resp.KeyID()),
		logger.Algorithm(alg),
		logger.BitLength(spec.BitLength),
	)
	return meta, nil
}

// GenerateAsymmetricKey generates a key pair in the KRA. A passphrase is
// archived as a secret of its own and linked from the private key metadata.
func (p *KRAPlugin) GenerateAsymmetricKey(ctx context.Context, spec secretstore.KeySpec) (*secretstore.AsymmetricKeyMetadata, error) {
	alg, ok := MapAlgorithm(spec.Alg)
	if !ok {
		return nil, ErrAlgorithmInvalid
	}

	var passphraseMeta secretstore.Metadata
	if len(spec.Passphrase) > 0 {
		if alg == pki.AlgorithmDSA {
			return nil, notSupported("Passphrase encryption is not supported for DSA algorithm")
		}

		encoded := []byte(base64.StdEncoding.EncodeToString(spec.Passphrase))
		stored, err := p.keys.ArchiveKey(ctx, newClientKeyID(), pki.DataTypePassphrase, encoded, "", 0)
		if err != nil {
			return nil, fmt.Errorf("failed to archive passphrase: %w", err)
		}
		passphraseMeta = secretstore.Metadata{secretstore.MetaKeyID: stored.KeyID()}
	}

	resp, err := p.keys.GenerateAsymmetricKey(ctx, newClientKeyID(), alg, spec.BitLength,
		[]string{pki.UsageDecrypt, pki.UsageEncrypt})
	if err != nil {
		return nil, fmt.Errorf("failed to generate asymmetric key: %w", err)
	}

	newMeta := func() secretstore.Metadata {
		m := secretstore.Metadata{
			secretstore.MetaKeyID:        resp.KeyID(),
			secretstore.MetaConvertToPEM: "true",
			secretstore.MetaGenerated:    "true",
		}
		if spec.Alg != "" {
			m[secretstore.MetaAlg] = spec.Alg
		}
		if spec.BitLength > 0 {
			m[secretstore.MetaBitLength] = strconv.Itoa(spec.BitLength)
		}
		return m
	}

	private := newMeta()
	if passphraseMeta != nil {
		private[secretstore.MetaPassphraseKeyID] = passphraseMeta[secretstore.MetaKeyID]
	}

	slog.DebugContext(ctx, "asymmetric key generated",
		logger.Component("kra"),
		logger.KeyID(resp.KeyID()),
		logger.Algorithm(alg),
		logger.BitLength(spec.BitLength),
	)
	return &secretstore.AsymmetricKeyMetadata{
		PrivateKeyMeta: private,
		PublicKeyMeta:  newMeta(),
		PassphraseMeta: passphraseMeta,
	}, nil
}

// GenerateSupports checks the algorithm only; the KRA offers no way to
// validate a bit length up front.
func (p *KRAPlugin) GenerateSupports(spec secretstore.KeySpec) bool {
	_, ok := MapAlgorithm(spec.Alg)
	return ok
}

func (p *KRAPlugin) StoreSecretSupports(spec secretstore.KeySpec) bool {
	return true
}

// echoKeySpec copies the set fields of spec into meta
func echoKeySpec(meta secretstore.Metadata, spec secretstore.KeySpec) {
	if spec.Alg != "" {
		meta[secretstore.MetaAlg] = spec.Alg
	}
	if spec.BitLength > 0 {
		meta[secretstore.MetaBitLength] = strconv.Itoa(spec.BitLength)
	}
	if spec.Mode != "" {
		meta[secretstore.MetaSecretMode] = spec.Mode
	}
}
