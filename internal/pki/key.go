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

package pki

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// KRA native algorithm identifiers
const (
	AlgorithmAES  = "AES"
	AlgorithmDES  = "DES"
	AlgorithmDES3 = "DES3"
	AlgorithmDSA  = "DSA"
	AlgorithmRSA  = "RSA"
)

// KRA data types
const (
	DataTypePassphrase   = "passPhrase"
	DataTypeSymmetricKey = "symmetricKey"
	DataTypeAsymmetric   = "asymmetricKey"
)

// Key usages accepted by the generation requests
const (
	UsageEncrypt = "encrypt"
	UsageDecrypt = "decrypt"
)

// Request message class names
const (
	classKeyArchivalRequest       = "com.netscape.certsrv.key.KeyArchivalRequest"
	classKeyRecoveryRequest       = "com.netscape.certsrv.key.KeyRecoveryRequest"
	classSymKeyGenerationRequest  = "com.netscape.certsrv.key.SymKeyGenerationRequest"
	classAsymKeyGenerationRequest = "com.netscape.certsrv.key.AsymKeyGenerationRequest"
)

// ErrNoTransportCert is returned when a session-key operation is attempted
// before SetTransportCert.
var ErrNoTransportCert = errors.New("kra transport certificate is not set")

type messageAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// resourceMessage is the generic KRA request envelope
type resourceMessage struct {
	ClassName  string `json:"ClassName"`
	Attributes struct {
		Attribute []messageAttribute `json:"Attribute"`
	} `json:"Attributes"`
}

func newResourceMessage(class string) *resourceMessage {
	return &resourceMessage{ClassName: class}
}

// set adds an attribute; empty values are skipped
func (m *resourceMessage) set(name, value string) {
	if value == "" {
		return
	}
	m.Attributes.Attribute = append(m.Attributes.Attribute, messageAttribute{Name: name, Value: value})
}

// KeyRequestInfo describes a KRA key request
type KeyRequestInfo struct {
	RequestURL    string `json:"requestURL"`
	RequestType   string `json:"requestType"`
	RequestStatus string `json:"requestStatus"`
	KeyURL        string `json:"keyURL"`
}

// KeyRequestResponse is returned by archival and generation requests
type KeyRequestResponse struct {
	RequestInfo KeyRequestInfo `json:"RequestInfo"`
}

// KeyID is the id of the key the request created
func (r *KeyRequestResponse) KeyID() string {
	if r.RequestInfo.KeyURL == "" {
		return ""
	}
	return lastPathSegment(r.RequestInfo.KeyURL)
}

// Key is retrieved key material. Data is set when the client could unwrap
// the payload; otherwise EncryptedData holds the bytes as sent by the KRA.
type Key struct {
	Algorithm     string
	Size          int
	Data          []byte
	EncryptedData []byte
	NonceData     []byte
}

type keyData struct {
	WrappedPrivateData string `json:"wrappedPrivateData"`
	NonceData          string `json:"nonceData"`
	Algorithm          string `json:"algorithm"`
	Size               int    `json:"size"`
}

// KeyInfo describes an archived key. PublicKey is the DER public key of an
// asymmetric pair.
type KeyInfo struct {
	KeyURL      string `json:"keyURL"`
	ClientKeyID string `json:"clientKeyID"`
	Status      string `json:"status"`
	Algorithm   string `json:"algorithm"`
	Size        int    `json:"size"`
	OwnerName   string `json:"ownerName"`
	PublicKey   []byte `json:"publicKey"`
}

// KeyClient talks to the KRA key and key request resources
type KeyClient struct {
	conn *Connection

	mu        sync.RWMutex
	transport *x509.Certificate
}

// NewKeyClient creates a KeyClient over a KRA connection
func NewKeyClient(conn *Connection) *KeyClient {
	return &KeyClient{conn: conn}
}

// SetTransportCert sets the KRA transport certificate used to wrap session keys
func (c *KeyClient) SetTransportCert(cert *x509.Certificate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport = cert
}

func (c *KeyClient) transportCert() (*x509.Certificate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.transport == nil {
		return nil, ErrNoTransportCert
	}
	return c.transport, nil
}

// ArchivePKIOptions archives a caller-prepared PKIArchiveOptions structure
// (RFC 2511 section 6.4) without further wrapping.
func (c *KeyClient) ArchivePKIOptions(ctx context.Context, clientKeyID, dataType string, pkiArchiveOptions []byte, keyAlgorithm string, keySize int) (*KeyRequestResponse, error) {
	if clientKeyID == "" {
		return nil, fmt.Errorf("client key id is required")
	}
	msg := newResourceMessage(classKeyArchivalRequest)
	msg.set("clientKeyID", clientKeyID)
	msg.set("dataType", dataType)
	msg.set("pkiArchiveOptions", base64.StdEncoding.EncodeToString(pkiArchiveOptions))
	msg.set("keyAlgorithm", keyAlgorithm)
	msg.set("keySize", sizeString(keySize))
	return c.submitKeyRequest(ctx, "archive_pki_options", msg)
}

// ArchiveKey wraps data under a fresh session key and archives it
func (c *KeyClient) ArchiveKey(ctx context.Context, clientKeyID, dataType string, data []byte, keyAlgorithm string, keySize int) (*KeyRequestResponse, error) {
	if clientKeyID == "" {
		return nil, fmt.Errorf("client key id is required")
	}
	transport, err := c.transportCert()
	if err != nil {
		return nil, err
	}
	session, err := newSessionKey(transport)
	if err != nil {
		return nil, err
	}
	wrapped, iv, err := session.encrypt(data)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap secret: %w", err)
	}

	msg := newResourceMessage(classKeyArchivalRequest)
	msg.set("clientKeyID", clientKeyID)
	msg.set("dataType", dataType)
	msg.set("transWrappedSessionKey", base64.StdEncoding.EncodeToString(session.wrapped))
	msg.set("wrappedPrivateData", base64.StdEncoding.EncodeToString(wrapped))
	msg.set("algorithmOID", aes128CBCOID)
	msg.set("symmetricAlgorithmParams", base64.StdEncoding.EncodeToString(iv))
	msg.set("keyAlgorithm", keyAlgorithm)
	msg.set("keySize", sizeString(keySize))
	return c.submitKeyRequest(ctx, "archive_key", msg)
}

// RetrieveKey recovers a key. With a caller-supplied transport-wrapped
// session key the payload is returned still encrypted under that key;
// otherwise the client generates its own session key and unwraps the data.
func (c *KeyClient) RetrieveKey(ctx context.Context, keyID string, transWrappedSessionKey []byte) (*Key, error) {
	msg := newResourceMessage(classKeyRecoveryRequest)
	msg.set("keyId", keyID)

	var session *sessionKey
	if len(transWrappedSessionKey) > 0 {
		msg.set("transWrappedSessionKey", base64.StdEncoding.EncodeToString(transWrappedSessionKey))
	} else {
		transport, err := c.transportCert()
		if err != nil {
			return nil, err
		}
		session, err = newSessionKey(transport)
		if err != nil {
			return nil, err
		}
		msg.set("transWrappedSessionKey", base64.StdEncoding.EncodeToString(session.wrapped))
	}

	var resp keyData
	if err := c.conn.Post(ctx, "retrieve_key", "rest/agent/keys/retrieve", msg, &resp); err != nil {
		return nil, err
	}

	encrypted, err := base64.StdEncoding.DecodeString(resp.WrappedPrivateData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode wrapped key data: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(resp.NonceData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key nonce: %w", err)
	}

	key := &Key{
		Algorithm:     resp.Algorithm,
		Size:          resp.Size,
		EncryptedData: encrypted,
		NonceData:     nonce,
	}
	if session != nil {
		key.Data, err = session.decrypt(encrypted, nonce)
		if err != nil {
			return nil, fmt.Errorf("failed to unwrap key %s: %w", keyID, err)
		}
	}
	return key, nil
}

// GenerateSymmetricKey asks the KRA to generate and archive a symmetric key
func (c *KeyClient) GenerateSymmetricKey(ctx context.Context, clientKeyID, keyAlgorithm string, keySize int, usages []string) (*KeyRequestResponse, error) {
	msg := newResourceMessage(classSymKeyGenerationRequest)
	msg.set("clientKeyID", clientKeyID)
	msg.set("keyAlgorithm", keyAlgorithm)
	msg.set("keySize", sizeString(keySize))
	msg.set("keyUsage", strings.Join(usages, ","))
	return c.submitKeyRequest(ctx, "generate_symmetric_key", msg)
}

// GenerateAsymmetricKey asks the KRA to generate and archive a key pair
func (c *KeyClient) GenerateAsymmetricKey(ctx context.Context, clientKeyID, keyAlgorithm string, keySize int, usages []string) (*KeyRequestResponse, error) {
	msg := newResourceMessage(classAsymKeyGenerationRequest)
	msg.set("clientKeyID", clientKeyID)
	msg.set("keyAlgorithm", keyAlgorithm)
	msg.set("keySize", sizeString(keySize))
	msg.set("keyUsage", strings.Join(usages, ","))
	return c.submitKeyRequest(ctx, "generate_asymmetric_key", msg)
}

// GetKeyInfo fetches the description of an archived key
func (c *KeyClient) GetKeyInfo(ctx context.Context, keyID string) (*KeyInfo, error) {
	var info KeyInfo
	if err := c.conn.Get(ctx, "get_key_info", "rest/agent/keys/"+url.PathEscape(keyID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *KeyClient) submitKeyRequest(ctx context.Context, op string, msg *resourceMessage) (*KeyRequestResponse, error) {
	var resp KeyRequestResponse
	if err := c.conn.Post(ctx, op, "rest/agent/keyrequests", msg, &resp); err != nil {
		return nil, err
	}
	if resp.KeyID() == "" {
		return nil, fmt.Errorf("%s: kra returned no key url for request %s", op, lastPathSegment(resp.RequestInfo.RequestURL))
	}
	return &resp, nil
}

func sizeString(size int) string {
	if size <= 0 {
		return ""
	}
	return strconv.Itoa(size)
}
