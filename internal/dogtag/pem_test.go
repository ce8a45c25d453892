package dogtag

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testRSAKeyOnce sync.Once
	testRSAKey     *rsa.PrivateKey
)

func rsaTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testRSAKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testRSAKey = key
	})
	return testRSAKey
}

// TestPurpose: Validates the exact byte layout of DSA public key framing.
// Scope: Unit Test
// Expected: Header, newline, MIME base64 of SEQUENCE{raw} ending in newline, footer with no trailing newline.
func TestEncodeDSAPublicKey_ExactBytes(t *testing.T) {
	out, err := encodeDSAPublicKey([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	// 30 03 01 02 03
	want := "-----BEGIN DSA PUBLIC KEY-----\nMAMBAgM=\n-----END DSA PUBLIC KEY-----"
	assert.Equal(t, want, string(out))
}

// TestPurpose: Validates DSA private key framing wraps raw bytes verbatim and splits lines at 76 characters.
// Scope: Unit Test
// Expected: Every base64 line but the last is 76 characters and the decoded DER is SEQUENCE{raw}.
func TestEncodeDSAPrivateKey_LongKey(t *testing.T) {
	raw := make([]byte, 300)
	for i := range raw {
		raw[i] = byte(i)
	}

	out, err := encodeDSAPrivateKey(raw)
	require.NoError(t, err)

	s := string(out)
	require.True(t, strings.HasPrefix(s, dsaPrivateKeyHeader+"\n"))
	require.True(t, strings.HasSuffix(s, "\n"+dsaPrivateKeyFooter))

	body := strings.TrimSuffix(strings.TrimPrefix(s, dsaPrivateKeyHeader+"\n"), dsaPrivateKeyFooter)
	require.True(t, strings.HasSuffix(body, "\n"))
	lines := strings.Split(strings.TrimSuffix(body, "\n"), "\n")
	require.Greater(t, len(lines), 1)
	for _, line := range lines[:len(lines)-1] {
		assert.Len(t, line, 76)
	}
	assert.LessOrEqual(t, len(lines[len(lines)-1]), 76)

	der, err := base64.StdEncoding.DecodeString(strings.Join(lines, ""))
	require.NoError(t, err)
	// long-form length: 0x82 0x01 0x2c
	assert.Equal(t, []byte{0x30, 0x82, 0x01, 0x2c}, der[:4])
	assert.Equal(t, raw, der[4:])
}

// TestPurpose: Validates MIME base64 line splitting on an exact multiple of the line length.
// Scope: Unit Test
// Expected: No empty trailing line is produced.
func TestEncodeBase64MIME_ExactMultiple(t *testing.T) {
	data := make([]byte, 57) // 76 base64 characters
	out := encodeBase64MIME(data)
	assert.Len(t, out, 77)
	assert.Equal(t, byte('\n'), out[76])
	assert.Equal(t, "", encodeBase64MIME(nil))
}

// TestPurpose: Validates RSA public keys are re-encoded as PKIX PEM from either DER form.
// Scope: Unit Test
// Expected: A PUBLIC KEY block holding the same key.
func TestEncodeRSAPublicKeyPEM(t *testing.T) {
	key := rsaTestKey(t)

	pkix, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	for name, der := range map[string][]byte{
		"pkix":  pkix,
		"pkcs1": x509.MarshalPKCS1PublicKey(&key.PublicKey),
	} {
		t.Run(name, func(t *testing.T) {
			out, err := encodeRSAPublicKeyPEM(der)
			require.NoError(t, err)

			block, _ := pem.Decode(out)
			require.NotNil(t, block)
			assert.Equal(t, "PUBLIC KEY", block.Type)
			parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
			require.NoError(t, err)
			assert.True(t, key.PublicKey.Equal(parsed))
		})
	}
}

// TestPurpose: Validates RSA private key export with and without a passphrase.
// Scope: Unit Test
// Expected: Plain PKCS#8 block, or an encrypted block that decrypts with the passphrase.
func TestEncodeRSAPrivateKeyPEM(t *testing.T) {
	key := rsaTestKey(t)
	der := x509.MarshalPKCS1PrivateKey(key)

	out, err := encodeRSAPrivateKeyPEM(der, nil)
	require.NoError(t, err)
	block, _ := pem.Decode(out)
	require.NotNil(t, block)
	assert.Equal(t, "PRIVATE KEY", block.Type)
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	require.NoError(t, err)
	assert.True(t, key.Equal(parsed))

	out, err = encodeRSAPrivateKeyPEM(der, []byte("changeit"))
	require.NoError(t, err)
	block, _ = pem.Decode(out)
	require.NotNil(t, block)
	//nolint:staticcheck
	require.True(t, x509.IsEncryptedPEMBlock(block))
	assert.Equal(t, "PRIVATE KEY", block.Type)
	assert.Equal(t, "4,ENCRYPTED", block.Headers["Proc-Type"])
	assert.True(t, strings.HasPrefix(block.Headers["DEK-Info"], "DES-EDE3-CBC,"))
	//nolint:staticcheck
	plain, err := x509.DecryptPEMBlock(block, []byte("changeit"))
	require.NoError(t, err)
	parsed, err = x509.ParsePKCS8PrivateKey(plain)
	require.NoError(t, err)
	assert.True(t, key.Equal(parsed))
}

// TestPurpose: Validates that garbage key material is rejected.
// Scope: Unit Test
// Expected: Errors from both RSA encoders.
func TestEncodeRSA_Invalid(t *testing.T) {
	_, err := encodeRSAPublicKeyPEM([]byte("junk"))
	assert.Error(t, err)
	_, err = encodeRSAPrivateKeyPEM([]byte("junk"), nil)
	assert.Error(t, err)
}

// TestPurpose: Validates the certificate chain framing.
// Scope: Unit Test
// Expected: CRLF after the header and the footer appended directly.
func TestFrameCertChain(t *testing.T) {
	assert.Equal(t,
		"-----BEGIN CERTIFICATE-----\r\nMIIB-----END CERTIFICATE-----",
		string(frameCertChain("MIIB")),
	)
}
