package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

var (
	transportOnce sync.Once
	transportKey  *rsa.PrivateKey
	transportCert *x509.Certificate
)

// testTransport returns a self-signed KRA transport certificate and its key
func testTransport(t *testing.T) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()
	transportOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		tmpl := &x509.Certificate{
			SerialNumber: big.NewInt(7),
			Subject:      pkix.Name{CommonName: "DRM Transport Certificate"},
			NotBefore:    time.Now().Add(-time.Hour),
			NotAfter:     time.Now().Add(time.Hour),
			KeyUsage:     x509.KeyUsageKeyEncipherment,
		}
		der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
		if err != nil {
			panic(err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			panic(err)
		}
		transportKey, transportCert = key, cert
	})
	return transportCert, transportKey
}

// newTestConnection points a Connection at an httptest server hosting r
// under /<subsystem>.
func newTestConnection(t *testing.T, subsystem string, r chi.Router) *Connection {
	t.Helper()
	root := chi.NewRouter()
	root.Mount("/"+subsystem, r)
	srv := httptest.NewServer(root)
	t.Cleanup(srv.Close)

	base, err := url.Parse(srv.URL + "/" + subsystem)
	require.NoError(t, err)
	return newConnection(base, srv.Client())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writePKIError(w http.ResponseWriter, status int, class, msg string) {
	writeJSON(w, status, Error{Code: status, ClassName: class, Message: msg})
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
