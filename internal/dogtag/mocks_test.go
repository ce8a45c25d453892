package dogtag

import (
	"context"
	"crypto/x509"

	"github.com/opentrusty/pkibridge/internal/pki"
	"github.com/stretchr/testify/mock"
)

type mockKeyClient struct {
	mock.Mock
}

func (m *mockKeyClient) ArchivePKIOptions(ctx context.Context, clientKeyID, dataType string, opts []byte, keyAlgorithm string, keySize int) (*pki.KeyRequestResponse, error) {
	args := m.Called(ctx, clientKeyID, dataType, opts, keyAlgorithm, keySize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pki.KeyRequestResponse), args.Error(1)
}

func (m *mockKeyClient) ArchiveKey(ctx context.Context, clientKeyID, dataType string, data []byte, keyAlgorithm string, keySize int) (*pki.KeyRequestResponse, error) {
	args := m.Called(ctx, clientKeyID, dataType, data, keyAlgorithm, keySize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pki.KeyRequestResponse), args.Error(1)
}

func (m *mockKeyClient) RetrieveKey(ctx context.Context, keyID string, twsk []byte) (*pki.Key, error) {
	args := m.Called(ctx, keyID, twsk)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pki.Key), args.Error(1)
}

func (m *mockKeyClient) GenerateSymmetricKey(ctx context.Context, clientKeyID, keyAlgorithm string, keySize int, usages []string) (*pki.KeyRequestResponse, error) {
	args := m.Called(ctx, clientKeyID, keyAlgorithm, keySize, usages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pki.KeyRequestResponse), args.Error(1)
}

func (m *mockKeyClient) GenerateAsymmetricKey(ctx context.Context, clientKeyID, keyAlgorithm string, keySize int, usages []string) (*pki.KeyRequestResponse, error) {
	args := m.Called(ctx, clientKeyID, keyAlgorithm, keySize, usages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pki.KeyRequestResponse), args.Error(1)
}

func (m *mockKeyClient) GetKeyInfo(ctx context.Context, keyID string) (*pki.KeyInfo, error) {
	args := m.Called(ctx, keyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pki.KeyInfo), args.Error(1)
}

func (m *mockKeyClient) SetTransportCert(cert *x509.Certificate) {
	m.Called(cert)
}

type mockCertClient struct {
	mock.Mock
}

func (m *mockCertClient) CreateEnrollmentRequest(ctx context.Context, profileID string, inputs map[string]string) (*pki.CertEnrollmentRequest, error) {
	args := m.Called(ctx, profileID, inputs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pki.CertEnrollmentRequest), args.Error(1)
}

func (m *mockCertClient) SubmitEnrollmentRequest(ctx context.Context, req *pki.CertEnrollmentRequest) (*pki.CertRequestInfoCollection, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pki.CertRequestInfoCollection), args.Error(1)
}

func (m *mockCertClient) EnrollCert(ctx context.Context, profileID string, inputs map[string]string) ([]pki.CertEnrollmentResult, error) {
	args := m.Called(ctx, profileID, inputs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]pki.CertEnrollmentResult), args.Error(1)
}

func (m *mockCertClient) GetRequest(ctx context.Context, requestID string) (*pki.CertRequestInfo, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pki.CertRequestInfo), args.Error(1)
}

func (m *mockCertClient) GetCert(ctx context.Context, certID string) (*pki.CertData, error) {
	args := m.Called(ctx, certID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pki.CertData), args.Error(1)
}

func (m *mockCertClient) ReviewRequest(ctx context.Context, requestID string) (*pki.CertReviewResponse, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pki.CertReviewResponse), args.Error(1)
}

func (m *mockCertClient) CancelRequest(ctx context.Context, requestID string, review *pki.CertReviewResponse) error {
	args := m.Called(ctx, requestID, review)
	return args.Error(0)
}

// keyResponse builds a key request response pointing at key id
func keyResponse(id string) *pki.KeyRequestResponse {
	return &pki.KeyRequestResponse{RequestInfo: pki.KeyRequestInfo{
		RequestURL: "https://kra.example.com:8443/kra/rest/agent/keyrequests/7",
		KeyURL:     "https://kra.example.com:8443/kra/rest/agent/keys/" + id,
	}}
}
