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
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opentrusty/pkibridge/internal/certmanager"
	"github.com/opentrusty/pkibridge/internal/observability/logger"
	"github.com/opentrusty/pkibridge/internal/pki"
)

// PluginMetaRequestID is the plugin metadata key holding the CA request id
const PluginMetaRequestID = "request_id"

// DefaultCAName is the display name of the Dogtag CA
const DefaultCAName = "Dogtag CA"

// CertClient is the CA surface the plugin needs
type CertClient interface {
	CreateEnrollmentRequest(ctx context.Context, profileID string, inputs map[string]string) (*pki.CertEnrollmentRequest, error)
	SubmitEnrollmentRequest(ctx context.Context, req *pki.CertEnrollmentRequest) (*pki.CertRequestInfoCollection, error)
	EnrollCert(ctx context.Context, profileID string, inputs map[string]string) ([]pki.CertEnrollmentResult, error)
	GetRequest(ctx context.Context, requestID string) (*pki.CertRequestInfo, error)
	GetCert(ctx context.Context, certID string) (*pki.CertData, error)
	ReviewRequest(ctx context.Context, requestID string) (*pki.CertReviewResponse, error)
	CancelRequest(ctx context.Context, requestID string, review *pki.CertReviewResponse) error
}

// CAConfig holds the enrollment settings of the CA plugin
type CAConfig struct {
	// SimpleCMCProfile is used when a simple CMC order names no profile
	SimpleCMCProfile string

	// AutoApprovedProfiles are enrolled and approved in one round trip
	// using the plugin's agent credentials.
	AutoApprovedProfiles []string
}

// CAPlugin is a certificate manager backed by a Dogtag CA
type CAPlugin struct {
	certs            CertClient
	simpleCMCProfile string
	autoApproved     map[string]struct{}
}

var _ certmanager.Plugin = (*CAPlugin)(nil)

// NewCAPlugin creates a CA plugin
func NewCAPlugin(certs CertClient, cfg CAConfig) *CAPlugin {
	autoApproved := make(map[string]struct{}, len(cfg.AutoApprovedProfiles))
	for _, profile := range cfg.AutoApprovedProfiles {
		if profile = strings.TrimSpace(profile); profile != "" {
			autoApproved[profile] = struct{}{}
		}
	}
	return &CAPlugin{
		certs:            certs,
		simpleCMCProfile: cfg.SimpleCMCProfile,
		autoApproved:     autoApproved,
	}
}

func (p *CAPlugin) DefaultCAName() string {
	return DefaultCAName
}

// DefaultSigningCert is not exposed by the CA client
func (p *CAPlugin) DefaultSigningCert() []byte {
	return nil
}

// DefaultIntermediates is not exposed by the CA client
func (p *CAPlugin) DefaultIntermediates() []byte {
	return nil
}

// Supports accepts specs that name no CA type or name Dogtag
func (p *CAPlugin) Supports(spec map[string]string) bool {
	if caType, ok := spec[certmanager.OrderCAType]; ok {
		return caType == certmanager.CATypeDogtag
	}
	return true
}

func (p *CAPlugin) SupportedRequestTypes() []certmanager.RequestType {
	return []certmanager.RequestType{
		certmanager.RequestTypeSimpleCMC,
		certmanager.RequestTypeStoredKey,
		certmanager.RequestTypeCustom,
	}
}

func requestIDFrom(orderID string, pluginMeta certmanager.PluginMeta, operation string) (string, error) {
	requestID := pluginMeta[PluginMetaRequestID]
	if requestID == "" {
		return "", certmanager.NewGeneralError("%s not found for %s for order_id %s", PluginMetaRequestID, operation, orderID)
	}
	return requestID, nil
}

// CheckCertificateStatus polls the CA for the request recorded in pluginMeta.
// The certificate and chain are returned as the CA encodes them.
func (p *CAPlugin) CheckCertificateStatus(ctx context.Context, orderID string, orderMeta certmanager.OrderMeta, pluginMeta certmanager.PluginMeta, reqCtx *certmanager.RequestContext) (*certmanager.Result, error) {
	requestID, err := requestIDFrom(orderID, pluginMeta, "checking")
	if err != nil {
		return nil, err
	}

	return withCAAvailability(ctx, "check_certificate_status", func() (*certmanager.Result, error) {
		request, err := p.certs.GetRequest(ctx, requestID)
		if errors.Is(err, pki.ErrRequestNotFound) {
			return nil, certmanager.NewGeneralError("No request found for request_id %s for order %s", requestID, orderID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get request %s: %w", requestID, err)
		}

		slog.DebugContext(ctx, "certificate request status",
			logger.Component("ca"),
			logger.OrderID(orderID),
			logger.CARequestID(requestID),
			logger.CertStatus(string(request.RequestStatus)),
		)

		switch request.RequestStatus {
		case pki.CertRequestStatusRejected:
			return certmanager.NewResult(certmanager.StatusClientDataIssueSeen, request.ErrorMessage), nil
		case pki.CertRequestStatusCanceled:
			return certmanager.NewResult(certmanager.StatusRequestCanceled, ""), nil
		case pki.CertRequestStatusPending:
			return certmanager.NewResult(certmanager.StatusWaitingForCA, ""), nil
		case pki.CertRequestStatusComplete:
		default:
			return nil, certmanager.NewGeneralError("Invalid request_status returned by CA")
		}

		if request.CertID == "" {
			return nil, certmanager.NewGeneralError("Request %s reports status_complete, but no cert_id has been returned", requestID)
		}
		cert, err := p.certs.GetCert(ctx, request.CertID)
		if errors.Is(err, pki.ErrCertNotFound) {
			return nil, certmanager.NewGeneralError("Certificate not found for cert_id: %s", request.CertID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get cert %s: %w", request.CertID, err)
		}

		return &certmanager.Result{
			Status:        certmanager.StatusCertificateGenerated,
			Certificate:   []byte(cert.Encoded),
			Intermediates: []byte(cert.PKCS7CertChain),
		}, nil
	})
}

// IssueCertificateRequest submits the order to the CA using the strategy
// named by its request type. The CA request id is written to pluginMeta as
// soon as it is known, even when the call fails afterwards.
func (p *CAPlugin) IssueCertificateRequest(ctx context.Context, orderID string, orderMeta certmanager.OrderMeta, pluginMeta certmanager.PluginMeta, reqCtx *certmanager.RequestContext) (*certmanager.Result, error) {
	if pluginMeta == nil {
		return nil, certmanager.NewGeneralError("plugin metadata is required to issue order %s", orderID)
	}

	requestType := orderMeta.RequestType()
	slog.DebugContext(ctx, "issuing certificate request",
		logger.Component("ca"),
		logger.OrderID(orderID),
		logger.RequestType(string(requestType)),
	)

	return withCAAvailability(ctx, "issue_certificate_request", func() (*certmanager.Result, error) {
		switch requestType {
		case certmanager.RequestTypeSimpleCMC:
			return withEnrollmentErrors(ctx, func() (*certmanager.Result, error) {
				return p.issueSimpleCMC(ctx, orderMeta, pluginMeta, reqCtx)
			})
		case certmanager.RequestTypeFullCMC:
			return nil, notSupported("Dogtag plugin does not support %s request type", requestType)
		case certmanager.RequestTypeStoredKey:
			// A stored key request is a simple CMC request whose CSR was
			// generated from a key held in the KRA.
			return withEnrollmentErrors(ctx, func() (*certmanager.Result, error) {
				return p.issueSimpleCMC(ctx, orderMeta, pluginMeta, reqCtx)
			})
		case certmanager.RequestTypeCustom:
			return withEnrollmentErrors(ctx, func() (*certmanager.Result, error) {
				return p.issueCustom(ctx, orderMeta, pluginMeta)
			})
		default:
			return nil, notSupported("Dogtag plugin does not support %s request type", requestType)
		}
	})
}

func (p *CAPlugin) issueSimpleCMC(ctx context.Context, orderMeta certmanager.OrderMeta, pluginMeta certmanager.PluginMeta, reqCtx *certmanager.RequestContext) (*certmanager.Result, error) {
	var csr []byte
	if reqCtx != nil && reqCtx.GeneratedCSR != nil {
		csr = reqCtx.GeneratedCSR
	} else {
		// The order carries base64 encoded PEM; the CA wants the PEM itself.
		data, ok := orderMeta[certmanager.OrderRequestData]
		if !ok || data == "" {
			return certmanager.NewResult(certmanager.StatusClientDataIssueSeen, "No request_data specified"), nil
		}
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return certmanager.NewResult(certmanager.StatusClientDataIssueSeen, "request_data is not valid base64"), nil
		}
		csr = decoded
	}

	profileID := p.simpleCMCProfile
	if profile, ok := orderMeta[certmanager.OrderProfile]; ok {
		profileID = profile
	}
	if profileID == "" {
		return nil, certmanager.NewGeneralError("no profile configured for simple CMC requests")
	}

	inputs := map[string]string{
		"cert_request_type": "pkcs10",
		"cert_request":      string(csr),
	}
	return p.submit(ctx, profileID, inputs, pluginMeta)
}

// issueCustom passes the order fields straight through as profile inputs.
// Which fields matter depends on the profile; the CA ignores the rest.
func (p *CAPlugin) issueCustom(ctx context.Context, orderMeta certmanager.OrderMeta, pluginMeta certmanager.PluginMeta) (*certmanager.Result, error) {
	profileID := orderMeta[certmanager.OrderProfileID]
	if profileID == "" {
		return certmanager.NewResult(certmanager.StatusClientDataIssueSeen, "No profile_id specified"), nil
	}

	inputs := orderMeta.Clone()
	if encoded, ok := inputs[certmanager.OrderCertRequest]; ok {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return certmanager.NewResult(certmanager.StatusClientDataIssueSeen, "cert_request is not valid base64"), nil
		}
		inputs[certmanager.OrderCertRequest] = string(decoded)
	}
	return p.submit(ctx, profileID, inputs, pluginMeta)
}

// submit sends the enrollment. Auto-approved profiles are created, approved
// and issued in one call; any other profile leaves a request for an agent.
func (p *CAPlugin) submit(ctx context.Context, profileID string, inputs map[string]string, pluginMeta certmanager.PluginMeta) (*certmanager.Result, error) {
	if _, ok := p.autoApproved[profileID]; ok {
		results, err := p.certs.EnrollCert(ctx, profileID, inputs)
		if err != nil {
			return nil, err
		}
		return p.processAutoEnrollment(ctx, profileID, results, pluginMeta)
	}

	req, err := p.certs.CreateEnrollmentRequest(ctx, profileID, inputs)
	if err != nil {
		return nil, err
	}
	infos, err := p.certs.SubmitEnrollmentRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.processPendingEnrollment(ctx, profileID, infos, pluginMeta)
}

// processAutoEnrollment handles a single certificate per order; extra
// enrollment results are ignored.
func (p *CAPlugin) processAutoEnrollment(ctx context.Context, profileID string, results []pki.CertEnrollmentResult, pluginMeta certmanager.PluginMeta) (*certmanager.Result, error) {
	if len(results) == 0 || results[0].Request == nil {
		return nil, certmanager.NewGeneralError("No request returned in enrollment_results")
	}
	request := results[0].Request
	requestID := request.RequestID()
	pluginMeta[PluginMetaRequestID] = requestID

	slog.InfoContext(ctx, "certificate enrolled",
		logger.Component("ca"),
		logger.Profile(profileID),
		logger.CARequestID(requestID),
		logger.CertStatus(string(request.RequestStatus)),
	)
	return enrollmentResult(request.RequestStatus, requestID, request.ErrorMessage, results[0].Cert)
}

func (p *CAPlugin) processPendingEnrollment(ctx context.Context, profileID string, infos *pki.CertRequestInfoCollection, pluginMeta certmanager.PluginMeta) (*certmanager.Result, error) {
	if infos == nil || len(infos.Entries) == 0 {
		return nil, certmanager.NewGeneralError("No request returned by CA for profile %s", profileID)
	}
	info := infos.Entries[0]
	requestID := info.RequestID()
	if requestID != "" {
		pluginMeta[PluginMetaRequestID] = requestID
	}

	slog.InfoContext(ctx, "certificate request submitted",
		logger.Component("ca"),
		logger.Profile(profileID),
		logger.CARequestID(requestID),
		logger.CertStatus(string(info.RequestStatus)),
	)
	return enrollmentResult(info.RequestStatus, requestID, info.ErrorMessage, nil)
}

// CancelCertificateRequest cancels the CA request recorded in pluginMeta.
// A request the CA no longer knows and a request that already reached a
// final state are reported as results, not errors.
func (p *CAPlugin) CancelCertificateRequest(ctx context.Context, orderID string, orderMeta certmanager.OrderMeta, pluginMeta certmanager.PluginMeta, reqCtx *certmanager.RequestContext) (*certmanager.Result, error) {
	requestID, err := requestIDFrom(orderID, pluginMeta, "cancelling")
	if err != nil {
		return nil, err
	}

	return withCAAvailability(ctx, "cancel_certificate_request", func() (*certmanager.Result, error) {
		review, err := p.certs.ReviewRequest(ctx, requestID)
		if err == nil {
			err = p.certs.CancelRequest(ctx, requestID, review)
		}

		switch {
		case err == nil:
			slog.InfoContext(ctx, "certificate request canceled",
				logger.Component("ca"),
				logger.OrderID(orderID),
				logger.CARequestID(requestID),
			)
			return certmanager.NewResult(certmanager.StatusRequestCanceled, ""), nil
		case errors.Is(err, pki.ErrRequestNotFound):
			return certmanager.NewResult(certmanager.StatusClientDataIssueSeen, "no request found for this order"), nil
		case errors.Is(err, pki.ErrConflictingOperation):
			return certmanager.NewResult(certmanager.StatusInvalidOperation, pki.Message(err)), nil
		default:
			return nil, fmt.Errorf("failed to cancel request %s: %w", requestID, err)
		}
	})
}

// ModifyCertificateRequest cancels the outstanding request and issues a new
// one from the updated order. The CA has no in-place modification.
func (p *CAPlugin) ModifyCertificateRequest(ctx context.Context, orderID string, orderMeta certmanager.OrderMeta, pluginMeta certmanager.PluginMeta, reqCtx *certmanager.RequestContext) (*certmanager.Result, error) {
	result, err := p.CancelCertificateRequest(ctx, orderID, orderMeta, pluginMeta, reqCtx)
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case certmanager.StatusRequestCanceled:
		return p.IssueCertificateRequest(ctx, orderID, orderMeta, pluginMeta, reqCtx)
	case certmanager.StatusInvalidOperation:
		return certmanager.NewResult(certmanager.StatusInvalidOperation,
			"Modify request: unable to cancel: "+result.StatusMessage), nil
	default:
		return result, nil
	}
}
