package dogtag

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"

	"github.com/opentrusty/pkibridge/internal/certmanager"
	"github.com/opentrusty/pkibridge/internal/observability/logger"
	"github.com/opentrusty/pkibridge/internal/pki"
)

type caCall func() (*certmanager.Result, error)

// withCAAvailability turns a failure to reach the CA into a
// CA_UNAVAILABLE_FOR_REQUEST result. The caller decides when to retry.
func withCAAvailability(ctx context.Context, op string, fn caCall) (*certmanager.Result, error) {
	res, err := fn()
	if err != nil && errors.Is(err, pki.ErrUnavailable) {
		slog.WarnContext(ctx, "ca unavailable",
			logger.Component("ca"),
			logger.Operation(op),
			logger.Error(err),
		)
		return certmanager.NewResult(certmanager.StatusCAUnavailableForRequest, ""), nil
	}
	return res, err
}

// withEnrollmentErrors reports a CA "bad request" as a client data issue and
// escalates every other CA-reported error.
func withEnrollmentErrors(ctx context.Context, fn caCall) (*certmanager.Result, error) {
	res, err := fn()
	if err == nil {
		return res, nil
	}

	var perr *pki.Error
	if !errors.As(err, &perr) {
		return nil, err
	}
	if errors.Is(err, pki.ErrBadRequest) {
		slog.WarnContext(ctx, "ca rejected enrollment data",
			logger.Component("ca"),
			logger.Error(err),
		)
		return certmanager.NewResult(certmanager.StatusClientDataIssueSeen, perr.Message), nil
	}
	return nil, certmanager.NewGeneralError("Exception thrown by enroll_cert: %s", perr.Message)
}

// enrollmentResult maps the state of a freshly submitted request onto a
// result. A completed request must come with its certificate, which is
// returned base64 encoded together with the framed signer chain.
func enrollmentResult(status pki.CertRequestStatus, requestID, errorMessage string, cert *pki.CertData) (*certmanager.Result, error) {
	switch status {
	case pki.CertRequestStatusComplete:
		if cert == nil {
			return nil, certmanager.NewGeneralError("request_id %s returns COMPLETE but no cert returned", requestID)
		}
		return &certmanager.Result{
			Status:        certmanager.StatusCertificateGenerated,
			Certificate:   []byte(base64.StdEncoding.EncodeToString([]byte(cert.Encoded))),
			Intermediates: []byte(base64.StdEncoding.EncodeToString(frameCertChain(cert.PKCS7CertChain))),
		}, nil
	case pki.CertRequestStatusRejected:
		return certmanager.NewResult(certmanager.StatusClientDataIssueSeen, errorMessage), nil
	case pki.CertRequestStatusCanceled:
		return certmanager.NewResult(certmanager.StatusRequestCanceled, ""), nil
	case pki.CertRequestStatusPending:
		return certmanager.NewResult(certmanager.StatusWaitingForCA, ""), nil
	default:
		return nil, certmanager.NewGeneralError("Invalid request_status %s for request_id %s", status, requestID)
	}
}
