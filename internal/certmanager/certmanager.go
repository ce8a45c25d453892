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

package certmanager

import (
	"context"
	"fmt"
)

// Status is the outcome of a certificate operation as seen by the caller
type Status string

const (
	StatusCertificateGenerated    Status = "CERTIFICATE_GENERATED"
	StatusWaitingForCA            Status = "WAITING_FOR_CA"
	StatusClientDataIssueSeen     Status = "CLIENT_DATA_ISSUE_SEEN"
	StatusRequestCanceled         Status = "REQUEST_CANCELED"
	StatusCAUnavailableForRequest Status = "CA_UNAVAILABLE_FOR_REQUEST"
	StatusInvalidOperation        Status = "INVALID_OPERATION"
)

// Result reports an expected certificate lifecycle outcome.
// Pending, rejected and unavailable are all Results, not errors.
type Result struct {
	Status        Status `json:"status"`
	Certificate   []byte `json:"certificate,omitempty"`
	Intermediates []byte `json:"intermediates,omitempty"`
	StatusMessage string `json:"status_message,omitempty"`
}

// NewResult creates a Result with an optional status message
func NewResult(status Status, message string) *Result {
	return &Result{Status: status, StatusMessage: message}
}

// RequestType selects the issuance strategy
type RequestType string

const (
	RequestTypeSimpleCMC RequestType = "simple-cmc"
	RequestTypeFullCMC   RequestType = "full-cmc"
	RequestTypeStoredKey RequestType = "stored-key"
	RequestTypeCustom    RequestType = "custom"
)

// Order metadata keys
const (
	OrderRequestType = "request_type"
	OrderRequestData = "request_data"
	OrderProfile     = "profile"
	OrderProfileID   = "profile_id"
	OrderCertRequest = "cert_request"
	OrderCAType      = "ca_type"
)

// CA plugin types understood by Supports
const (
	CATypeDogtag   = "dogtag"
	CATypeSymantec = "symantec"
)

// OrderMeta holds the caller-supplied inputs of a certificate order
type OrderMeta map[string]string

// RequestType returns the order's request type, defaulting to custom
func (m OrderMeta) RequestType() RequestType {
	if v, ok := m[OrderRequestType]; ok && v != "" {
		return RequestType(v)
	}
	return RequestTypeCustom
}

// Clone returns a shallow copy of m
func (m OrderMeta) Clone() OrderMeta {
	out := make(OrderMeta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// PluginMeta is the caller-owned state a Plugin writes during issuance and
// reads on later calls. Plugins only ever add keys to it.
type PluginMeta map[string]string

// RequestContext carries out-of-band data for an order
type RequestContext struct {
	// GeneratedCSR is a CSR produced by the caller on behalf of the order.
	// When set it takes precedence over the order's request_data.
	GeneratedCSR []byte
}

// Plugin is the contract a certificate authority backend implements
type Plugin interface {
	IssueCertificateRequest(ctx context.Context, orderID string, orderMeta OrderMeta, pluginMeta PluginMeta, reqCtx *RequestContext) (*Result, error)
	CheckCertificateStatus(ctx context.Context, orderID string, orderMeta OrderMeta, pluginMeta PluginMeta, reqCtx *RequestContext) (*Result, error)
	CancelCertificateRequest(ctx context.Context, orderID string, orderMeta OrderMeta, pluginMeta PluginMeta, reqCtx *RequestContext) (*Result, error)
	ModifyCertificateRequest(ctx context.Context, orderID string, orderMeta OrderMeta, pluginMeta PluginMeta, reqCtx *RequestContext) (*Result, error)

	// Supports reports whether this plugin can serve a certificate spec
	Supports(spec map[string]string) bool

	// SupportedRequestTypes lists the request types IssueCertificateRequest accepts
	SupportedRequestTypes() []RequestType

	DefaultCAName() string
}

// GeneralError reports a fatal certificate operation failure: a usage error
// or an inconsistency in what the CA returned.
type GeneralError struct {
	Reason string
}

func (e *GeneralError) Error() string {
	return fmt.Sprintf("certificate error: %s", e.Reason)
}

// NewGeneralError creates a GeneralError
func NewGeneralError(format string, args ...any) *GeneralError {
	return &GeneralError{Reason: fmt.Sprintf(format, args...)}
}
