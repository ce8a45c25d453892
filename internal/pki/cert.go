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
	"encoding/json"
	"fmt"
	"net/url"
)

// CertRequestStatus is the CA-assigned state of a certificate request
type CertRequestStatus string

const (
	CertRequestStatusPending  CertRequestStatus = "pending"
	CertRequestStatusComplete CertRequestStatus = "complete"
	CertRequestStatusRejected CertRequestStatus = "rejected"
	CertRequestStatusCanceled CertRequestStatus = "canceled"
)

// CertRequestInfo describes a certificate request held by the CA
type CertRequestInfo struct {
	RequestType     string            `json:"requestType"`
	RequestURL      string            `json:"requestURL"`
	RequestStatus   CertRequestStatus `json:"requestStatus"`
	CertRequestType string            `json:"certRequestType,omitempty"`
	CertURL         string            `json:"certURL,omitempty"`
	CertID          string            `json:"certId,omitempty"`
	OperationResult string            `json:"operationResult,omitempty"`
	ErrorMessage    string            `json:"errorMessage,omitempty"`
}

// RequestID is the trailing segment of the request URL
func (i *CertRequestInfo) RequestID() string {
	if i.RequestURL == "" {
		return ""
	}
	return lastPathSegment(i.RequestURL)
}

// CertRequestInfoCollection is the CA response to a submitted enrollment
type CertRequestInfoCollection struct {
	Total   int               `json:"total"`
	Entries []CertRequestInfo `json:"entries"`
}

// CertData is an issued certificate.
// Encoded is PEM; PKCS7CertChain is the base64 signer chain without PEM framing.
type CertData struct {
	ID             string `json:"id"`
	IssuerDN       string `json:"IssuerDN,omitempty"`
	SubjectDN      string `json:"SubjectDN,omitempty"`
	Encoded        string `json:"Encoded"`
	PKCS7CertChain string `json:"PKCS7CertChain"`
	NotBefore      string `json:"NotBefore,omitempty"`
	NotAfter       string `json:"NotAfter,omitempty"`
	Status         string `json:"Status,omitempty"`
	Nonce          int64  `json:"Nonce,omitempty"`
}

// CertEnrollmentResult pairs a request with the certificate it produced.
// Cert is nil unless the request completed.
type CertEnrollmentResult struct {
	Request *CertRequestInfo
	Cert    *CertData
}

// ProfileAttribute is a single named field of an enrollment profile input
type ProfileAttribute struct {
	Name  string `json:"name"`
	Value string `json:"Value,omitempty"`
}

// ProfileInput is a group of attributes in an enrollment template
type ProfileInput struct {
	ID         string             `json:"id"`
	ClassID    string             `json:"ClassID"`
	Name       string             `json:"Name"`
	Attributes []ProfileAttribute `json:"Attribute"`
}

// CertEnrollmentRequest is an enrollment template filled with request inputs
type CertEnrollmentRequest struct {
	ProfileID string         `json:"ProfileID"`
	Renewal   bool           `json:"Renewal"`
	Inputs    []ProfileInput `json:"Input"`
}

// Set assigns value to every attribute named name and reports whether any matched
func (r *CertEnrollmentRequest) Set(name, value string) bool {
	found := false
	for i := range r.Inputs {
		for j := range r.Inputs[i].Attributes {
			if r.Inputs[i].Attributes[j].Name == name {
				r.Inputs[i].Attributes[j].Value = value
				found = true
			}
		}
	}
	return found
}

// CertReviewResponse is the agent view of a request. Its nonce must be
// echoed back on approve and cancel, so the full document is kept.
type CertReviewResponse struct {
	RequestID string
	Nonce     string
	raw       json.RawMessage
}

func (r *CertReviewResponse) UnmarshalJSON(data []byte) error {
	var head struct {
		RequestID string `json:"requestId"`
		Nonce     string `json:"nonce"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	r.RequestID = head.RequestID
	r.Nonce = head.Nonce
	r.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (r *CertReviewResponse) MarshalJSON() ([]byte, error) {
	if r.raw != nil {
		return r.raw, nil
	}
	return json.Marshal(map[string]string{"requestId": r.RequestID, "nonce": r.Nonce})
}

// CertClient talks to the CA certificate and request resources
type CertClient struct {
	conn *Connection
}

// NewCertClient creates a CertClient over a CA connection
func NewCertClient(conn *Connection) *CertClient {
	return &CertClient{conn: conn}
}

// GetRequest fetches a certificate request by id
func (c *CertClient) GetRequest(ctx context.Context, requestID string) (*CertRequestInfo, error) {
	var info CertRequestInfo
	if err := c.conn.Get(ctx, "get_request", "rest/certrequests/"+url.PathEscape(requestID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetCert fetches an issued certificate by id
func (c *CertClient) GetCert(ctx context.Context, certID string) (*CertData, error) {
	var cert CertData
	if err := c.conn.Get(ctx, "get_cert", "rest/certs/"+url.PathEscape(certID), &cert); err != nil {
		return nil, err
	}
	return &cert, nil
}

// ReviewRequest fetches the agent view of a request
func (c *CertClient) ReviewRequest(ctx context.Context, requestID string) (*CertReviewResponse, error) {
	var review CertReviewResponse
	if err := c.conn.Get(ctx, "review_request", "rest/agent/certrequests/"+url.PathEscape(requestID), &review); err != nil {
		return nil, err
	}
	return &review, nil
}

// ApproveRequest approves a pending request as an agent
func (c *CertClient) ApproveRequest(ctx context.Context, requestID string, review *CertReviewResponse) error {
	return c.conn.Post(ctx, "approve_request", "rest/agent/certrequests/"+url.PathEscape(requestID)+"/approve", review, nil)
}

// CancelRequest cancels a request. The review must come from ReviewRequest.
func (c *CertClient) CancelRequest(ctx context.Context, requestID string, review *CertReviewResponse) error {
	if review == nil {
		return fmt.Errorf("review response is required to cancel request %s", requestID)
	}
	return c.conn.Post(ctx, "cancel_request", "rest/agent/certrequests/"+url.PathEscape(requestID)+"/cancel", review, nil)
}

// CreateEnrollmentRequest fetches the enrollment template for a profile and
// fills it with inputs. Inputs the profile does not declare are ignored.
func (c *CertClient) CreateEnrollmentRequest(ctx context.Context, profileID string, inputs map[string]string) (*CertEnrollmentRequest, error) {
	var req CertEnrollmentRequest
	if err := c.conn.Get(ctx, "get_enrollment_template", "rest/certrequests/profiles/"+url.PathEscape(profileID), &req); err != nil {
		return nil, err
	}
	req.ProfileID = profileID
	for name, value := range inputs {
		req.Set(name, value)
	}
	return &req, nil
}

// SubmitEnrollmentRequest submits a filled enrollment request
func (c *CertClient) SubmitEnrollmentRequest(ctx context.Context, req *CertEnrollmentRequest) (*CertRequestInfoCollection, error) {
	var infos CertRequestInfoCollection
	if err := c.conn.Post(ctx, "submit_enrollment_request", "rest/certrequests", req, &infos); err != nil {
		return nil, err
	}
	return &infos, nil
}

// EnrollCert creates, submits and approves an enrollment in one go and
// returns each resulting request with its certificate. It requires agent
// credentials on the connection.
func (c *CertClient) EnrollCert(ctx context.Context, profileID string, inputs map[string]string) ([]CertEnrollmentResult, error) {
	req, err := c.CreateEnrollmentRequest(ctx, profileID, inputs)
	if err != nil {
		return nil, err
	}
	infos, err := c.SubmitEnrollmentRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	results := make([]CertEnrollmentResult, 0, len(infos.Entries))
	for _, entry := range infos.Entries {
		requestID := entry.RequestID()

		review, err := c.ReviewRequest(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if err := c.ApproveRequest(ctx, requestID, review); err != nil {
			return nil, err
		}

		info, err := c.GetRequest(ctx, requestID)
		if err != nil {
			return nil, err
		}

		result := CertEnrollmentResult{Request: info}
		if info.CertID != "" {
			cert, err := c.GetCert(ctx, info.CertID)
			if err != nil {
				return nil, err
			}
			result.Cert = cert
		}
		results = append(results, result)
	}
	return results, nil
}
