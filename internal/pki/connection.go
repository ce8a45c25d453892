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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/opentrusty/pkibridge/internal/observability/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/opentrusty/pkibridge/internal/pki"

// Subsystem path prefixes
const (
	SubsystemCA  = "ca"
	SubsystemKRA = "kra"
)

// Config holds the connection settings for one subsystem
type Config struct {
	Host      string
	Port      string
	Subsystem string

	// Client authentication: either a PEM file holding certificate and key,
	// or a PKCS#12 bundle.
	PEMPath        string
	PKCS12Path     string
	PKCS12Password string

	// CABundlePath optionally replaces the system roots
	CABundlePath string

	Timeout time.Duration
}

// Connection is an authenticated HTTPS channel to a CA or KRA subsystem.
// It is safe for concurrent use.
type Connection struct {
	baseURL    *url.URL
	httpClient *http.Client
	tracer     trace.Tracer
	requests   metric.Int64Counter
}

// NewConnection creates a connection to https://host:port/subsystem
func NewConnection(cfg Config) (*Connection, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("pki host is required")
	}
	if cfg.Subsystem == "" {
		return nil, fmt.Errorf("pki subsystem is required")
	}

	tlsConfig, err := NewTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	transport := cleanhttp.DefaultPooledTransport()
	transport.TLSClientConfig = tlsConfig

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(transport),
	}

	base := &url.URL{
		Scheme: "https",
		Host:   cfg.Host + ":" + cfg.Port,
		Path:   "/" + cfg.Subsystem,
	}
	return newConnection(base, client), nil
}

func newConnection(base *url.URL, client *http.Client) *Connection {
	meter := otel.Meter(instrumentationName)
	// The global meter never fails instrument creation; a nil counter is
	// tolerated by record().
	counter, _ := meter.Int64Counter("pki.client.requests",
		metric.WithDescription("Requests sent to the CA/KRA subsystems"),
	)
	return &Connection{
		baseURL:    base,
		httpClient: client,
		tracer:     otel.Tracer(instrumentationName),
		requests:   counter,
	}
}

// BaseURL returns the subsystem root URL
func (c *Connection) BaseURL() string {
	return c.baseURL.String()
}

// Get issues a GET and decodes the JSON response into out
func (c *Connection) Get(ctx context.Context, op, path string, out any) error {
	return c.do(ctx, op, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body and decodes the JSON response into out.
// out may be nil when the response carries no body.
func (c *Connection) Post(ctx context.Context, op, path string, in, out any) error {
	return c.do(ctx, op, http.MethodPost, path, in, out)
}

func (c *Connection) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "pki."+op, trace.WithAttributes(
		attribute.String("pki.method", method),
		attribute.String("pki.path", path),
	))
	start := time.Now()
	defer func() {
		c.record(ctx, op, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		slog.DebugContext(ctx, "pki_request",
			logger.Component("pki"),
			logger.Operation(op),
			logger.Method(method),
			logger.Path(path),
			logger.Duration(time.Since(start).Milliseconds()),
			logger.Error(err),
		)
	}()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	target := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s: reading response: %v", ErrUnavailable, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(op, resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

// decodeError turns an error response into a *Error when the body carries a
// server exception, and into ErrUnavailable otherwise.
func decodeError(op string, status int, data []byte) error {
	var perr Error
	if err := json.Unmarshal(data, &perr); err == nil && perr.ClassName != "" {
		if perr.Code == 0 {
			perr.Code = status
		}
		return &perr
	}
	return fmt.Errorf("%w: %s: unexpected status %d", ErrUnavailable, op, status)
}

func (c *Connection) record(ctx context.Context, op string, err error) {
	if c.requests == nil {
		return
	}
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrUnavailable):
		outcome = "unavailable"
	default:
		outcome = "error"
	}
	c.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

// lastPathSegment returns the trailing id of a resource URL such as
// https://host/ca/rest/certrequests/12
func lastPathSegment(raw string) string {
	raw = strings.TrimRight(raw, "/")
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		return raw[i+1:]
	}
	return raw
}
