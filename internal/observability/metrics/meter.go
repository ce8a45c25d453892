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

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{
			meter: otel.Meter("noop"),
		}, nil
	}

	// Uses the global meter provider; exporters are configured by the process
	return &Meter{
		meter: otel.Meter(serviceName),
	}, nil
}

// GetMeter returns the underlying meter
func (m *Meter) GetMeter() metric.Meter {
	return m.meter
}

// CreateCounter creates a new counter metric
func (m *Meter) CreateCounter(name, description string) (metric.Int64Counter, error) {
	counter, err := m.meter.Int64Counter(
		name,
		metric.WithDescription(description),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return counter, nil
}

// CreateHistogram creates a new histogram metric
func (m *Meter) CreateHistogram(name, description, unit string) (metric.Float64Histogram, error) {
	histogram, err := m.meter.Float64Histogram(
		name,
		metric.WithDescription(description),
		metric.WithUnit(unit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	return histogram, nil
}

// Instruments are the broker-level measurements
type Instruments struct {
	secretOps   metric.Int64Counter
	certResults metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewInstruments registers the broker instruments on m
func NewInstruments(m *Meter) (*Instruments, error) {
	secretOps, err := m.CreateCounter("pkibridge.secret.operations", "Secret store operations by outcome")
	if err != nil {
		return nil, err
	}
	certResults, err := m.CreateCounter("pkibridge.cert.results", "Certificate operations by result status")
	if err != nil {
		return nil, err
	}
	latency, err := m.CreateHistogram("pkibridge.operation.duration", "Plugin call latency", "ms")
	if err != nil {
		return nil, err
	}
	return &Instruments{secretOps: secretOps, certResults: certResults, latency: latency}, nil
}

// RecordSecretOp counts a secret store operation
func (i *Instruments) RecordSecretOp(ctx context.Context, op, outcome string) {
	if i == nil {
		return
	}
	i.secretOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

// RecordCertResult counts a certificate operation by its result status
func (i *Instruments) RecordCertResult(ctx context.Context, op, status string) {
	if i == nil {
		return
	}
	i.certResults.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status),
	))
}

// ObserveLatency records the duration of a plugin call in milliseconds
func (i *Instruments) ObserveLatency(ctx context.Context, op string, ms float64) {
	if i == nil {
		return
	}
	i.latency.Record(ctx, ms, metric.WithAttributes(attribute.String("op", op)))
}
