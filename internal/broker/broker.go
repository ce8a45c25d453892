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

// Package broker is the caller of the secret store and certificate plugins.
// It owns the opaque plugin metadata, persisting it between calls, and
// audits every operation.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opentrusty/pkibridge/internal/audit"
	"github.com/opentrusty/pkibridge/internal/certmanager"
	"github.com/opentrusty/pkibridge/internal/observability/metrics"
	"github.com/opentrusty/pkibridge/internal/secretstore"
)

var (
	ErrSecretNotFound         = errors.New("secret not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidSecretType      = errors.New("invalid secret type")
	ErrUnsupportedKeySpec     = errors.New("key spec not supported by secret store")
	ErrUnsupportedRequestType = errors.New("request type not supported by certificate plugin")
	ErrUnsupportedCAType      = errors.New("ca type not supported by certificate plugin")
)

// Order statuses outside the plugin result vocabulary
const (
	OrderStatusPending = "PENDING"
	OrderStatusError   = "ERROR"
)

// Secret is the persisted record of a stored or generated secret
type Secret struct {
	ID        string                 `json:"id"`
	Type      secretstore.SecretType `json:"secret_type"`
	Metadata  secretstore.Metadata   `json:"-"`
	CreatedAt time.Time              `json:"created_at"`
}

// KeyPair groups the records created by asymmetric generation
type KeyPair struct {
	Private    *Secret `json:"private"`
	Public     *Secret `json:"public"`
	Passphrase *Secret `json:"passphrase,omitempty"`
}

// Order is a certificate order and the last outcome reported for it
type Order struct {
	ID            string                  `json:"id"`
	RequestType   certmanager.RequestType `json:"request_type"`
	Meta          certmanager.OrderMeta   `json:"order_meta"`
	PluginMeta    certmanager.PluginMeta  `json:"-"`
	Status        string                  `json:"status"`
	StatusMessage string                  `json:"status_message,omitempty"`
	Certificate   []byte                  `json:"certificate,omitempty"`
	Intermediates []byte                  `json:"intermediates,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`

	// Outcome is the result of the call that returned this order. It is not
	// stored; a rejected operation shows up here and leaves Status alone.
	Outcome        certmanager.Status `json:"outcome,omitempty"`
	OutcomeMessage string             `json:"outcome_message,omitempty"`
}

// apply records a plugin result on the order. INVALID_OPERATION rejects
// the call without changing the order's state.
func (o *Order) apply(result *certmanager.Result) {
	o.Outcome = result.Status
	o.OutcomeMessage = result.StatusMessage
	if result.Status == certmanager.StatusInvalidOperation {
		return
	}
	o.Status = string(result.Status)
	o.StatusMessage = result.StatusMessage
	if len(result.Certificate) > 0 {
		o.Certificate = result.Certificate
		o.Intermediates = result.Intermediates
	}
}

// SecretRepository persists secret metadata
type SecretRepository interface {
	Create(ctx context.Context, secret *Secret) error
	GetByID(ctx context.Context, id string) (*Secret, error)
	Delete(ctx context.Context, id string) error
}

// OrderRepository persists certificate orders
type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, order *Order) error
}

// Service drives the plugins on behalf of API callers
type Service struct {
	store       secretstore.Store
	plugin      certmanager.Plugin
	secrets     SecretRepository
	orders      OrderRepository
	auditLogger audit.Logger
	metrics     *metrics.Instruments
	tracer      trace.Tracer
	now         func() time.Time
}

// NewService creates a new broker service. instruments may be nil.
func NewService(
	store secretstore.Store,
	plugin certmanager.Plugin,
	secrets SecretRepository,
	orders OrderRepository,
	auditLogger audit.Logger,
	instruments *metrics.Instruments,
) *Service {
	return &Service{
		store:       store,
		plugin:      plugin,
		secrets:     secrets,
		orders:      orders,
		auditLogger: auditLogger,
		metrics:     instruments,
		tracer:      otel.Tracer("github.com/opentrusty/pkibridge/internal/broker"),
		now:         time.Now,
	}
}

type actorKey struct{}

// ContextWithActor attaches the authenticated caller to ctx
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the authenticated caller, if any
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// startSpan opens a span and returns a finisher that records err and latency
func (s *Service) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "broker."+op, trace.WithAttributes(attrs...))
	start := s.now()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.metrics.ObserveLatency(ctx, op, float64(s.now().Sub(start).Microseconds())/1000)
		span.End()
	}
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
