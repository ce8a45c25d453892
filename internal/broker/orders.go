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

package broker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/opentrusty/pkibridge/internal/audit"
	"github.com/opentrusty/pkibridge/internal/certmanager"
	"github.com/opentrusty/pkibridge/internal/observability/logger"
)

// pluginCall is one of the certmanager.Plugin lifecycle methods
type pluginCall func(ctx context.Context, orderID string, orderMeta certmanager.OrderMeta, pluginMeta certmanager.PluginMeta, reqCtx *certmanager.RequestContext) (*certmanager.Result, error)

// CreateOrder validates and records a new order, then asks the plugin to issue it
func (s *Service) CreateOrder(ctx context.Context, meta certmanager.OrderMeta, reqCtx *certmanager.RequestContext) (_ *Order, err error) {
	ctx, finish := s.startSpan(ctx, "create_order", attribute.String("order.request_type", string(meta.RequestType())))
	defer func() { finish(err) }()

	if err := s.validateOrder(meta); err != nil {
		return nil, err
	}

	now := s.now()
	order := &Order{
		ID:          newID(),
		RequestType: meta.RequestType(),
		Meta:        meta.Clone(),
		PluginMeta:  certmanager.PluginMeta{},
		Status:      OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if err := s.run(ctx, "issue", audit.TypeCertRequested, order, s.plugin.IssueCertificateRequest, reqCtx); err != nil {
		return order, err
	}
	return order, nil
}

// GetOrder returns the stored order without contacting the CA
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// CheckOrder asks the plugin for the current status of an order
func (s *Service) CheckOrder(ctx context.Context, id string) (_ *Order, err error) {
	ctx, finish := s.startSpan(ctx, "check_order", attribute.String("order.id", id))
	defer func() { finish(err) }()

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.run(ctx, "check", audit.TypeCertChecked, order, s.plugin.CheckCertificateStatus, nil); err != nil {
		return order, err
	}
	return order, nil
}

// CancelOrder asks the plugin to cancel an order's outstanding request
func (s *Service) CancelOrder(ctx context.Context, id string) (_ *Order, err error) {
	ctx, finish := s.startSpan(ctx, "cancel_order", attribute.String("order.id", id))
	defer func() { finish(err) }()

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.run(ctx, "cancel", audit.TypeCertCanceled, order, s.plugin.CancelCertificateRequest, nil); err != nil {
		return order, err
	}
	return order, nil
}

// ModifyOrder merges updates into the order meta and asks the plugin to
// replace the outstanding request. The merged meta is kept only when the
// plugin accepted the modification.
func (s *Service) ModifyOrder(ctx context.Context, id string, updates certmanager.OrderMeta, reqCtx *certmanager.RequestContext) (_ *Order, err error) {
	ctx, finish := s.startSpan(ctx, "modify_order", attribute.String("order.id", id))
	defer func() { finish(err) }()

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := order.Meta.Clone()
	for k, v := range updates {
		merged[k] = v
	}
	if err := s.validateOrder(merged); err != nil {
		return nil, err
	}

	previous := order.Meta
	order.Meta = merged
	order.RequestType = merged.RequestType()
	err = s.run(ctx, "modify", audit.TypeCertModified, order, s.plugin.ModifyCertificateRequest, reqCtx)
	if err != nil || order.Outcome == certmanager.StatusInvalidOperation {
		order.Meta = previous
		order.RequestType = previous.RequestType()
		if uerr := s.orders.Update(ctx, order); uerr != nil && err == nil {
			err = fmt.Errorf("failed to save order %s: %w", order.ID, uerr)
		}
	}
	return order, err
}

func (s *Service) validateOrder(meta certmanager.OrderMeta) error {
	if !s.plugin.Supports(meta) {
		return fmt.Errorf("%w: %q", ErrUnsupportedCAType, meta[certmanager.OrderCAType])
	}
	if !slices.Contains(s.plugin.SupportedRequestTypes(), meta.RequestType()) {
		return fmt.Errorf("%w: %q", ErrUnsupportedRequestType, meta.RequestType())
	}
	return nil
}

// run invokes a plugin call and persists the plugin meta afterwards, whether
// or not the call succeeded, so ids written before a failure survive.
func (s *Service) run(ctx context.Context, op, eventType string, order *Order, call pluginCall, reqCtx *certmanager.RequestContext) error {
	result, callErr := call(ctx, order.ID, order.Meta, order.PluginMeta, reqCtx)

	switch {
	case callErr != nil:
		order.Status = OrderStatusError
		order.StatusMessage = callErr.Error()
		order.Outcome = OrderStatusError
		order.OutcomeMessage = callErr.Error()
		s.metrics.RecordCertResult(ctx, op, OrderStatusError)
	case result != nil:
		order.apply(result)
		s.metrics.RecordCertResult(ctx, op, string(result.Status))
	}
	order.UpdatedAt = s.now()

	if err := s.orders.Update(ctx, order); err != nil {
		if callErr != nil {
			return fmt.Errorf("%s order %s: %w (and failed to save order: %v)", op, order.ID, callErr, err)
		}
		return fmt.Errorf("failed to save order %s: %w", order.ID, err)
	}

	if callErr != nil {
		s.auditFailure(ctx, eventType, order.ID, callErr)
		return fmt.Errorf("%s order %s: %w", op, order.ID, callErr)
	}

	slog.InfoContext(ctx, "order updated",
		logger.Component("broker"),
		logger.OrderID(order.ID),
		logger.Operation(op),
		logger.CertStatus(string(order.Outcome)),
		logger.CARequestID(order.PluginMeta["request_id"]),
	)
	s.auditLogger.Log(ctx, audit.Event{
		Type:     eventType,
		ActorID:  ActorFromContext(ctx),
		Resource: order.ID,
		Outcome:  string(order.Outcome),
		Metadata: audit.Redact(order.PluginMeta),
	})
	return nil
}
