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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/opentrusty/pkibridge/internal/broker"
	"github.com/opentrusty/pkibridge/internal/certmanager"
	"github.com/opentrusty/pkibridge/internal/observability/logger"
)

// OrderRepository implements broker.OrderRepository
type OrderRepository struct {
	db *DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create stores a new order
func (r *OrderRepository) Create(ctx context.Context, order *broker.Order) error {
	orderMeta, pluginMeta, err := encodeOrderMeta(order)
	if err != nil {
		return err
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO orders (
			id, request_type, order_meta, plugin_meta, status, status_message,
			certificate, intermediates, created_at, updated_at
		) VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, $6, $7, $8, $9, $10)
	`,
		order.ID, string(order.RequestType), orderMeta, pluginMeta, order.Status, order.StatusMessage,
		order.Certificate, order.Intermediates, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetByID retrieves an order
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*broker.Order, error) {
	var (
		order                   broker.Order
		requestType             string
		rawOrderMeta, rawPlugin []byte
	)
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, request_type, order_meta, plugin_meta, status, status_message,
			certificate, intermediates, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(
		&order.ID, &requestType, &rawOrderMeta, &rawPlugin, &order.Status, &order.StatusMessage,
		&order.Certificate, &order.Intermediates, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, broker.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	order.RequestType = certmanager.RequestType(requestType)
	if order.Meta, err = decodeMeta[certmanager.OrderMeta](rawOrderMeta); err != nil {
		return nil, err
	}
	if order.PluginMeta, err = decodeMeta[certmanager.PluginMeta](rawPlugin); err != nil {
		return nil, err
	}
	return &order, nil
}

// Update replaces the mutable fields of an order
func (r *OrderRepository) Update(ctx context.Context, order *broker.Order) error {
	orderMeta, pluginMeta, err := encodeOrderMeta(order)
	if err != nil {
		return err
	}

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE orders
		SET request_type = $2, order_meta = $3::jsonb, plugin_meta = $4::jsonb,
			status = $5, status_message = $6, certificate = $7, intermediates = $8,
			updated_at = $9
		WHERE id = $1
	`,
		order.ID, string(order.RequestType), orderMeta, pluginMeta,
		order.Status, order.StatusMessage, order.Certificate, order.Intermediates, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return broker.ErrOrderNotFound
	}

	slog.DebugContext(ctx, "order saved",
		logger.Component("postgres"),
		logger.OrderID(order.ID),
		logger.RowsAffected(tag.RowsAffected()),
	)
	return nil
}

func encodeOrderMeta(order *broker.Order) (string, string, error) {
	orderMeta, err := encodeMeta(order.Meta)
	if err != nil {
		return "", "", err
	}
	pluginMeta, err := encodeMeta(order.PluginMeta)
	if err != nil {
		return "", "", err
	}
	return orderMeta, pluginMeta, nil
}
