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

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/opentrusty/pkibridge/internal/audit"
	"github.com/opentrusty/pkibridge/internal/authz"
	"github.com/opentrusty/pkibridge/internal/broker"
	"github.com/opentrusty/pkibridge/internal/certmanager"
	"github.com/opentrusty/pkibridge/internal/dogtag"
	"github.com/opentrusty/pkibridge/internal/observability/logger"
	"github.com/opentrusty/pkibridge/internal/pki"
	"github.com/opentrusty/pkibridge/internal/secretstore"
)

// maxBodyBytes bounds request bodies; secrets and CSRs are small
const maxBodyBytes = 1 << 20

// Broker is the subset of broker.Service the API exposes
type Broker interface {
	StoreSecret(ctx context.Context, dto *secretstore.SecretDTO) (*broker.Secret, error)
	GetSecret(ctx context.Context, id string, secretType secretstore.SecretType, transWrappedSessionKey string) (*secretstore.SecretDTO, error)
	DeleteSecret(ctx context.Context, id string) error
	GenerateSymmetricKey(ctx context.Context, spec secretstore.KeySpec) (*broker.Secret, error)
	GenerateAsymmetricKey(ctx context.Context, spec secretstore.KeySpec) (*broker.KeyPair, error)

	CreateOrder(ctx context.Context, meta certmanager.OrderMeta, reqCtx *certmanager.RequestContext) (*broker.Order, error)
	GetOrder(ctx context.Context, id string) (*broker.Order, error)
	CheckOrder(ctx context.Context, id string) (*broker.Order, error)
	CancelOrder(ctx context.Context, id string) (*broker.Order, error)
	ModifyOrder(ctx context.Context, id string, updates certmanager.OrderMeta, reqCtx *certmanager.RequestContext) (*broker.Order, error)
}

// Pinger reports dependency health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds HTTP handlers and dependencies
type Handler struct {
	broker      Broker
	db          Pinger
	auditLogger audit.Logger
	caName      string
}

// NewHandler creates a new HTTP handler. db may be nil.
func NewHandler(b Broker, db Pinger, auditLogger audit.Logger, caName string) *Handler {
	return &Handler{
		broker:      b,
		db:          db,
		auditLogger: auditLogger,
		caName:      caName,
	}
}

// RouterConfig holds router-level settings
type RouterConfig struct {
	Auth           AuthConfig
	RequestTimeout time.Duration

	// Authz defaults to the built-in role table
	Authz *authz.Service
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter, cfg RouterConfig) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.Authz == nil {
		cfg.Authz = authz.NewService()
	}
	can := func(permission string) func(http.Handler) http.Handler {
		return RequirePermission(cfg.Authz, permission, h.auditLogger)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Auth, h.auditLogger))

		r.Route("/secrets", func(r chi.Router) {
			r.With(can(authz.PermSecretStore)).Post("/", h.StoreSecret)
			r.With(can(authz.PermSecretRead)).Get("/{secretID}", h.GetSecret)
			r.With(can(authz.PermSecretDelete)).Delete("/{secretID}", h.DeleteSecret)
		})

		r.Route("/keys", func(r chi.Router) {
			r.Use(can(authz.PermKeyGenerate))
			r.Post("/symmetric", h.GenerateSymmetricKey)
			r.Post("/asymmetric", h.GenerateAsymmetricKey)
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(can(authz.PermOrderCreate)).Post("/", h.CreateOrder)
			r.With(can(authz.PermOrderRead)).Get("/{orderID}", h.GetOrder)
			r.Group(func(r chi.Router) {
				r.Use(can(authz.PermOrderManage))
				r.Put("/{orderID}", h.ModifyOrder)
				r.Post("/{orderID}/check", h.CheckOrder)
				r.Post("/{orderID}/cancel", h.CancelOrder)
			})
		})
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			slog.ErrorContext(r.Context(), "health check failed", logger.Component("database"), logger.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "pkibridge",
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "pkibridge",
		"ca":      h.caName,
	})
}

// respondBrokerError maps broker and plugin errors onto HTTP statuses
func respondBrokerError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		algErr     *secretstore.AlgorithmNotSupportedError
		unsupErr   *dogtag.NotSupportedError
		storeErr   *secretstore.GeneralError
		certErr    *certmanager.GeneralError
		status     int
		errorClass string
	)

	switch {
	case errors.Is(err, broker.ErrSecretNotFound), errors.Is(err, broker.ErrOrderNotFound):
		status, errorClass = http.StatusNotFound, "not_found"
	case errors.Is(err, broker.ErrInvalidSecretType),
		errors.Is(err, broker.ErrUnsupportedKeySpec),
		errors.Is(err, broker.ErrUnsupportedRequestType),
		errors.Is(err, broker.ErrUnsupportedCAType),
		errors.Is(err, dogtag.ErrAlgorithmInvalid),
		errors.As(err, &algErr):
		status, errorClass = http.StatusBadRequest, "unsupported"
	case errors.As(err, &unsupErr):
		status, errorClass = http.StatusNotImplemented, "not_implemented"
	case errors.Is(err, pki.ErrUnavailable):
		status, errorClass = http.StatusServiceUnavailable, "pki_unavailable"
	case errors.As(err, &storeErr), errors.As(err, &certErr), errors.Is(err, pki.ErrPKI):
		status, errorClass = http.StatusBadGateway, "pki_error"
	default:
		status, errorClass = http.StatusInternalServerError, "internal"
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request failed",
		logger.RequestID(middleware.GetReqID(r.Context())),
		logger.Path(r.URL.Path),
		logger.ErrorType(errorClass),
		logger.Error(err),
	)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	respondError(w, status, message)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
