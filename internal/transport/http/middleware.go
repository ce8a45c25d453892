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
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/opentrusty/pkibridge/internal/audit"
	"github.com/opentrusty/pkibridge/internal/authz"
	"github.com/opentrusty/pkibridge/internal/broker"
	"github.com/opentrusty/pkibridge/internal/observability/logger"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// AuthConfig configures bearer token validation
type AuthConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
}

// Claims are the bearer token claims the API reads
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// AuthMiddleware validates an HS256 bearer token and puts its subject and
// roles in the request context.
func AuthMiddleware(cfg AuthConfig, auditLogger audit.Logger) func(http.Handler) http.Handler {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)
	keyFunc := func(*jwt.Token) (any, error) { return cfg.Secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="pkibridge"`)
				respondError(w, http.StatusUnauthorized, "bearer token required")
				return
			}

			claims := &Claims{}
			if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil || claims.Subject == "" {
				slog.WarnContext(r.Context(), "rejected bearer token",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.RemoteAddr(r.RemoteAddr),
					logger.Error(err),
				)
				auditLogger.Log(r.Context(), audit.Event{
					Type:      audit.TypeAuthenticationFail,
					Resource:  r.URL.Path,
					Outcome:   "failure",
					IPAddress: getClientIP(r),
					UserAgent: r.UserAgent(),
				})
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				respondError(w, http.StatusUnauthorized, "invalid bearer token")
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
			ctx = context.WithValue(ctx, rolesKey, claims.Roles)
			ctx = broker.ContextWithActor(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission rejects requests whose token roles do not grant permission
func RequirePermission(authzService *authz.Service, permission string, auditLogger audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := authzService.Require(r.Context(), GetRoles(r.Context()), permission); err != nil {
				slog.WarnContext(r.Context(), "permission denied",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Subject(GetSubject(r.Context())),
					logger.Operation(permission),
				)
				auditLogger.Log(r.Context(), audit.Event{
					Type:      audit.TypeAccessDenied,
					ActorID:   GetSubject(r.Context()),
					Resource:  r.URL.Path,
					Outcome:   "failure",
					Metadata:  map[string]any{"permission": permission},
					IPAddress: getClientIP(r),
					UserAgent: r.UserAgent(),
				})
				respondError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
