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

package main

import (
	"context"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/opentrusty/pkibridge/internal/audit"
	"github.com/opentrusty/pkibridge/internal/authz"
	"github.com/opentrusty/pkibridge/internal/broker"
	"github.com/opentrusty/pkibridge/internal/config"
	"github.com/opentrusty/pkibridge/internal/dogtag"
	"github.com/opentrusty/pkibridge/internal/observability/logger"
	"github.com/opentrusty/pkibridge/internal/observability/metrics"
	"github.com/opentrusty/pkibridge/internal/observability/tracing"
	"github.com/opentrusty/pkibridge/internal/pki"
	"github.com/opentrusty/pkibridge/internal/store/postgres"
	transportHTTP "github.com/opentrusty/pkibridge/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting pkibridge")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
		Endpoint:       cfg.Observability.OTELEndpoint,
		Insecure:       cfg.Observability.OTELInsecure,
		DogtagHost:     cfg.Dogtag.Host,
		CAName:         dogtag.DefaultCAName,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	} else {
		defer func() {
			if err := tracer.Shutdown(context.Background()); err != nil {
				slog.Error("tracer shutdown error", logger.Error(err))
			}
		}()
	}

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}
	var instruments *metrics.Instruments
	if meter != nil {
		if instruments, err = metrics.NewInstruments(meter); err != nil {
			slog.Error("failed to create instruments", logger.Error(err))
		}
	}

	// Initialize database
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	// Connect to the Dogtag subsystems
	caConn, err := pki.NewConnection(pkiConfig(cfg, pki.SubsystemCA))
	if err != nil {
		slog.Error("failed to configure CA connection", logger.Component("pki"), logger.Error(err))
		os.Exit(1)
	}
	kraConn, err := pki.NewConnection(pkiConfig(cfg, pki.SubsystemKRA))
	if err != nil {
		slog.Error("failed to configure KRA connection", logger.Component("pki"), logger.Error(err))
		os.Exit(1)
	}

	transportCert, err := loadTransportCert(ctx, cfg, kraConn)
	if err != nil {
		slog.Error("failed to load KRA transport certificate", logger.Component("pki"), logger.Error(err))
		os.Exit(1)
	}
	slog.Info("loaded KRA transport certificate",
		logger.Component("pki"),
		slog.String("subject", transportCert.Subject.String()),
	)

	// Initialize plugins
	secretStore := dogtag.NewKRAPlugin(pki.NewKeyClient(kraConn), transportCert)
	certPlugin := dogtag.NewCAPlugin(pki.NewCertClient(caConn), dogtag.CAConfig{
		SimpleCMCProfile:     cfg.Dogtag.SimpleCMCProfile,
		AutoApprovedProfiles: cfg.Dogtag.AutoApprovedProfiles,
	})

	// Initialize services
	auditLogger := audit.NewSlogLogger(log)
	brokerService := broker.NewService(
		secretStore,
		certPlugin,
		postgres.NewSecretRepository(db),
		postgres.NewOrderRepository(db),
		auditLogger,
		instruments,
	)

	// Initialize HTTP handler
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Stop()

	handler := transportHTTP.NewHandler(brokerService, db, auditLogger, certPlugin.DefaultCAName())
	router := transportHTTP.NewRouter(handler, rateLimiter, transportHTTP.RouterConfig{
		Auth: transportHTTP.AuthConfig{
			Secret:   []byte(cfg.Auth.JWTSecret),
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
		},
		RequestTimeout: cfg.Server.RequestTimeout,
		Authz:          authz.NewService(),
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server listening", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// In-flight plugin calls may be waiting on the CA
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func openDatabase(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	return postgres.New(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
}

func pkiConfig(cfg *config.Config, subsystem string) pki.Config {
	return pki.Config{
		Host:           cfg.Dogtag.Host,
		Port:           strconv.Itoa(cfg.Dogtag.Port),
		Subsystem:      subsystem,
		PEMPath:        cfg.Dogtag.PEMPath,
		PKCS12Path:     cfg.Dogtag.PKCS12Path,
		PKCS12Password: cfg.Dogtag.PKCS12Password,
		CABundlePath:   cfg.Dogtag.CABundle,
		Timeout:        cfg.Dogtag.Timeout,
	}
}

// loadTransportCert prefers a pinned file over asking the KRA
func loadTransportCert(ctx context.Context, cfg *config.Config, kraConn *pki.Connection) (*x509.Certificate, error) {
	if cfg.Dogtag.TransportCertPath != "" {
		return pki.LoadCertificateFile(cfg.Dogtag.TransportCertPath)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, cfg.Dogtag.Timeout)
	defer cancel()
	return pki.NewSystemCertClient(kraConn).GetTransportCert(fetchCtx)
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Applying migrations...")
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}
