package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Dogtag        DogtagConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
	RateLimit     RateLimitConfig
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DogtagConfig holds the CA/KRA connection and plugin settings
type DogtagConfig struct {
	Host                 string
	Port                 int
	PEMPath              string
	PKCS12Path           string
	PKCS12Password       string
	CABundle             string
	TransportCertPath    string
	SimpleCMCProfile     string
	AutoApprovedProfiles []string
	Timeout              time.Duration
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	OTELEndpoint   string
	OTELInsecure   bool
	ServiceName    string
	ServiceVersion string
}

// AuthConfig holds API bearer token settings
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout:   parseDuration("SERVER_WRITE_TIMEOUT", "90s"),
			IdleTimeout:    parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
			RequestTimeout: parseDuration("SERVER_REQUEST_TIMEOUT", "75s"),
		},
		Database: loadDatabase(),
		Dogtag: DogtagConfig{
			Host:                 getEnv("DOGTAG_HOST", "localhost"),
			Port:                 parseInt("DOGTAG_PORT", 8443),
			PEMPath:              getEnv("DOGTAG_PEM_PATH", ""),
			PKCS12Path:           getEnv("DOGTAG_PKCS12_PATH", ""),
			PKCS12Password:       getEnv("DOGTAG_PKCS12_PASSWORD", ""),
			CABundle:             getEnv("DOGTAG_CA_BUNDLE", ""),
			TransportCertPath:    getEnv("DOGTAG_TRANSPORT_CERT_PATH", ""),
			SimpleCMCProfile:     getEnv("DOGTAG_SIMPLE_CMC_PROFILE", ""),
			AutoApprovedProfiles: parseList("DOGTAG_AUTO_APPROVED_PROFILES", "caServerCert"),
			Timeout:              parseDuration("DOGTAG_TIMEOUT", "60s"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			OTELEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTELInsecure:   parseBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "pkibridge"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_JWT_ISSUER", ""),
			Audience:  getEnv("AUTH_JWT_AUDIENCE", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: parseFloat("RATELIMIT_RPS", 10),
			Burst:             parseInt("RATELIMIT_BURST", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadDatabase loads only the database settings. DB_PASSWORD is required.
func LoadDatabase() (*DatabaseConfig, error) {
	db := loadDatabase()
	if db.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	return &db, nil
}

func loadDatabase() DatabaseConfig {
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnv("DB_PORT", "5432"),
		User:            getEnv("DB_USER", "pkibridge"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "pkibridge"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	return c.Dogtag.Validate()
}

// Validate checks the CA/KRA connection settings on their own, for commands
// that do not need the rest of the configuration.
func (c *DogtagConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("DOGTAG_HOST is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("DOGTAG_PORT %d is out of range", c.Port)
	}
	switch {
	case c.PEMPath == "" && c.PKCS12Path == "":
		return fmt.Errorf("one of DOGTAG_PEM_PATH or DOGTAG_PKCS12_PATH is required")
	case c.PEMPath != "" && c.PKCS12Path != "":
		return fmt.Errorf("DOGTAG_PEM_PATH and DOGTAG_PKCS12_PATH are mutually exclusive")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}

// parseList splits a comma separated value, dropping blanks
func parseList(key, defaultValue string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, defaultValue), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
