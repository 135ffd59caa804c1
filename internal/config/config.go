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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	GrantStore    GrantStoreConfig
	OIDC          OIDCConfig
	Observability ObservabilityConfig
	Security      SecurityConfig
	RateLimit     RateLimitConfig
	Session       SessionConfig
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database configuration for the two durable
// entities this core persists: Application (client) and User.
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

// GrantStoreConfig points at the Redis instance backing C2 (spec §4.2):
// auth codes, refresh-token records, the revocation blacklist, OIDC
// session context, and email-verification tokens.
type GrantStoreConfig struct {
	Addr     string
	Password string
	DB       int
}

// OIDCConfig carries the protocol-level configuration enumerated in
// spec §6: the issuer identity, the HS256 signing key, and every TTL the
// core's components are parameterized on.
type OIDCConfig struct {
	IssuerURL                string
	JWTSecretKey             string
	AccessTokenExpiration    time.Duration
	RefreshTokenExpiration   time.Duration
	IDTokenExpiration        time.Duration
	AuthCodeTTL              time.Duration
	EmailVerificationTTL     time.Duration
	IssueIDTokenOnRefresh    bool
	LoginSessionCookieLookup bool
	LoginRedirectURL         string
}

// SessionConfig configures the ambient login-session cookie (spec §9
// design note): its absolute lifetime, idle timeout, and cookie
// attributes. Distinct from OIDCConfig's TTLs, which govern the protocol
// grant, not the login surface sitting in front of it.
type SessionConfig struct {
	Lifetime       time.Duration
	IdleTimeout    time.Duration
	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite string
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	Argon2Memory       uint32
	Argon2Iterations   uint32
	Argon2Parallelism  uint8
	Argon2SaltLength   uint32
	Argon2KeyLength    uint32
	LockoutMaxAttempts int
	LockoutDuration    time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "opentrusty"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "opentrusty"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		GrantStore: GrantStoreConfig{
			Addr:     getEnv("GRANTSTORE_ADDR", "localhost:6379"),
			Password: getEnv("GRANTSTORE_PASSWORD", ""),
			DB:       parseInt("GRANTSTORE_DB", 0),
		},
		OIDC: OIDCConfig{
			IssuerURL:              getEnv("ISSUER_URL", "http://localhost:8080"),
			JWTSecretKey:           getEnv("JWT_SECRET_KEY", ""),
			AccessTokenExpiration:  parseDuration("ACCESS_TOKEN_EXPIRATION", "1h"),
			RefreshTokenExpiration: parseDuration("REFRESH_TOKEN_EXPIRATION", "720h"),
			IDTokenExpiration:      parseDuration("ID_TOKEN_EXPIRATION", "1h"),
			AuthCodeTTL:            time.Duration(parseInt("AUTH_CODE_TTL", 60)) * time.Second,
			EmailVerificationTTL:   time.Duration(parseInt("EMAIL_VERIFICATION_TTL", 86400)) * time.Second,
			IssueIDTokenOnRefresh:  parseBool("ISSUE_ID_TOKEN_ON_REFRESH", false),
			LoginRedirectURL:       getEnv("LOGIN_REDIRECT_URL", "http://localhost:8080/auth/login"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "opentrusty"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
		Security: SecurityConfig{
			Argon2Memory:       uint32(parseInt("ARGON2_MEMORY", 65536)),
			Argon2Iterations:   uint32(parseInt("ARGON2_ITERATIONS", 3)),
			Argon2Parallelism:  uint8(parseInt("ARGON2_PARALLELISM", 2)),
			Argon2SaltLength:   uint32(parseInt("ARGON2_SALT_LENGTH", 16)),
			Argon2KeyLength:    uint32(parseInt("ARGON2_KEY_LENGTH", 32)),
			LockoutMaxAttempts: parseInt("SECURITY_LOCKOUT_MAX_ATTEMPTS", 5),
			LockoutDuration:    parseDuration("SECURITY_LOCKOUT_DURATION", "15m"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: float64(parseInt("RATELIMIT_RPS", 10)),
			Burst:             parseInt("RATELIMIT_BURST", 20),
		},
		Session: SessionConfig{
			Lifetime:       parseDuration("SESSION_LIFETIME", "720h"),
			IdleTimeout:    parseDuration("SESSION_IDLE_TIMEOUT", "24h"),
			CookieName:     getEnv("SESSION_COOKIE_NAME", "session_id"),
			CookieDomain:   getEnv("SESSION_COOKIE_DOMAIN", ""),
			CookiePath:     getEnv("SESSION_COOKIE_PATH", "/"),
			CookieSecure:   parseBool("SESSION_COOKIE_SECURE", true),
			CookieHTTPOnly: parseBool("SESSION_COOKIE_HTTPONLY", true),
			CookieSameSite: getEnv("SESSION_COOKIE_SAMESITE", "Lax"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.OIDC.JWTSecretKey == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if len(c.OIDC.JWTSecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 bytes")
	}
	return nil
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
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}
