package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	DatabaseURL          string
	ServiceName          string
	PortalBaseURL        string
	LinkTokenBytes       int
	LinkDefaultTTL       time.Duration
	OTPLength            int
	OTPTTL               time.Duration
	OTPMaxAttempts       int
	OTPSendsPerHour      int
	SessionSigningSecret string
	SessionTTL           time.Duration
	OTPSessionTTL        time.Duration
	ResourceBaseURL      string
	UseMockResource      bool
	FanoutRetry          bool
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		ServiceName:          getEnv("SERVICE_NAME", "archject-portal-access"),
		PortalBaseURL:        getEnv("PORTAL_BASE_URL", "https://app.archject.com"),
		LinkTokenBytes:       getInt("LINK_TOKEN_BYTES", 32),
		LinkDefaultTTL:       getDuration("LINK_DEFAULT_TTL", 30*24*time.Hour),
		OTPLength:            getInt("OTP_LENGTH", 6),
		OTPTTL:               getDuration("OTP_TTL", 5*time.Minute),
		OTPMaxAttempts:       getInt("OTP_MAX_ATTEMPTS", 5),
		OTPSendsPerHour:      getInt("OTP_RATE_LIMIT_PER_HOUR", 5),
		SessionSigningSecret: os.Getenv("SESSION_SIGNING_SECRET"),
		SessionTTL:           getDuration("SESSION_TTL", 12*time.Hour),
		OTPSessionTTL:        getDuration("OTP_SESSION_TTL", 15*time.Minute),
		ResourceBaseURL:      getEnv("RESOURCE_BASE_URL", ""),
		UseMockResource:      getBool("USE_MOCK_RESOURCE", false),
		FanoutRetry:          getBool("FANOUT_RETRY", false),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SessionSigningSecret == "" {
		return Config{}, fmt.Errorf("SESSION_SIGNING_SECRET is required")
	}

	if cfg.LinkTokenBytes < 32 {
		cfg.LinkTokenBytes = 32
	}
	if cfg.OTPLength < 4 {
		cfg.OTPLength = 4
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
