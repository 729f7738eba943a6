// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Handshake authentication modes.
const (
	AuthVerify = "verify"
	AuthTrust  = "trust"
)

const minProductionSecret = 32

type Config struct {
	Port           string
	GRPCHealthPort string
	Env            string

	StoreDriver   string
	MongoURI      string
	MongoDatabase string
	PostgresDSN   string

	JWTSecret string

	WSAuthMode        string
	WSPingInterval    time.Duration
	WSPongTimeout     time.Duration
	WSEventsPerSecond float64
	AllowedOrigins    []string

	AMQPURL      string
	AMQPExchange string

	RedisAddr     string
	RedisPassword string

	OTLPEndpoint string
	DebugRoutes  bool
}

// Load reads .env.local and .env when present, then the process environment.
func Load() Config {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	return Config{
		Port:              getEnv("PORT", "8083"),
		GRPCHealthPort:    getEnv("GRPC_HEALTH_PORT", "9083"),
		Env:               getEnv("APP_ENV", "development"),
		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", DriverMongo)),
		MongoURI:          getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:     getEnv("MONGODB_DATABASE", "todo_chat"),
		PostgresDSN:       getEnv("DB_DSN", ""),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		WSAuthMode:        strings.ToLower(getEnv("WS_AUTH_MODE", AuthVerify)),
		WSPingInterval:    getDuration("WS_PING_INTERVAL", 25*time.Second),
		WSPongTimeout:     getDuration("WS_PONG_TIMEOUT", 60*time.Second),
		WSEventsPerSecond: getFloat("WS_EVENTS_PER_SECOND", 20),
		AllowedOrigins:    splitList(getEnv("ALLOWED_ORIGINS", "")),
		AMQPURL:           getEnv("AMQP_URL", ""),
		AMQPExchange:      getEnv("AMQP_EXCHANGE", "chat.events"),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		OTLPEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		DebugRoutes:       getBool("DEBUG_ROUTES", false),
	}
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate rejects settings the service must not start with.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			errs = append(errs, errors.New("MONGODB_URI and MONGODB_DATABASE are required for the mongo store"))
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("DB_DSN is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if c.IsProduction() && len(c.JWTSecret) < minProductionSecret {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters in production", minProductionSecret))
	}

	switch c.WSAuthMode {
	case AuthVerify:
	case AuthTrust:
		if c.IsProduction() {
			errs = append(errs, errors.New("WS_AUTH_MODE=trust is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown WS_AUTH_MODE %q", c.WSAuthMode))
	}

	if c.WSPingInterval <= 0 || c.WSPongTimeout <= c.WSPingInterval {
		errs = append(errs, errors.New("WS_PONG_TIMEOUT must exceed WS_PING_INTERVAL"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return d
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil && f > 0 {
		return f
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return b
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
