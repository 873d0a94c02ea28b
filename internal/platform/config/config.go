package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration. FromEnv keeps main lean; every
// value has a development default so a bare `go run ./cmd/server` works.
type Server struct {
	Addr string
	// Node names this backend in logs and the oversight feed.
	Node string
	// States lists the electoral states hosted by this process. The demo
	// deployment hosts two cooperating states in one process; a production
	// deployment runs one per process with a shared registry.
	States []string

	// RedisURL enables the Redis-backed cross-state registry when set.
	RedisURL string
	// PostgresURL enables Postgres-backed ledger and voter stores when set.
	PostgresURL string

	// DuplicateDetectorURL and BiometricMatcherURL point at the external
	// verification services. Empty values fall back to the permissive stub
	// used for local development.
	DuplicateDetectorURL string
	BiometricMatcherURL  string
	// VerifierTimeout bounds every external verification call.
	VerifierTimeout time.Duration

	// KafkaBrokers enables the block oversight feed when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	JWTSigningKey string
	AdminUser     string
	// AdminPasswordHash is a bcrypt hash of the admin password.
	AdminPasswordHash string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:                 getenv("VOTERCHAIN_ADDR", ":8080"),
		Node:                 getenv("VOTERCHAIN_NODE", "node-1"),
		States:               split(getenv("VOTERCHAIN_STATES", "STATE_A,STATE_B")),
		RedisURL:             os.Getenv("VOTERCHAIN_REDIS_URL"),
		PostgresURL:          os.Getenv("VOTERCHAIN_POSTGRES_URL"),
		DuplicateDetectorURL: os.Getenv("VOTERCHAIN_DEDUP_URL"),
		BiometricMatcherURL:  os.Getenv("VOTERCHAIN_BIOMETRIC_URL"),
		VerifierTimeout:      5 * time.Second,
		KafkaBrokers:         split(os.Getenv("VOTERCHAIN_KAFKA_BROKERS")),
		KafkaTopic:           getenv("VOTERCHAIN_KAFKA_TOPIC", "voterchain.blocks"),
		JWTSigningKey:        getenv("VOTERCHAIN_JWT_KEY", "dev-secret-key-change-in-production"),
		AdminUser:            getenv("VOTERCHAIN_ADMIN_USER", "admin"),
		AdminPasswordHash:    os.Getenv("VOTERCHAIN_ADMIN_PASSWORD_HASH"),
	}
	if v := os.Getenv("VOTERCHAIN_VERIFIER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.VerifierTimeout = d
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func split(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
