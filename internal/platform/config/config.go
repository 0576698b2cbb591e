// Package config loads process configuration from the environment once at
// startup. The resulting structs are treated as immutable; policy changes are
// a deployment event, not an API call.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the top-level process configuration.
type Config struct {
	Addr        string
	Environment string
	LogLevel    string

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Privacy  PrivacyConfig
	Cleanup  CleanupConfig
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis client configuration.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds Kafka producer configuration.
type KafkaConfig struct {
	Brokers         string
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
	AuditTopic      string
	DeletionTopic   string
	HaltTopic       string
}

// ControllerIdentity describes the data controller published in access
// exports and compliance reports.
type ControllerIdentity struct {
	Name               string
	RegistrationNumber string
	Address            string
	ContactEmail       string
	DPOEmail           string
}

// PrivacyConfig holds the retention and deadline policy knobs.
type PrivacyConfig struct {
	Controller ControllerIdentity

	ConsentValidityMonths     int
	ResponseDeadlineDays      int
	AuditLogRetentionMonths   int
	InactivityThresholdMonths int
	ConsentTermsVersion       string

	// ErasureTables lists application tables holding subject-keyed personal
	// data outside the privacy schema; erasure deletes from each by subject_id.
	ErasureTables []string
}

// CleanupConfig controls the periodic cleanup trigger.
type CleanupConfig struct {
	Interval    time.Duration
	HookTimeout time.Duration
}

// FromEnv builds the configuration from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Addr:        envString("ZYKOR_ADDR", ":8080"),
		Environment: envString("ZYKOR_ENV", "development"),
		LogLevel:    envString("ZYKOR_LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			URL:             os.Getenv("ZYKOR_DATABASE_URL"),
			MaxOpenConns:    envInt("ZYKOR_DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("ZYKOR_DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("ZYKOR_DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("ZYKOR_REDIS_URL"),
			PoolSize:     envInt("ZYKOR_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("ZYKOR_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("ZYKOR_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("ZYKOR_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("ZYKOR_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:         os.Getenv("ZYKOR_KAFKA_BROKERS"),
			Acks:            envString("ZYKOR_KAFKA_ACKS", "all"),
			Retries:         envInt("ZYKOR_KAFKA_RETRIES", 3),
			DeliveryTimeout: envDuration("ZYKOR_KAFKA_DELIVERY_TIMEOUT", 30*time.Second),
			AuditTopic:      envString("ZYKOR_KAFKA_AUDIT_TOPIC", "privacy.audit"),
			DeletionTopic:   envString("ZYKOR_KAFKA_DELETION_TOPIC", "privacy.deletions"),
			HaltTopic:       envString("ZYKOR_KAFKA_HALT_TOPIC", "privacy.halts"),
		},
		Privacy: PrivacyConfig{
			Controller: ControllerIdentity{
				Name:               envString("ZYKOR_CONTROLLER_NAME", "Zykor Tecnologia Ltda"),
				RegistrationNumber: envString("ZYKOR_CONTROLLER_REGISTRATION", "00.000.000/0001-00"),
				Address:            envString("ZYKOR_CONTROLLER_ADDRESS", "São Paulo, SP"),
				ContactEmail:       envString("ZYKOR_CONTROLLER_EMAIL", "privacidade@zykor.com.br"),
				DPOEmail:           envString("ZYKOR_DPO_EMAIL", "dpo@zykor.com.br"),
			},
			ConsentValidityMonths:     envInt("ZYKOR_CONSENT_VALIDITY_MONTHS", 24),
			ResponseDeadlineDays:      envInt("ZYKOR_RESPONSE_DEADLINE_DAYS", 15),
			AuditLogRetentionMonths:   envInt("ZYKOR_AUDIT_RETENTION_MONTHS", 60),
			InactivityThresholdMonths: envInt("ZYKOR_INACTIVITY_THRESHOLD_MONTHS", 36),
			ConsentTermsVersion:       envString("ZYKOR_CONSENT_TERMS_VERSION", "1.0"),
			ErasureTables:             envList("ZYKOR_ERASURE_TABLES"),
		},
		Cleanup: CleanupConfig{
			Interval:    envDuration("ZYKOR_CLEANUP_INTERVAL", 24*time.Hour),
			HookTimeout: envDuration("ZYKOR_CLEANUP_HOOK_TIMEOUT", 2*time.Minute),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
