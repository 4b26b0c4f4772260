package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode represents the deployment mode of the service
type Mode string

const (
	ModeAllInOne Mode = "all-in-one"
	ModeReceiver Mode = "receiver"
	ModeWorker   Mode = "worker"
)

// QueueType represents the type of message queue to use
type QueueType string

const (
	QueueTypeInMemory QueueType = "inmemory"
	QueueTypeRedis    QueueType = "redis"
	QueueTypePubSub   QueueType = "pubsub"
)

// StorageType represents the type of storage backend to use
type StorageType string

const (
	StorageTypeGCS    StorageType = "gcs"
	StorageTypeMinio  StorageType = "minio"
	StorageTypeMemory StorageType = "memory"
)

const (
	DefaultHeaderName   = "Stripe-Signature"
	DefaultTolerance    = 5 * time.Minute
	DefaultMaxBodyBytes = 65536
)

// Config holds all configuration for the webhooksig service
type Config struct {
	// Port for the HTTP server
	Port int

	// Queue configuration
	Queue QueueConfig

	// Storage configuration
	Storage StorageConfig

	// Verification configuration
	Verification VerificationConfig
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Type QueueType

	// Redis configuration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string

	// Pub/Sub configuration
	PubSubProjectID    string
	PubSubTopicID      string
	PubSubSubscription string
}

// StorageConfig holds storage backend configuration
type StorageConfig struct {
	Type StorageType

	// GCS configuration
	GCSBucket string

	// MinIO configuration
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
}

// VerificationConfig controls how incoming deliveries are checked
type VerificationConfig struct {
	// Secrets are tried in order; more than one allows rotation
	Secrets []string

	// Disabled skips signature checks entirely (dev only)
	Disabled bool

	// Tolerance is the allowed clock skew for the signed timestamp; 0 disables the check
	Tolerance time.Duration

	HeaderName   string
	MaxBodyBytes int64
}

// Load loads configuration from environment variables for the specified mode
func Load(mode Mode) (*Config, error) {
	if err := validateMode(mode); err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Port (optional, default 8080)
	port, err := strconv.Atoi(getEnv("WEBHOOKSIG_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOKSIG_PORT: %w", err)
	}
	cfg.Port = port

	switch mode {
	case ModeAllInOne:
		if err := cfg.loadAllInOneConfig(mode); err != nil {
			return nil, err
		}
	case ModeReceiver:
		if err := cfg.loadReceiverConfig(mode); err != nil {
			return nil, err
		}
	case ModeWorker:
		if err := cfg.loadWorkerConfig(mode); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadAllInOneConfig loads config for all-in-one mode
func (c *Config) loadAllInOneConfig(mode Mode) error {
	// in-memory by default, but can use Redis/Pub/Sub
	queueType := getEnv("WEBHOOKSIG_QUEUE_TYPE", string(QueueTypeInMemory))
	c.Queue.Type = QueueType(queueType)

	switch c.Queue.Type {
	case QueueTypeInMemory:
	case QueueTypeRedis:
		if err := c.loadRedisConfig(); err != nil {
			return err
		}
	case QueueTypePubSub:
		if err := c.loadPubSubConfig(mode); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid queue type: %s", queueType)
	}

	if err := c.loadStorageConfig(string(StorageTypeMemory)); err != nil {
		return err
	}

	return c.loadVerificationConfig()
}

// loadReceiverConfig loads config for receiver mode
func (c *Config) loadReceiverConfig(mode Mode) error {
	if err := c.loadExternalQueue(mode); err != nil {
		return err
	}
	return c.loadVerificationConfig()
}

// loadWorkerConfig loads config for worker mode
func (c *Config) loadWorkerConfig(mode Mode) error {
	if err := c.loadExternalQueue(mode); err != nil {
		return err
	}
	return c.loadStorageConfig("")
}

// loadExternalQueue loads a queue that can be shared between processes
func (c *Config) loadExternalQueue(mode Mode) error {
	queueType := getEnv("WEBHOOKSIG_QUEUE_TYPE", "")
	if queueType == "" {
		return fmt.Errorf("WEBHOOKSIG_QUEUE_TYPE is required in %s mode", mode)
	}
	c.Queue.Type = QueueType(queueType)

	switch c.Queue.Type {
	case QueueTypeRedis:
		return c.loadRedisConfig()
	case QueueTypePubSub:
		return c.loadPubSubConfig(mode)
	default:
		return fmt.Errorf("invalid queue type for %s: %s (must be redis or pubsub)", mode, queueType)
	}
}

// loadRedisConfig loads Redis queue configuration
func (c *Config) loadRedisConfig() error {
	c.Queue.RedisAddr = getEnv("WEBHOOKSIG_REDIS_ADDR", "localhost:6379")
	c.Queue.RedisPassword = getEnv("WEBHOOKSIG_REDIS_PASSWORD", "")

	redisDB, err := strconv.Atoi(getEnv("WEBHOOKSIG_REDIS_DB", "0"))
	if err != nil {
		return fmt.Errorf("invalid WEBHOOKSIG_REDIS_DB: %w", err)
	}
	c.Queue.RedisDB = redisDB
	c.Queue.RedisStream = getEnv("WEBHOOKSIG_REDIS_STREAM", "webhooksig-events")

	return nil
}

// loadPubSubConfig loads Pub/Sub queue configuration
func (c *Config) loadPubSubConfig(mode Mode) error {
	c.Queue.PubSubProjectID = getEnv("WEBHOOKSIG_PUBSUB_PROJECT_ID", "")
	if c.Queue.PubSubProjectID == "" {
		return fmt.Errorf("WEBHOOKSIG_PUBSUB_PROJECT_ID is required for pubsub queue")
	}

	c.Queue.PubSubTopicID = getEnv("WEBHOOKSIG_PUBSUB_TOPIC_ID", "webhooksig-events")

	// the receiver only publishes
	if mode == ModeWorker || mode == ModeAllInOne {
		c.Queue.PubSubSubscription = getEnv("WEBHOOKSIG_PUBSUB_SUBSCRIPTION", "")
		if c.Queue.PubSubSubscription == "" {
			return fmt.Errorf("WEBHOOKSIG_PUBSUB_SUBSCRIPTION is required for worker/all-in-one mode")
		}
	}

	return nil
}

// loadStorageConfig loads storage backend configuration
func (c *Config) loadStorageConfig(defaultType string) error {
	storageType := getEnv("WEBHOOKSIG_STORAGE_TYPE", defaultType)
	if storageType == "" {
		return fmt.Errorf("WEBHOOKSIG_STORAGE_TYPE is required")
	}
	c.Storage.Type = StorageType(storageType)

	switch c.Storage.Type {
	case StorageTypeMemory:
	case StorageTypeGCS:
		c.Storage.GCSBucket = getEnv("WEBHOOKSIG_GCS_BUCKET", "")
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("WEBHOOKSIG_GCS_BUCKET is required for gcs storage")
		}
	case StorageTypeMinio:
		c.Storage.MinIOEndpoint = getEnv("WEBHOOKSIG_MINIO_ENDPOINT", "")
		if c.Storage.MinIOEndpoint == "" {
			return fmt.Errorf("WEBHOOKSIG_MINIO_ENDPOINT is required for minio storage")
		}
		c.Storage.MinIOAccessKey = getEnv("WEBHOOKSIG_MINIO_ACCESS_KEY", "")
		if c.Storage.MinIOAccessKey == "" {
			return fmt.Errorf("WEBHOOKSIG_MINIO_ACCESS_KEY is required for minio storage")
		}
		c.Storage.MinIOSecretKey = getEnv("WEBHOOKSIG_MINIO_SECRET_KEY", "")
		if c.Storage.MinIOSecretKey == "" {
			return fmt.Errorf("WEBHOOKSIG_MINIO_SECRET_KEY is required for minio storage")
		}
		c.Storage.MinIOBucket = getEnv("WEBHOOKSIG_MINIO_BUCKET", "webhooksig-events")
		c.Storage.MinIOUseSSL = getEnv("WEBHOOKSIG_MINIO_USE_SSL", "false") == "true"
	default:
		return fmt.Errorf("invalid storage type: %s", storageType)
	}

	return nil
}

// loadVerificationConfig loads signature verification settings
func (c *Config) loadVerificationConfig() error {
	v := &c.Verification

	v.Disabled = getEnv("WEBHOOKSIG_DISABLE_VERIFICATION", "false") == "true"

	// Comma-separated with no escaping, so a secret cannot contain ",".
	for _, s := range strings.Split(getEnv("WEBHOOKSIG_SECRETS", ""), ",") {
		if s = strings.TrimSpace(s); s != "" {
			v.Secrets = append(v.Secrets, s)
		}
	}
	if !v.Disabled && len(v.Secrets) == 0 {
		return fmt.Errorf("WEBHOOKSIG_SECRETS is required when verification is enabled")
	}

	tolerance, err := time.ParseDuration(getEnv("WEBHOOKSIG_TOLERANCE", DefaultTolerance.String()))
	if err != nil {
		return fmt.Errorf("invalid WEBHOOKSIG_TOLERANCE: %w", err)
	}
	if tolerance < 0 {
		return fmt.Errorf("invalid WEBHOOKSIG_TOLERANCE: %s (must not be negative)", tolerance)
	}
	v.Tolerance = tolerance

	v.HeaderName = getEnv("WEBHOOKSIG_HEADER_NAME", DefaultHeaderName)

	maxBody, err := strconv.ParseInt(getEnv("WEBHOOKSIG_MAX_BODY_BYTES", strconv.Itoa(DefaultMaxBodyBytes)), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid WEBHOOKSIG_MAX_BODY_BYTES: %w", err)
	}
	if maxBody <= 0 {
		return fmt.Errorf("invalid WEBHOOKSIG_MAX_BODY_BYTES: %d (must be positive)", maxBody)
	}
	v.MaxBodyBytes = maxBody

	return nil
}

// validateMode validates that the mode is valid
func validateMode(mode Mode) error {
	switch mode {
	case ModeAllInOne, ModeReceiver, ModeWorker:
		return nil
	default:
		return fmt.Errorf("invalid mode: %s (must be all-in-one, receiver, or worker)", mode)
	}
}

// Validate validates the complete configuration for the specified mode
func (c *Config) Validate(mode Mode) error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be between 1 and 65535)", c.Port)
	}

	if c.Queue.Type == "" {
		return fmt.Errorf("queue type is required")
	}

	switch mode {
	case ModeAllInOne:
		if c.Storage.Type == "" {
			return fmt.Errorf("storage type is required")
		}
		if !c.Verification.Disabled && len(c.Verification.Secrets) == 0 {
			return fmt.Errorf("at least one secret is required")
		}

	case ModeReceiver:
		if c.Queue.Type == QueueTypeInMemory {
			return fmt.Errorf("in-memory queue cannot be used in receiver mode")
		}
		if !c.Verification.Disabled && len(c.Verification.Secrets) == 0 {
			return fmt.Errorf("at least one secret is required")
		}

	case ModeWorker:
		if c.Queue.Type == QueueTypeInMemory {
			return fmt.Errorf("in-memory queue cannot be used in worker mode")
		}
		if c.Storage.Type == "" {
			return fmt.Errorf("storage type is required")
		}
		// a separate worker process has nothing to share memory storage with
		if c.Storage.Type == StorageTypeMemory {
			return fmt.Errorf("memory storage cannot be used in worker mode")
		}
	}

	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
