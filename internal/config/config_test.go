package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupEnv blanks every WEBHOOKSIG_ variable from the ambient environment and
// applies envVars for the duration of the test.
func setupEnv(t *testing.T, envVars map[string]string) {
	t.Helper()

	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "WEBHOOKSIG_") {
			t.Setenv(key, "")
		}
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}
}

func TestLoad_InvalidMode(t *testing.T) {
	setupEnv(t, nil)

	cfg, err := Load("invalid-mode")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid mode")
}

func TestLoad_InvalidPort(t *testing.T) {
	setupEnv(t, map[string]string{
		"WEBHOOKSIG_PORT":    "not-a-number",
		"WEBHOOKSIG_SECRETS": "whsec_test",
	})

	cfg, err := Load(ModeAllInOne)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid WEBHOOKSIG_PORT")
}

func TestLoad_AllInOneMode_Defaults(t *testing.T) {
	setupEnv(t, map[string]string{
		"WEBHOOKSIG_SECRETS": "whsec_test",
	})

	cfg, err := Load(ModeAllInOne)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, QueueTypeInMemory, cfg.Queue.Type)
	assert.Equal(t, StorageTypeMemory, cfg.Storage.Type)
	assert.Equal(t, []string{"whsec_test"}, cfg.Verification.Secrets)
	assert.False(t, cfg.Verification.Disabled)
	assert.Equal(t, 5*time.Minute, cfg.Verification.Tolerance)
	assert.Equal(t, "Stripe-Signature", cfg.Verification.HeaderName)
	assert.Equal(t, int64(65536), cfg.Verification.MaxBodyBytes)
}

func TestLoad_AllInOneMode_Success(t *testing.T) {
	setupEnv(t, map[string]string{
		"WEBHOOKSIG_PORT":             "9000",
		"WEBHOOKSIG_QUEUE_TYPE":       "inmemory",
		"WEBHOOKSIG_STORAGE_TYPE":     "minio",
		"WEBHOOKSIG_MINIO_ENDPOINT":   "localhost:9000",
		"WEBHOOKSIG_MINIO_ACCESS_KEY": "minioadmin",
		"WEBHOOKSIG_MINIO_SECRET_KEY": "minioadmin",
		"WEBHOOKSIG_MINIO_BUCKET":     "events",
		"WEBHOOKSIG_SECRETS":          "whsec_new, whsec_old",
		"WEBHOOKSIG_TOLERANCE":        "30s",
		"WEBHOOKSIG_HEADER_NAME":      "X-Signature",
		"WEBHOOKSIG_MAX_BODY_BYTES":   "1024",
	})

	cfg, err := Load(ModeAllInOne)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, StorageTypeMinio, cfg.Storage.Type)
	assert.Equal(t, "localhost:9000", cfg.Storage.MinIOEndpoint)
	assert.Equal(t, "events", cfg.Storage.MinIOBucket)
	assert.False(t, cfg.Storage.MinIOUseSSL)
	assert.Equal(t, []string{"whsec_new", "whsec_old"}, cfg.Verification.Secrets)
	assert.Equal(t, 30*time.Second, cfg.Verification.Tolerance)
	assert.Equal(t, "X-Signature", cfg.Verification.HeaderName)
	assert.Equal(t, int64(1024), cfg.Verification.MaxBodyBytes)
}

func TestLoad_AllInOneMode_WithRedis(t *testing.T) {
	setupEnv(t, map[string]string{
		"WEBHOOKSIG_QUEUE_TYPE":     "redis",
		"WEBHOOKSIG_REDIS_ADDR":     "redis:6379",
		"WEBHOOKSIG_REDIS_PASSWORD": "password",
		"WEBHOOKSIG_REDIS_DB":       "1",
		"WEBHOOKSIG_REDIS_STREAM":   "my-stream",
		"WEBHOOKSIG_SECRETS":        "whsec_test",
	})

	cfg, err := Load(ModeAllInOne)
	require.NoError(t, err)

	assert.Equal(t, QueueTypeRedis, cfg.Queue.Type)
	assert.Equal(t, "redis:6379", cfg.Queue.RedisAddr)
	assert.Equal(t, "password", cfg.Queue.RedisPassword)
	assert.Equal(t, 1, cfg.Queue.RedisDB)
	assert.Equal(t, "my-stream", cfg.Queue.RedisStream)
}

func TestLoad_AllInOneMode_WithPubSub(t *testing.T) {
	setupEnv(t, map[string]string{
		"WEBHOOKSIG_QUEUE_TYPE":          "pubsub",
		"WEBHOOKSIG_PUBSUB_PROJECT_ID":   "my-project",
		"WEBHOOKSIG_PUBSUB_TOPIC_ID":     "my-topic",
		"WEBHOOKSIG_PUBSUB_SUBSCRIPTION": "my-subscription",
		"WEBHOOKSIG_STORAGE_TYPE":        "gcs",
		"WEBHOOKSIG_GCS_BUCKET":          "my-bucket",
		"WEBHOOKSIG_SECRETS":             "whsec_test",
	})

	cfg, err := Load(ModeAllInOne)
	require.NoError(t, err)

	assert.Equal(t, QueueTypePubSub, cfg.Queue.Type)
	assert.Equal(t, "my-project", cfg.Queue.PubSubProjectID)
	assert.Equal(t, "my-topic", cfg.Queue.PubSubTopicID)
	assert.Equal(t, "my-subscription", cfg.Queue.PubSubSubscription)
	assert.Equal(t, StorageTypeGCS, cfg.Storage.Type)
	assert.Equal(t, "my-bucket", cfg.Storage.GCSBucket)
}

func TestLoad_ReceiverMode(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		errorMsg string
	}{
		{
			name: "redis queue",
			env: map[string]string{
				"WEBHOOKSIG_QUEUE_TYPE": "redis",
				"WEBHOOKSIG_SECRETS":    "whsec_test",
			},
		},
		{
			name: "pubsub without subscription",
			env: map[string]string{
				"WEBHOOKSIG_QUEUE_TYPE":        "pubsub",
				"WEBHOOKSIG_PUBSUB_PROJECT_ID": "my-project",
				"WEBHOOKSIG_SECRETS":           "whsec_test",
			},
		},
		{
			name: "missing queue type",
			env: map[string]string{
				"WEBHOOKSIG_SECRETS": "whsec_test",
			},
			errorMsg: "WEBHOOKSIG_QUEUE_TYPE is required in receiver mode",
		},
		{
			name: "in-memory queue not allowed",
			env: map[string]string{
				"WEBHOOKSIG_QUEUE_TYPE": "inmemory",
				"WEBHOOKSIG_SECRETS":    "whsec_test",
			},
			errorMsg: "must be redis or pubsub",
		},
		{
			name: "missing secrets",
			env: map[string]string{
				"WEBHOOKSIG_QUEUE_TYPE": "redis",
			},
			errorMsg: "WEBHOOKSIG_SECRETS is required",
		},
		{
			name: "blank secrets",
			env: map[string]string{
				"WEBHOOKSIG_QUEUE_TYPE": "redis",
				"WEBHOOKSIG_SECRETS":    " , ,",
			},
			errorMsg: "WEBHOOKSIG_SECRETS is required",
		},
		{
			name: "verification disabled needs no secrets",
			env: map[string]string{
				"WEBHOOKSIG_QUEUE_TYPE":           "redis",
				"WEBHOOKSIG_DISABLE_VERIFICATION": "true",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupEnv(t, tt.env)

			cfg, err := Load(ModeReceiver)
			if tt.errorMsg != "" {
				require.Error(t, err)
				assert.Nil(t, cfg)
				assert.Contains(t, err.Error(), tt.errorMsg)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cfg.Storage.Type, "receiver does not need storage")
			assert.Empty(t, cfg.Queue.PubSubSubscription)
		})
	}
}

func TestLoad_WorkerMode(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		errorMsg string
	}{
		{
			name: "redis and minio",
			env: map[string]string{
				"WEBHOOKSIG_QUEUE_TYPE":       "redis",
				"WEBHOOKSIG_STORAGE_TYPE":     "minio",
				"WEBHOOKSIG_MINIO_ENDPOINT":   "localhost:9000",
				"WEBHOOKSIG_MINIO_ACCESS_KEY": "minioadmin",
				"WEBHOOKSIG_MINIO_SECRET_KEY": "minioadmin",
			},
		},
		{
			name: "missing storage",
			env: map[string]string{
				"WEBHOOKSIG_QUEUE_TYPE": "redis",
			},
			errorMsg: "WEBHOOKSIG_STORAGE_TYPE is required",
		},
		{
			name: "memory storage not allowed",
			env: map[string]string{
				"WEBHOOKSIG_QUEUE_TYPE":   "redis",
				"WEBHOOKSIG_STORAGE_TYPE": "memory",
			},
			errorMsg: "memory storage cannot be used in worker mode",
		},
		{
			name: "in-memory queue not allowed",
			env: map[string]string{
				"WEBHOOKSIG_QUEUE_TYPE":   "inmemory",
				"WEBHOOKSIG_STORAGE_TYPE": "gcs",
				"WEBHOOKSIG_GCS_BUCKET":   "bucket",
			},
			errorMsg: "must be redis or pubsub",
		},
		{
			name: "pubsub missing subscription",
			env: map[string]string{
				"WEBHOOKSIG_QUEUE_TYPE":        "pubsub",
				"WEBHOOKSIG_PUBSUB_PROJECT_ID": "my-project",
				"WEBHOOKSIG_STORAGE_TYPE":      "gcs",
				"WEBHOOKSIG_GCS_BUCKET":        "bucket",
			},
			errorMsg: "WEBHOOKSIG_PUBSUB_SUBSCRIPTION is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupEnv(t, tt.env)

			cfg, err := Load(ModeWorker)
			if tt.errorMsg != "" {
				require.Error(t, err)
				assert.Nil(t, cfg)
				assert.Contains(t, err.Error(), tt.errorMsg)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cfg.Verification.Secrets, "worker does not verify")
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		errorMsg string
	}{
		{
			name:     "tolerance not a duration",
			env:      map[string]string{"WEBHOOKSIG_TOLERANCE": "five minutes"},
			errorMsg: "invalid WEBHOOKSIG_TOLERANCE",
		},
		{
			name:     "negative tolerance",
			env:      map[string]string{"WEBHOOKSIG_TOLERANCE": "-1m"},
			errorMsg: "must not be negative",
		},
		{
			name:     "max body not a number",
			env:      map[string]string{"WEBHOOKSIG_MAX_BODY_BYTES": "64k"},
			errorMsg: "invalid WEBHOOKSIG_MAX_BODY_BYTES",
		},
		{
			name:     "zero max body",
			env:      map[string]string{"WEBHOOKSIG_MAX_BODY_BYTES": "0"},
			errorMsg: "must be positive",
		},
		{
			name:     "redis db not a number",
			env:      map[string]string{"WEBHOOKSIG_QUEUE_TYPE": "redis", "WEBHOOKSIG_REDIS_DB": "one"},
			errorMsg: "invalid WEBHOOKSIG_REDIS_DB",
		},
		{
			name:     "unknown queue type",
			env:      map[string]string{"WEBHOOKSIG_QUEUE_TYPE": "kafka"},
			errorMsg: "invalid queue type: kafka",
		},
		{
			name:     "unknown storage type",
			env:      map[string]string{"WEBHOOKSIG_STORAGE_TYPE": "s3"},
			errorMsg: "invalid storage type: s3",
		},
		{
			name:     "gcs missing bucket",
			env:      map[string]string{"WEBHOOKSIG_STORAGE_TYPE": "gcs"},
			errorMsg: "WEBHOOKSIG_GCS_BUCKET is required",
		},
		{
			name:     "minio missing endpoint",
			env:      map[string]string{"WEBHOOKSIG_STORAGE_TYPE": "minio"},
			errorMsg: "WEBHOOKSIG_MINIO_ENDPOINT is required",
		},
		{
			name:     "port out of range",
			env:      map[string]string{"WEBHOOKSIG_PORT": "70000"},
			errorMsg: "invalid port: 70000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := map[string]string{"WEBHOOKSIG_SECRETS": "whsec_test"}
			for k, v := range tt.env {
				env[k] = v
			}
			setupEnv(t, env)

			cfg, err := Load(ModeAllInOne)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestLoad_ZeroToleranceDisablesWindow(t *testing.T) {
	setupEnv(t, map[string]string{
		"WEBHOOKSIG_SECRETS":   "whsec_test",
		"WEBHOOKSIG_TOLERANCE": "0",
	})

	cfg, err := Load(ModeAllInOne)
	require.NoError(t, err)
	assert.Zero(t, cfg.Verification.Tolerance)
}

func TestLoad_SecretsSplitOnComma(t *testing.T) {
	setupEnv(t, map[string]string{
		"WEBHOOKSIG_SECRETS": " whsec_a ,whsec_b,, whsec_c,d ",
	})

	cfg, err := Load(ModeAllInOne)
	require.NoError(t, err)
	// there is no escaping; a comma always ends a secret
	assert.Equal(t, []string{"whsec_a", "whsec_b", "whsec_c", "d"}, cfg.Verification.Secrets)
}

func TestLoad_MinIOUseSSL(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected bool
	}{
		{"true", "true", true},
		{"false", "false", false},
		{"unset", "", false},
		{"anything else", "yes", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupEnv(t, map[string]string{
				"WEBHOOKSIG_SECRETS":          "whsec_test",
				"WEBHOOKSIG_STORAGE_TYPE":     "minio",
				"WEBHOOKSIG_MINIO_ENDPOINT":   "localhost:9000",
				"WEBHOOKSIG_MINIO_ACCESS_KEY": "minioadmin",
				"WEBHOOKSIG_MINIO_SECRET_KEY": "minioadmin",
				"WEBHOOKSIG_MINIO_USE_SSL":    tt.value,
			})

			cfg, err := Load(ModeAllInOne)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, cfg.Storage.MinIOUseSSL)
			assert.Equal(t, "webhooksig-events", cfg.Storage.MinIOBucket)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mode     Mode
		cfg      Config
		errorMsg string
	}{
		{
			name:     "port zero",
			mode:     ModeAllInOne,
			cfg:      Config{Port: 0},
			errorMsg: "invalid port",
		},
		{
			name:     "missing queue",
			mode:     ModeReceiver,
			cfg:      Config{Port: 8080},
			errorMsg: "queue type is required",
		},
		{
			name: "receiver without secrets",
			mode: ModeReceiver,
			cfg: Config{
				Port:  8080,
				Queue: QueueConfig{Type: QueueTypeRedis},
			},
			errorMsg: "at least one secret is required",
		},
		{
			name: "all-in-one without storage",
			mode: ModeAllInOne,
			cfg: Config{
				Port:         8080,
				Queue:        QueueConfig{Type: QueueTypeInMemory},
				Verification: VerificationConfig{Secrets: []string{"s"}},
			},
			errorMsg: "storage type is required",
		},
		{
			name: "valid worker",
			mode: ModeWorker,
			cfg: Config{
				Port:    8080,
				Queue:   QueueConfig{Type: QueueTypePubSub},
				Storage: StorageConfig{Type: StorageTypeGCS},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(tt.mode)
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

// Flags set on the command line are exported to the environment before Load
// runs, so a later Setenv stands in for them here.
func TestFlagPrecedence(t *testing.T) {
	setupEnv(t, map[string]string{
		"WEBHOOKSIG_PORT":                 "8080",
		"WEBHOOKSIG_DISABLE_VERIFICATION": "false",
		"WEBHOOKSIG_SECRETS":              "whsec_test",
	})

	t.Setenv("WEBHOOKSIG_PORT", "3000")
	t.Setenv("WEBHOOKSIG_DISABLE_VERIFICATION", "true")

	cfg, err := Load(ModeAllInOne)
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port, "port flag should override env var")
	assert.True(t, cfg.Verification.Disabled, "flag should override env var")
}
