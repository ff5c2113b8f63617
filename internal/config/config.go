package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	CORSOrigins string
	TablePrefix string
	AuthJWKSURL string // empty disables bearer auth (webhooks use HMAC regardless)
	LogDir      string // empty logs to stdout only
	LogMaxFiles int

	// Generation
	GenerationProvider string // "anthropic" or "static"
	AnthropicAPIKey    string
	GenerationModel    string

	// Render
	BlobDir string

	// Signature provider
	SignatureBaseURL        string
	SignatureAuthServer     string
	SignatureClientID       string
	SignatureUserID         string
	SignatureAccountID      string
	SignaturePrivateKeyFile string
	SignatureReturnURL      string
	WebhookSecret           string

	// Comparison index
	EmbedProvider string // "cohere" or "local"
	CohereAPIKey  string
	EmbedModel    string
	EmbedDim      int

	// Workflow retry budgets
	GenerationMaxAttempts int
	EnvelopeMaxAttempts   int
	ConflictMaxAttempts   int
	RetryBaseDelay        time.Duration
	RetryMaxDelay         time.Duration

	// Status polling
	PollInterval    time.Duration
	PollConcurrency int
	PollBatchSize   int
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		DatabaseURL: getEnv("DATABASE_URL", ""),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix: getTablePrefix(env),
		AuthJWKSURL: getEnv("AUTH_JWKS_URL", ""),
		LogDir:      getEnv("LOG_DIR", ""),
		LogMaxFiles: getEnvInt("LOG_MAX_FILES", 10),

		GenerationProvider: getEnv("GENERATION_PROVIDER", "anthropic"),
		AnthropicAPIKey:    getEnv("ANTHROPIC_API_KEY", ""),
		GenerationModel:    getEnv("GENERATION_MODEL", "claude-haiku-4-5-20251001"),

		BlobDir: getEnv("BLOB_DIR", "data/blobs"),

		SignatureBaseURL:        getEnv("SIGNATURE_BASE_URL", "https://demo.docusign.net/restapi"),
		SignatureAuthServer:     getEnv("SIGNATURE_AUTH_SERVER", "account-d.docusign.com"),
		SignatureClientID:       getEnv("SIGNATURE_CLIENT_ID", ""),
		SignatureUserID:         getEnv("SIGNATURE_USER_ID", ""),
		SignatureAccountID:      getEnv("SIGNATURE_ACCOUNT_ID", ""),
		SignaturePrivateKeyFile: getEnv("SIGNATURE_PRIVATE_KEY_FILE", "private.key"),
		SignatureReturnURL:      getEnv("SIGNATURE_RETURN_URL", "http://localhost:3000/ds/callback"),
		WebhookSecret:           getEnv("WEBHOOK_SECRET", ""),

		EmbedProvider: getEnv("EMBED_PROVIDER", "local"),
		CohereAPIKey:  getEnv("COHERE_API_KEY", ""),
		EmbedModel:    getEnv("EMBED_MODEL", "embed-english-v3.0"),
		EmbedDim:      getEnvInt("EMBED_DIM", 1024),

		GenerationMaxAttempts: getEnvInt("GENERATION_MAX_ATTEMPTS", 3),
		EnvelopeMaxAttempts:   getEnvInt("ENVELOPE_MAX_ATTEMPTS", 3),
		ConflictMaxAttempts:   getEnvInt("CONFLICT_MAX_ATTEMPTS", 3),
		RetryBaseDelay:        getEnvDuration("RETRY_BASE_DELAY", 500*time.Millisecond),
		RetryMaxDelay:         getEnvDuration("RETRY_MAX_DELAY", 30*time.Second),

		PollInterval:    getEnvDuration("POLL_INTERVAL", 30*time.Second),
		PollConcurrency: getEnvInt("POLL_CONCURRENCY", 4),
		PollBatchSize:   getEnvInt("POLL_BATCH_SIZE", 50),
	}
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
