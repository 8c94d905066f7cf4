// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends accepted by STORE_BACKEND.
const (
	StoreBackendPostgres = "postgres"
	StoreBackendFile     = "file"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// StoreConfig selects the persistence backend for conversations and leads.
type StoreConfig interface {
	GetStoreBackend() string
	GetStoreDir() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// JWTConfig provides the admin token secret.
type JWTConfig interface {
	GetAdminJWTSecret() string
}

// RedisConfig provides settings for the Redis-backed helpers and asynq.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// MinIOConfig provides settings for inbound media archiving.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinIOBucketMedia() string
	IsMinIOEnabled() bool
}

// SMTPConfig provides settings for the owner email notification.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetSMTPFromAddress() string
	GetSMTPFromName() string
	GetOwnerEmail() string
	IsSMTPEnabled() bool
}

// ModelConfig provides settings for the language model.
type ModelConfig interface {
	GetModelAPIKey() string
	GetModelBaseURL() string
	GetModelName() string
	GetTranscriptionModel() string
	GetModelTimeout() time.Duration
}

// ChannelSettings holds the credentials of one messaging channel.
type ChannelSettings struct {
	Enabled        bool
	AccessToken    string
	AppSecret      string
	VerifyToken    string
	APIBaseURL     string
	ScopeID        string
	OwnerRecipient string
}

// ChannelConfig provides per-channel credentials and delivery tuning.
type ChannelConfig interface {
	GetInstagram() ChannelSettings
	GetMessenger() ChannelSettings
	GetTelegram() ChannelSettings
	GetVerifySignatures() bool
	GetSendMaxAttempts() int
	GetSendBaseBackoff() time.Duration
	GetSendRatePerSecond() float64
	GetOwnerChannel() string
}

// ConversationConfig provides the tunables of one inbound turn.
type ConversationConfig interface {
	GetHistoryLimit() int
	GetMediaFreshnessWindow() time.Duration
	GetTurnCeiling() int
	GetMinTurnsFloor() int
	GetGuardCopyPath() string
	GetDefaultRegion() string
}

// LeadConfig provides lead capture settings.
type LeadConfig interface {
	GetLeadDedupWindow() time.Duration
}

// FollowUpConfig provides follow-up scheduler settings.
type FollowUpConfig interface {
	GetFollowUpInterval() time.Duration
	GetFollowUpMinIdle() time.Duration
	GetFollowUpMaxLate() time.Duration
	GetFollowUpReplyWindow() time.Duration
	GetFollowUpParallelism() int
	GetFollowUpInProcess() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env            string
	HTTPAddr       string
	DatabaseURL    string
	StoreBackend   string
	StoreDir       string
	CORSAllowAll   bool
	CORSOrigins    []string
	CORSAllowCreds bool
	AdminJWTSecret string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int

	MinIOEndpoint    string
	MinIOAccessKey   string
	MinIOSecretKey   string
	MinIOUseSSL      bool
	MinIOMaxFileSize int64
	MinIOBucketMedia string

	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SMTPFromAddress string
	SMTPFromName    string
	OwnerEmail      string

	ModelAPIKey        string
	ModelBaseURL       string
	ModelName          string
	TranscriptionModel string
	ModelTimeout       time.Duration

	Instagram         ChannelSettings
	Messenger         ChannelSettings
	Telegram          ChannelSettings
	VerifySignatures  bool
	SendMaxAttempts   int
	SendBaseBackoff   time.Duration
	SendRatePerSecond float64
	OwnerChannel      string

	HistoryLimit         int
	MediaFreshnessWindow time.Duration
	TurnCeiling          int
	MinTurnsFloor        int
	GuardCopyPath        string
	DefaultRegion        string

	LeadDedupWindow time.Duration

	FollowUpInterval    time.Duration
	FollowUpMinIdle     time.Duration
	FollowUpMaxLate     time.Duration
	FollowUpReplyWindow time.Duration
	FollowUpParallelism int
	FollowUpInProcess   bool
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// StoreConfig implementation
func (c *Config) GetStoreBackend() string { return c.StoreBackend }
func (c *Config) GetStoreDir() string     { return c.StoreDir }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// JWTConfig implementation
func (c *Config) GetAdminJWTSecret() string { return c.AdminJWTSecret }

// RedisConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string   { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string  { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string  { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool       { return c.MinIOUseSSL }
func (c *Config) GetMinIOMaxFileSize() int64 { return c.MinIOMaxFileSize }
func (c *Config) GetMinIOBucketMedia() string {
	return c.MinIOBucketMedia
}
func (c *Config) IsMinIOEnabled() bool { return c.MinIOEndpoint != "" }

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string        { return c.SMTPHost }
func (c *Config) GetSMTPPort() int           { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string    { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string    { return c.SMTPPassword }
func (c *Config) GetSMTPFromAddress() string { return c.SMTPFromAddress }
func (c *Config) GetSMTPFromName() string    { return c.SMTPFromName }
func (c *Config) GetOwnerEmail() string      { return c.OwnerEmail }
func (c *Config) IsSMTPEnabled() bool {
	return c.SMTPHost != "" && c.OwnerEmail != ""
}

// ModelConfig implementation
func (c *Config) GetModelAPIKey() string         { return c.ModelAPIKey }
func (c *Config) GetModelBaseURL() string        { return c.ModelBaseURL }
func (c *Config) GetModelName() string           { return c.ModelName }
func (c *Config) GetTranscriptionModel() string  { return c.TranscriptionModel }
func (c *Config) GetModelTimeout() time.Duration { return c.ModelTimeout }

// ChannelConfig implementation
func (c *Config) GetInstagram() ChannelSettings     { return c.Instagram }
func (c *Config) GetMessenger() ChannelSettings     { return c.Messenger }
func (c *Config) GetTelegram() ChannelSettings      { return c.Telegram }
func (c *Config) GetVerifySignatures() bool         { return c.VerifySignatures }
func (c *Config) GetSendMaxAttempts() int           { return c.SendMaxAttempts }
func (c *Config) GetSendBaseBackoff() time.Duration { return c.SendBaseBackoff }
func (c *Config) GetSendRatePerSecond() float64     { return c.SendRatePerSecond }
func (c *Config) GetOwnerChannel() string           { return c.OwnerChannel }

// ConversationConfig implementation
func (c *Config) GetHistoryLimit() int                   { return c.HistoryLimit }
func (c *Config) GetMediaFreshnessWindow() time.Duration { return c.MediaFreshnessWindow }
func (c *Config) GetTurnCeiling() int                    { return c.TurnCeiling }
func (c *Config) GetMinTurnsFloor() int                  { return c.MinTurnsFloor }
func (c *Config) GetGuardCopyPath() string               { return c.GuardCopyPath }
func (c *Config) GetDefaultRegion() string               { return c.DefaultRegion }

// LeadConfig implementation
func (c *Config) GetLeadDedupWindow() time.Duration { return c.LeadDedupWindow }

// FollowUpConfig implementation
func (c *Config) GetFollowUpInterval() time.Duration    { return c.FollowUpInterval }
func (c *Config) GetFollowUpMinIdle() time.Duration     { return c.FollowUpMinIdle }
func (c *Config) GetFollowUpMaxLate() time.Duration     { return c.FollowUpMaxLate }
func (c *Config) GetFollowUpReplyWindow() time.Duration { return c.FollowUpReplyWindow }
func (c *Config) GetFollowUpParallelism() int           { return c.FollowUpParallelism }
func (c *Config) GetFollowUpInProcess() bool            { return c.FollowUpInProcess }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := getBool("CORS_ALLOW_ALL", false)
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:            getEnv("APP_ENV", "development"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		StoreBackend:   strings.ToLower(getEnv("STORE_BACKEND", StoreBackendPostgres)),
		StoreDir:       getEnv("STORE_DIR", "data"),
		CORSAllowAll:   corsAllowAll,
		CORSOrigins:    corsOrigins,
		CORSAllowCreds: getBool("CORS_ALLOW_CREDENTIALS", false),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: getBool("REDIS_TLS_INSECURE", false),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "salesbot"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "5")),

		MinIOEndpoint:    getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:   getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:   getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:      getBool("MINIO_USE_SSL", false),
		MinIOMaxFileSize: mustInt64(getEnv("MINIO_MAX_FILE_SIZE", "26214400")),
		MinIOBucketMedia: getEnv("MINIO_BUCKET_MEDIA", "inbound-media"),

		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SMTPFromAddress: getEnv("SMTP_FROM_ADDRESS", ""),
		SMTPFromName:    getEnv("SMTP_FROM_NAME", "Sales Bot"),
		OwnerEmail:      getEnv("OWNER_EMAIL", ""),

		ModelAPIKey:        getEnv("MODEL_API_KEY", ""),
		ModelBaseURL:       getEnv("MODEL_BASE_URL", ""),
		ModelName:          getEnv("MODEL_NAME", "gpt-4o-mini"),
		TranscriptionModel: getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
		ModelTimeout:       mustDuration(getEnv("MODEL_TIMEOUT", "20s")),

		Instagram:         loadChannel("INSTAGRAM"),
		Messenger:         loadChannel("MESSENGER"),
		Telegram:          loadChannel("TELEGRAM"),
		VerifySignatures:  getBool("WEBHOOK_VERIFY_SIGNATURES", true),
		SendMaxAttempts:   mustInt(getEnv("SEND_MAX_ATTEMPTS", "3")),
		SendBaseBackoff:   mustDuration(getEnv("SEND_BASE_BACKOFF", "500ms")),
		SendRatePerSecond: mustFloat(getEnv("SEND_RATE_PER_SECOND", "20")),
		OwnerChannel:      strings.ToLower(getEnv("OWNER_CHANNEL", "telegram")),

		HistoryLimit:         mustInt(getEnv("HISTORY_LIMIT", "40")),
		MediaFreshnessWindow: mustDuration(getEnv("MEDIA_FRESHNESS_WINDOW", "90s")),
		TurnCeiling:          mustInt(getEnv("TURN_CEILING", "8")),
		MinTurnsFloor:        mustInt(getEnv("MIN_TURNS_FLOOR", "1")),
		GuardCopyPath:        getEnv("GUARD_COPY_PATH", ""),
		DefaultRegion:        strings.ToUpper(getEnv("DEFAULT_PHONE_REGION", "US")),

		LeadDedupWindow: mustDuration(getEnv("LEAD_DEDUP_WINDOW", "24h")),

		FollowUpInterval:    mustDuration(getEnv("FOLLOWUP_INTERVAL", "5m")),
		FollowUpMinIdle:     mustDuration(getEnv("FOLLOWUP_MIN_IDLE", "3h")),
		FollowUpMaxLate:     mustDuration(getEnv("FOLLOWUP_MAX_LATE", "22h")),
		FollowUpReplyWindow: mustDuration(getEnv("FOLLOWUP_REPLY_WINDOW", "24h")),
		FollowUpParallelism: mustInt(getEnv("FOLLOWUP_PARALLELISM", "4")),
		FollowUpInProcess:   getBool("FOLLOWUP_IN_PROCESS", false),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case StoreBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is postgres")
		}
	case StoreBackendFile:
		if c.StoreDir == "" {
			return fmt.Errorf("STORE_DIR is required when STORE_BACKEND is file")
		}
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}

	if c.AdminJWTSecret != "" && len(c.AdminJWTSecret) < 32 {
		return fmt.Errorf("ADMIN_JWT_SECRET must be at least 32 bytes")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	channels := map[string]ChannelSettings{
		"INSTAGRAM": c.Instagram,
		"MESSENGER": c.Messenger,
		"TELEGRAM":  c.Telegram,
	}
	for prefix, ch := range channels {
		if !ch.Enabled {
			continue
		}
		if ch.AccessToken == "" {
			return fmt.Errorf("%s_ACCESS_TOKEN is required when %s_ENABLED is true", prefix, prefix)
		}
		if c.VerifySignatures && ch.AppSecret == "" {
			return fmt.Errorf("%s_APP_SECRET is required when signature verification is on", prefix)
		}
	}

	if c.HistoryLimit < 2 {
		return fmt.Errorf("HISTORY_LIMIT must be at least 2")
	}
	if c.ModelTimeout <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT must be a positive duration")
	}
	if c.SendMaxAttempts < 1 {
		return fmt.Errorf("SEND_MAX_ATTEMPTS must be at least 1")
	}
	if c.FollowUpMaxLate > 0 && c.FollowUpMinIdle >= c.FollowUpMaxLate {
		return fmt.Errorf("FOLLOWUP_MIN_IDLE must be shorter than FOLLOWUP_MAX_LATE")
	}
	if c.IsSMTPEnabled() && c.SMTPFromAddress == "" {
		return fmt.Errorf("SMTP_FROM_ADDRESS is required when SMTP is configured")
	}
	return nil
}

func loadChannel(prefix string) ChannelSettings {
	return ChannelSettings{
		Enabled:        getBool(prefix+"_ENABLED", false),
		AccessToken:    getEnv(prefix+"_ACCESS_TOKEN", ""),
		AppSecret:      getEnv(prefix+"_APP_SECRET", ""),
		VerifyToken:    getEnv(prefix+"_VERIFY_TOKEN", ""),
		APIBaseURL:     getEnv(prefix+"_API_BASE_URL", ""),
		ScopeID:        getEnv(prefix+"_SCOPE_ID", ""),
		OwnerRecipient: getEnv(prefix+"_OWNER_RECIPIENT", ""),
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	return strings.EqualFold(strings.TrimSpace(raw), "true") || strings.TrimSpace(raw) == "1"
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
