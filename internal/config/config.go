package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	CompanyName string
	Environment string
	HTTPAddr    string
	LogLevel    string
	// NodeID seeds snowflake IDs; every replica needs its own.
	NodeID int64

	AuthJWTSecret string
	AuthJWTIssuer string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis      RedisConfig
	Email      EmailConfig
	SMS        SMSConfig
	Accounting AccountingConfig
	Storage    StorageConfig
	Scheduler  SchedulerConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	ViewTTL  time.Duration
}

// Enabled reports whether a redis address is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	OfficeInbox  string
}

type SMSConfig struct {
	TwilioAccountSID string
	TwilioAuthToken  string
	FromNumber       string
}

type AccountingConfig struct {
	Provider    string
	BaseURL     string
	RealmID     string
	AccessToken string
	Timeout     time.Duration
}

type StorageConfig struct {
	Root    string
	BaseURL string
	MaxSize int64
}

type SchedulerConfig struct {
	Enabled bool
	// Cron specs in robfig/cron syntax; descriptors like @every 5m are accepted.
	SyncRetrySpec  string
	CertExpirySpec string
	CertExpiryDays int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "fieldbooks"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		CompanyName:   getenv("COMPANY_NAME", "Fieldbooks"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		NodeID:        getenvInt64("SNOWFLAKE_NODE_ID", 1),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthJWTIssuer: strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "")),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "fieldbooks"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "fieldbooks.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
			ViewTTL:  getenvDuration("VIEW_CACHE_TTL", 2*time.Minute),
		},
		Email: EmailConfig{
			SMTPHost:     getenv("SMTP_HOST", ""),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "billing@fieldbooks.local"),
			OfficeInbox:  getenv("OFFICE_INBOX", ""),
		},
		SMS: SMSConfig{
			TwilioAccountSID: strings.TrimSpace(getenv("TWILIO_ACCOUNT_SID", "")),
			TwilioAuthToken:  strings.TrimSpace(getenv("TWILIO_AUTH_TOKEN", "")),
			FromNumber:       strings.TrimSpace(getenv("TWILIO_FROM_NUMBER", "")),
		},
		Accounting: AccountingConfig{
			Provider:    strings.ToLower(getenv("ACCOUNTING_PROVIDER", "noop")),
			BaseURL:     getenv("QUICKBOOKS_BASE_URL", "https://quickbooks.api.intuit.com"),
			RealmID:     strings.TrimSpace(getenv("QUICKBOOKS_REALM_ID", "")),
			AccessToken: strings.TrimSpace(getenv("QUICKBOOKS_ACCESS_TOKEN", "")),
			Timeout:     getenvDuration("ACCOUNTING_TIMEOUT", 10*time.Second),
		},
		Storage: StorageConfig{
			Root:    getenv("STORAGE_ROOT", "./data/uploads"),
			BaseURL: getenv("STORAGE_BASE_URL", "/api/v1/attachments"),
			MaxSize: getenvInt64("STORAGE_MAX_SIZE", 25<<20),
		},
		Scheduler: SchedulerConfig{
			Enabled:        getenvBool("SCHEDULER_ENABLED", true),
			SyncRetrySpec:  getenv("ACCOUNTING_RETRY_SCHEDULE", "@every 5m"),
			CertExpirySpec: getenv("CERT_EXPIRY_SCHEDULE", "0 7 * * *"),
			CertExpiryDays: getenvInt("CERT_EXPIRY_WINDOW_DAYS", 30),
		},
	}

	return cfg
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
