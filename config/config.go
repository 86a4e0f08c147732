package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Telegram TelegramConfig
	Recorder RecorderConfig
	Stripe   StripeConfig
	Email    EmailConfig
	AWS      AWSConfig
	Admin    AdminConfig
}

// ServerConfig holds HTTP server settings (webhook + admin API).
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	PublicURL          string // externally reachable base URL, used for Stripe redirect pages
	CORSAllowedOrigins string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/recordbot?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TelegramConfig holds bot credentials and delivery settings.
type TelegramConfig struct {
	BotToken string
	// APIEndpoint overrides the Bot API base URL. Segment files run to
	// hundreds of MB, which the hosted Bot API rejects; point this at a
	// self-hosted bot-api server to lift the upload cap.
	APIEndpoint   string
	AdminChatID   int64
	UploadTimeout time.Duration
}

// RecorderConfig holds the capture pipeline tunables.
type RecorderConfig struct {
	OutputDir         string        // root directory for segment files
	FFmpegCmd         string        // capture binary
	ResolverCmd       string        // media-URL extraction binary (yt-dlp compatible)
	SiteBaseURL       string        // stream page base, model name is appended
	SegmentMaxBytes   int64         // rotation threshold
	SizeCheckInterval time.Duration // watcher tick
	PollInterval      time.Duration // scheduler outer cycle
	RateLimitDelay    time.Duration // minimum spacing between probes in a cycle
	CreditInterval    time.Duration // metering cadence
	ProbeTimeout      time.Duration // per masquerade-profile attempt
	ProbeDelay        time.Duration // fixed delay between profile attempts
	ProbeProfiles     []string      // ordered client-fingerprint profile names
	ProbeCacheTTL     time.Duration // negative probe result cache
	ResolveTimeout    time.Duration
	StopTimeout       time.Duration // graceful capture shutdown bound before hard kill
}

// StripeConfig for checkout and webhook verification.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Price2h       string
	Price5h       string
	Price20h      string
}

// PriceIDs maps plan keys to configured Stripe price objects.
func (c StripeConfig) PriceIDs() map[string]string {
	return map[string]string{
		"rb_plan_2h":  c.Price2h,
		"rb_plan_5h":  c.Price5h,
		"rb_plan_20h": c.Price20h,
	}
}

// EmailConfig for SendGrid activation mail.
type EmailConfig struct {
	APIKey      string
	FromAddress string
	FromName    string
}

// AWSConfig holds credentials and the archive bucket for failed uploads.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ArchiveBucket        string
	PresignExpireMinutes int
}

// AdminConfig holds admin API access settings.
type AdminConfig struct {
	Password    string
	JWTSecret   string
	ExpireHours int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			PublicURL:          getEnv("PUBLIC_URL", "http://localhost:8080"),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "recordbot"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Telegram: TelegramConfig{
			BotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
			APIEndpoint:   getEnv("TELEGRAM_API_ENDPOINT", ""),
			AdminChatID:   getEnvInt64("TELEGRAM_ADMIN_CHAT_ID", 0),
			UploadTimeout: getEnvDuration("TELEGRAM_UPLOAD_TIMEOUT", 10*time.Minute),
		},
		Recorder: RecorderConfig{
			OutputDir:         getEnv("RECORDER_OUTPUT_DIR", "/tmp/recordings"),
			FFmpegCmd:         getEnv("FFMPEG_CMD", "ffmpeg"),
			ResolverCmd:       getEnv("RESOLVER_CMD", "yt-dlp"),
			SiteBaseURL:       getEnv("SITE_BASE_URL", "https://chaturbate.com"),
			SegmentMaxBytes:   getEnvInt64("SEGMENT_MAX_BYTES", 500*1024*1024),
			SizeCheckInterval: getEnvDuration("SIZE_CHECK_INTERVAL", 5*time.Second),
			PollInterval:      getEnvDuration("POLL_INTERVAL", 60*time.Second),
			RateLimitDelay:    getEnvDuration("RATE_LIMIT_DELAY", 5*time.Second),
			CreditInterval:    getEnvDuration("CREDIT_CHECK_INTERVAL", 30*time.Second),
			ProbeTimeout:      getEnvDuration("PROBE_TIMEOUT", 25*time.Second),
			ProbeDelay:        getEnvDuration("PROBE_DELAY", 3*time.Second),
			ProbeProfiles:     splitTrim(getEnv("PROBE_PROFILES", "chrome131,chrome124,chrome120,chrome116,chrome110"), ","),
			ProbeCacheTTL:     getEnvDuration("PROBE_CACHE_TTL", 45*time.Second),
			ResolveTimeout:    getEnvDuration("RESOLVE_TIMEOUT", 45*time.Second),
			StopTimeout:       getEnvDuration("STOP_TIMEOUT", 15*time.Second),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Price2h:       getEnv("STRIPE_PRICE_2H", ""),
			Price5h:       getEnv("STRIPE_PRICE_5H", ""),
			Price20h:      getEnv("STRIPE_PRICE_20H", ""),
		},
		Email: EmailConfig{
			APIKey:      getEnv("SENDGRID_API_KEY", ""),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "noreply@example.com"),
			FromName:    getEnv("EMAIL_FROM_NAME", "RecordBot"),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ArchiveBucket:        getEnv("AWS_S3_ARCHIVE_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 60),
		},
		Admin: AdminConfig{
			Password:    getEnv("ADMIN_PASSWORD", ""),
			JWTSecret:   getEnv("ADMIN_JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("ADMIN_JWT_EXPIRE_HOURS", 24),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
