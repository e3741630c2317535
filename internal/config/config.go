// Package config loads SeaNotes configuration from the environment and YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Redis    RedisConfig
	AI       AIConfig
	Storage  StorageConfig
	Email    EmailConfig
	Billing  BillingConfig
	Status   StatusConfig
	Log      LogConfig

	PlansPath string `env:"PLANS_CONFIG,default=config/plans.yaml"`
}

type ServerConfig struct {
	Port           int           `env:"PORT,default=8080"`
	BaseURL        string        `env:"BASE_URL,default=http://localhost:3000"`
	AllowedOrigins string        `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:3000"`
	Environment    string        `env:"ENVIRONMENT,default=development"`
	ShutdownGrace  time.Duration `env:"SHUTDOWN_GRACE,default=15s"`
}

type DatabaseConfig struct {
	URL          string `env:"DATABASE_URL"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS,default=20"`
	MaxIdleConns int    `env:"DB_MAX_IDLE_CONNS,default=5"`
	AutoMigrate  bool   `env:"DB_AUTO_MIGRATE,default=true"`
}

type AuthConfig struct {
	Secret      string        `env:"AUTH_SECRET"`
	TokenTTL    time.Duration `env:"AUTH_TOKEN_TTL,default=24h"`
	AdminEmails string        `env:"ADMIN_EMAILS"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

type AIConfig struct {
	Provider          string  `env:"AI_PROVIDER,default=openai"`
	APIKey            string  `env:"SERVERLESS_INFERENCE_API_KEY"`
	BaseURL           string  `env:"DO_INFERENCE_BASE_URL,default=https://inference.do-ai.run/v1"`
	ChatModel         string  `env:"DO_INFERENCE_CHAT_MODEL,default=llama3.3-70b-instruct"`
	EmbeddingModel    string  `env:"DO_INFERENCE_EMBEDDING_MODEL,default=text-embedding-3-small"`
	GeminiAPIKey      string  `env:"GEMINI_API_KEY"`
	GeminiChatModel   string  `env:"GEMINI_CHAT_MODEL,default=gemini-2.0-flash"`
	GeminiEmbedModel  string  `env:"GEMINI_EMBEDDING_MODEL,default=text-embedding-004"`
	RequestsPerSecond float64 `env:"AI_REQUESTS_PER_SECOND,default=5"`
	EmbeddingCacheDir string  `env:"EMBEDDING_CACHE_DIR"`
	MaxContextChunks  int     `env:"NOTES_QA_MAX_CONTEXT_CHUNKS,default=6"`
}

type StorageConfig struct {
	KeyID     string `env:"SPACES_KEY_ID"`
	KeySecret string `env:"SPACES_KEY_SECRET"`
	Bucket    string `env:"SPACES_BUCKET_NAME"`
	Region    string `env:"SPACES_REGION,default=nyc3"`
	Endpoint  string `env:"SPACES_ENDPOINT"`
}

type EmailConfig struct {
	Enabled bool   `env:"ENABLE_EMAIL_INTEGRATION,default=false"`
	APIKey  string `env:"RESEND_API_KEY"`
	Sender  string `env:"RESEND_EMAIL_SENDER"`
}

type BillingConfig struct {
	SecretKey   string `env:"STRIPE_SECRET_KEY"`
	FreePriceID string `env:"STRIPE_FREE_PRICE_ID"`
	ProPriceID  string `env:"STRIPE_PRO_PRICE_ID"`
}

type StatusConfig struct {
	PollSchedule string        `env:"STATUS_POLL_SCHEDULE,default=@every 5m"`
	CheckTimeout time.Duration `env:"STATUS_CHECK_TIMEOUT,default=10s"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=text"`
}

// Load reads an optional .env file and decodes the environment into a Config.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}

// Validate reports configuration that prevents the server from starting.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid PORT %d", c.Server.Port))
	}
	if c.IsProduction() {
		if strings.TrimSpace(c.Auth.Secret) == "" {
			problems = append(problems, "AUTH_SECRET is required in production")
		}
		if strings.TrimSpace(c.Database.URL) == "" {
			problems = append(problems, "DATABASE_URL is required in production")
		}
	}
	if c.Auth.TokenTTL <= 0 {
		problems = append(problems, "AUTH_TOKEN_TTL must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsProduction reports whether ENVIRONMENT is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

// Origins returns the configured CORS origins.
func (s ServerConfig) Origins() []string {
	return SplitCSV(s.AllowedOrigins)
}

// Admins returns the lower-cased admin e-mail set.
func (a AuthConfig) Admins() map[string]bool {
	set := make(map[string]bool)
	for _, e := range SplitCSV(a.AdminEmails) {
		set[strings.ToLower(e)] = true
	}
	return set
}

// Configured reports whether storage credentials and bucket are set.
func (s StorageConfig) Configured() bool {
	return s.KeyID != "" && s.KeySecret != "" && s.Bucket != ""
}

// Configured reports whether the Resend API key and sender are set.
func (e EmailConfig) Configured() bool {
	return e.APIKey != "" && e.Sender != ""
}

// Configured reports whether a Stripe key is set.
func (b BillingConfig) Configured() bool {
	return b.SecretKey != ""
}

// Configured reports whether the selected inference provider has credentials.
func (a AIConfig) Configured() bool {
	switch strings.ToLower(a.Provider) {
	case "gemini":
		return a.GeminiAPIKey != ""
	case "local":
		return true
	}
	return a.APIKey != ""
}

// SplitCSV splits a comma separated list, dropping blanks.
func SplitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
