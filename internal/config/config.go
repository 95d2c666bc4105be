package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting the server reads at startup
type Config struct {
	Env            string
	Port           string
	AllowedOrigins []string

	JWTSecret string
	JWTTTL    time.Duration

	DBType      string
	DatabaseURL string

	LogLevel  string
	LogFormat string

	Chat      ChatConfig
	WebSocket WebSocketConfig

	ShutdownTimeout time.Duration
}

// ChatConfig tunes message validation and history paging
type ChatConfig struct {
	MaxMessageLength int
	PageSize         int
	MaxPageSize      int
	ReadOnFetch      bool
}

// WebSocketConfig tunes the realtime gateway
type WebSocketConfig struct {
	MaxEventsPerMinute int
	EventTimeout       time.Duration
}

var ErrMissingJWTSecret = errors.New("JWT_SECRET environment variable is required")

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("DB_TYPE", "postgres")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("CHAT_MAX_MESSAGE_LENGTH", 2000)
	v.SetDefault("CHAT_PAGE_SIZE", 50)
	v.SetDefault("CHAT_MAX_PAGE_SIZE", 100)
	v.SetDefault("CHAT_READ_ON_FETCH", true)
	v.SetDefault("WS_MAX_EVENTS_PER_MINUTE", 120)
	v.SetDefault("WS_EVENT_TIMEOUT", "10s")
	v.SetDefault("SHUTDOWN_TIMEOUT", "5s")
}

// Load reads an optional .env file and then the process environment.
// Missing .env is not an error; the environment always wins over it.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Env:            v.GetString("ENV"),
		Port:           v.GetString("PORT"),
		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		JWTSecret:      v.GetString("JWT_SECRET"),
		JWTTTL:         v.GetDuration("JWT_TTL"),
		DBType:         v.GetString("DB_TYPE"),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		LogFormat:      v.GetString("LOG_FORMAT"),
		Chat: ChatConfig{
			MaxMessageLength: v.GetInt("CHAT_MAX_MESSAGE_LENGTH"),
			PageSize:         v.GetInt("CHAT_PAGE_SIZE"),
			MaxPageSize:      v.GetInt("CHAT_MAX_PAGE_SIZE"),
			ReadOnFetch:      v.GetBool("CHAT_READ_ON_FETCH"),
		},
		WebSocket: WebSocketConfig{
			MaxEventsPerMinute: v.GetInt("WS_MAX_EVENTS_PER_MINUTE"),
			EventTimeout:       v.GetDuration("WS_EVENT_TIMEOUT"),
		},
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
	}

	if cfg.DatabaseURL == "" {
		dsn, err := buildDSN(v)
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = dsn
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable default
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if c.Chat.MaxMessageLength <= 0 {
		return fmt.Errorf("CHAT_MAX_MESSAGE_LENGTH must be positive, got %d", c.Chat.MaxMessageLength)
	}
	if c.Chat.PageSize <= 0 || c.Chat.MaxPageSize < c.Chat.PageSize {
		return fmt.Errorf("invalid page sizes: CHAT_PAGE_SIZE=%d CHAT_MAX_PAGE_SIZE=%d", c.Chat.PageSize, c.Chat.MaxPageSize)
	}
	return nil
}

// IsProduction reports whether gin should run in release mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// buildDSN falls back to the individual DB_* variables when DATABASE_URL is unset
func buildDSN(v *viper.Viper) (string, error) {
	dbType := v.GetString("DB_TYPE")
	if dbType == "sqlite3" {
		name := v.GetString("DB_NAME")
		if name == "" {
			name = "chat.db"
		}
		return fmt.Sprintf("file:%s?_busy_timeout=5000", name), nil
	}

	host := v.GetString("DB_HOST")
	name := v.GetString("DB_NAME")
	user := v.GetString("DB_USER")
	if host == "" || name == "" || user == "" {
		return "", errors.New("database connection details missing. Set DATABASE_URL or individual DB_* variables")
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, v.GetString("DB_PASSWORD")),
		Host:     host + ":" + v.GetString("DB_PORT"),
		Path:     "/" + name,
		RawQuery: "sslmode=" + v.GetString("DB_SSLMODE"),
	}
	return u.String(), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
