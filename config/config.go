// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Postgres struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	DBName       string        `mapstructure:"dbname"`
	SSLMode      string        `mapstructure:"sslmode"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	ConnLifetime time.Duration `mapstructure:"conn_lifetime"`
}

type Store struct {
	Driver     string   `mapstructure:"driver"`
	SQLitePath string   `mapstructure:"sqlite_path"`
	Postgres   Postgres `mapstructure:"postgres"`
}

type Config struct {
	Server struct {
		Port           string        `mapstructure:"port"`
		ReadTimeout    time.Duration `mapstructure:"read_timeout"`
		WriteTimeout   time.Duration `mapstructure:"write_timeout"`
		IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
		AllowedOrigins []string      `mapstructure:"allowed_origins"`
	} `mapstructure:"server"`
	AI struct {
		APIKey         string        `mapstructure:"api_key"`
		Model          string        `mapstructure:"model"`
		BaseURL        string        `mapstructure:"base_url"`
		MaxTokens      int           `mapstructure:"max_tokens"`
		Temperature    float32       `mapstructure:"temperature"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
	} `mapstructure:"ai"`
	Store Store `mapstructure:"store"`
	KV    struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"kv"`
	Auth struct {
		MinLatency      time.Duration `mapstructure:"min_latency"`
		MaxLatency      time.Duration `mapstructure:"max_latency"`
		GoogleDelay     time.Duration `mapstructure:"google_delay"`
		VerifyPasswords bool          `mapstructure:"verify_passwords"`
		JWTSecret       string        `mapstructure:"jwt_secret"`
		TokenTTL        time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`
	Gateway struct {
		HistoryDelay time.Duration `mapstructure:"history_delay"`
	} `mapstructure:"gateway"`
	Telegram struct {
		Token string `mapstructure:"token"`
	} `mapstructure:"telegram"`
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

var defaults = map[string]any{
	"server.port":            "8080",
	"server.read_timeout":    10 * time.Second,
	"server.write_timeout":   120 * time.Second,
	"server.idle_timeout":    120 * time.Second,
	"server.allowed_origins": []string{"http://localhost:5173"},

	"ai.api_key":         "",
	"ai.model":           "gpt-4o-mini",
	"ai.base_url":        "",
	"ai.max_tokens":      4096,
	"ai.temperature":     0.7,
	"ai.request_timeout": time.Duration(0),

	"store.driver":                  "memory",
	"store.sqlite_path":             "nutricoach.db",
	"store.postgres.host":           "localhost",
	"store.postgres.port":           "5432",
	"store.postgres.user":           "postgres",
	"store.postgres.password":       "postgres",
	"store.postgres.dbname":         "nutricoach",
	"store.postgres.sslmode":        "disable",
	"store.postgres.max_open_conns": 20,
	"store.postgres.max_idle_conns": 2,
	"store.postgres.conn_lifetime":  5 * time.Minute,

	"kv.path": "",

	"auth.min_latency":      500 * time.Millisecond,
	"auth.max_latency":      1000 * time.Millisecond,
	"auth.google_delay":     1000 * time.Millisecond,
	"auth.verify_passwords": false,
	"auth.jwt_secret":       "",
	"auth.token_ttl":        72 * time.Hour,

	"gateway.history_delay": 500 * time.Millisecond,

	"telegram.token": "",

	"log.level":       "info",
	"log.development": false,

	"shutdown_timeout": 10 * time.Second,
}

// Load reads .env, an optional config.yaml/config.json and the environment.
// Extra search paths are tried before the built-in ones.
func Load(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.nutricoach")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// AI_API_KEY overrides ai.api_key, STORE_POSTGRES_HOST overrides store.postgres.host
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Process any ${ENV_VAR} syntax in the config values
	for _, key := range v.AllKeys() {
		value, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(value, "}"), "${")
			if envValue := os.Getenv(envVar); envValue != "" {
				v.Set(key, envValue)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings every entry point depends on.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "postgres", "sqlite":
	default:
		return fmt.Errorf("store.driver must be memory, postgres or sqlite, got %q", c.Store.Driver)
	}
	if c.Auth.MinLatency < 0 || c.Auth.MaxLatency < c.Auth.MinLatency {
		return fmt.Errorf("auth latency range [%s, %s] is invalid", c.Auth.MinLatency, c.Auth.MaxLatency)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured")
	}
	if c.AI.APIKey == "" {
		return errors.New("ai.api_key is not configured")
	}
	return nil
}
