package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	App      AppConfig
	MarketDB MarketDBConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Escrow   EscrowConfig
	Webhook  WebhookConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"market-escrow-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	LoginKey    string `envconfig:"LOGIN_KEY" default:""` // Admin login key
	AdminIDs    string `envconfig:"ADMIN_IDS" default:""` // Comma-separated user ids notified of new orders
}

// MarketDBConfig holds market database settings.
type MarketDBConfig struct {
	Type string `envconfig:"MARKET_DB_TYPE" default:"sqlite"` // sqlite or mysql
	Path string `envconfig:"MARKET_DB_PATH" default:"./data/market.db"`
	// MySQL settings
	Host     string `envconfig:"MARKET_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"MARKET_DB_PORT" default:"3306"`
	Name     string `envconfig:"MARKET_DB_NAME" default:"market"`
	User     string `envconfig:"MARKET_DB_USER" default:"root"`
	Password string `envconfig:"MARKET_DB_PASS" default:""`
}

// CacheConfig holds Redis settings for admin sessions.
type CacheConfig struct {
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// StorageConfig holds uploaded file storage settings.
type StorageConfig struct {
	Dir string `envconfig:"STORAGE_DIR" default:"./storage"`
}

// EscrowConfig holds escrow sweeper settings.
type EscrowConfig struct {
	SweepInterval time.Duration `envconfig:"ESCROW_SWEEP_INTERVAL" default:"30s"`
}

// WebhookConfig holds the outbound relay settings.
type WebhookConfig struct {
	URL     string        `envconfig:"WEBHOOK_URL" default:""`
	Timeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"30s"`
}

// MySQLDSN returns the MySQL data source name.
func (m *MarketDBConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		m.User, m.Password, m.Host, m.Port, m.Name)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// AdminIDList parses ADMIN_IDS into user ids, skipping malformed entries.
func (a *AppConfig) AdminIDList() []int64 {
	var ids []int64
	for _, part := range strings.Split(a.AdminIDs, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
