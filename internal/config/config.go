package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of the dashboard service. Values are resolved
// in order: defaults, the YAML file named by DASHBOARD_CONFIG, then
// environment variables (including a local .env file).
type Config struct {
	HTTPAddr string         `yaml:"http_addr"`
	Log      LogConfig      `yaml:"log"`
	Market   MarketConfig   `yaml:"market"`
	Session  SessionConfig  `yaml:"session"`
	Firebase FirebaseConfig `yaml:"firebase"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// MarketConfig configures the market-data client and its cache policies.
type MarketConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	VsCurrency        string        `yaml:"vs_currency"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	PerPage           int           `yaml:"per_page"`
	OverviewLimit     int           `yaml:"overview_limit"`

	StaleTime                 time.Duration `yaml:"stale_time"`
	RefetchInterval           time.Duration `yaml:"refetch_interval"`
	GlobalStaleTime           time.Duration `yaml:"global_stale_time"`
	GlobalRefetchInterval     time.Duration `yaml:"global_refetch_interval"`
	CategoriesStaleTime       time.Duration `yaml:"categories_stale_time"`
	CategoriesRefetchInterval time.Duration `yaml:"categories_refetch_interval"`
	HistoryStaleTime          time.Duration `yaml:"history_stale_time"`
	SearchStaleTime           time.Duration `yaml:"search_stale_time"`
	UnusedEntryRetention      time.Duration `yaml:"unused_entry_retention"`
}

type SessionConfig struct {
	CookieName string        `yaml:"cookie_name"`
	TTL        time.Duration `yaml:"ttl"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	Secure     bool          `yaml:"secure"`
}

type FirebaseConfig struct {
	CredentialsPath string `yaml:"credentials_path"`
	CredentialsJSON string `yaml:"credentials_json"`
	APIKey          string `yaml:"api_key"`
}

// Enabled reports whether enough is configured to reach the identity provider.
func (c FirebaseConfig) Enabled() bool {
	return (c.CredentialsPath != "" || c.CredentialsJSON != "") && c.APIKey != ""
}

type DatabaseConfig struct {
	URL               string        `yaml:"url"`
	MaxConns          int32         `yaml:"max_conns"`
	MinConns          int32         `yaml:"min_conns"`
	MaxConnLifetime   time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `yaml:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `yaml:"health_check_period"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		Log:      LogConfig{Level: "info", Format: "text"},
		Market: MarketConfig{
			BaseURL:                   "https://api.coingecko.com/api/v3",
			VsCurrency:                "usd",
			RequestsPerSecond:         0.5,
			Timeout:                   10 * time.Second,
			PerPage:                   50,
			OverviewLimit:             100,
			StaleTime:                 10 * time.Second,
			RefetchInterval:           30 * time.Second,
			GlobalStaleTime:           30 * time.Second,
			GlobalRefetchInterval:     60 * time.Second,
			CategoriesStaleTime:       5 * time.Minute,
			CategoriesRefetchInterval: 5 * time.Minute,
			HistoryStaleTime:          5 * time.Minute,
			SearchStaleTime:           30 * time.Second,
			UnusedEntryRetention:      5 * time.Minute,
		},
		Session: SessionConfig{
			CookieName: "__session",
			TTL:        5 * 24 * time.Hour,
			CacheTTL:   5 * time.Minute,
		},
		Database: DatabaseConfig{
			MaxConns:          10,
			MinConns:          2,
			MaxConnLifetime:   30 * time.Minute,
			MaxConnIdleTime:   5 * time.Minute,
			HealthCheckPeriod: 30 * time.Second,
		},
	}
}

// Load resolves the configuration from file and environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("DASHBOARD_CONFIG")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks that every interval and size is usable.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("http address is required")
	}
	m := c.Market
	if !strings.HasPrefix(m.BaseURL, "http://") && !strings.HasPrefix(m.BaseURL, "https://") {
		return fmt.Errorf("invalid market base URL: %q", m.BaseURL)
	}
	if m.VsCurrency == "" {
		return errors.New("vs currency is required")
	}
	if m.PerPage < 1 || m.PerPage > 250 {
		return fmt.Errorf("per page must be in [1, 250], got %d", m.PerPage)
	}
	if m.OverviewLimit < 1 || m.OverviewLimit > 250 {
		return fmt.Errorf("overview limit must be in [1, 250], got %d", m.OverviewLimit)
	}
	if m.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"timeout":            m.Timeout,
		"stale time":         m.StaleTime,
		"global stale time":  m.GlobalStaleTime,
		"categories stale":   m.CategoriesStaleTime,
		"history stale time": m.HistoryStaleTime,
		"search stale time":  m.SearchStaleTime,
		"refetch interval":   m.RefetchInterval,
		"global refetch":     m.GlobalRefetchInterval,
		"categories refetch": m.CategoriesRefetchInterval,
		"session ttl":        c.Session.TTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	if c.Session.CookieName == "" {
		return errors.New("session cookie name is required")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("db min conns (%d) exceeds max conns (%d)", c.Database.MinConns, c.Database.MaxConns)
	}
	return nil
}

// overrideWithEnv applies environment variables on top of c.
func (c *Config) overrideWithEnv() {
	envString("HTTP_ADDR", &c.HTTPAddr)
	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FORMAT", &c.Log.Format)

	envString("COINGECKO_BASE_URL", &c.Market.BaseURL)
	envString("COINGECKO_API_KEY", &c.Market.APIKey)
	envFloat("COINGECKO_RPS", &c.Market.RequestsPerSecond)
	envDuration("COINGECKO_TIMEOUT", &c.Market.Timeout)
	envString("VS_CURRENCY", &c.Market.VsCurrency)
	envInt("MARKET_PER_PAGE", &c.Market.PerPage)
	envDuration("MARKET_STALE_TIME", &c.Market.StaleTime)
	envDuration("MARKET_REFETCH_INTERVAL", &c.Market.RefetchInterval)
	envDuration("GLOBAL_STALE_TIME", &c.Market.GlobalStaleTime)
	envDuration("GLOBAL_REFETCH_INTERVAL", &c.Market.GlobalRefetchInterval)
	envDuration("CATEGORIES_STALE_TIME", &c.Market.CategoriesStaleTime)
	envDuration("CATEGORIES_REFETCH_INTERVAL", &c.Market.CategoriesRefetchInterval)
	envDuration("HISTORY_STALE_TIME", &c.Market.HistoryStaleTime)
	envDuration("SEARCH_STALE_TIME", &c.Market.SearchStaleTime)

	envString("SESSION_COOKIE_NAME", &c.Session.CookieName)
	envDuration("SESSION_TTL", &c.Session.TTL)
	envDuration("SESSION_CACHE_TTL", &c.Session.CacheTTL)
	envBool("SESSION_COOKIE_SECURE", &c.Session.Secure)

	envString("FIREBASE_CREDENTIALS_PATH", &c.Firebase.CredentialsPath)
	envString("FIREBASE_CREDENTIALS_JSON", &c.Firebase.CredentialsJSON)
	envString("FIREBASE_API_KEY", &c.Firebase.APIKey)

	envString("DATABASE_URL", &c.Database.URL)
	envInt32("DB_MAX_CONNS", &c.Database.MaxConns)
	envInt32("DB_MIN_CONNS", &c.Database.MinConns)
	envDuration("DB_MAX_CONN_LIFETIME", &c.Database.MaxConnLifetime)
	envDuration("DB_MAX_CONN_IDLE_TIME", &c.Database.MaxConnIdleTime)
	envDuration("DB_HEALTHCHECK_PERIOD", &c.Database.HealthCheckPeriod)

	envString("REDIS_ADDR", &c.Redis.Addr)
	envString("REDIS_PASSWORD", &c.Redis.Password)
	envInt("REDIS_DB", &c.Redis.DB)
}

// The env helpers leave dst untouched when the variable is unset or unparsable.

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt32(key string, dst *int32) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
