package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/fluxbase-eu/tabulate/internal/pagination"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Pagination pagination.Limits `mapstructure:"pagination"`
	Search     SearchConfig      `mapstructure:"search"`
	Filter     FilterConfig      `mapstructure:"filter"`
	Resources  ResourcesConfig   `mapstructure:"resources"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Tracing    TracingConfig     `mapstructure:"tracing"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Debug      bool              `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address       string        `mapstructure:"address"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	BodyLimit     int           `mapstructure:"body_limit"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`

	// RateLimitMax caps listing requests per client and resource within
	// RateLimitWindow. Zero disables limiting.
	RateLimitMax    int           `mapstructure:"rate_limit_max"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`

	// RateLimitStore is "memory" or "redis"; redis shares counters between instances.
	RateLimitStore    string `mapstructure:"rate_limit_store"`
	RateLimitRedisURL string `mapstructure:"rate_limit_redis_url"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// SearchConfig sets the default search parameter for resources that do not name one
type SearchConfig struct {
	Param string `mapstructure:"param"`
}

// FilterConfig holds filter compilation switches
type FilterConfig struct {
	// LegacyGreaterThan compiles gt as NOT (field < value), which also matches equal values.
	LegacyGreaterThan bool `mapstructure:"legacy_gt"`
}

// ResourcesConfig points at the resource catalogue
type ResourcesConfig struct {
	Path string `mapstructure:"path"`
	// ReloadSchedule is a cron expression ("@every 1m", "*/5 * * * *") for
	// re-reading the catalogue. Empty disables reloading.
	ReloadSchedule string `mapstructure:"reload_schedule"`
}

// AuthConfig guards the listing API with HS256 bearer tokens
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
}

// TracingConfig contains OpenTelemetry export settings
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// MetricsConfig contains Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	viper.SetConfigName("tabulate")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/tabulate")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("TABULATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Info().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Info().Str("file", viper.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from the first .env file found
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
		"../.env",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Info().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.body_limit", 1024*1024) // 1MB
	viper.SetDefault("server.slow_threshold", "1s")
	viper.SetDefault("server.rate_limit_max", 0)
	viper.SetDefault("server.rate_limit_window", "1m")
	viper.SetDefault("server.rate_limit_store", "memory")
	viper.SetDefault("server.rate_limit_redis_url", "")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.database", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.min_connections", 5)
	viper.SetDefault("database.max_conn_lifetime", "1h")
	viper.SetDefault("database.max_conn_idle_time", "30m")
	viper.SetDefault("database.query_timeout", "30s")

	// Listing defaults
	viper.SetDefault("pagination.default_per_page", pagination.DefaultPerPage)
	viper.SetDefault("pagination.max_per_page", pagination.MaxPerPage)
	viper.SetDefault("search.param", "q")
	viper.SetDefault("filter.legacy_gt", false)
	viper.SetDefault("resources.path", "./resources.yaml")
	viper.SetDefault("resources.reload_schedule", "")

	// Auth defaults
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwt_secret", "")
	viper.SetDefault("auth.issuer", "tabulate")
	viper.SetDefault("auth.audience", "")

	// Observability defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4317")
	viper.SetDefault("tracing.service_name", "tabulate")
	viper.SetDefault("tracing.environment", "development")
	viper.SetDefault("tracing.sample_rate", 1.0)
	viper.SetDefault("tracing.insecure", true)
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration error: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database configuration error: %w", err)
	}
	if err := c.Pagination.Validate(); err != nil {
		return fmt.Errorf("pagination configuration error: %w", err)
	}
	if strings.TrimSpace(c.Search.Param) == "" {
		return fmt.Errorf("search param cannot be empty")
	}
	if strings.TrimSpace(c.Resources.Path) == "" {
		return fmt.Errorf("resources path is required")
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth configuration error: %w", err)
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing configuration error: %w", err)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with /")
	}
	return nil
}

// Validate validates server configuration
func (sc *ServerConfig) Validate() error {
	if sc.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if sc.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive, got: %v", sc.ReadTimeout)
	}
	if sc.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got: %v", sc.WriteTimeout)
	}
	if sc.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got: %v", sc.IdleTimeout)
	}
	if sc.BodyLimit <= 0 {
		return fmt.Errorf("body_limit must be positive, got: %d", sc.BodyLimit)
	}
	if sc.SlowThreshold < 0 {
		return fmt.Errorf("slow_threshold cannot be negative, got: %v", sc.SlowThreshold)
	}
	if sc.RateLimitMax < 0 {
		return fmt.Errorf("rate_limit_max cannot be negative, got: %d", sc.RateLimitMax)
	}
	if sc.RateLimitMax > 0 && sc.RateLimitWindow <= 0 {
		return fmt.Errorf("rate_limit_window must be positive when rate limiting is enabled")
	}
	switch sc.RateLimitStore {
	case "", "memory":
	case "redis":
		if sc.RateLimitRedisURL == "" {
			return fmt.Errorf("rate_limit_redis_url is required when rate_limit_store is redis")
		}
	default:
		return fmt.Errorf("invalid rate_limit_store: %s (must be one of: memory, redis)", sc.RateLimitStore)
	}
	return nil
}

// Validate validates database configuration
func (dc *DatabaseConfig) Validate() error {
	if dc.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if dc.Port < 1 || dc.Port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535, got: %d", dc.Port)
	}
	if dc.User == "" {
		return fmt.Errorf("database user is required")
	}
	if dc.Database == "" {
		return fmt.Errorf("database name is required")
	}

	switch dc.SSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("invalid ssl_mode: %s (must be one of: disable, allow, prefer, require, verify-ca, verify-full)", dc.SSLMode)
	}

	if dc.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got: %d", dc.MaxConnections)
	}
	if dc.MinConnections < 0 {
		return fmt.Errorf("min_connections cannot be negative, got: %d", dc.MinConnections)
	}
	if dc.MaxConnections < dc.MinConnections {
		return fmt.Errorf("max_connections (%d) must be greater than or equal to min_connections (%d)", dc.MaxConnections, dc.MinConnections)
	}
	if dc.QueryTimeout < 0 {
		return fmt.Errorf("query_timeout cannot be negative, got: %v", dc.QueryTimeout)
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (dc *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		dc.User, dc.Password, dc.Host, dc.Port, dc.Database, dc.SSLMode)
}

// Validate validates tracing configuration
func (tc *TracingConfig) Validate() error {
	if !tc.Enabled {
		return nil
	}
	if tc.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}
	if tc.SampleRate < 0 || tc.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0.0 and 1.0, got: %f", tc.SampleRate)
	}
	return nil
}

// Validate validates auth configuration
func (ac *AuthConfig) Validate() error {
	if !ac.Enabled {
		return nil
	}
	if ac.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required when auth is enabled")
	}
	if len(ac.JWTSecret) < 32 {
		return fmt.Errorf("jwt_secret must be at least 32 characters, got: %d", len(ac.JWTSecret))
	}
	return nil
}
