package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/fluxbase-eu/bundlesize/internal/observability"
)

// DefaultExternals are left out of every bundle and assumed to be provided by the host page.
// Mostly UI runtime libraries that only ship commonJS.
var DefaultExternals = []string{
	"hoist-non-react-statics",
	"prop-types",
	"react",
	"react-dom",
	"react-is",
	"scheduler",
}

// Config represents the application configuration
type Config struct {
	Server   ServerConfig               `mapstructure:"server"`
	Registry RegistryConfig             `mapstructure:"registry"`
	Bundler  BundlerConfig              `mapstructure:"bundler"`
	Metrics  MetricsConfig              `mapstructure:"metrics"`
	Tracing  observability.TracerConfig `mapstructure:"tracing"`
	Debug    bool                       `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address          string        `mapstructure:"address"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	BodyLimit        int           `mapstructure:"body_limit"`
	MessageSizeLimit int64         `mapstructure:"message_size_limit"` // max inbound WebSocket message
	BundleRateLimit  int           `mapstructure:"bundle_rate_limit"`  // bundle requests per minute per IP, 0 = unlimited
}

// RegistryConfig contains package registry settings
type RegistryConfig struct {
	URL          string        `mapstructure:"url"`           // e.g. https://unpkg.com
	UserAgent    string        `mapstructure:"user_agent"`    // sent with every fetch
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"` // 0 = no timeout
	RateLimit    float64       `mapstructure:"rate_limit"`    // fetches per second, 0 = unlimited
	RateBurst    int           `mapstructure:"rate_burst"`
}

// BundlerConfig contains bundling pipeline settings
type BundlerConfig struct {
	Externals []string `mapstructure:"externals"`
	Mangle    bool     `mapstructure:"mangle"` // default for the CLI when --mangle is not given
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	viper.SetConfigName("bundlesize")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/bundlesize")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("BUNDLESIZE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("No config file found, using environment variables and defaults")
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

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
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

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "120s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.body_limit", 4*1024*1024)
	viper.SetDefault("server.message_size_limit", 4*1024*1024)
	viper.SetDefault("server.bundle_rate_limit", 60)

	// Registry defaults
	viper.SetDefault("registry.url", "https://unpkg.com")
	viper.SetDefault("registry.user_agent", "bundlesize")
	viper.SetDefault("registry.fetch_timeout", "0s")
	viper.SetDefault("registry.rate_limit", 0)
	viper.SetDefault("registry.rate_burst", 16)

	// Bundler defaults
	viper.SetDefault("bundler.externals", DefaultExternals)
	viper.SetDefault("bundler.mangle", true)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Tracing defaults
	tracing := observability.DefaultTracerConfig()
	viper.SetDefault("tracing.enabled", tracing.Enabled)
	viper.SetDefault("tracing.endpoint", tracing.Endpoint)
	viper.SetDefault("tracing.service_name", tracing.ServiceName)
	viper.SetDefault("tracing.environment", tracing.Environment)
	viper.SetDefault("tracing.sample_rate", tracing.SampleRate)
	viper.SetDefault("tracing.insecure", tracing.Insecure)

	viper.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration error: %w", err)
	}
	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("registry configuration error: %w", err)
	}
	if err := c.Bundler.Validate(); err != nil {
		return fmt.Errorf("bundler configuration error: %w", err)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with '/'")
	}
	if c.Tracing.Enabled && (c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1) {
		return fmt.Errorf("tracing sample_rate must be between 0.0 and 1.0")
	}
	return nil
}

// Validate validates server configuration
func (sc *ServerConfig) Validate() error {
	if sc.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if sc.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}
	if sc.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}
	if sc.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive")
	}
	if sc.BodyLimit <= 0 {
		return fmt.Errorf("body_limit must be positive")
	}
	if sc.MessageSizeLimit <= 0 {
		return fmt.Errorf("message_size_limit must be positive")
	}
	if sc.BundleRateLimit < 0 {
		return fmt.Errorf("bundle_rate_limit cannot be negative")
	}
	return nil
}

// Validate validates registry configuration
func (rc *RegistryConfig) Validate() error {
	if rc.URL == "" {
		return fmt.Errorf("registry url cannot be empty")
	}
	u, err := url.Parse(rc.URL)
	if err != nil {
		return fmt.Errorf("invalid registry url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("registry url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("registry url must include a host")
	}
	if rc.FetchTimeout < 0 {
		return fmt.Errorf("fetch_timeout cannot be negative")
	}
	if rc.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative")
	}
	if rc.RateLimit > 0 && rc.RateBurst <= 0 {
		return fmt.Errorf("rate_burst must be positive when rate_limit is set")
	}
	return nil
}

// BaseURL returns the registry URL without a trailing slash
func (rc *RegistryConfig) BaseURL() string {
	return strings.TrimRight(rc.URL, "/")
}

// Validate validates bundler configuration
func (bc *BundlerConfig) Validate() error {
	for _, name := range bc.Externals {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("externals cannot contain empty module names")
		}
		if strings.HasPrefix(name, ".") {
			return fmt.Errorf("external %q must be a bare module name", name)
		}
	}
	return nil
}
