package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the cloudauth services.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Gateway     GatewayConfig     `mapstructure:"gateway"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// CacheConfig describes the session cache backend. When Redis is disabled the
// service falls back to the database-backed store, which only suits
// single-instance deployments.
type CacheConfig struct {
	Redis   RedisCacheConfig `mapstructure:"redis"`
	Timeout time.Duration    `mapstructure:"timeout"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT            JWTSettings   `mapstructure:"jwt"`
	Login          LoginSettings `mapstructure:"login"`
	BoundarySecret string        `mapstructure:"boundary_secret"`
}

// JWTSettings configures the token codec.
type JWTSettings struct {
	Secret          string        `mapstructure:"secret"`
	Issuer          string        `mapstructure:"issuer"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// LoginSettings throttles credential guessing.
type LoginSettings struct {
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
}

// GatewayConfig configures the edge gateway binary.
type GatewayConfig struct {
	Port          int             `mapstructure:"port"`
	Allowlist     []string        `mapstructure:"allowlist"`
	Routes        []RouteSettings `mapstructure:"routes"`
	ExpiryWarning time.Duration   `mapstructure:"expiry_warning"`
}

// RouteSettings maps a path prefix to an internal upstream.
type RouteSettings struct {
	Prefix   string `mapstructure:"prefix"`
	Upstream string `mapstructure:"upstream"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// MaintenanceConfig schedules background cleanup.
type MaintenanceConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	PurgeSchedule string `mapstructure:"purge_schedule"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("CLOUDAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/cloudauth.sqlite")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")
	v.SetDefault("cache.timeout", "3s")

	v.SetDefault("auth.jwt.issuer", "cloudauth")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.jwt.refresh_token_ttl", "168h") // 7 days
	v.SetDefault("auth.login.rate_limit", 10)
	v.SetDefault("auth.login.rate_window", "1m")

	v.SetDefault("gateway.port", 8080)
	v.SetDefault("gateway.allowlist", []string{"/auth/login", "/auth/refresh", "/health", "/docs"})
	v.SetDefault("gateway.expiry_warning", "2m")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.purge_schedule", "@hourly")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
