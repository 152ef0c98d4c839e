package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Edge   EdgeConfig   `yaml:"edge" mapstructure:"edge"`
	DB     DBConfig     `yaml:"db" mapstructure:"db"`
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Retry  RetryConfig  `yaml:"retry" mapstructure:"retry"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`

	// TuningPath points at the per-family tuning file (families.yaml).
	// Empty means built-in defaults.
	TuningPath string `yaml:"tuning_path" mapstructure:"tuning_path"`
}

// EdgeConfig configures the primary aggregation endpoint client.
type EdgeConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey    string  `yaml:"api_key" mapstructure:"api_key"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// DBConfig configures the direct-read Postgres connection.
type DBConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CacheConfig configures the session dimension cache.
type CacheConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `yaml:"driver" mapstructure:"driver"`
	Path   string `yaml:"path" mapstructure:"path"`
}

// BatchConfig configures the raw tier's batching.
type BatchConfig struct {
	ProfileSize    int `yaml:"profile_size" mapstructure:"profile_size"`
	DetailSize     int `yaml:"detail_size" mapstructure:"detail_size"`
	Window         int `yaml:"window" mapstructure:"window"`
	WindowDelayMS  int `yaml:"window_delay_ms" mapstructure:"window_delay_ms"`
	IdentityRowCap int `yaml:"identity_row_cap" mapstructure:"identity_row_cap"`
	DetailRowCap   int `yaml:"detail_row_cap" mapstructure:"detail_row_cap"`
}

// RetryConfig configures the caller-side retry policy.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("KPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("edge.rate_limit", 10)
	v.SetDefault("edge.rate_burst", 10)
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.path", "kpi-session-cache.db")
	v.SetDefault("batch.profile_size", 100)
	v.SetDefault("batch.detail_size", 50)
	v.SetDefault("batch.window", 3)
	v.SetDefault("batch.window_delay_ms", 50)
	v.SetDefault("batch.identity_row_cap", 5000)
	v.SetDefault("batch.detail_row_cap", 2000)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
