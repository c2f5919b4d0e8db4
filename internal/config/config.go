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
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Browser BrowserConfig `yaml:"browser" mapstructure:"browser"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CatalogConfig points at the source catalog file.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// FetchConfig configures static HTTP acquisition and article extraction.
type FetchConfig struct {
	TimeoutSecs     int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxLinks        int `yaml:"max_links" mapstructure:"max_links"`
	FeedItems       int `yaml:"feed_items" mapstructure:"feed_items"`
	RatePerHost     int `yaml:"rate_per_host" mapstructure:"rate_per_host"`
	MinArticleChars int `yaml:"min_article_chars" mapstructure:"min_article_chars"`
}

// BrowserConfig configures headless-browser acquisition.
type BrowserConfig struct {
	NavTimeoutSecs    int `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	ChallengeAttempts int `yaml:"challenge_attempts" mapstructure:"challenge_attempts"`
	ChallengeWaitSecs int `yaml:"challenge_wait_secs" mapstructure:"challenge_wait_secs"`
}

// RetryConfig configures the per-source retry loop.
type RetryConfig struct {
	MaxAttempts        int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffSecs int `yaml:"initial_backoff_secs" mapstructure:"initial_backoff_secs"`
}

// MetricsConfig configures the derived-metrics engine.
type MetricsConfig struct {
	BetaWindow       int   `yaml:"beta_window" mapstructure:"beta_window"`
	LeadLagWindow    int   `yaml:"lead_lag_window" mapstructure:"lead_lag_window"`
	LeadLagMaxLag    int   `yaml:"lead_lag_max_lag" mapstructure:"lead_lag_max_lag"`
	MomentumHorizons []int `yaml:"momentum_horizons" mapstructure:"momentum_horizons"`
}

// ServerConfig configures the read-only reporting API.
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
	v.SetEnvPrefix("MARKETBI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "data/marketbi.db")
	v.SetDefault("catalog.path", "sources.yaml")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_links", 5)
	v.SetDefault("fetch.feed_items", 10)
	v.SetDefault("fetch.rate_per_host", 4)
	v.SetDefault("fetch.min_article_chars", 150)
	v.SetDefault("browser.nav_timeout_secs", 60)
	v.SetDefault("browser.challenge_attempts", 5)
	v.SetDefault("browser.challenge_wait_secs", 5)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_secs", 2)
	v.SetDefault("metrics.beta_window", 90)
	v.SetDefault("metrics.lead_lag_window", 24)
	v.SetDefault("metrics.lead_lag_max_lag", 6)
	v.SetDefault("metrics.momentum_horizons", []int{5, 20, 60})
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
