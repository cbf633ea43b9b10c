// Package config loads riverflow configuration and initialises logging.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/abelzeko/riverflow/internal/polling"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	USGS        USGSConfig        `yaml:"usgs" mapstructure:"usgs"`
	Scrape      ScrapeConfig      `yaml:"scrape" mapstructure:"scrape"`
	Ingest      IngestConfig      `yaml:"ingest" mapstructure:"ingest"`
	Polling     PollingConfig     `yaml:"polling" mapstructure:"polling"`
	Condition   ConditionConfig   `yaml:"condition" mapstructure:"condition"`
	Referencing ReferencingConfig `yaml:"referencing" mapstructure:"referencing"`
	Telegram    TelegramConfig    `yaml:"telegram" mapstructure:"telegram"`
	Metrics     MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// USGSConfig configures the NWIS instantaneous-values client.
type USGSConfig struct {
	BaseURL            string  `yaml:"base_url" mapstructure:"base_url"`
	BatchSize          int     `yaml:"batch_size" mapstructure:"batch_size"`
	TimeoutSecs        int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond  float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BreakerFailures    uint32  `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerTimeoutSecs int     `yaml:"breaker_timeout_secs" mapstructure:"breaker_timeout_secs"`
}

// ScrapeConfig configures the HTML gauge table source.
type ScrapeConfig struct {
	URL             string `yaml:"url" mapstructure:"url"`
	SiteColumn      int    `yaml:"site_column" mapstructure:"site_column"`
	HeightColumn    int    `yaml:"height_column" mapstructure:"height_column"`
	DischargeColumn int    `yaml:"discharge_column" mapstructure:"discharge_column"`
	MetricUnits     bool   `yaml:"metric_units" mapstructure:"metric_units"`
	TimeZone        string `yaml:"time_zone" mapstructure:"time_zone"`
}

// IngestConfig configures the ingestion worker pool.
type IngestConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// PollingConfig configures the adaptive polling rule and its schedules.
type PollingConfig struct {
	RateThresholdFtPerHour float64 `yaml:"rate_threshold_ft_per_hour" mapstructure:"rate_threshold_ft_per_hour"`
	LookbackMinutes        int     `yaml:"lookback_minutes" mapstructure:"lookback_minutes"`
	NormalSchedule         string  `yaml:"normal_schedule" mapstructure:"normal_schedule"`
	HighSchedule           string  `yaml:"high_schedule" mapstructure:"high_schedule"`
}

// Rule returns the rate-of-change rule for the polling package.
func (p PollingConfig) Rule() polling.Config {
	return polling.Config{
		RateThresholdFtPerHour: p.RateThresholdFtPerHour,
		Lookback:               time.Duration(p.LookbackMinutes) * time.Minute,
	}
}

// ConditionConfig configures reading freshness.
type ConditionConfig struct {
	StaleAfterHours float64 `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
}

// StaleAfter returns the staleness window as a duration.
func (c ConditionConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterHours * float64(time.Hour))
}

// ReferencingConfig configures data-quality warnings from the referencing engine.
type ReferencingConfig struct {
	OffLineWarningMiles float64 `yaml:"off_line_warning_miles" mapstructure:"off_line_warning_miles"`
}

// TelegramConfig holds the bot token and the chat receiving alerts.
type TelegramConfig struct {
	Token       string `yaml:"token" mapstructure:"token"`
	AlertChatID int64  `yaml:"alert_chat_id" mapstructure:"alert_chat_id"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
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
	v.SetEnvPrefix("RIVERFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	if err := cfg.Polling.Rule().Validate(); err != nil {
		return nil, eris.Wrap(err, "config: polling")
	}

	return &cfg, nil
}

// Correction tolerance is intentionally absent: callers must pass it per run.
func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/riverflow.db")
	v.SetDefault("usgs.base_url", "https://waterservices.usgs.gov/nwis/iv/")
	v.SetDefault("usgs.batch_size", 100)
	v.SetDefault("usgs.timeout_secs", 30)
	v.SetDefault("usgs.requests_per_second", 5)
	v.SetDefault("usgs.breaker_failures", 3)
	v.SetDefault("usgs.breaker_timeout_secs", 300)
	v.SetDefault("scrape.site_column", 0)
	v.SetDefault("scrape.height_column", 1)
	v.SetDefault("scrape.discharge_column", 2)
	v.SetDefault("scrape.metric_units", true)
	v.SetDefault("scrape.time_zone", "UTC")
	v.SetDefault("ingest.workers", 8)
	v.SetDefault("polling.rate_threshold_ft_per_hour", 0.5)
	v.SetDefault("polling.lookback_minutes", 60)
	v.SetDefault("polling.normal_schedule", "0 * * * *")
	v.SetDefault("polling.high_schedule", "*/15 * * * *")
	v.SetDefault("condition.stale_after_hours", 24)
	v.SetDefault("referencing.off_line_warning_miles", 0.25)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
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
