// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/talbz/holmes-ma/internal/crawl"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig     `mapstructure:"server"`
	Crawler     CrawlerConfig    `mapstructure:"crawler"`
	Output      OutputConfig     `mapstructure:"output"`
	WS          WSConfig         `mapstructure:"ws"`
	DB          DBConfig         `mapstructure:"db"`
	Notify      NotifyConfig     `mapstructure:"notify"`
	Screenshots ScreenshotConfig `mapstructure:"screenshots"`
	Logging     LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs the crawl loop and the scrape collaborator.
type CrawlerConfig struct {
	BaseURL       string       `mapstructure:"base_url"`
	Headless      bool         `mapstructure:"headless"`
	DiscoverClubs bool         `mapstructure:"discover_clubs"`
	Clubs         []crawl.Club `mapstructure:"clubs"`
	NavTimeoutSec int          `mapstructure:"nav_timeout_seconds"`
	UserAgent     string       `mapstructure:"user_agent"`
}

// NavTimeout returns the page navigation timeout as a duration.
func (c CrawlerConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// OutputConfig sets where schedule JSONL files land and when data counts as
// stale.
type OutputConfig struct {
	Dir       string `mapstructure:"dir"`
	StaleDays int    `mapstructure:"stale_days"`
}

// WSConfig tunes the status broadcaster.
type WSConfig struct {
	ObserverQueueSize int `mapstructure:"observer_queue_size"`
}

// DBConfig controls the optional Postgres crawl-history store.
type DBConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// NotifyConfig controls the optional Pub/Sub crawl-finished notifier.
type NotifyConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// ScreenshotConfig selects where failure screenshots are stored.
type ScreenshotConfig struct {
	// Provider is "local", "gcs", or "off".
	Provider  string `mapstructure:"provider"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HOLMES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that cannot be expressed as defaults.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535], got %d", c.Server.Port)
	}
	if c.Crawler.BaseURL == "" {
		return fmt.Errorf("crawler.base_url is required")
	}
	if !c.Crawler.DiscoverClubs && len(c.Crawler.Clubs) == 0 {
		return fmt.Errorf("crawler.clubs must be set when discovery is disabled")
	}
	for i, club := range c.Crawler.Clubs {
		if club.Name == "" || club.URL == "" {
			return fmt.Errorf("crawler.clubs[%d]: name and url are required", i)
		}
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	if c.DB.Enabled && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required when db.enabled is true")
	}
	if c.Notify.Enabled && (c.Notify.ProjectID == "" || c.Notify.TopicID == "") {
		return fmt.Errorf("notify.project_id and notify.topic_id are required when notify.enabled is true")
	}
	switch c.Screenshots.Provider {
	case "off", "local", "gcs":
	default:
		return fmt.Errorf("screenshots.provider must be off, local, or gcs, got %q", c.Screenshots.Provider)
	}
	if c.Screenshots.Provider == "gcs" && c.Screenshots.GCSBucket == "" {
		return fmt.Errorf("screenshots.gcs_bucket is required for the gcs provider")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("crawler.base_url", "https://www.holmesplace.co.il/")
	v.SetDefault("crawler.headless", true)
	v.SetDefault("crawler.discover_clubs", true)
	v.SetDefault("crawler.nav_timeout_seconds", 10)
	v.SetDefault("crawler.user_agent", "holmes-ma/1.0")
	v.SetDefault("output.dir", "data")
	v.SetDefault("output.stale_days", 7)
	v.SetDefault("ws.observer_queue_size", 256)
	v.SetDefault("db.enabled", false)
	v.SetDefault("notify.enabled", false)
	v.SetDefault("screenshots.provider", "local")
	v.SetDefault("screenshots.dir", "screenshots")
	v.SetDefault("logging.development", false)
}
