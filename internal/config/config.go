package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Report    ReportConfig    `yaml:"report"`
	Export    ExportConfig    `yaml:"export"`
	GeoIP     GeoIPConfig     `yaml:"geoip"`
	Insights  InsightsConfig  `yaml:"insights"`
}

type ServerConfig struct {
	HTTPPort  int             `yaml:"http_port"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	// RequestsPerSecond per client IP; 0 disables limiting
	RequestsPerSecond int `yaml:"requests_per_second"`
	// Backend is memory or redis. The redis backend shares counters
	// between instances and uses storage.redis for its connection.
	Backend string `yaml:"backend"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type StorageConfig struct {
	// Driver is one of memory, sqlite, redis or none
	Driver string       `yaml:"driver"`
	SQLite SQLiteConfig `yaml:"sqlite"`
	Redis  RedisConfig  `yaml:"redis"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type TrackerConfig struct {
	// SessionPolicy is auto_start or drop
	SessionPolicy string `yaml:"session_policy"`
	InitialPath   string `yaml:"initial_path"`
}

type DashboardConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	Timezone string        `yaml:"timezone"`
}

type ReportConfig struct {
	// Kind is summary, http or anthropic
	Kind      string          `yaml:"kind"`
	Endpoint  string          `yaml:"endpoint"`
	Timeout   time.Duration   `yaml:"timeout"`
	TimeRange string          `yaml:"time_range"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	// Schedule is a cron spec (e.g. "@weekly") for periodic reports written
	// to OutputDir. Empty disables scheduling.
	Schedule  string `yaml:"schedule"`
	OutputDir string `yaml:"output_dir"`
}

type AnthropicConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
}

type ExportConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
	NATS  NATSConfig  `yaml:"nats"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type GeoIPConfig struct {
	DatabasePath string `yaml:"database_path"`
}

type InsightsConfig struct {
	RageClick  RageClickConfig  `yaml:"rage_click"`
	DeadClick  DeadClickConfig  `yaml:"dead_click"`
	ErrorClick ErrorClickConfig `yaml:"error_click"`
	UTurn      UTurnConfig      `yaml:"u_turn"`
	SlowPage   SlowPageConfig   `yaml:"slow_page"`
}

type RageClickConfig struct {
	MinClicks    int   `yaml:"min_clicks"`
	TimeWindowMs int64 `yaml:"time_window_ms"`
}

type DeadClickConfig struct {
	ObservationWindowMs int64 `yaml:"observation_window_ms"`
}

type ErrorClickConfig struct {
	ErrorWindowMs int64 `yaml:"error_window_ms"`
}

type UTurnConfig struct {
	MaxTimeAwayMs int64 `yaml:"max_time_away_ms"`
}

type SlowPageConfig struct {
	LCPThresholdMs  int64 `yaml:"lcp_threshold_ms"`
	TTFBThresholdMs int64 `yaml:"ttfb_threshold_ms"`
}

// Load reads the YAML file at path, expands environment variables and fills
// in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes YAML configuration data and applies defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()
	return &cfg, nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

func (cfg *Config) setDefaults() {
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.RateLimit.Backend == "" {
		cfg.Server.RateLimit.Backend = "memory"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/logflow.db"
	}
	if cfg.Storage.Redis.KeyPrefix == "" {
		cfg.Storage.Redis.KeyPrefix = "logflow:"
	}
	if cfg.Tracker.SessionPolicy == "" {
		cfg.Tracker.SessionPolicy = "auto_start"
	}
	if cfg.Tracker.InitialPath == "" {
		cfg.Tracker.InitialPath = "/"
	}
	if cfg.Dashboard.Debounce == 0 {
		cfg.Dashboard.Debounce = 500 * time.Millisecond
	}
	if cfg.Dashboard.Timezone == "" {
		cfg.Dashboard.Timezone = "Local"
	}
	if cfg.Report.Kind == "" {
		cfg.Report.Kind = "summary"
	}
	if cfg.Report.Timeout == 0 {
		cfg.Report.Timeout = 30 * time.Second
	}
	if cfg.Report.TimeRange == "" {
		cfg.Report.TimeRange = "last 7 days"
	}
	if cfg.Report.OutputDir == "" {
		cfg.Report.OutputDir = "data/reports"
	}
	if cfg.Report.Anthropic.Model == "" {
		cfg.Report.Anthropic.Model = "claude-3-5-sonnet-20241022"
	}
	if cfg.Report.Anthropic.MaxTokens == 0 {
		cfg.Report.Anthropic.MaxTokens = 2048
	}
	if cfg.Export.Kafka.Topic == "" {
		cfg.Export.Kafka.Topic = "logflow.events"
	}
	if cfg.Export.NATS.SubjectPrefix == "" {
		cfg.Export.NATS.SubjectPrefix = "logflow.events"
	}
	cfg.Insights.SetDefaults()
}

// SetDefaults fills zero thresholds with the detector defaults
func (c *InsightsConfig) SetDefaults() {
	if c.RageClick.MinClicks == 0 {
		c.RageClick.MinClicks = 3
	}
	if c.RageClick.TimeWindowMs == 0 {
		c.RageClick.TimeWindowMs = 1000
	}
	if c.DeadClick.ObservationWindowMs == 0 {
		c.DeadClick.ObservationWindowMs = 2000
	}
	if c.ErrorClick.ErrorWindowMs == 0 {
		c.ErrorClick.ErrorWindowMs = 2000
	}
	if c.UTurn.MaxTimeAwayMs == 0 {
		c.UTurn.MaxTimeAwayMs = 10000
	}
	if c.SlowPage.LCPThresholdMs == 0 {
		c.SlowPage.LCPThresholdMs = 2500
	}
	if c.SlowPage.TTFBThresholdMs == 0 {
		c.SlowPage.TTFBThresholdMs = 800
	}
}

// Location resolves the dashboard timezone, falling back to time.Local
func (c DashboardConfig) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
