package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
	Portal    PortalConfig    `mapstructure:"portal"`
	Grid      GridConfig      `mapstructure:"grid"`
	Download  DownloadConfig  `mapstructure:"download"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Geocode   GeocodeConfig   `mapstructure:"geocode"`
	Paths     PathsConfig     `mapstructure:"paths"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	OTLPAddr    string `mapstructure:"otlp_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PortalConfig describes how to talk to the map portal.
type PortalConfig struct {
	APIURL          string        `mapstructure:"api_url"`
	TokenPattern    string        `mapstructure:"token_pattern"`
	TokenParam      string        `mapstructure:"token_param"`
	ConsentSelector string        `mapstructure:"consent_selector"`
	TokenAttempts   int           `mapstructure:"token_attempts"`
	TokenWait       time.Duration `mapstructure:"token_wait"`
	PageTimeout     time.Duration `mapstructure:"page_timeout"`
	LayerKeyword    string        `mapstructure:"layer_keyword"`
	Headless        bool          `mapstructure:"headless"`
	UserAgent       string        `mapstructure:"user_agent"`
}

// GridConfig bounds the cell-size search.
type GridConfig struct {
	TargetCount   int `mapstructure:"target_count"`
	MinStep       int `mapstructure:"min_step"`
	MaxStep       int `mapstructure:"max_step"`
	StepIncrement int `mapstructure:"step_increment"`
}

// DownloadConfig tunes the batch orchestrator and reconciliation loop.
type DownloadConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	Concurrency  int           `mapstructure:"concurrency"`
	Pace         time.Duration `mapstructure:"pace"`
	FeatureLimit int           `mapstructure:"feature_limit"`
	StablePolls  int           `mapstructure:"stable_polls"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
	MaxPasses    int           `mapstructure:"max_passes"`
	PassPause    time.Duration `mapstructure:"pass_pause"`
	FetchMode    string        `mapstructure:"fetch_mode"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
}

type IngestConfig struct {
	StorageSRID  int    `mapstructure:"storage_srid"`
	GeometryType string `mapstructure:"geometry_type"`
}

type GeocodeConfig struct {
	Provider  string        `mapstructure:"provider"`
	URL       string        `mapstructure:"url"`
	UserAgent string        `mapstructure:"user_agent"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

type PathsConfig struct {
	OutputRoot string `mapstructure:"output_root"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	return LoadWithFlags(service, nil)
}

// LoadWithFlags is Load with command-line flags layered on top. A flag
// overrides the key it is named after, e.g. --download.max_passes, but only
// when it was set explicitly.
func LoadWithFlags(service string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, eris.Wrap(err, "bind flags")
		}
	}

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: BEACON_DATABASE_HOST → database.host
	v.SetEnvPrefix("BEACON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "scraper")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.task_queue", "beacon-layers")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_addr", "localhost:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("portal.api_url", "https://beacon.schneidercorp.com/api/beaconCore/GetVectorLayer")
	v.SetDefault("portal.token_pattern", `(?i)/GetVectorLayer\?QPS=`)
	v.SetDefault("portal.token_param", "QPS")
	v.SetDefault("portal.consent_selector", "a.btn.btn-primary.button-1")
	v.SetDefault("portal.token_attempts", 10)
	v.SetDefault("portal.token_wait", 2*time.Second)
	v.SetDefault("portal.page_timeout", 30*time.Second)
	v.SetDefault("portal.layer_keyword", "zoning")
	v.SetDefault("portal.headless", true)
	v.SetDefault("portal.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	v.SetDefault("grid.target_count", 3000)
	v.SetDefault("grid.min_step", 500)
	v.SetDefault("grid.max_step", 4500)
	v.SetDefault("grid.step_increment", 100)

	v.SetDefault("download.batch_size", 250)
	v.SetDefault("download.concurrency", 5)
	v.SetDefault("download.pace", 300*time.Millisecond)
	v.SetDefault("download.feature_limit", 1500)
	v.SetDefault("download.stable_polls", 3)
	v.SetDefault("download.poll_interval", 5*time.Second)
	v.SetDefault("download.max_wait", 120*time.Second)
	v.SetDefault("download.max_passes", 10)
	v.SetDefault("download.pass_pause", 3*time.Second)
	v.SetDefault("download.fetch_mode", "browser")
	v.SetDefault("download.http_timeout", 60*time.Second)

	v.SetDefault("ingest.storage_srid", 4326)
	v.SetDefault("ingest.geometry_type", "MULTIPOLYGON")

	v.SetDefault("geocode.provider", "google")
	v.SetDefault("geocode.url", "https://user.zoneomics.com/geoCode")
	v.SetDefault("geocode.user_agent", "beacon-scraper")
	v.SetDefault("geocode.cache_ttl", 24*time.Hour)

	v.SetDefault("paths.output_root", "output")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.Portal.APIURL == "" {
		errs = append(errs, "portal.api_url is required")
	}
	if c.Portal.TokenAttempts <= 0 {
		errs = append(errs, "portal.token_attempts must be positive")
	}
	if c.Grid.TargetCount <= 0 {
		errs = append(errs, "grid.target_count must be positive")
	}
	if c.Grid.MinStep <= 0 || c.Grid.MaxStep < c.Grid.MinStep {
		errs = append(errs, fmt.Sprintf("grid step range invalid: %d-%d", c.Grid.MinStep, c.Grid.MaxStep))
	}
	if c.Grid.StepIncrement <= 0 {
		errs = append(errs, "grid.step_increment must be positive")
	}
	if c.Download.BatchSize <= 0 {
		errs = append(errs, "download.batch_size must be positive")
	}
	if c.Download.Concurrency <= 0 {
		errs = append(errs, "download.concurrency must be positive")
	}
	if c.Download.MaxPasses <= 0 {
		errs = append(errs, "download.max_passes must be positive")
	}
	switch c.Download.FetchMode {
	case "browser", "http":
	default:
		errs = append(errs, fmt.Sprintf("download.fetch_mode must be browser or http, got %q", c.Download.FetchMode))
	}
	switch c.Geocode.Provider {
	case "google", "nominatim":
	default:
		errs = append(errs, fmt.Sprintf("geocode.provider must be google or nominatim, got %q", c.Geocode.Provider))
	}
	if c.Paths.OutputRoot == "" {
		errs = append(errs, "paths.output_root is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
