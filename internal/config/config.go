package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the fortilog core.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Tailer   TailerConfig   `mapstructure:"tailer"`
	Parser   ParserConfig   `mapstructure:"parser"`
	Store    StoreConfig    `mapstructure:"store"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Dirs     DirsConfig     `mapstructure:"directories"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds PostgreSQL connection settings. The same database backs
// the event store and the externally managed directory tables.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a pgx connection string.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// TailerConfig holds live log source settings.
type TailerConfig struct {
	Path         string        `mapstructure:"path"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff"`
	MaxReopens   int           `mapstructure:"max_reopens"`
}

// ParserConfig holds enrichment settings.
type ParserConfig struct {
	// Overrides maps source IPs or IP prefixes (trailing dot) to fixed display
	// names, replacing hard-coded infrastructure sentinels.
	Overrides map[string]string `mapstructure:"overrides"`

	HostCacheSize int           `mapstructure:"host_cache_size"`
	DNSCacheSize  int           `mapstructure:"dns_cache_size"`
	DNSCacheTTL   time.Duration `mapstructure:"dns_cache_ttl"`
	DNSTimeout    time.Duration `mapstructure:"dns_timeout"`
}

// StoreConfig holds event store write-path and query settings.
type StoreConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	FlushSize     int           `mapstructure:"flush_size"`
	MaxRetries    int           `mapstructure:"max_retries"`
	ExportLimit   int           `mapstructure:"export_limit"`

	// ExcludedSources hides infrastructure IPs or CIDRs from non-elevated queries.
	ExcludedSources []string `mapstructure:"excluded_sources"`
}

// MonitorConfig holds host metrics sampler settings.
type MonitorConfig struct {
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	RingInterval   time.Duration `mapstructure:"ring_interval"`
	DiskPath       string        `mapstructure:"disk_path"`
}

// DirsConfig holds directory snapshot refresh settings.
type DirsConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// AlertsConfig holds alert rule settings.
type AlertsConfig struct {
	CPUThreshold float64       `mapstructure:"cpu_threshold"`
	CPUCooldown  time.Duration `mapstructure:"cpu_cooldown"`
	AuthLogPath  string        `mapstructure:"auth_log_path"`
}

// NATSConfig holds the notification channel settings.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
	Enabled bool   `mapstructure:"enabled"`
}

// RedisConfig holds the optional shared cooldown backend.
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// Load reads configuration from an optional file and FORTILOG_* environment
// variables. Every key carries a default so a bare process can start.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "fortilog")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "fortilog")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("tailer.path", "/opt/fortilog/logs/fortigate.log")
	v.SetDefault("tailer.poll_interval", "250ms")
	v.SetDefault("tailer.max_backoff", "30s")
	v.SetDefault("tailer.max_reopens", 20)

	v.SetDefault("parser.host_cache_size", 10000)
	v.SetDefault("parser.dns_cache_size", 4096)
	v.SetDefault("parser.dns_cache_ttl", "10m")
	v.SetDefault("parser.dns_timeout", "300ms")

	v.SetDefault("store.flush_interval", "2s")
	v.SetDefault("store.flush_size", 50)
	v.SetDefault("store.max_retries", 3)
	v.SetDefault("store.export_limit", 100000)
	v.SetDefault("store.excluded_sources", []string{})

	v.SetDefault("monitor.sample_interval", "2s")
	v.SetDefault("monitor.ring_interval", "60s")
	v.SetDefault("monitor.disk_path", "/")

	v.SetDefault("directories.refresh_interval", "60s")

	v.SetDefault("alerts.cpu_threshold", 90.0)
	v.SetDefault("alerts.cpu_cooldown", "300s")
	v.SetDefault("alerts.auth_log_path", "/var/log/auth.log")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "fortilog.alerts")
	v.SetDefault("nats.enabled", false)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("FORTILOG")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
