package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds every option the controller core consumes. Values are
// resolved in order: built-in defaults, then the optional YAML file, then
// SIROCCO_* environment variables.
type Config struct {
	// Host is this controller's identity; audit ownership fencing and
	// service registration key off it.
	Host string `yaml:"host" env:"SIROCCO_HOST"`

	// Database backend: "sqlite" (default, embedded) or "postgres".
	DBDialect string `yaml:"db_dialect" env:"SIROCCO_DB_DIALECT"`
	DBDSN     string `yaml:"db_dsn" env:"SIROCCO_DB_DSN"`

	// JournalPath is the bbolt file recording every emitted notification.
	JournalPath string `yaml:"journal_path" env:"SIROCCO_JOURNAL_PATH"`

	// MetricsAddr is the prometheus listen address; empty disables it.
	MetricsAddr string `yaml:"metrics_addr" env:"SIROCCO_METRICS_ADDR"`

	LogLevel string `yaml:"log_level" env:"SIROCCO_LOG_LEVEL"`
	LogJSON  bool   `yaml:"log_json" env:"SIROCCO_LOG_JSON"`

	// HeartbeatInterval is how often the process refreshes its Service row.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"SIROCCO_HEARTBEAT_INTERVAL"`

	// ServiceMonitorInterval drives the monitor tick.
	ServiceMonitorInterval time.Duration `yaml:"service_monitor_interval" env:"SIROCCO_SERVICE_MONITOR_INTERVAL"`

	// ServiceStalenessThreshold: a peer whose heartbeat is older than this
	// is classified FAILED.
	ServiceStalenessThreshold time.Duration `yaml:"service_staleness_threshold" env:"SIROCCO_SERVICE_STALENESS_THRESHOLD"`

	// AuditSchedulerInterval drives the audit engine pickup loop.
	AuditSchedulerInterval time.Duration `yaml:"audit_scheduler_interval" env:"SIROCCO_AUDIT_SCHEDULER_INTERVAL"`

	// ApplierInterval drives the PENDING plan pickup loop.
	ApplierInterval time.Duration `yaml:"applier_interval" env:"SIROCCO_APPLIER_INTERVAL"`

	// ActionEngineWorkerCount bounds concurrent cloud calls per plan.
	ActionEngineWorkerCount int `yaml:"action_engine_worker_count" env:"SIROCCO_ACTION_ENGINE_WORKER_COUNT"`

	// MigrationMaxRetries / MigrationInterval: transient cloud errors are
	// retried this many times with a fixed delay before the action fails.
	MigrationMaxRetries int           `yaml:"migration_max_retries" env:"SIROCCO_MIGRATION_MAX_RETRIES"`
	MigrationInterval   time.Duration `yaml:"migration_interval" env:"SIROCCO_MIGRATION_INTERVAL"`

	// CloudProvider selects the adapter: "openstack" or "fake".
	CloudProvider string `yaml:"cloud_provider" env:"SIROCCO_CLOUD_PROVIDER"`

	// DatasourceAddr is the Prometheus endpoint strategies query for
	// utilization statistics; empty disables the datasource.
	DatasourceAddr string `yaml:"datasource_addr" env:"SIROCCO_DATASOURCE_ADDR"`
}

// Default returns the built-in configuration.
func Default() *Config {
	host, _ := os.Hostname()
	return &Config{
		Host:                      host,
		DBDialect:                 "sqlite",
		DBDSN:                     "sirocco.db",
		JournalPath:               "sirocco-notifications.db",
		MetricsAddr:               ":9322",
		LogLevel:                  "info",
		HeartbeatInterval:         10 * time.Second,
		ServiceMonitorInterval:    30 * time.Second,
		ServiceStalenessThreshold: 60 * time.Second,
		AuditSchedulerInterval:    10 * time.Second,
		ApplierInterval:           5 * time.Second,
		ActionEngineWorkerCount:   4,
		MigrationMaxRetries:       30,
		MigrationInterval:         2 * time.Second,
		CloudProvider:             "openstack",
	}
}

// Load resolves the configuration from defaults, an optional YAML file and
// the environment. An empty path skips the file layer.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations the engines cannot run with.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	switch c.DBDialect {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown db_dialect %q", c.DBDialect)
	}
	if c.ActionEngineWorkerCount < 1 {
		return fmt.Errorf("action_engine_worker_count must be >= 1")
	}
	if c.ServiceStalenessThreshold <= 0 {
		return fmt.Errorf("service_staleness_threshold must be positive")
	}
	switch c.CloudProvider {
	case "openstack", "fake":
	default:
		return fmt.Errorf("unknown cloud_provider %q", c.CloudProvider)
	}
	return nil
}
