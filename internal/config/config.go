package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from a YAML string like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// Service describes a single monitored dependency.
type Service struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Target   string `yaml:"target"`
	Critical bool   `yaml:"critical"`
}

// Thresholds holds the alert trigger levels.
type Thresholds struct {
	ConsecutiveFailures int      `yaml:"consecutive_failures"`
	ErrorRate           float64  `yaml:"error_rate"`
	SlowResponse        Duration `yaml:"slow_response"`
}

// AlertsConfig holds alert dedup and retention windows.
type AlertsConfig struct {
	Cooloff   Duration `yaml:"cooloff"`
	Retention Duration `yaml:"retention"`
}

// NotifyConfig holds notification channel credentials. An empty value
// disables the corresponding channel.
type NotifyConfig struct {
	SlackWebhookURL     string `yaml:"slack_webhook_url"`
	PagerDutyRoutingKey string `yaml:"pagerduty_routing_key"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// StorageConfig holds the probe-history log settings. An empty path
// disables the log.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the root application configuration.
type Config struct {
	Interval   Duration      `yaml:"interval"`
	Timeout    Duration      `yaml:"timeout"`
	Thresholds Thresholds    `yaml:"thresholds"`
	Alerts     AlertsConfig  `yaml:"alerts"`
	Notify     NotifyConfig  `yaml:"notify"`
	Server     ServerConfig  `yaml:"server"`
	Storage    StorageConfig `yaml:"storage"`
	Log        LogConfig     `yaml:"log"`
	Services   []Service     `yaml:"services"`
}

var validKinds = map[string]bool{
	"http": true,
	"tcp":  true,
}

// Load reads, parses, and validates the config file at path, then applies
// DEPWATCH_* environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Interval: Duration{30 * time.Second},
		Timeout:  Duration{5 * time.Second},
		Thresholds: Thresholds{
			ConsecutiveFailures: 3,
			ErrorRate:           0.10,
			SlowResponse:        Duration{5 * time.Second},
		},
		Alerts: AlertsConfig{
			Cooloff:   Duration{5 * time.Minute},
			Retention: Duration{time.Hour},
		},
		Server:  ServerConfig{Address: ":8080"},
		Storage: StorageConfig{Path: "depwatch.db"},
		Log:     LogConfig{Level: "info"},
	}
}

func (c *Config) validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("at least one service must be configured")
	}
	if c.Interval.Duration <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.Timeout.Duration <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Thresholds.ConsecutiveFailures < 1 {
		return fmt.Errorf("thresholds.consecutive_failures must be at least 1")
	}
	if c.Thresholds.ErrorRate <= 0 || c.Thresholds.ErrorRate >= 1 {
		return fmt.Errorf("thresholds.error_rate must be between 0 and 1")
	}

	names := make(map[string]bool, len(c.Services))
	for i, svc := range c.Services {
		if svc.Name == "" {
			return fmt.Errorf("service[%d]: name is required", i)
		}
		if names[svc.Name] {
			return fmt.Errorf("duplicate service name %q", svc.Name)
		}
		names[svc.Name] = true

		if svc.Target == "" {
			return fmt.Errorf("service %q: target is required", svc.Name)
		}
		if !validKinds[svc.Kind] {
			return fmt.Errorf("service %q: invalid kind %q (must be http or tcp)", svc.Name, svc.Kind)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if err := envDuration("DEPWATCH_INTERVAL", &cfg.Interval); err != nil {
		return err
	}
	if err := envDuration("DEPWATCH_TIMEOUT", &cfg.Timeout); err != nil {
		return err
	}
	if v := os.Getenv("DEPWATCH_CONSECUTIVE_FAILURES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DEPWATCH_CONSECUTIVE_FAILURES: invalid value %q: %w", v, err)
		}
		cfg.Thresholds.ConsecutiveFailures = n
	}
	if v := os.Getenv("DEPWATCH_ERROR_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DEPWATCH_ERROR_RATE: invalid value %q: %w", v, err)
		}
		cfg.Thresholds.ErrorRate = f
	}
	if err := envDuration("DEPWATCH_SLOW_RESPONSE", &cfg.Thresholds.SlowResponse); err != nil {
		return err
	}
	if err := envDuration("DEPWATCH_ALERT_COOLOFF", &cfg.Alerts.Cooloff); err != nil {
		return err
	}
	if err := envDuration("DEPWATCH_ALERT_RETENTION", &cfg.Alerts.Retention); err != nil {
		return err
	}
	if v := os.Getenv("DEPWATCH_SLACK_WEBHOOK_URL"); v != "" {
		cfg.Notify.SlackWebhookURL = v
	}
	if v := os.Getenv("DEPWATCH_PAGERDUTY_ROUTING_KEY"); v != "" {
		cfg.Notify.PagerDutyRoutingKey = v
	}
	if v := os.Getenv("DEPWATCH_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v, ok := os.LookupEnv("DEPWATCH_STORAGE_PATH"); ok {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("DEPWATCH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DEPWATCH_LOG_FORMAT"); v != "" {
		cfg.Log.JSON = strings.EqualFold(v, "json")
	}
	return nil
}

func envDuration(key string, dst *Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", key, v, err)
	}
	dst.Duration = d
	return nil
}
