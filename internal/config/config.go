package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxGPIOPin is the highest BCM pin exposed on the Raspberry Pi header.
const MaxGPIOPin = 27

// Probe methods.
const (
	MethodICMP = "icmp"
	MethodTCP  = "tcp"
)

// Success policies for a round of probes.
const (
	PolicyAny = "any"
	PolicyAll = "all"
)

// Config represents configuration data for the rebooter.
type Config struct {
	Interface          string   `yaml:"interface"`
	SkipInterfaceCheck bool     `yaml:"skip_interface_check"`
	Targets            []string `yaml:"targets"`

	PingInterval time.Duration `yaml:"ping_interval"`
	PingTimeout  time.Duration `yaml:"ping_timeout"`
	PingCount    int           `yaml:"ping_count"`
	Method       string        `yaml:"method"`
	Privileged   bool          `yaml:"privileged"`
	TCPPort      int           `yaml:"tcp_port"`
	Policy       string        `yaml:"policy"`

	FailureThreshold        int           `yaml:"failure_threshold"`
	PostRebootInterval      time.Duration `yaml:"post_reboot_interval"`
	RebootLimit             int           `yaml:"reboot_limit"`
	PostRebootLimitInterval time.Duration `yaml:"post_reboot_limit_interval"`

	RelayGPIOPin int           `yaml:"relay_gpio_pin"`
	PulseFor     time.Duration `yaml:"pulse_for"`
	DryRun       bool          `yaml:"dry_run"`

	LogLevel string       `yaml:"log_level"`
	Status   StatusConfig `yaml:"status"`
}

// StatusConfig controls the optional HTTP status surface.
type StatusConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	PasswordHash string        `yaml:"password_hash"`
	HistoryLimit int           `yaml:"history_limit"`
	PushInterval time.Duration `yaml:"push_interval"`
}

// DefaultConfig returns the defaults used when no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		Interface:               "wlan0",
		Targets:                 []string{"1.1.1.1", "4.2.2.2", "8.8.8.8"},
		PingInterval:            15 * time.Second,
		PingTimeout:             2 * time.Second,
		PingCount:               5,
		Method:                  MethodICMP,
		TCPPort:                 53,
		Policy:                  PolicyAny,
		FailureThreshold:        1,
		PostRebootInterval:      5 * time.Minute,
		RebootLimit:             3,
		PostRebootLimitInterval: 3 * time.Hour,
		RelayGPIOPin:            21,
		PulseFor:                2 * time.Second,
		LogLevel:                "info",
		Status: StatusConfig{
			Username:     "admin",
			HistoryLimit: 2048,
			PushInterval: 15 * time.Second,
		},
	}
}

// Load reads configuration from a yaml file. Missing files fall back to defaults.
// Keys absent from the file keep their default values.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	normalize(&cfg)
	return cfg, nil
}

// normalize fills in values that have no meaningful zero.
func normalize(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.Interface == "" {
		cfg.Interface = defaults.Interface
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaults.PingTimeout
	}
	if cfg.PingCount <= 0 {
		cfg.PingCount = defaults.PingCount
	}
	if cfg.Method == "" {
		cfg.Method = defaults.Method
	}
	if cfg.TCPPort <= 0 {
		cfg.TCPPort = defaults.TCPPort
	}
	if cfg.Policy == "" {
		cfg.Policy = defaults.Policy
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	if cfg.Status.Username == "" {
		cfg.Status.Username = defaults.Status.Username
	}
	if cfg.Status.HistoryLimit <= 0 {
		cfg.Status.HistoryLimit = defaults.Status.HistoryLimit
	}
	if cfg.Status.PushInterval <= 0 {
		cfg.Status.PushInterval = defaults.Status.PushInterval
	}
}
