package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinPingInterval is the shortest accepted interval between checks.
const MinPingInterval = time.Second

// Validate checks configuration correctness.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg.RelayGPIOPin < 1 || cfg.RelayGPIOPin > MaxGPIOPin {
		return fmt.Errorf("relay_gpio_pin must be an integer between 1 and %d", MaxGPIOPin)
	}
	if cfg.PulseFor <= 0 {
		return errors.New("pulse_for must be a positive duration")
	}
	if cfg.PingInterval < MinPingInterval {
		return fmt.Errorf("ping_interval should be at least %s", MinPingInterval)
	}
	if cfg.PostRebootInterval < cfg.PingInterval {
		return errors.New("post_reboot_interval needs to be longer than ping_interval")
	}
	if cfg.PostRebootLimitInterval < cfg.PostRebootInterval {
		return errors.New("post_reboot_limit_interval needs to be longer than post_reboot_interval")
	}
	if cfg.RebootLimit < 0 {
		return errors.New("reboot_limit cannot be negative (use 0 to retry indefinitely)")
	}
	if cfg.FailureThreshold < 1 {
		return errors.New("failure_threshold must be at least 1")
	}
	if len(cfg.Targets) == 0 {
		return errors.New("configuration must define at least one target")
	}
	for i, t := range cfg.Targets {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("target %d is empty", i)
		}
	}
	switch cfg.Policy {
	case PolicyAny, PolicyAll:
	default:
		return fmt.Errorf("policy %q must be %q or %q", cfg.Policy, PolicyAny, PolicyAll)
	}
	switch cfg.Method {
	case MethodICMP, MethodTCP:
	default:
		return fmt.Errorf("method %q must be %q or %q", cfg.Method, MethodICMP, MethodTCP)
	}
	if cfg.PingTimeout <= 0 {
		return errors.New("ping_timeout must be a positive duration")
	}
	if cfg.Method == MethodTCP && (cfg.TCPPort < 1 || cfg.TCPPort > 65535) {
		return fmt.Errorf("tcp_port %d out of range", cfg.TCPPort)
	}
	if !cfg.SkipInterfaceCheck && strings.TrimSpace(cfg.Interface) == "" {
		return errors.New("interface is required")
	}
	return nil
}
