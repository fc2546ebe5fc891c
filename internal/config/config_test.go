package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.NoError(t, Validate(&cfg))
}

func TestLoad_OverridesOnlyPresentKeys(t *testing.T) {
	path := writeConfig(t, `
interface: eth0
targets: [9.9.9.9]
ping_interval: 30s
reboot_limit: 0
status:
  addr: ":8080"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "eth0", cfg.Interface)
	assert.Equal(t, []string{"9.9.9.9"}, cfg.Targets)
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
	assert.Equal(t, 0, cfg.RebootLimit, "explicit zero means unlimited")
	assert.Equal(t, 21, cfg.RelayGPIOPin)
	assert.Equal(t, 2*time.Second, cfg.PulseFor)
	assert.Equal(t, ":8080", cfg.Status.Addr)
	assert.Equal(t, "admin", cfg.Status.Username)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "targets: [unterminated")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"pin zero", func(c *Config) { c.RelayGPIOPin = 0 }},
		{"pin too high", func(c *Config) { c.RelayGPIOPin = MaxGPIOPin + 1 }},
		{"pulse not positive", func(c *Config) { c.PulseFor = 0 }},
		{"ping interval too short", func(c *Config) { c.PingInterval = 500 * time.Millisecond }},
		{"post reboot shorter than ping", func(c *Config) { c.PostRebootInterval = 10 * time.Second }},
		{"limit interval shorter than post reboot", func(c *Config) { c.PostRebootLimitInterval = time.Minute }},
		{"negative limit", func(c *Config) { c.RebootLimit = -1 }},
		{"zero threshold", func(c *Config) { c.FailureThreshold = 0 }},
		{"no targets", func(c *Config) { c.Targets = nil }},
		{"blank target", func(c *Config) { c.Targets = []string{"1.1.1.1", " "} }},
		{"bad policy", func(c *Config) { c.Policy = "most" }},
		{"bad method", func(c *Config) { c.Method = "http" }},
		{"bad tcp port", func(c *Config) { c.Method = MethodTCP; c.TCPPort = 70000 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.Error(t, Validate(&cfg))
		})
	}
}

func TestValidate_EdgeValuesAccepted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RelayGPIOPin = MaxGPIOPin
	cfg.PingInterval = MinPingInterval
	cfg.PostRebootInterval = MinPingInterval
	cfg.PostRebootLimitInterval = MinPingInterval
	cfg.RebootLimit = 0
	assert.NoError(t, Validate(&cfg))
}

func TestFlags_ApplyOnlyChanged(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-p", "17", "--target", "9.9.9.9", "--target", "1.0.0.1", "--dry-run"}))

	cfg := DefaultConfig()
	cfg.Interface = "eth0"
	cfg.PulseFor = 5 * time.Second
	flags.Apply(&cfg)

	assert.Equal(t, 17, cfg.RelayGPIOPin)
	assert.Equal(t, []string{"9.9.9.9", "1.0.0.1"}, cfg.Targets)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "eth0", cfg.Interface, "unset flag must not override file value")
	assert.Equal(t, 5*time.Second, cfg.PulseFor)
}
