package config

import (
	"github.com/spf13/pflag"
)

// Flags holds command line overrides for a Config.
// Only flags that were explicitly set are applied.
type Flags struct {
	fs   *pflag.FlagSet
	vals Config
}

// RegisterFlags adds the rebooter's flags to fs, using DefaultConfig for help text.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs, vals: DefaultConfig()}
	v := &f.vals

	fs.StringVarP(&v.Interface, "interface", "I", v.Interface,
		"Which interface pings are sent on to determine if the network is up.")
	fs.BoolVar(&v.SkipInterfaceCheck, "skip-interface-check", v.SkipInterfaceCheck,
		"Do not verify that the interface is up at startup.")
	fs.StringSliceVar(&v.Targets, "target", v.Targets,
		"Address to ping; repeat for several targets.")
	fs.DurationVarP(&v.PingInterval, "ping-interval", "t", v.PingInterval,
		"Time between connectivity checks.")
	fs.DurationVar(&v.PingTimeout, "ping-timeout", v.PingTimeout,
		"How long to wait for a reply from each target.")
	fs.StringVar(&v.Method, "method", v.Method,
		"Probe method: icmp or tcp.")
	fs.StringVar(&v.Policy, "policy", v.Policy,
		"Network is up if any or all targets answer.")
	fs.IntVar(&v.FailureThreshold, "failure-threshold", v.FailureThreshold,
		"Consecutive failed checks before the router is rebooted.")
	fs.DurationVarP(&v.PostRebootInterval, "post-reboot-interval", "P", v.PostRebootInterval,
		"How long to wait after rebooting the router before retesting connectivity.")
	fs.IntVarP(&v.RebootLimit, "reboot-limit", "L", v.RebootLimit,
		"How many reboots to attempt before backing off. Set to 0 to retry indefinitely.")
	fs.DurationVarP(&v.PostRebootLimitInterval, "post-reboot-limit-interval", "R", v.PostRebootLimitInterval,
		"After hitting the reboot limit, wait this long before retesting connectivity.")
	fs.IntVarP(&v.RelayGPIOPin, "relay-gpio-pin", "p", v.RelayGPIOPin,
		"Which GPIO pin (BCM) the relay is connected to.")
	fs.DurationVarP(&v.PulseFor, "pulse-for", "s", v.PulseFor,
		"How long to pulse the GPIO pin to reset the router.")
	fs.BoolVar(&v.DryRun, "dry-run", v.DryRun,
		"Log relay pulses instead of driving the GPIO pin.")
	fs.StringVarP(&v.LogLevel, "log-level", "l", v.LogLevel,
		"Log level (debug, info, warn, error).")
	fs.StringVar(&v.Status.Addr, "status-addr", v.Status.Addr,
		"Listen address for the status API; empty disables it.")
	return f
}

// Apply copies every explicitly set flag into cfg.
func (f *Flags) Apply(cfg *Config) {
	v := &f.vals
	f.fs.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "interface":
			cfg.Interface = v.Interface
		case "skip-interface-check":
			cfg.SkipInterfaceCheck = v.SkipInterfaceCheck
		case "target":
			cfg.Targets = append([]string(nil), v.Targets...)
		case "ping-interval":
			cfg.PingInterval = v.PingInterval
		case "ping-timeout":
			cfg.PingTimeout = v.PingTimeout
		case "method":
			cfg.Method = v.Method
		case "policy":
			cfg.Policy = v.Policy
		case "failure-threshold":
			cfg.FailureThreshold = v.FailureThreshold
		case "post-reboot-interval":
			cfg.PostRebootInterval = v.PostRebootInterval
		case "reboot-limit":
			cfg.RebootLimit = v.RebootLimit
		case "post-reboot-limit-interval":
			cfg.PostRebootLimitInterval = v.PostRebootLimitInterval
		case "relay-gpio-pin":
			cfg.RelayGPIOPin = v.RelayGPIOPin
		case "pulse-for":
			cfg.PulseFor = v.PulseFor
		case "dry-run":
			cfg.DryRun = v.DryRun
		case "log-level":
			cfg.LogLevel = v.LogLevel
		case "status-addr":
			cfg.Status.Addr = v.Status.Addr
		}
	})
}
