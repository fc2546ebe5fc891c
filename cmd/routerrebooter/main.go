package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"routerrebooter/internal/config"
	"routerrebooter/internal/history"
	"routerrebooter/internal/netif"
	"routerrebooter/internal/probe"
	"routerrebooter/internal/rebooter"
	"routerrebooter/internal/relay"
	"routerrebooter/internal/server"
)

// Exit codes distinguish usage errors and a missing interface for supervisors.
const (
	exitFailure       = 1
	exitUsage         = 2
	exitInterfaceDown = 5
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(os.Stderr, "ERROR :: %s: %v\n\n%s\n", cmd.CommandPath(), err, cmd.UsageString())
	return &exitError{code: exitUsage, err: err}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "routerrebooter",
		Short: "Power-cycle the home router when the internet is down",
		Long: `Monitors network connectivity with pings to public addresses. If the internet
is down, reboots the home router by pulsing a GPIO pin that toggles the relay
supplying power to the router.

Events are logged to stderr. This program runs in the foreground; use
supervisord or systemd to run it as a daemon.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file (YAML)")
	flags := config.RegisterFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return usageError(cmd, err)
		}
		flags.Apply(&cfg)
		if err := config.Validate(&cfg); err != nil {
			return usageError(cmd, err)
		}
		logger, err := newLogger(cfg.LogLevel)
		if err != nil {
			return usageError(cmd, err)
		}
		return run(cfg, logger)
	}

	cmd.AddCommand(newPulseCmd(), newHashPasswordCmd())
	return cmd
}

func newLogger(level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(lvl)
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	return logger, nil
}

func run(cfg config.Config, logger *log.Logger) error {
	inspector := netif.New()
	var (
		source   probe.SourceFunc
		verifier rebooter.InterfaceVerifier
	)
	if !cfg.SkipInterfaceCheck {
		verifier = inspector
		source = func() (net.IP, error) { return inspector.IPv4(cfg.Interface) }
	}

	prober, err := newProber(cfg, source)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	checker := probe.NewChecker(cfg.Targets, cfg.Policy, cfg.PingTimeout, prober)

	pin, err := openPin(cfg.RelayGPIOPin, cfg.DryRun, logger)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	rly := relay.New(pin, logger)
	defer func() {
		if err := rly.Close(); err != nil {
			logger.WithError(err).Error("release relay pin")
		}
	}()

	recorder := history.NewRecorder(cfg.Status.HistoryLimit)
	loop := rebooter.New(rebooter.SettingsFrom(cfg), checker, rly, verifier, recorder, logger.WithField("interface", cfg.Interface))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Status.Addr != "" {
		srv := server.New(cfg.Status, loop, recorder, logger.WithField("component", "status"))
		go func() {
			logger.Infof("status API listening on %s", cfg.Status.Addr)
			if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("status server stopped")
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("status server shutdown")
			}
		}()
	}

	if err := loop.Run(ctx); err != nil {
		if errors.Is(err, rebooter.ErrInterfaceUnavailable) {
			logger.Errorf("interface %s doesn't exist or isn't up; check `ip link` output", cfg.Interface)
			return &exitError{code: exitInterfaceDown, err: err}
		}
		return &exitError{code: exitFailure, err: err}
	}
	logger.Info("shutting down")
	return nil
}

// newProber builds the configured prober. ICMP sockets are opened once up
// front so a permission problem stops the daemon instead of reading as an
// outage on every check.
func newProber(cfg config.Config, source probe.SourceFunc) (probe.Prober, error) {
	if cfg.Method == config.MethodTCP {
		return probe.NewTCPProber(cfg.TCPPort, source), nil
	}
	p := probe.NewICMPProber(cfg.Privileged, source, cfg.PingCount)
	if err := p.Preflight(); err != nil {
		return nil, fmt.Errorf("icmp probe unavailable (set privileged or method tcp): %w", err)
	}
	return p, nil
}

func openPin(n int, dryRun bool, logger *log.Logger) (relay.Pin, error) {
	if dryRun {
		logger.Warnf("dry run: GPIO%d will not be driven", n)
		return relay.NewDryRunPin(n, logger), nil
	}
	pin, err := relay.Open(n)
	if err != nil {
		return nil, fmt.Errorf("open relay pin: %w", err)
	}
	return pin, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitFailure
		var ee *exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		if code != exitUsage {
			log.Error(err)
		}
		os.Exit(code)
	}
}
