package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"routerrebooter/internal/config"
	"routerrebooter/internal/relay"
)

const (
	defaultPulseSeconds = 2.0
	// Longest pulse representable as a time.Duration.
	maxPulseSeconds = float64(math.MaxInt64 / int64(time.Second))
)

// parsePulseArgs validates PIN [SECONDS].
func parsePulseArgs(args []string) (int, time.Duration, error) {
	pin, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, errors.New("PIN_NUM is not an integer")
	}
	if pin < 1 || pin > config.MaxGPIOPin {
		return 0, 0, fmt.Errorf("PIN_NUM must be an integer between 1 and %d", config.MaxGPIOPin)
	}
	seconds := defaultPulseSeconds
	if len(args) > 1 {
		seconds, err = strconv.ParseFloat(args[1], 64)
		if err != nil || seconds <= 0 || math.IsNaN(seconds) || seconds > maxPulseSeconds {
			return 0, 0, errors.New("PULSE_FOR_SECONDS should be a positive number")
		}
	}
	return pin, time.Duration(seconds * float64(time.Second)), nil
}

func newPulseCmd() *cobra.Command {
	var (
		dryRun   bool
		logLevel string
	)
	cmd := &cobra.Command{
		Use:   "pulse PIN_NUM [PULSE_FOR_SECONDS]",
		Short: "Pulse a GPIO pin off -> ON -> off once",
		Long: fmt.Sprintf(`Pulses a GPIO pin (BCM numbering) high for PULSE_FOR_SECONDS (default %g), then low.
PIN_NUM must be between 1 and %d. Timing is done in user space and is not exact.`,
			defaultPulseSeconds, config.MaxGPIOPin),
		Args:          cobra.MinimumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pinNum, d, err := parsePulseArgs(args)
			if err != nil {
				return usageError(cmd, err)
			}
			logger, err := newLogger(logLevel)
			if err != nil {
				return usageError(cmd, err)
			}
			if len(args) > 2 {
				logger.Warnf("unused arguments %s", strings.Join(args[2:], " "))
			}

			pin, err := openPin(pinNum, dryRun, logger)
			if err != nil {
				return &exitError{code: exitFailure, err: err}
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Infof("pulsing %s for %s", pin.Name(), d)
			if err := relay.New(pin, logger).Pulse(ctx, d); err != nil && !errors.Is(err, context.Canceled) {
				return &exitError{code: exitFailure, err: err}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log the pulse instead of driving the pin.")
	cmd.Flags().StringVarP(&logLevel, "log-level", "l", "info", "Log level (debug, info, warn, error).")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its bcrypt hash for status.password_hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				return errors.New("password must not be empty")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
}
