// Package rebooter runs the check, decide, pulse, sleep loop.
package rebooter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"routerrebooter/internal/config"
	"routerrebooter/internal/history"
	"routerrebooter/internal/models"
)

var (
	// ErrCooldown rejects a manual reboot requested too soon after the previous one.
	ErrCooldown = errors.New("reboot cooldown in effect")
	// ErrNotRunning is returned by RequestReboot once the loop has stopped.
	ErrNotRunning = errors.New("control loop is not running")
	// ErrInterfaceUnavailable wraps interface verification failures in Run.
	ErrInterfaceUnavailable = errors.New("probe interface unavailable")
)

// Checker reports whether the internet is reachable.
type Checker interface {
	Check(ctx context.Context) models.ConnectivityStatus
}

// Pulser power-cycles the router.
type Pulser interface {
	Pulse(ctx context.Context, d time.Duration) error
}

// InterfaceVerifier confirms the probe interface is usable before the loop starts.
type InterfaceVerifier interface {
	Verify(name string) error
}

// Settings is the runtime subset of config.Config the loop needs.
type Settings struct {
	Interface               string
	PingInterval            time.Duration
	PostRebootInterval      time.Duration
	PostRebootLimitInterval time.Duration
	PulseFor                time.Duration
	FailureThreshold        int
	RebootLimit             int
	Pin                     int
}

// SettingsFrom extracts loop settings from a validated configuration.
func SettingsFrom(cfg config.Config) Settings {
	return Settings{
		Interface:               cfg.Interface,
		PingInterval:            cfg.PingInterval,
		PostRebootInterval:      cfg.PostRebootInterval,
		PostRebootLimitInterval: cfg.PostRebootLimitInterval,
		PulseFor:                cfg.PulseFor,
		FailureThreshold:        cfg.FailureThreshold,
		RebootLimit:             cfg.RebootLimit,
		Pin:                     cfg.RelayGPIOPin,
	}
}

type manualResult struct {
	event models.RebootEvent
	err   error
}

// Rebooter owns the relay and the ConnectivityState. Only the goroutine
// running Run touches the relay; other goroutines read snapshots or queue
// manual requests.
type Rebooter struct {
	settings Settings
	checker  Checker
	relay    Pulser
	verifier InterfaceVerifier
	recorder *history.Recorder
	log      logrus.FieldLogger

	mu    sync.RWMutex
	state models.ConnectivityState

	manual chan chan manualResult
	done   chan struct{}
	now    func() time.Time
}

// New wires a rebooter. verifier may be nil to skip the interface check.
func New(settings Settings, checker Checker, relay Pulser, verifier InterfaceVerifier, recorder *history.Recorder, log logrus.FieldLogger) *Rebooter {
	if settings.FailureThreshold < 1 {
		settings.FailureThreshold = 1
	}
	if recorder == nil {
		recorder = history.NewRecorder(1)
	}
	return &Rebooter{
		settings: settings,
		checker:  checker,
		relay:    relay,
		verifier: verifier,
		recorder: recorder,
		log:      log,
		manual:   make(chan chan manualResult),
		done:     make(chan struct{}),
		now:      time.Now,
	}
}

// Snapshot returns a copy of the current state.
func (r *Rebooter) Snapshot() models.ConnectivityState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := r.state
	if st.LastStatus != nil {
		status := *st.LastStatus
		st.LastStatus = &status
	}
	return st
}

// Run verifies the interface, waits one ping interval, then loops until ctx
// is cancelled. A cancelled context is a clean exit; relay failures are fatal.
func (r *Rebooter) Run(ctx context.Context) error {
	defer close(r.done)

	if r.verifier != nil {
		if err := r.verifier.Verify(r.settings.Interface); err != nil {
			return fmt.Errorf("%w: %w", ErrInterfaceUnavailable, err)
		}
	}

	r.log.Info("router rebooter started")
	r.log.Infof("first check in %s", r.settings.PingInterval)

	wait := r.settings.PingInterval
	for {
		if err := r.sleep(ctx, wait); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		next, err := r.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		wait = next
	}
}

// Step runs one check and acts on it. It returns how long to wait before the
// next check: the ping interval normally, the post-reboot interval after a
// pulse (the cooldown), or the post-limit interval after hitting the limit.
func (r *Rebooter) Step(ctx context.Context) (time.Duration, error) {
	status := r.checker.Check(ctx)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.recorder.RecordSample(status)

	r.mu.Lock()
	st := &r.state
	st.LastCheck = r.now()
	st.LastStatus = &status

	if status.OK {
		recovered := st.RebootAttempts > 0 || st.LimitReached
		st.RebootAttempts = 0
		st.LimitReached = false
		st.ConsecutiveFailures = 0
		r.mu.Unlock()
		if recovered {
			r.log.Info("network is back up")
		}
		r.log.WithFields(logrus.Fields{"target": status.Target, "latency_ms": status.LatencyMs}).Debug("network is up")
		return r.settings.PingInterval, nil
	}

	st.ConsecutiveFailures++
	failures := st.ConsecutiveFailures
	log := r.log.WithFields(logrus.Fields{"failures": failures, "error": status.Error})

	if failures < r.settings.FailureThreshold {
		r.mu.Unlock()
		log.Warnf("network check failed (%d/%d)", failures, r.settings.FailureThreshold)
		return r.settings.PingInterval, nil
	}

	if r.settings.RebootLimit > 0 && st.RebootAttempts >= r.settings.RebootLimit {
		st.RebootAttempts = 0
		st.LimitReached = true
		r.mu.Unlock()
		log.Warnf("reached reboot limit of %d attempts", r.settings.RebootLimit)
		log.Warnf("sleeping for %s", r.settings.PostRebootLimitInterval)
		return r.settings.PostRebootLimitInterval, nil
	}
	attempt := st.RebootAttempts + 1
	r.mu.Unlock()

	log.Warnf("network appears down, pulsing GPIO pin %d", r.settings.Pin)
	if _, err := r.pulse(ctx, attempt, models.RebootReasonConnectivity); err != nil {
		return 0, err
	}
	r.log.Infof("this is reboot attempt %d", attempt)
	return r.settings.PostRebootInterval, nil
}

// RequestReboot asks the running loop to pulse the relay now. It blocks until
// the loop serves the request, which may take until the current check ends.
func (r *Rebooter) RequestReboot(ctx context.Context) (models.RebootEvent, error) {
	reply := make(chan manualResult, 1)
	select {
	case r.manual <- reply:
	case <-r.done:
		return models.RebootEvent{}, ErrNotRunning
	case <-ctx.Done():
		return models.RebootEvent{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.event, res.err
	case <-ctx.Done():
		return models.RebootEvent{}, ctx.Err()
	}
}

// sleep waits d while serving manual reboot requests. An accepted manual
// reboot restarts the wait with the post-reboot interval.
func (r *Rebooter) sleep(ctx context.Context, d time.Duration) error {
	r.setNextCheck(d)
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case reply := <-r.manual:
			event, err := r.manualReboot(ctx)
			reply <- manualResult{event: event, err: err}
			if errors.Is(err, ErrCooldown) {
				continue
			}
			if err != nil {
				return err
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(r.settings.PostRebootInterval)
			r.setNextCheck(r.settings.PostRebootInterval)
		}
	}
}

func (r *Rebooter) manualReboot(ctx context.Context) (models.RebootEvent, error) {
	r.mu.RLock()
	last := r.state.LastReboot
	r.mu.RUnlock()

	if !last.IsZero() && r.now().Before(last.Add(r.settings.PostRebootInterval)) {
		r.log.Warn("manual reboot rejected: cooldown in effect")
		return models.RebootEvent{}, ErrCooldown
	}
	r.log.Warnf("manual reboot requested, pulsing GPIO pin %d", r.settings.Pin)
	return r.pulse(ctx, 0, models.RebootReasonManual)
}

func (r *Rebooter) pulse(ctx context.Context, attempt int, reason models.RebootReason) (models.RebootEvent, error) {
	event := models.RebootEvent{
		At:          r.now(),
		Attempt:     attempt,
		Pin:         r.settings.Pin,
		PulseMillis: r.settings.PulseFor.Milliseconds(),
		Reason:      reason,
	}
	err := r.relay.Pulse(ctx, r.settings.PulseFor)
	if err != nil {
		event.Error = err.Error()
	}
	r.recorder.RecordReboot(event)
	if err != nil {
		return event, fmt.Errorf("pulse relay: %w", err)
	}

	r.mu.Lock()
	r.state.LastReboot = event.At
	r.state.ConsecutiveFailures = 0
	if attempt > 0 {
		r.state.RebootAttempts = attempt
	}
	r.mu.Unlock()
	return event, nil
}

func (r *Rebooter) setNextCheck(d time.Duration) {
	r.mu.Lock()
	r.state.NextCheck = r.now().Add(d)
	r.mu.Unlock()
}
