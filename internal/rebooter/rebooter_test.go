package rebooter

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"routerrebooter/internal/history"
	"routerrebooter/internal/models"
	"routerrebooter/internal/relay"
)

type scriptedChecker struct {
	mu      sync.Mutex
	results []bool
	last    bool
}

// Check replays results, then repeats the last one.
func (c *scriptedChecker) Check(context.Context) models.ConnectivityStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.last
	if len(c.results) > 0 {
		ok = c.results[0]
		c.results = c.results[1:]
		c.last = ok
	}
	s := models.ConnectivityStatus{OK: ok, Target: "1.1.1.1", CheckedAt: time.Now()}
	if !ok {
		s.Error = "timeout"
	}
	return s
}

type countingPulser struct {
	mu    sync.Mutex
	count int
	err   error
}

func (p *countingPulser) Pulse(context.Context, time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	return p.err
}

func (p *countingPulser) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

type stubVerifier struct{ err error }

func (v stubVerifier) Verify(string) error { return v.err }

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testSettings() Settings {
	return Settings{
		Interface:               "wlan0",
		PingInterval:            15 * time.Second,
		PostRebootInterval:      5 * time.Minute,
		PostRebootLimitInterval: 3 * time.Hour,
		PulseFor:                time.Millisecond,
		FailureThreshold:        1,
		RebootLimit:             3,
		Pin:                     21,
	}
}

func TestStep_ReachableNeverPulses(t *testing.T) {
	pulser := &countingPulser{}
	r := New(testSettings(), &scriptedChecker{last: true}, pulser, nil, nil, quietLogger())

	for i := 0; i < 10; i++ {
		wait, err := r.Step(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 15*time.Second, wait)
	}
	assert.Equal(t, 0, pulser.Count())
	assert.Equal(t, 0, r.Snapshot().ConsecutiveFailures)
}

func TestStep_ThresholdThenSinglePulse(t *testing.T) {
	settings := testSettings()
	settings.FailureThreshold = 3
	pulser := &countingPulser{}
	recorder := history.NewRecorder(10)
	r := New(settings, &scriptedChecker{last: false}, pulser, nil, recorder, quietLogger())

	for i := 1; i < 3; i++ {
		wait, err := r.Step(context.Background())
		require.NoError(t, err)
		assert.Equal(t, settings.PingInterval, wait)
		assert.Equal(t, i, r.Snapshot().ConsecutiveFailures)
	}
	assert.Equal(t, 0, pulser.Count())

	wait, err := r.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, settings.PostRebootInterval, wait, "pulse is followed by the cooldown")
	assert.Equal(t, 1, pulser.Count())

	st := r.Snapshot()
	assert.Equal(t, 1, st.RebootAttempts)
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.False(t, st.LastReboot.IsZero())
	require.NotNil(t, st.LastStatus)
	assert.False(t, st.LastStatus.OK)

	reboots := recorder.Reboots(0)
	require.Len(t, reboots, 1)
	assert.Equal(t, models.RebootReasonConnectivity, reboots[0].Reason)
	assert.Equal(t, 1, reboots[0].Attempt)
	assert.Len(t, recorder.Samples(0), 3)
}

func TestStep_PinLowAfterPulse(t *testing.T) {
	pin := relay.NewDryRunPin(21, quietLogger())
	r := New(testSettings(), &scriptedChecker{last: false}, relay.New(pin, quietLogger()), nil, nil, quietLogger())

	_, err := r.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, gpio.Low, pin.Level())
}

func TestStep_RebootLimitBackoffAndRecovery(t *testing.T) {
	settings := testSettings()
	settings.RebootLimit = 2
	pulser := &countingPulser{}
	checker := &scriptedChecker{results: []bool{false, false, false, false, true}}
	r := New(settings, checker, pulser, nil, nil, quietLogger())

	waits := make([]time.Duration, 0, 5)
	for i := 0; i < 5; i++ {
		wait, err := r.Step(context.Background())
		require.NoError(t, err)
		waits = append(waits, wait)
		if i == 2 {
			st := r.Snapshot()
			assert.True(t, st.LimitReached)
			assert.Equal(t, 0, st.RebootAttempts)
		}
	}

	assert.Equal(t, []time.Duration{
		settings.PostRebootInterval,
		settings.PostRebootInterval,
		settings.PostRebootLimitInterval,
		settings.PostRebootInterval,
		settings.PingInterval,
	}, waits)
	assert.Equal(t, 3, pulser.Count())

	st := r.Snapshot()
	assert.False(t, st.LimitReached)
	assert.Equal(t, 0, st.RebootAttempts)
}

func TestStep_UnlimitedReboots(t *testing.T) {
	settings := testSettings()
	settings.RebootLimit = 0
	pulser := &countingPulser{}
	r := New(settings, &scriptedChecker{last: false}, pulser, nil, nil, quietLogger())

	for i := 0; i < 6; i++ {
		wait, err := r.Step(context.Background())
		require.NoError(t, err)
		assert.Equal(t, settings.PostRebootInterval, wait)
	}
	assert.Equal(t, 6, pulser.Count())
}

func TestStep_PulseErrorIsFatal(t *testing.T) {
	boom := errors.New("gpio write failed")
	recorder := history.NewRecorder(10)
	r := New(testSettings(), &scriptedChecker{last: false}, &countingPulser{err: boom}, nil, recorder, quietLogger())

	_, err := r.Step(context.Background())
	assert.ErrorIs(t, err, boom)
	require.Len(t, recorder.Reboots(0), 1)
	assert.NotEmpty(t, recorder.Reboots(0)[0].Error)
	assert.True(t, r.Snapshot().LastReboot.IsZero())
}

func TestRun_CooldownAfterPulse(t *testing.T) {
	settings := testSettings()
	settings.PingInterval = 5 * time.Millisecond
	settings.PostRebootInterval = time.Hour
	pulser := &countingPulser{}
	r := New(settings, &scriptedChecker{last: false}, pulser, stubVerifier{}, nil, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx))

	assert.Equal(t, 1, pulser.Count(), "no pulse while cooling down")
	assert.True(t, r.Snapshot().NextCheck.After(time.Now().Add(50*time.Minute)))
}

func TestRun_InterfaceDown(t *testing.T) {
	down := errors.New("interface is not up")
	r := New(testSettings(), &scriptedChecker{}, &countingPulser{}, stubVerifier{err: down}, nil, quietLogger())

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, down)
	assert.ErrorIs(t, err, ErrInterfaceUnavailable)
}

func TestRequestReboot_CooldownAndStop(t *testing.T) {
	settings := testSettings()
	settings.PingInterval = time.Hour
	pulser := &countingPulser{}
	r := New(settings, &scriptedChecker{last: true}, pulser, nil, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(ctx) }()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()

	event, err := r.RequestReboot(reqCtx)
	require.NoError(t, err)
	assert.Equal(t, models.RebootReasonManual, event.Reason)
	assert.Equal(t, 21, event.Pin)
	assert.Equal(t, 1, pulser.Count())

	_, err = r.RequestReboot(reqCtx)
	assert.ErrorIs(t, err, ErrCooldown)
	assert.Equal(t, 1, pulser.Count())
	assert.Equal(t, 0, r.Snapshot().RebootAttempts, "manual reboots do not count toward the limit")

	cancel()
	require.NoError(t, <-runErr)

	_, err = r.RequestReboot(reqCtx)
	assert.ErrorIs(t, err, ErrNotRunning)
}
