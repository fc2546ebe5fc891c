package relay

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

type recordingPin struct {
	levels []gpio.Level
	failOn map[gpio.Level]error
}

func (p *recordingPin) Name() string { return "GPIO21" }

func (p *recordingPin) Out(l gpio.Level) error {
	p.levels = append(p.levels, l)
	return p.failOn[l]
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestPulse_HighThenLow(t *testing.T) {
	pin := &recordingPin{}
	r := New(pin, quietLogger())

	start := time.Now()
	require.NoError(t, r.Pulse(context.Background(), 20*time.Millisecond))

	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, []gpio.Level{gpio.High, gpio.Low}, pin.levels)
}

func TestPulse_CancelledStillDeasserts(t *testing.T) {
	pin := &recordingPin{}
	r := New(pin, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := r.Pulse(ctx, time.Minute)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, gpio.Low, pin.levels[len(pin.levels)-1])
}

func TestPulse_AssertFailureStillDeasserts(t *testing.T) {
	boom := errors.New("write failed")
	pin := &recordingPin{failOn: map[gpio.Level]error{gpio.High: boom}}
	r := New(pin, quietLogger())

	err := r.Pulse(context.Background(), time.Millisecond)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []gpio.Level{gpio.High, gpio.Low}, pin.levels)
}

func TestPulse_DeassertFailureReported(t *testing.T) {
	boom := errors.New("stuck high")
	pin := &recordingPin{failOn: map[gpio.Level]error{gpio.Low: boom}}
	r := New(pin, quietLogger())

	err := r.Pulse(context.Background(), time.Millisecond)
	assert.ErrorIs(t, err, boom)
}

func TestDryRunPin(t *testing.T) {
	pin := NewDryRunPin(21, quietLogger())
	r := New(pin, quietLogger())

	assert.Equal(t, "GPIO21", r.Pin())
	require.NoError(t, r.Pulse(context.Background(), time.Millisecond))
	assert.Equal(t, gpio.Low, pin.Level())
}
