// Package relay drives the GPIO pin wired to the router's power relay.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// ErrPinNotFound is returned when the GPIO registry has no pin with the requested number.
var ErrPinNotFound = errors.New("gpio pin not found")

// Pin is the part of a periph GPIO output the relay uses.
type Pin interface {
	Name() string
	Out(l gpio.Level) error
}

// Open initialises the periph host drivers and returns BCM pin n driven low.
func Open(n int) (Pin, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init gpio host: %w", err)
	}
	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", n))
	if p == nil {
		return nil, fmt.Errorf("GPIO%d: %w", n, ErrPinNotFound)
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("set %s low: %w", p.Name(), err)
	}
	return p, nil
}

// Relay pulses a pin high for a fixed time.
type Relay struct {
	pin Pin
	log logrus.FieldLogger
}

// New wraps pin. The pin is assumed to already be low.
func New(pin Pin, log logrus.FieldLogger) *Relay {
	return &Relay{pin: pin, log: log.WithField("pin", pin.Name())}
}

// Pin returns the name of the driven pin.
func (r *Relay) Pin() string { return r.pin.Name() }

// Pulse drives the pin high for d, then low. The pin is driven low on every
// return path; a cancelled context shortens the pulse and returns ctx.Err().
func (r *Relay) Pulse(ctx context.Context, d time.Duration) (err error) {
	defer func() {
		if lowErr := r.pin.Out(gpio.Low); lowErr != nil {
			lowErr = fmt.Errorf("deassert %s: %w", r.pin.Name(), lowErr)
			if err == nil {
				err = lowErr
			} else {
				err = errors.Join(err, lowErr)
			}
			return
		}
		r.log.Debug("relay deasserted")
	}()

	if err := r.pin.Out(gpio.High); err != nil {
		return fmt.Errorf("assert %s: %w", r.pin.Name(), err)
	}
	r.log.WithField("duration", d).Debug("relay asserted")

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close leaves the pin low.
func (r *Relay) Close() error {
	return r.pin.Out(gpio.Low)
}
