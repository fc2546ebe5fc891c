package relay

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
)

// DryRunPin logs level changes instead of touching hardware.
type DryRunPin struct {
	name string
	log  logrus.FieldLogger

	mu    sync.Mutex
	level gpio.Level
}

// NewDryRunPin returns a fake pin named after BCM pin n.
func NewDryRunPin(n int, log logrus.FieldLogger) *DryRunPin {
	return &DryRunPin{name: fmt.Sprintf("GPIO%d", n), log: log, level: gpio.Low}
}

// Name implements Pin.
func (p *DryRunPin) Name() string { return p.name }

// Out implements Pin.
func (p *DryRunPin) Out(l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.level != l {
		p.log.WithField("pin", p.name).Infof("dry run: pin %s", l)
	}
	p.level = l
	return nil
}

// Level reports the last level written.
func (p *DryRunPin) Level() gpio.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}
