// Package probe decides whether the internet is reachable.
package probe

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"routerrebooter/internal/config"
	"routerrebooter/internal/models"
)

// Prober probes a single target once. Failures are reported in the result, not as errors.
type Prober interface {
	Probe(ctx context.Context, target string) models.ProbeResult
}

// SourceFunc returns the local address probes are sent from. It is called
// before every probe so address changes (a new DHCP lease after a reboot)
// are picked up.
type SourceFunc func() (net.IP, error)

// resolveSource returns nil for an unbound prober.
func resolveSource(source SourceFunc) (net.IP, error) {
	if source == nil {
		return nil, nil
	}
	ip, err := source()
	if err != nil {
		return nil, fmt.Errorf("source address: %w", err)
	}
	return ip, nil
}

// Checker probes a set of targets and applies the any/all policy.
type Checker struct {
	targets []string
	policy  string
	timeout time.Duration
	prober  Prober

	shuffle func([]string)
	now     func() time.Time
}

// NewChecker builds a checker. An unknown policy behaves like "any".
func NewChecker(targets []string, policy string, timeout time.Duration, prober Prober) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{
		targets: append([]string(nil), targets...),
		policy:  policy,
		timeout: timeout,
		prober:  prober,
		shuffle: func(s []string) {
			rand.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
		},
		now: time.Now,
	}
}

// Check runs one round of probes.
//
// With the any policy targets are tried in random order and the round stops at
// the first answer. With the all policy it stops at the first target that fails.
func (c *Checker) Check(ctx context.Context) models.ConnectivityStatus {
	order := append([]string(nil), c.targets...)
	requireAll := c.policy == config.PolicyAll
	if !requireAll {
		c.shuffle(order)
	}

	status := models.ConnectivityStatus{
		Probes: make([]models.ProbeResult, 0, len(order)),
	}
	var failures []string

	for _, target := range order {
		if ctx.Err() != nil {
			failures = append(failures, ctx.Err().Error())
			break
		}
		probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		res := c.prober.Probe(probeCtx, target)
		cancel()

		status.Probes = append(status.Probes, res)
		status.Target = res.Target
		status.LatencyMs = res.LatencyMs
		if res.OK {
			if !requireAll {
				status.OK = true
				break
			}
			continue
		}
		failures = append(failures, target+": "+res.Error)
		if requireAll {
			break
		}
	}

	if requireAll && len(failures) == 0 && len(status.Probes) == len(order) {
		status.OK = true
	}
	if !status.OK {
		status.LatencyMs = 0
		status.Error = strings.Join(failures, "; ")
		if status.Error == "" {
			status.Error = "no targets answered"
		}
	}
	status.CheckedAt = c.now().UTC()
	return status
}
