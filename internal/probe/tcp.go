package probe

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"routerrebooter/internal/models"
)

// TCPProber treats a completed TCP handshake as reachability.
type TCPProber struct {
	port   int
	source SourceFunc
}

// NewTCPProber dials targets on port. source is consulted before every
// probe; nil dials from any address.
func NewTCPProber(port int, source SourceFunc) *TCPProber {
	return &TCPProber{port: port, source: source}
}

// Probe implements Prober.
func (p *TCPProber) Probe(ctx context.Context, target string) models.ProbeResult {
	target = strings.TrimSpace(target)
	address := target
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(p.port))
	}

	res := models.ProbeResult{Target: target}
	local, err := resolveSource(p.source)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	var dialer net.Dialer
	if local != nil {
		dialer.LocalAddr = &net.TCPAddr{IP: local}
	}

	started := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.OK = true
	res.LatencyMs = int64(time.Since(started) / time.Millisecond)
	_ = conn.Close()
	return res
}
