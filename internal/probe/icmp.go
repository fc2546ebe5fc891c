package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"routerrebooter/internal/models"
)

const (
	protocolICMP = 1
	echoSpacing  = 200 * time.Millisecond
)

var echoPayload = []byte("routerrebooter")

// ICMPProber sends ICMP echo requests and waits for a matching reply.
//
// Unprivileged probers use udp4 ping sockets, which need
// net.ipv4.ping_group_range to include the process group. Privileged
// probers open a raw ip4:icmp socket and need root or CAP_NET_RAW.
type ICMPProber struct {
	network string
	source  SourceFunc
	count   int
	id      int
	seq     int

	listen func(network, address string) (*icmp.PacketConn, error)
}

// NewICMPProber builds a prober sending count echoes per probe. source is
// consulted before every probe; nil sends from any address.
func NewICMPProber(privileged bool, source SourceFunc, count int) *ICMPProber {
	network := "udp4"
	if privileged {
		network = "ip4:icmp"
	}
	if count <= 0 {
		count = 1
	}
	return &ICMPProber{
		network: network,
		source:  source,
		count:   count,
		id:      os.Getpid() & 0xffff,
		listen:  icmp.ListenPacket,
	}
}

// Preflight opens and closes a socket of the prober's kind. A failure here is
// a local setup problem (permissions, ping_group_range), not an outage.
func (p *ICMPProber) Preflight() error {
	conn, err := p.listen(p.network, "0.0.0.0")
	if err != nil {
		return fmt.Errorf("open %s socket: %w", p.network, err)
	}
	return conn.Close()
}

// Probe implements Prober. A reply to any of the count echoes is success.
func (p *ICMPProber) Probe(ctx context.Context, target string) models.ProbeResult {
	res := models.ProbeResult{Target: target}

	local, err := resolveSource(p.source)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	laddr := "0.0.0.0"
	if local != nil {
		laddr = local.String()
	}

	dst, err := net.ResolveIPAddr("ip4", target)
	if err != nil {
		res.Error = fmt.Sprintf("resolve: %v", err)
		return res
	}

	conn, err := p.listen(p.network, laddr)
	if err != nil {
		res.Error = fmt.Sprintf("listen %s: %v", p.network, err)
		return res
	}
	defer conn.Close()

	var peer net.Addr = dst
	if p.network == "udp4" {
		peer = &net.UDPAddr{IP: dst.IP}
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(time.Duration(p.count) * time.Second)
	}

	sent := make(map[int]time.Time, p.count)
	buf := make([]byte, 1500)
	for i := 0; i < p.count; i++ {
		if ctx.Err() != nil {
			break
		}
		p.seq = (p.seq + 1) & 0xffff
		seq := p.seq

		msg := icmp.Message{
			Type: ipv4.ICMPTypeEcho,
			Body: &icmp.Echo{ID: p.id, Seq: seq, Data: echoPayload},
		}
		wire, err := msg.Marshal(nil)
		if err != nil {
			res.Error = fmt.Sprintf("marshal echo: %v", err)
			return res
		}

		started := time.Now()
		if _, err := conn.WriteTo(wire, peer); err != nil {
			res.Error = fmt.Sprintf("send echo: %v", err)
			continue
		}
		sent[seq] = started

		readUntil := started.Add(echoSpacing)
		if i == p.count-1 || readUntil.After(deadline) {
			readUntil = deadline
		}
		if err := conn.SetReadDeadline(readUntil); err != nil {
			res.Error = fmt.Sprintf("set deadline: %v", err)
			return res
		}

		at, err := p.awaitReply(conn, buf, dst.IP, sent)
		if err != nil {
			res.Error = err.Error()
			continue
		}
		if !at.IsZero() {
			res.OK = true
			res.Error = ""
			res.LatencyMs = int64(time.Since(at) / time.Millisecond)
			return res
		}
	}

	if res.Error == "" {
		res.Error = "no echo reply"
		if ctx.Err() != nil {
			res.Error = "no echo reply: " + ctx.Err().Error()
		}
	}
	return res
}

// awaitReply reads until a reply to any echo in sent arrives or the read
// deadline passes, and returns the matched echo's send time. A timeout is
// reported as a zero time and nil error.
func (p *ICMPProber) awaitReply(conn *icmp.PacketConn, buf []byte, from net.IP, sent map[int]time.Time) (time.Time, error) {
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return time.Time{}, nil
			}
			return time.Time{}, fmt.Errorf("read reply: %w", err)
		}
		if at, ok := p.matchReply(buf[:n], addr, from, sent); ok {
			return at, nil
		}
	}
}

// matchReply reports whether b is an echo reply from the target to one of
// the echoes in sent.
func (p *ICMPProber) matchReply(b []byte, addr net.Addr, from net.IP, sent map[int]time.Time) (time.Time, bool) {
	if !sameHost(addr, from) {
		return time.Time{}, false
	}
	reply, err := icmp.ParseMessage(protocolICMP, b)
	if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
		return time.Time{}, false
	}
	echo, ok := reply.Body.(*icmp.Echo)
	if !ok {
		return time.Time{}, false
	}
	at, ok := sent[echo.Seq]
	if !ok {
		return time.Time{}, false
	}
	// The kernel rewrites the identifier on unprivileged ping sockets.
	if p.network != "udp4" && echo.ID != p.id {
		return time.Time{}, false
	}
	return at, true
}

func sameHost(addr net.Addr, ip net.IP) bool {
	switch a := addr.(type) {
	case *net.IPAddr:
		return a.IP.Equal(ip)
	case *net.UDPAddr:
		return a.IP.Equal(ip)
	default:
		return false
	}
}
