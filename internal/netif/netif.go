// Package netif inspects the network interface pings are sent on.
package netif

import (
	"errors"
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// ErrInterfaceDown is returned when the interface exists but is not operationally up.
var ErrInterfaceDown = errors.New("interface is not up")

// Inspector reads link state and addresses over netlink.
type Inspector struct {
	linkByName func(name string) (netlink.Link, error)
	addrList   func(link netlink.Link, family int) ([]netlink.Addr, error)
}

// New returns an Inspector backed by the host's netlink socket.
func New() *Inspector {
	return &Inspector{
		linkByName: netlink.LinkByName,
		addrList:   netlink.AddrList,
	}
}

// Verify checks that the interface exists and is up.
// Links reporting an unknown operstate count as up when administratively up,
// which is what loopback and some tunnel drivers report.
func (i *Inspector) Verify(name string) error {
	link, err := i.linkByName(name)
	if err != nil {
		return fmt.Errorf("lookup interface %s: %w", name, err)
	}
	attrs := link.Attrs()
	switch attrs.OperState {
	case netlink.OperUp:
		return nil
	case netlink.OperUnknown:
		if attrs.Flags&net.FlagUp != 0 {
			return nil
		}
	}
	return fmt.Errorf("%s (operstate %s): %w", name, attrs.OperState, ErrInterfaceDown)
}

// IPv4 returns the first IPv4 address assigned to the interface.
func (i *Inspector) IPv4(name string) (net.IP, error) {
	link, err := i.linkByName(name)
	if err != nil {
		return nil, fmt.Errorf("lookup interface %s: %w", name, err)
	}
	addrs, err := i.addrList(link, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("list addresses on %s: %w", name, err)
	}
	for _, a := range addrs {
		if a.IPNet != nil && a.IP.To4() != nil {
			return a.IP.To4(), nil
		}
	}
	return nil, fmt.Errorf("%s has no IPv4 address", name)
}
