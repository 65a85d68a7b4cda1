package transport

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/hannahoo/UCLA-CS-118/internal/core"
	"github.com/hannahoo/UCLA-CS-118/internal/log"
)

// Dial resolves host and opens an unconnected UDP socket of the matching
// family, trying each resolved address in turn. The Transport's peer is
// host:port.
func Dial(ctx context.Context, host string, port int, tos int, opts Options) (*Transport, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", core.ErrTransport, host, err)
	}

	var lc net.ListenConfig
	var lastErr error
	for _, a := range addrs {
		network := "udp4"
		if a.IP.To4() == nil {
			network = "udp6"
		}
		pc, err := lc.ListenPacket(ctx, network, ":0")
		if err != nil {
			lastErr = err
			continue
		}
		applyTOS(pc, tos, opts.Logger)
		peer := &net.UDPAddr{IP: a.IP, Port: port, Zone: a.Zone}
		return New(pc, peer, opts), nil
	}
	return nil, fmt.Errorf("%w: no usable address for %s: %v", core.ErrTransport, host, lastErr)
}

// Listen binds a UDP socket on addr. The peer is unset until SetPeer.
func Listen(ctx context.Context, addr string, tos int, opts Options) (*Transport, error) {
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %w", core.ErrTransport, addr, err)
	}
	applyTOS(pc, tos, opts.Logger)
	return New(pc, nil, opts), nil
}

// applyTOS sets the IPv4 TOS byte or the IPv6 traffic class. Failures only
// warn: the transfer works without it.
func applyTOS(pc net.PacketConn, tos int, logger log.Logger) {
	if tos == 0 {
		return
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	udp, ok := pc.(*net.UDPConn)
	if !ok {
		return
	}

	var err error
	if la, ok := udp.LocalAddr().(*net.UDPAddr); ok && la.IP.To4() != nil {
		err = ipv4.NewConn(udp).SetTOS(tos)
	} else {
		err = ipv6.NewConn(udp).SetTrafficClass(tos)
	}
	if err != nil {
		logger.WithError(err).WithField("tos", tos).Warn("failed to set type of service")
	}
}
