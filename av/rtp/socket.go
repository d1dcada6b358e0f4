package rtp

import (
	"fmt"
	"net"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// resolveRemote resolves host:port for the descriptor's remote side and
// picks the socket network matching its address family.
func resolveRemote(host string, port uint16) (*net.UDPAddr, string, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	if addr.IP.To4() != nil {
		return addr, "udp4", nil
	}
	return addr, "udp6", nil
}

// listen binds a UDP socket of the given network on localAddr:port.
// Port zero picks an ephemeral port.
func listen(network, localAddr string, port int) (*net.UDPConn, error) {
	laddr := &net.UDPAddr{Port: port}
	if localAddr != "" {
		ip := net.ParseIP(localAddr)
		if ip == nil {
			return nil, fmt.Errorf("invalid local address %q", localAddr)
		}
		laddr.IP = ip
	}
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s port %d: %w", network, port, err)
	}
	return conn, nil
}

// applySendAttributes sets the outbound multicast TTL (hop limit) and the
// DSCP traffic class on conn.
func applySendAttributes(conn *net.UDPConn, network string, ttl, dscp int) error {
	logrus.WithFields(logrus.Fields{
		"function": "applySendAttributes",
		"network":  network,
		"ttl":      ttl,
		"dscp":     dscp,
	}).Debug("Configuring send socket attributes")

	tos := dscp << 2
	if network == "udp4" {
		pc := ipv4.NewPacketConn(conn)
		if err := pc.SetMulticastTTL(ttl); err != nil {
			return fmt.Errorf("failed to set multicast TTL: %w", err)
		}
		if err := pc.SetTOS(tos); err != nil {
			return fmt.Errorf("failed to set DSCP: %w", err)
		}
		return nil
	}

	pc := ipv6.NewPacketConn(conn)
	if err := pc.SetMulticastHopLimit(ttl); err != nil {
		return fmt.Errorf("failed to set multicast hop limit: %w", err)
	}
	if err := pc.SetTrafficClass(tos); err != nil {
		return fmt.Errorf("failed to set DSCP: %w", err)
	}
	return nil
}
