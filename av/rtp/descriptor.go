package rtp

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Descriptor identifies one logical stream: the SSRC stamped on outgoing
// packets, the local port packets are received on, and the remote endpoint
// packets are sent to. Descriptors are values and never change after parsing.
type Descriptor struct {
	SSRC       uint32
	RxPort     uint16
	RemoteAddr string
	TxPort     uint16
}

// String renders the descriptor in its extended-list form,
// SSRC@RX_PORT#REMOTE_ADDR:REMOTE_PORT. It is also the key used in stats
// reports.
func (d Descriptor) String() string {
	return fmt.Sprintf("%d@%d#%s", d.SSRC, d.RxPort, net.JoinHostPort(d.RemoteAddr, strconv.Itoa(int(d.TxPort))))
}

// ConnectionMode is the closed set of ways the connection list can be given.
// The only implementations are Explicit and ExtendedList.
type ConnectionMode interface {
	// Descriptors returns the descriptors in input order.
	Descriptors() []Descriptor
	connectionMode()
}

// Explicit is a single connection assembled from discrete parameters.
type Explicit struct {
	Descriptor Descriptor
}

// Descriptors returns the single explicit descriptor.
func (e Explicit) Descriptors() []Descriptor {
	return []Descriptor{e.Descriptor}
}

func (Explicit) connectionMode() {}

// ExtendedList is an ordered batch of connections parsed from text.
type ExtendedList struct {
	List []Descriptor
}

// Descriptors returns a copy of the parsed descriptors in input order.
func (e ExtendedList) Descriptors() []Descriptor {
	out := make([]Descriptor, len(e.List))
	copy(out, e.List)
	return out
}

func (ExtendedList) connectionMode() {}

// ResolveConnectionMode picks the connection mode from the command-line
// inputs. explicitSet reports whether any explicit parameter was supplied by
// the user; extended is the raw extended-list text. Supplying both is a
// configuration error.
func ResolveConnectionMode(explicit Descriptor, explicitSet bool, extended string) (ConnectionMode, error) {
	if extended == "" {
		return Explicit{Descriptor: explicit}, nil
	}
	if explicitSet {
		logrus.WithFields(logrus.Fields{
			"function": "ResolveConnectionMode",
			"extended": extended,
		}).Error("Explicit and extended connection parameters both supplied")
		return nil, ErrConflictingConnectionModes
	}

	list, err := ParseDescriptorList(extended)
	if err != nil {
		return nil, err
	}
	return ExtendedList{List: list}, nil
}

// ParseDescriptorList parses a comma-separated list of
// SSRC@RX_PORT#REMOTE_ADDR:REMOTE_PORT tokens. Any malformed token rejects
// the whole list.
func ParseDescriptorList(s string) ([]Descriptor, error) {
	tokens := strings.Split(s, ",")
	list := make([]Descriptor, 0, len(tokens))
	seen := make(map[uint16]int, len(tokens))

	for i, token := range tokens {
		d, err := ParseDescriptor(strings.TrimSpace(token))
		if err != nil {
			return nil, fmt.Errorf("host entry %d: %w", i+1, err)
		}
		if prev, dup := seen[d.RxPort]; dup {
			return nil, fmt.Errorf("%w: %d used by host entries %d and %d", ErrDuplicateReceivePort, d.RxPort, prev+1, i+1)
		}
		seen[d.RxPort] = i
		list = append(list, d)
	}

	logrus.WithFields(logrus.Fields{
		"function": "ParseDescriptorList",
		"count":    len(list),
	}).Debug("Parsed extended connection list")

	return list, nil
}

// CheckRTCPPorts rejects lists where a receive port is another entry's
// RTCP port. RTCP binds RX_PORT+1, so with RTCP enabled 5000 and 5001
// cannot both be receive ports. Zero ports are chosen by the system and
// are not checked.
func CheckRTCPPorts(descs []Descriptor) error {
	entry := make(map[uint16]int, len(descs))
	for i, d := range descs {
		if d.RxPort != 0 {
			entry[d.RxPort] = i
		}
	}
	for i, d := range descs {
		if d.RxPort == 0 || d.RxPort == 65535 {
			continue
		}
		if j, ok := entry[d.RxPort+1]; ok {
			return fmt.Errorf("%w: host entry %d (%s) uses RTCP port %d, the receive port of host entry %d (%s); leave a gap between receive ports or disable RTCP",
				ErrRTCPPortConflict, i+1, d, d.RxPort+1, j+1, descs[j])
		}
	}
	return nil
}

// ParseDescriptor parses a single SSRC@RX_PORT#REMOTE_ADDR:REMOTE_PORT token.
// IPv6 remote addresses must be bracketed.
func ParseDescriptor(token string) (Descriptor, error) {
	if token == "" {
		return Descriptor{}, fmt.Errorf("%w: empty entry", ErrMalformedDescriptor)
	}

	ssrcText, rest, ok := strings.Cut(token, "@")
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q missing '@'", ErrMalformedDescriptor, token)
	}
	rxText, remote, ok := strings.Cut(rest, "#")
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q missing '#'", ErrMalformedDescriptor, token)
	}
	host, txText, err := net.SplitHostPort(remote)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %q: %v", ErrMalformedDescriptor, token, err)
	}
	if host == "" {
		return Descriptor{}, fmt.Errorf("%w: %q has empty remote address", ErrMalformedDescriptor, token)
	}

	ssrc, err := strconv.ParseUint(ssrcText, 10, 32)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %q: bad SSRC %q", ErrMalformedDescriptor, token, ssrcText)
	}
	rxPort, err := parsePort(rxText)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %q: bad receive port: %v", ErrMalformedDescriptor, token, err)
	}
	txPort, err := parsePort(txText)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %q: bad remote port: %v", ErrMalformedDescriptor, token, err)
	}

	return Descriptor{
		SSRC:       uint32(ssrc),
		RxPort:     rxPort,
		RemoteAddr: host,
		TxPort:     txPort,
	}, nil
}

func parsePort(s string) (uint16, error) {
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	if port == 0 {
		return 0, fmt.Errorf("port must be between 1 and 65535")
	}
	return uint16(port), nil
}
