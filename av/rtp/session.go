package rtp

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/trx/limits"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// readPollInterval bounds how long a reader goroutine blocks before it
// re-checks for shutdown.
const readPollInterval = 100 * time.Millisecond

// SessionOptions configures every session in a registry.
type SessionOptions struct {
	// LocalAddr restricts the local bind address. Empty binds all.
	LocalAddr string
	// JitterBudget sizes the jitter buffer compensation.
	JitterBudget time.Duration
	// TimeJumpFactor multiplies JitterBudget to give the time-jump limit.
	TimeJumpFactor int
	// PayloadType is stamped on sent packets and required on received ones.
	PayloadType uint8
	// MulticastTTL and DSCP are applied to the send socket.
	MulticastTTL int
	DSCP         int
	// DisableRTCP turns off the RTCP side channel on port+1.
	DisableRTCP bool
	// SendOnly measures received packets without buffering them, for
	// processes that never play a stream out.
	SendOnly bool
	// RTCPInterval is the period between RTCP reports.
	RTCPInterval time.Duration
	// TimeProvider supplies arrival times; nil uses the system clock.
	TimeProvider TimeProvider
}

// DefaultSessionOptions returns the options used by the command-line tool
// for a given jitter budget.
func DefaultSessionOptions(jitter time.Duration) SessionOptions {
	return SessionOptions{
		JitterBudget:   jitter,
		TimeJumpFactor: 16,
		PayloadType:    0,
		MulticastTTL:   16,
		DSCP:           40,
		RTCPInterval:   5 * time.Second,
	}
}

// Session is one bidirectional RTP session bound to a single Descriptor.
//
// Outgoing packets are stamped with the descriptor's SSRC and a
// per-session sequence number. Incoming packets are read by a goroutine
// owned by the session and queued in its jitter buffer, from which
// Receive polls without blocking.
type Session struct {
	desc  Descriptor
	opts  SessionOptions
	clock TimeProvider
	cname string

	rtpConn    *net.UDPConn
	rtcpConn   *net.UDPConn
	remote     *net.UDPAddr
	remoteRTCP *net.UDPAddr

	jitter *JitterBuffer
	recv   receptionStats
	sendBW bandwidthMeter
	recvBW bandwidthMeter

	sendMu sync.Mutex
	seq    uint16

	lastSentTS      atomic.Uint32
	packetsSent     atomic.Uint64
	octetsSent      atomic.Uint64
	sendErrors      atomic.Uint64
	packetsReceived atomic.Uint64
	octetsReceived  atomic.Uint64
	badPackets      atomic.Uint64
	timeJumps       atomic.Uint64
	payloadHoles    atomic.Uint64
	roundTrip       atomic.Int64
	remoteLoss      atomic.Int64

	jumpMu     sync.RWMutex
	onTimeJump func(*Session)

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewSession opens the sockets for desc and starts the session's reader
// goroutines. A zero RxPort binds an ephemeral port.
func NewSession(desc Descriptor, opts SessionOptions) (*Session, error) {
	logrus.WithFields(logrus.Fields{
		"function":      "NewSession",
		"session":       desc.String(),
		"jitter_budget": opts.JitterBudget.String(),
		"rtcp":          !opts.DisableRTCP,
	}).Info("Creating RTP session")

	if desc.RemoteAddr == "" {
		return nil, fmt.Errorf("%w: remote address cannot be empty", ErrSessionSetup)
	}
	if desc.TxPort == 0 {
		return nil, fmt.Errorf("%w: remote port cannot be zero", ErrSessionSetup)
	}
	if opts.TimeJumpFactor <= 0 {
		opts.TimeJumpFactor = 16
	}
	if opts.RTCPInterval <= 0 {
		opts.RTCPInterval = 5 * time.Second
	}
	clock := opts.TimeProvider
	if clock == nil {
		clock = DefaultTimeProvider{}
	}

	remote, network, err := resolveRemote(desc.RemoteAddr, desc.TxPort)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionSetup, err)
	}

	seq, err := randomUint16()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate sequence number: %v", ErrSessionSetup, err)
	}

	s := &Session{
		desc:   desc,
		opts:   opts,
		clock:  clock,
		cname:  cname(desc.SSRC),
		remote: remote,
		seq:    seq,
		done:   make(chan struct{}),
	}

	s.jitter = NewJitterBuffer(JitterConfig{
		Compensation:  opts.JitterBudget,
		TimeJumpLimit: opts.JitterBudget * time.Duration(opts.TimeJumpFactor),
		Adaptive:      true,
	}, clock.Now())
	s.jitter.OnTimeJump(s.timeJumped)

	if err := s.openSockets(network); err != nil {
		s.closeSockets()
		return nil, fmt.Errorf("%w: %v", ErrSessionSetup, err)
	}

	s.wg.Add(1)
	go s.readLoop()
	if s.rtcpConn != nil {
		s.wg.Add(2)
		go s.rtcpReadLoop()
		go s.rtcpSendLoop()
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewSession",
		"session":    desc.String(),
		"local_addr": s.rtpConn.LocalAddr().String(),
		"remote":     remote.String(),
	}).Info("RTP session created successfully")

	return s, nil
}

func (s *Session) openSockets(network string) error {
	conn, err := listen(network, s.opts.LocalAddr, int(s.desc.RxPort))
	if err != nil {
		return err
	}
	s.rtpConn = conn
	if err := applySendAttributes(conn, network, s.opts.MulticastTTL, s.opts.DSCP); err != nil {
		return err
	}

	if s.opts.DisableRTCP {
		return nil
	}
	if s.desc.TxPort == 65535 || s.desc.RxPort == 65535 {
		logrus.WithFields(logrus.Fields{
			"function": "Session.openSockets",
			"session":  s.desc.String(),
		}).Warn("No room for RTCP port above RTP port, RTCP disabled")
		return nil
	}

	rtcpPort := 0
	if s.desc.RxPort != 0 {
		rtcpPort = int(s.desc.RxPort) + 1
	}
	rtcpConn, err := listen(network, s.opts.LocalAddr, rtcpPort)
	if err != nil {
		return err
	}
	s.rtcpConn = rtcpConn
	s.remoteRTCP = &net.UDPAddr{IP: s.remote.IP, Port: s.remote.Port + 1, Zone: s.remote.Zone}
	return applySendAttributes(rtcpConn, network, s.opts.MulticastTTL, s.opts.DSCP)
}

// Descriptor returns the descriptor the session is bound to.
func (s *Session) Descriptor() Descriptor {
	return s.desc
}

// LocalAddr returns the address RTP packets are received on.
func (s *Session) LocalAddr() net.Addr {
	return s.rtpConn.LocalAddr()
}

// OnTimeJump registers the handler invoked once per detected remote clock
// discontinuity.
func (s *Session) OnTimeJump(fn func(*Session)) {
	s.jumpMu.Lock()
	defer s.jumpMu.Unlock()
	s.onTimeJump = fn
}

// SendWithTimestamp sends payload as one RTP packet carrying timestamp ts.
func (s *Session) SendWithTimestamp(payload []byte, ts uint32) error {
	if err := limits.ValidatePayload(payload); err != nil {
		return err
	}
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	s.sendMu.Lock()
	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    s.opts.PayloadType,
			SequenceNumber: s.seq,
			Timestamp:      ts,
			SSRC:           s.desc.SSRC,
		},
		Payload: payload,
	}
	data, err := packet.Marshal()
	if err == nil {
		s.seq++
	}
	s.sendMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal RTP packet: %w", err)
	}

	if _, err := s.rtpConn.WriteToUDP(data, s.remote); err != nil {
		s.sendErrors.Add(1)
		return fmt.Errorf("failed to send RTP packet to %s: %w", s.remote, err)
	}

	s.lastSentTS.Store(ts)
	s.packetsSent.Add(1)
	s.octetsSent.Add(uint64(len(payload)))
	s.sendBW.add(len(data))

	logrus.WithFields(logrus.Fields{
		"function":  "Session.SendWithTimestamp",
		"session":   s.desc.String(),
		"timestamp": ts,
		"size":      len(data),
	}).Trace("Sent RTP packet")

	return nil
}

// Receive returns the payload due at timestamp ts, or false when none is
// available. It never waits for the network.
func (s *Session) Receive(ts uint32) ([]byte, bool) {
	payload, ok := s.jitter.Get(ts)
	if !ok {
		s.payloadHoles.Add(1)
	}
	return payload, ok
}

// Resync re-establishes the receive timeline from the next packet. Queued
// packets are dropped and the sequence baseline is reset so the
// discontinuity is not counted as loss.
func (s *Session) Resync() {
	logrus.WithFields(logrus.Fields{
		"function": "Session.Resync",
		"session":  s.desc.String(),
	}).Debug("Resynchronizing receive clock")

	s.jitter.Resync()
	s.recv.rebase()
}

// Statistics returns a snapshot of the session counters.
func (s *Session) Statistics() Statistics {
	now := s.clock.Now()
	current, peak := s.jitter.Jitter()

	return Statistics{
		RoundTrip:       time.Duration(s.roundTrip.Load()),
		CumulativeLoss:  s.recv.cumulativeLoss(),
		RemoteLoss:      s.remoteLoss.Load(),
		RecvBandwidth:   s.recvBW.rate(now),
		SendBandwidth:   s.sendBW.rate(now),
		Jitter:          TicksToDuration(current),
		MaxJitter:       TicksToDuration(peak),
		JitterBuffer:    TicksToDuration(float64(s.jitter.Compensation())),
		PacketsSent:     s.packetsSent.Load(),
		OctetsSent:      s.octetsSent.Load(),
		PacketsReceived: s.packetsReceived.Load(),
		OctetsReceived:  s.octetsReceived.Load(),
		SendErrors:      s.sendErrors.Load(),
		BadPackets:      s.badPackets.Load(),
		Discarded:       s.jitter.Discarded(),
		TimeJumps:       s.timeJumps.Load(),
		PayloadHoles:    s.payloadHoles.Load(),
	}
}

// Close stops the reader goroutines, sends an RTCP BYE and releases the
// sockets. Calling Close more than once is safe.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		logrus.WithFields(logrus.Fields{
			"function": "Session.Close",
			"session":  s.desc.String(),
		}).Info("Closing RTP session")

		if s.rtcpConn != nil {
			s.sendGoodbye()
		}
		close(s.done)
		s.closeErr = s.closeSockets()
		s.wg.Wait()
	})
	return s.closeErr
}

func (s *Session) closeSockets() error {
	var errs []error
	if s.rtpConn != nil {
		errs = append(errs, s.rtpConn.Close())
	}
	if s.rtcpConn != nil {
		errs = append(errs, s.rtcpConn.Close())
	}
	return errors.Join(errs...)
}

// handlePacket processes one RTP datagram received at the given time.
func (s *Session) handlePacket(data []byte, arrival time.Time) error {
	packet := &rtp.Packet{}
	if err := packet.Unmarshal(data); err != nil {
		s.badPackets.Add(1)
		return fmt.Errorf("failed to unmarshal RTP packet: %w", err)
	}
	if packet.PayloadType != s.opts.PayloadType {
		s.badPackets.Add(1)
		return fmt.Errorf("unexpected payload type %d", packet.PayloadType)
	}

	if s.recv.latch(packet.SSRC) {
		logrus.WithFields(logrus.Fields{
			"function": "Session.handlePacket",
			"session":  s.desc.String(),
			"ssrc":     packet.SSRC,
		}).Warn("Remote SSRC changed, resynchronizing")
		s.jitter.Resync()
	}

	if s.opts.SendOnly {
		s.jitter.Observe(packet.Timestamp, arrival)
	} else {
		payload := make([]byte, len(packet.Payload))
		copy(payload, packet.Payload)
		s.jitter.Add(packet.Timestamp, payload, arrival)
	}
	s.recv.update(packet.SequenceNumber)
	s.packetsReceived.Add(1)
	s.octetsReceived.Add(uint64(len(packet.Payload)))
	s.recvBW.add(len(data))
	return nil
}

// timeJumped is the jitter buffer's discontinuity hook.
func (s *Session) timeJumped() {
	s.timeJumps.Add(1)

	s.jumpMu.RLock()
	fn := s.onTimeJump
	s.jumpMu.RUnlock()

	if fn != nil {
		fn(s)
		return
	}
	s.Resync()
}

func (s *Session) readLoop() {
	defer s.wg.Done()
	buffer := make([]byte, limits.MaxDatagram)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		_ = s.rtpConn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, _, err := s.rtpConn.ReadFromUDP(buffer)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			select {
			case <-s.done:
				return
			default:
			}
			logrus.WithFields(logrus.Fields{
				"function": "Session.readLoop",
				"session":  s.desc.String(),
				"error":    err.Error(),
			}).Debug("RTP read failed")
			continue
		}

		if err := s.handlePacket(buffer[:n], s.clock.Now()); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Session.readLoop",
				"session":  s.desc.String(),
				"error":    err.Error(),
			}).Debug("Dropped RTP packet")
		}
	}
}

func (s *Session) rtcpReadLoop() {
	defer s.wg.Done()
	buffer := make([]byte, limits.MaxDatagram)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		_ = s.rtcpConn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, _, err := s.rtcpConn.ReadFromUDP(buffer)
		if err != nil {
			continue
		}
		if err := s.handleRTCP(buffer[:n], s.clock.Now()); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Session.rtcpReadLoop",
				"session":  s.desc.String(),
				"error":    err.Error(),
			}).Debug("Dropped RTCP packet")
		}
	}
}

func (s *Session) rtcpSendLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.RTCPInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.sendRTCP(s.buildReport(s.clock.Now())); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Session.rtcpSendLoop",
					"session":  s.desc.String(),
					"error":    err.Error(),
				}).Debug("Failed to send RTCP report")
			}
		}
	}
}

func (s *Session) sendGoodbye() {
	bye := &rtcp.Goodbye{Sources: []uint32{s.desc.SSRC}}
	_ = s.sendRTCP(append(s.buildReport(s.clock.Now()), bye))
}

func (s *Session) sendRTCP(packets []rtcp.Packet) error {
	data, err := rtcp.Marshal(packets)
	if err != nil {
		return fmt.Errorf("failed to marshal RTCP packet: %w", err)
	}
	if err := limits.ValidateSize(data, limits.MaxRTCPPacket); err != nil {
		return err
	}
	_, err = s.rtcpConn.WriteToUDP(data, s.remoteRTCP)
	return err
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func randomUint16() (uint16, error) {
	b := make([]byte, 2)
	if _, err := rand.Read(b); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func cname(ssrc uint32) string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return fmt.Sprintf("trx-%d@%s", ssrc, host)
}
