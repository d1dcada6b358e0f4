package rtp

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a TimeProvider whose time only moves when told to.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func testSessionOptions(clock TimeProvider) SessionOptions {
	opts := DefaultSessionOptions(16 * time.Millisecond)
	opts.LocalAddr = "127.0.0.1"
	opts.DisableRTCP = true
	opts.TimeProvider = clock
	return opts
}

func newTestSession(t *testing.T, ssrc uint32, clock TimeProvider) *Session {
	t.Helper()
	s, err := NewSession(Descriptor{
		SSRC:       ssrc,
		RemoteAddr: "127.0.0.1",
		TxPort:     9,
	}, testSessionOptions(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func marshalRTP(t *testing.T, ssrc uint32, seq uint16, ts uint32, pt uint8, payload []byte) []byte {
	t.Helper()
	p := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    pt,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
	data, err := p.Marshal()
	require.NoError(t, err)
	return data
}

func TestNewSession_Validation(t *testing.T) {
	tests := []struct {
		name string
		desc Descriptor
	}{
		{"empty remote", Descriptor{SSRC: 1, TxPort: 6000}},
		{"zero remote port", Descriptor{SSRC: 1, RemoteAddr: "127.0.0.1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSession(tt.desc, testSessionOptions(nil))
			assert.ErrorIs(t, err, ErrSessionSetup)
			assert.Nil(t, s)
		})
	}
}

func TestSession_SendWithTimestamp(t *testing.T) {
	listener, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer listener.Close()

	s, err := NewSession(Descriptor{
		SSRC:       4242,
		RemoteAddr: "127.0.0.1",
		TxPort:     uint16(listener.LocalAddr().(*net.UDPAddr).Port),
	}, testSessionOptions(nil))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SendWithTimestamp([]byte("frame-1"), 160))
	require.NoError(t, s.SendWithTimestamp([]byte("frame-2"), 320))

	buffer := make([]byte, 1500)
	var got []*rtp.Packet
	for i := 0; i < 2; i++ {
		require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, err := listener.ReadFromUDP(buffer)
		require.NoError(t, err)
		p := &rtp.Packet{}
		require.NoError(t, p.Unmarshal(append([]byte(nil), buffer[:n]...)))
		got = append(got, p)
	}

	assert.Equal(t, uint32(4242), got[0].SSRC)
	assert.Equal(t, uint8(0), got[0].PayloadType)
	assert.Equal(t, uint32(160), got[0].Timestamp)
	assert.Equal(t, "frame-1", string(got[0].Payload))
	assert.Equal(t, uint32(320), got[1].Timestamp)
	assert.Equal(t, got[0].SequenceNumber+1, got[1].SequenceNumber)

	stats := s.Statistics()
	assert.Equal(t, uint64(2), stats.PacketsSent)
	assert.Equal(t, uint64(14), stats.OctetsSent)
}

func TestSession_SendRejectsBadPayload(t *testing.T) {
	s := newTestSession(t, 1, nil)

	assert.Error(t, s.SendWithTimestamp(nil, 0))
	assert.Error(t, s.SendWithTimestamp(make([]byte, 70000), 0))
}

func TestSession_ReceiveOverLoopback(t *testing.T) {
	s := newTestSession(t, 1, nil)

	sender, err := net.DialUDP("udp4", nil, s.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer sender.Close()

	_, err = sender.Write(marshalRTP(t, 77, 1, 5000, 0, []byte("hello")))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.Statistics().PacketsReceived == 1
	}, 2*time.Second, 10*time.Millisecond)

	payload, ok := s.Receive(128)
	require.True(t, ok)
	assert.Equal(t, "hello", string(payload))

	_, ok = s.Receive(288)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), s.Statistics().PayloadHoles)
}

func TestSession_RejectsWrongPayloadType(t *testing.T) {
	s := newTestSession(t, 1, newFakeClock())

	err := s.handlePacket(marshalRTP(t, 77, 1, 0, 96, []byte("x")), testEpoch)
	assert.Error(t, err)
	err = s.handlePacket([]byte{0x80}, testEpoch)
	assert.Error(t, err)

	stats := s.Statistics()
	assert.Equal(t, uint64(2), stats.BadPackets)
	assert.Equal(t, uint64(0), stats.PacketsReceived)
}

func TestSession_SequenceLossAccounting(t *testing.T) {
	s := newTestSession(t, 1, newFakeClock())

	for _, seq := range []uint16{10, 11, 14} {
		require.NoError(t, s.handlePacket(marshalRTP(t, 77, seq, uint32(seq)*160, 0, []byte("x")), testEpoch))
	}
	assert.Equal(t, int64(2), s.Statistics().CumulativeLoss)

	// A late arrival is no longer lost.
	require.NoError(t, s.handlePacket(marshalRTP(t, 77, 12, 12*160, 0, []byte("x")), testEpoch))
	assert.Equal(t, int64(1), s.Statistics().CumulativeLoss)

	// A duplicate changes nothing.
	require.NoError(t, s.handlePacket(marshalRTP(t, 77, 14, 14*160, 0, []byte("x")), testEpoch))
	assert.Equal(t, int64(1), s.Statistics().CumulativeLoss)
}

func TestSession_TimeJumpResyncWithoutLoss(t *testing.T) {
	clock := newFakeClock()
	s := newTestSession(t, 1, clock)

	var calls int
	s.OnTimeJump(func(session *Session) {
		calls++
		session.Resync()
	})

	for i := 0; i < 5; i++ {
		arrival := clock.Advance(20 * time.Millisecond)
		require.NoError(t, s.handlePacket(marshalRTP(t, 77, uint16(1+i), uint32(i*160), 0, []byte("x")), arrival))
	}

	// The sender restarts: its timestamp and sequence number both jump.
	arrival := clock.Advance(20 * time.Millisecond)
	require.NoError(t, s.handlePacket(marshalRTP(t, 77, 1000, 1_000_000, 0, []byte("y")), arrival))
	arrival = clock.Advance(20 * time.Millisecond)
	require.NoError(t, s.handlePacket(marshalRTP(t, 77, 1001, 1_000_160, 0, []byte("z")), arrival))

	stats := s.Statistics()
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), stats.TimeJumps)
	assert.Equal(t, int64(0), stats.CumulativeLoss)

	payload, ok := s.Receive(128)
	require.True(t, ok, "buffer re-anchored on the new timeline")
	assert.Equal(t, "y", string(payload))
}

func TestSession_TimeJumpDefaultsToResync(t *testing.T) {
	s := newTestSession(t, 1, newFakeClock())

	require.NoError(t, s.handlePacket(marshalRTP(t, 77, 1, 0, 0, []byte("a")), testEpoch))
	require.NoError(t, s.handlePacket(marshalRTP(t, 77, 2, 400_000, 0, []byte("b")), testEpoch))

	stats := s.Statistics()
	assert.Equal(t, uint64(1), stats.TimeJumps)
	assert.Equal(t, int64(0), stats.CumulativeLoss)
}

func TestSession_SendOnlySkipsBuffering(t *testing.T) {
	clock := newFakeClock()
	opts := testSessionOptions(clock)
	opts.SendOnly = true
	s, err := NewSession(Descriptor{SSRC: 1, RemoteAddr: "127.0.0.1", TxPort: 9}, opts)
	require.NoError(t, err)
	defer s.Close()

	// Without a consumer the cursor never moves, so a buffered stream would
	// report a time jump once it ran past the limit.
	for i := 0; i < 100; i++ {
		arrival := clock.Advance(20 * time.Millisecond)
		require.NoError(t, s.handlePacket(marshalRTP(t, 77, uint16(1+i), uint32(i*160), 0, []byte("x")), arrival))
	}

	stats := s.Statistics()
	assert.Equal(t, uint64(100), stats.PacketsReceived)
	assert.Equal(t, uint64(100), stats.OctetsReceived)
	assert.Zero(t, stats.TimeJumps)
	assert.Equal(t, int64(0), stats.CumulativeLoss)
	assert.Equal(t, 0, s.jitter.Len())
}

func TestSession_SSRCChangeResyncs(t *testing.T) {
	s := newTestSession(t, 1, newFakeClock())

	require.NoError(t, s.handlePacket(marshalRTP(t, 77, 100, 0, 0, []byte("a")), testEpoch))
	require.NoError(t, s.handlePacket(marshalRTP(t, 78, 5, 160, 0, []byte("b")), testEpoch))

	assert.Equal(t, int64(0), s.Statistics().CumulativeLoss)

	payload, ok := s.Receive(128)
	require.True(t, ok)
	assert.Equal(t, "b", string(payload))
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	s, err := NewSession(Descriptor{SSRC: 1, RemoteAddr: "127.0.0.1", TxPort: 9}, testSessionOptions(nil))
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.ErrorIs(t, s.SendWithTimestamp([]byte("x"), 0), ErrSessionClosed)
}

func TestSession_WithRTCP(t *testing.T) {
	opts := testSessionOptions(nil)
	opts.DisableRTCP = false

	s, err := NewSession(Descriptor{SSRC: 1, RemoteAddr: "127.0.0.1", TxPort: 9}, opts)
	require.NoError(t, err)
	require.NotNil(t, s.rtcpConn)
	assert.Equal(t, 10, s.remoteRTCP.Port)
	assert.NoError(t, s.Close())
}
