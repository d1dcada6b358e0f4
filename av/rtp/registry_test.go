package rtp

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeUDPPort(t *testing.T) uint16 {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())
	return uint16(port)
}

func TestNewRegistry_DescriptorOrder(t *testing.T) {
	descs := []Descriptor{
		{SSRC: 3, RemoteAddr: "127.0.0.1", TxPort: 7003},
		{SSRC: 1, RemoteAddr: "127.0.0.1", TxPort: 7001},
		{SSRC: 2, RemoteAddr: "127.0.0.1", TxPort: 7002},
	}

	r, err := NewRegistry(descs, testSessionOptions(nil))
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, 3, r.Len())
	for i, s := range r.Sessions() {
		assert.Equal(t, descs[i], s.Descriptor())
	}

	reports := r.Snapshot()
	require.Len(t, reports, 3)
	for i, report := range reports {
		assert.Equal(t, descs[i].String(), report.Key)
	}
}

func TestNewRegistry_Empty(t *testing.T) {
	r, err := NewRegistry(nil, testSessionOptions(nil))
	assert.ErrorIs(t, err, ErrNoDescriptors)
	assert.Nil(t, r)
}

func TestNewRegistry_AllOrNothing(t *testing.T) {
	port := freeUDPPort(t)
	descs := []Descriptor{
		{SSRC: 1, RxPort: port, RemoteAddr: "127.0.0.1", TxPort: 7001},
		{SSRC: 2, RemoteAddr: "127.0.0.1", TxPort: 0},
	}

	r, err := NewRegistry(descs, testSessionOptions(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionSetup)
	assert.Nil(t, r)

	// The first session's socket was released.
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(port)})
	require.NoError(t, err)
	conn.Close()
}

func TestNewRegistry_RTCPPortConflict(t *testing.T) {
	descs := []Descriptor{
		{SSRC: 1001, RxPort: 5000, RemoteAddr: "127.0.0.1", TxPort: 6000},
		{SSRC: 1002, RxPort: 5001, RemoteAddr: "127.0.0.1", TxPort: 6001},
	}
	opts := testSessionOptions(nil)
	opts.DisableRTCP = false

	r, err := NewRegistry(descs, opts)
	assert.ErrorIs(t, err, ErrRTCPPortConflict)
	assert.Nil(t, r)
}

func TestRegistry_SessionsIsCopy(t *testing.T) {
	r, err := NewRegistry([]Descriptor{{SSRC: 1, RemoteAddr: "127.0.0.1", TxPort: 7001}}, testSessionOptions(nil))
	require.NoError(t, err)
	defer r.Close()

	sessions := r.Sessions()
	sessions[0] = nil
	assert.NotNil(t, r.Sessions()[0])
}

func TestRegistry_CloseIsIdempotent(t *testing.T) {
	r, err := NewRegistry([]Descriptor{
		{SSRC: 1, RemoteAddr: "127.0.0.1", TxPort: 7001},
		{SSRC: 2, RemoteAddr: "127.0.0.1", TxPort: 7002},
	}, testSessionOptions(nil))
	require.NoError(t, err)

	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())
	for _, s := range r.Sessions() {
		assert.ErrorIs(t, s.SendWithTimestamp([]byte("x"), 0), ErrSessionClosed)
	}
}

func TestRegistry_TimeJumpHandlerResyncs(t *testing.T) {
	opts := testSessionOptions(newFakeClock())
	r, err := NewRegistry([]Descriptor{{SSRC: 1, RemoteAddr: "127.0.0.1", TxPort: 7001}}, opts)
	require.NoError(t, err)
	defer r.Close()

	s := r.Sessions()[0]
	require.NoError(t, s.handlePacket(marshalRTP(t, 77, 1, 0, 0, []byte("a")), testEpoch))
	require.NoError(t, s.handlePacket(marshalRTP(t, 77, 900, 2_000_000, 0, []byte("b")), testEpoch))

	stats := s.Statistics()
	assert.Equal(t, uint64(1), stats.TimeJumps)
	assert.Equal(t, int64(0), stats.CumulativeLoss)
	assert.Equal(t, "1@0#127.0.0.1:7001", r.Snapshot()[0].Key)
}
