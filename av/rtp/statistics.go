package rtp

import (
	"sync"
	"sync/atomic"
	"time"
)

// maxDropout is the largest forward sequence gap still treated as loss
// rather than a source restart (RFC 3550 A.1).
const maxDropout = 3000

// Statistics is a point-in-time view of one session. Fields are read
// independently, so a snapshot taken while packets flow is eventually
// consistent rather than atomic across fields.
type Statistics struct {
	RoundTrip      time.Duration
	CumulativeLoss int64
	RemoteLoss     int64   // cumulative loss the peer reports for our stream
	RecvBandwidth  float64 // bits per second
	SendBandwidth  float64 // bits per second
	Jitter         time.Duration
	MaxJitter      time.Duration
	JitterBuffer   time.Duration

	PacketsSent     uint64
	OctetsSent      uint64
	PacketsReceived uint64
	OctetsReceived  uint64
	SendErrors      uint64
	BadPackets      uint64
	Discarded       uint64
	TimeJumps       uint64
	PayloadHoles    uint64
}

// receptionStats tracks sequence-number based loss for the latched remote
// source. It is written by the session reader and read by RTCP and stats.
type receptionStats struct {
	mu sync.Mutex

	haveSSRC   bool
	remoteSSRC uint32

	haveSeq bool
	maxSeq  uint16
	cycles  uint32

	received uint64
	lost     int64

	reportReceived uint64
	reportLost     int64

	lastSR        uint32
	lastSRArrival time.Time
}

// latch records the remote SSRC. It returns true when the source changed.
func (r *receptionStats) latch(ssrc uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.haveSSRC {
		r.haveSSRC = true
		r.remoteSSRC = ssrc
		return false
	}
	if r.remoteSSRC == ssrc {
		return false
	}
	r.remoteSSRC = ssrc
	r.haveSeq = false
	return true
}

// update accounts one received sequence number.
func (r *receptionStats) update(seq uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.received++
	if !r.haveSeq {
		r.haveSeq = true
		r.maxSeq = seq
		return
	}

	delta := int32(int16(seq - r.maxSeq))
	switch {
	case delta > 0 && delta < maxDropout:
		if seq < r.maxSeq {
			r.cycles += 1 << 16
		}
		r.lost += int64(delta - 1)
		r.maxSeq = seq
	case delta == 0:
		r.received--
	case delta < 0 && delta > -maxDropout:
		if r.lost > 0 {
			r.lost--
		}
	default:
		r.maxSeq = seq
	}
}

// rebase forgets the sequence history so the next packet starts a new
// baseline without counting the discontinuity as loss.
func (r *receptionStats) rebase() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.haveSeq = false
}

func (r *receptionStats) cumulativeLoss() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lost
}

func (r *receptionStats) noteSenderReport(ntp uint64, arrival time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSR = uint32(ntp >> 16)
	r.lastSRArrival = arrival
}

// bandwidthMeter estimates a bit rate over windows of at least one second.
type bandwidthMeter struct {
	bytes atomic.Uint64

	mu        sync.Mutex
	lastBytes uint64
	lastTime  time.Time
	bps       float64
}

func (m *bandwidthMeter) add(n int) {
	m.bytes.Add(uint64(n))
}

func (m *bandwidthMeter) rate(now time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := m.bytes.Load()
	if m.lastTime.IsZero() {
		m.lastTime = now
		m.lastBytes = total
		return 0
	}
	if elapsed := now.Sub(m.lastTime); elapsed >= time.Second {
		m.bps = float64(total-m.lastBytes) * 8 / elapsed.Seconds()
		m.lastBytes = total
		m.lastTime = now
	}
	return m.bps
}
