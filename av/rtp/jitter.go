package rtp

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ClockRate is the RTP reference clock for payload type 0. Timestamps on
// the wire always count 8 kHz ticks regardless of the media sample rate.
const ClockRate = 8000

// TicksToDuration converts 8 kHz RTP ticks to wall-clock time.
func TicksToDuration(ticks float64) time.Duration {
	return time.Duration(ticks * float64(time.Second) / ClockRate)
}

// DurationToTicks converts wall-clock time to 8 kHz RTP ticks.
func DurationToTicks(d time.Duration) uint32 {
	return uint32(int64(d) * ClockRate / int64(time.Second))
}

// TimeProvider abstracts time operations to enable deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider implements TimeProvider using the system clock.
type DefaultTimeProvider struct{}

// Now returns the current system time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// JitterConfig sizes a JitterBuffer.
type JitterConfig struct {
	// Compensation is the playout delay applied when the buffer anchors.
	Compensation time.Duration
	// TimeJumpLimit is how far a packet may stray from its expected
	// position before it is treated as a remote clock discontinuity.
	TimeJumpLimit time.Duration
	// Adaptive raises the compensation to twice the measured interarrival
	// jitter when that exceeds the configured value.
	Adaptive bool
	// Capacity bounds the number of queued packets.
	Capacity int
}

type bufferedPacket struct {
	timestamp uint32
	payload   []byte
}

// JitterBuffer reorders packets by RTP timestamp and releases them against
// a consumer-supplied timestamp cursor.
//
// The buffer anchors on the first packet it sees: that packet is scheduled
// Compensation after the consumer's position at arrival time, and every
// later packet keeps the same offset. A packet arriving further than
// TimeJumpLimit from its expected position fires the time-jump callback
// once and re-anchors the buffer on that packet.
type JitterBuffer struct {
	mu sync.Mutex

	baseTicks uint32
	compTicks uint32
	jumpTicks uint32
	adaptive  bool
	capacity  int

	packets  []bufferedPacket
	anchored bool
	offset   uint32
	consumer uint32

	start       time.Time
	haveTransit bool
	lastTransit int64
	jitter      float64
	maxJitter   float64

	discarded  uint64
	onTimeJump func()
}

// NewJitterBuffer creates a jitter buffer. The start time is the reference
// for converting arrival times to RTP ticks.
func NewJitterBuffer(config JitterConfig, start time.Time) *JitterBuffer {
	capacity := config.Capacity
	if capacity <= 0 {
		capacity = 256
	}

	logrus.WithFields(logrus.Fields{
		"function":        "NewJitterBuffer",
		"compensation":    config.Compensation.String(),
		"time_jump_limit": config.TimeJumpLimit.String(),
		"adaptive":        config.Adaptive,
		"capacity":        capacity,
	}).Debug("Creating jitter buffer")

	base := DurationToTicks(config.Compensation)
	return &JitterBuffer{
		baseTicks: base,
		compTicks: base,
		jumpTicks: DurationToTicks(config.TimeJumpLimit),
		adaptive:  config.Adaptive,
		capacity:  capacity,
		start:     start,
	}
}

// OnTimeJump registers the callback fired when a remote clock
// discontinuity is detected. The callback runs without the buffer lock held.
func (jb *JitterBuffer) OnTimeJump(fn func()) {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	jb.onTimeJump = fn
}

// Add queues a packet received at the given time. The payload is retained
// and must not be modified by the caller afterwards.
func (jb *JitterBuffer) Add(timestamp uint32, payload []byte, arrival time.Time) {
	jb.mu.Lock()

	if jb.anchored && jb.isTimeJump(timestamp) {
		cb := jb.onTimeJump
		logrus.WithFields(logrus.Fields{
			"function":  "JitterBuffer.Add",
			"timestamp": timestamp,
			"expected":  jb.consumer + jb.offset + jb.compTicks,
		}).Debug("Remote timestamp jump detected")

		jb.resyncLocked()
		jb.mu.Unlock()
		if cb != nil {
			cb()
		}
		jb.mu.Lock()
	}

	jb.updateJitter(timestamp, arrival)

	if !jb.anchored {
		jb.anchor(timestamp)
	}

	if serialLess(timestamp, jb.consumer+jb.offset) {
		jb.discarded++
		jb.mu.Unlock()
		return
	}

	jb.insert(timestamp, payload)
	jb.mu.Unlock()
}

// Observe updates the interarrival jitter estimate without queueing the
// packet, for streams nobody plays out.
func (jb *JitterBuffer) Observe(timestamp uint32, arrival time.Time) {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	jb.updateJitter(timestamp, arrival)
}

// Get returns the payload scheduled at the consumer timestamp ts, if any.
// Packets older than the newest eligible one are discarded. Get never blocks.
func (jb *JitterBuffer) Get(ts uint32) ([]byte, bool) {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	jb.consumer = ts
	if !jb.anchored || len(jb.packets) == 0 {
		return nil, false
	}

	target := ts + jb.offset
	for len(jb.packets) > 1 && !serialLess(target, jb.packets[1].timestamp) {
		jb.packets = jb.packets[1:]
		jb.discarded++
	}

	head := jb.packets[0]
	if serialLess(target, head.timestamp) {
		return nil, false
	}
	jb.packets = jb.packets[1:]
	return head.payload, true
}

// Resync drops every queued packet and forgets the anchor, so the next
// packet re-establishes the timeline.
func (jb *JitterBuffer) Resync() {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	jb.resyncLocked()
}

// Jitter returns the current and peak interarrival jitter in RTP ticks.
func (jb *JitterBuffer) Jitter() (current, peak float64) {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	return jb.jitter, jb.maxJitter
}

// Compensation returns the playout delay currently applied, in RTP ticks.
func (jb *JitterBuffer) Compensation() uint32 {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	return jb.compTicks
}

// Discarded returns the number of packets dropped as late, duplicate or
// over capacity.
func (jb *JitterBuffer) Discarded() uint64 {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	return jb.discarded
}

// Len returns the number of queued packets.
func (jb *JitterBuffer) Len() int {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	return len(jb.packets)
}

func (jb *JitterBuffer) isTimeJump(timestamp uint32) bool {
	deviation := int64(int32(timestamp-(jb.consumer+jb.offset))) - int64(jb.compTicks)
	if deviation < 0 {
		deviation = -deviation
	}
	return deviation > int64(jb.jumpTicks)
}

func (jb *JitterBuffer) anchor(timestamp uint32) {
	comp := jb.baseTicks
	if jb.adaptive && uint32(2*jb.jitter) > comp {
		comp = uint32(2 * jb.jitter)
	}
	jb.compTicks = comp
	jb.offset = timestamp - jb.consumer - comp
	jb.anchored = true

	logrus.WithFields(logrus.Fields{
		"function":     "JitterBuffer.anchor",
		"timestamp":    timestamp,
		"consumer":     jb.consumer,
		"compensation": comp,
	}).Debug("Jitter buffer anchored")
}

func (jb *JitterBuffer) resyncLocked() {
	jb.packets = nil
	jb.anchored = false
	jb.haveTransit = false
}

// updateJitter maintains the RFC 3550 interarrival jitter estimate.
func (jb *JitterBuffer) updateJitter(timestamp uint32, arrival time.Time) {
	arrivalTicks := int64(arrival.Sub(jb.start)) * ClockRate / int64(time.Second)
	transit := arrivalTicks - int64(timestamp)
	if jb.haveTransit {
		d := transit - jb.lastTransit
		if d < 0 {
			d = -d
		}
		jb.jitter += (float64(d) - jb.jitter) / 16
		if jb.jitter > jb.maxJitter {
			jb.maxJitter = jb.jitter
		}
	}
	jb.lastTransit = transit
	jb.haveTransit = true
}

func (jb *JitterBuffer) insert(timestamp uint32, payload []byte) {
	i := sort.Search(len(jb.packets), func(i int) bool {
		return !serialLess(jb.packets[i].timestamp, timestamp)
	})
	if i < len(jb.packets) && jb.packets[i].timestamp == timestamp {
		jb.discarded++
		return
	}

	jb.packets = append(jb.packets, bufferedPacket{})
	copy(jb.packets[i+1:], jb.packets[i:])
	jb.packets[i] = bufferedPacket{timestamp: timestamp, payload: payload}

	if len(jb.packets) > jb.capacity {
		jb.packets = jb.packets[1:]
		jb.discarded++
	}
}

// serialLess reports whether a precedes b in RTP modular timestamp order.
func serialLess(a, b uint32) bool {
	return int32(a-b) < 0
}
