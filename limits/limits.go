package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxDatagram is the largest UDP payload carried over IPv4.
	MaxDatagram = 65507

	// RTPHeaderSize is the fixed RTP header without CSRCs or extensions.
	RTPHeaderSize = 12

	// MaxRTPPayload is the largest encoded frame that fits a single RTP packet.
	MaxRTPPayload = MaxDatagram - RTPHeaderSize

	// MaxRTCPPacket bounds compound RTCP reports to one Ethernet MTU.
	MaxRTCPPacket = 1500

	// MaxFrameMillis is the longest frame any supported codec produces
	// (Opus allows up to 120 ms per packet).
	MaxFrameMillis = 120
)

var (
	// ErrPayloadEmpty indicates an empty payload was provided.
	ErrPayloadEmpty = errors.New("empty payload")

	// ErrPayloadTooLarge indicates a payload exceeds the maximum size.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// ValidateSize validates data against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateSize(data []byte, maxSize int) error {
	if len(data) == 0 {
		return ErrPayloadEmpty
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrPayloadTooLarge, len(data), maxSize)
	}
	return nil
}

// ValidatePayload validates an encoded frame against MaxRTPPayload.
func ValidatePayload(payload []byte) error {
	return ValidateSize(payload, MaxRTPPayload)
}

// MaxFrameSamples returns the number of interleaved samples needed to hold
// the longest codec frame at the given rate and channel count.
func MaxFrameSamples(rate, channels uint32) int {
	return int(uint64(rate) * MaxFrameMillis / 1000 * uint64(channels))
}
