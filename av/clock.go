package av

import (
	"fmt"
	"time"

	"github.com/opd-ai/trx/av/rtp"
)

// ToRTPTicks converts a sample count at rate Hz to 8 kHz RTP ticks.
// The product is computed in 64 bits and truncated by integer division.
// rate must be non-zero.
func ToRTPTicks(samples, rate uint32) uint32 {
	return uint32(uint64(samples) * rtp.ClockRate / uint64(rate))
}

// FrameClock holds the per-pipeline constants derived once from the audio
// format. They never change while a pipeline runs.
type FrameClock struct {
	Rate         uint32
	FrameSamples uint32
	Channels     uint32

	// TSPerFrame is how far the RTP timestamp advances per transmitted frame.
	TSPerFrame uint32
	// BytesPerFrame is the encoded size budget for one frame at the
	// configured bitrate. It is a hint for the encoder, not a limit.
	BytesPerFrame int
	// SamplesPerBlock is the interleaved sample count of one frame.
	SamplesPerBlock int
	// FrameDuration is the playout time of one frame.
	FrameDuration time.Duration
}

// NewFrameClock derives the clock constants for a stream of frame samples
// per channel at rate Hz, with the given channel count and bitrate in kbps.
func NewFrameClock(rate, frame, channels, kbps uint32) (FrameClock, error) {
	if rate == 0 || frame == 0 || channels == 0 {
		return FrameClock{}, fmt.Errorf("%w: rate=%d frame=%d channels=%d", ErrInvalidClock, rate, frame, channels)
	}

	return FrameClock{
		Rate:            rate,
		FrameSamples:    frame,
		Channels:        channels,
		TSPerFrame:      ToRTPTicks(frame, rate),
		BytesPerFrame:   int(uint64(kbps) * 1024 * uint64(frame) / uint64(rate) / 8),
		SamplesPerBlock: int(frame * channels),
		FrameDuration:   time.Duration(uint64(frame) * uint64(time.Second) / uint64(rate)),
	}, nil
}
