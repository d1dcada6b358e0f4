package audio

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Format describes the PCM stream a codec or device handles.
type Format struct {
	Rate         uint32 // samples per second per channel
	Channels     uint32 // 1 or 2
	FrameSamples uint32 // samples per channel in one codec frame
	BitRate      uint32 // target bitrate in kbps, a hint for encoders
}

// FrameDuration returns the playout time of one frame.
func (f Format) FrameDuration() time.Duration {
	if f.Rate == 0 {
		return 0
	}
	return time.Duration(uint64(f.FrameSamples) * uint64(time.Second) / uint64(f.Rate))
}

// FrameBytes returns the encoded size budget of one frame: BitRate kbps,
// counted in units of 1024 bits per second, over the frame duration.
func (f Format) FrameBytes() int {
	if f.Rate == 0 {
		return 0
	}
	return int(uint64(f.BitRate) * 1024 * uint64(f.FrameSamples) / uint64(f.Rate) / 8)
}

// Validate checks the rate, channel count and frame size.
func (f Format) Validate() error {
	if f.Rate == 0 || f.Rate > 192000 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, f.Rate)
	}
	if f.Channels < 1 || f.Channels > 2 {
		return fmt.Errorf("%w: %d channels (must be 1 or 2)", ErrInvalidFormat, f.Channels)
	}
	return ValidateFrameSize(f.FrameSamples, f.Rate)
}

// validFrameHalfMs lists the legal Opus frame durations in units of
// 0.5 ms: 2.5, 5, 10, 20, 40 and 60 ms.
var validFrameHalfMs = []uint64{5, 10, 20, 40, 80, 120}

// ValidateFrameSize checks that frame samples per channel at rate make a
// legal codec frame duration: 2.5, 5, 10, 20, 40 or 60 ms.
func ValidateFrameSize(frame, rate uint32) error {
	if rate == 0 || frame == 0 {
		return fmt.Errorf("%w: %d samples at %d Hz", ErrInvalidFrameSize, frame, rate)
	}

	scaled := uint64(frame) * 2000
	if scaled%uint64(rate) == 0 {
		halfMs := scaled / uint64(rate)
		for _, d := range validFrameHalfMs {
			if halfMs == d {
				return nil
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":    "ValidateFrameSize",
		"frame_size":  frame,
		"sample_rate": rate,
	}).Debug("Frame size validation failed")

	return fmt.Errorf("%w: %d samples at %d Hz (%.2f ms), must be 2.5, 5, 10, 20, 40, or 60 ms",
		ErrInvalidFrameSize, frame, rate, float64(frame)*1000/float64(rate))
}
