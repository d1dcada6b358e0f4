package audio

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// MaxGain is the largest linear gain a GainCapture accepts (about +12 dB).
const MaxGain = 4.0

// GainCapture scales the samples of a capture device by a linear gain,
// clipping at the int16 range.
//
// Gain values: 0.0 = silence, 1.0 = no change, >1.0 = amplification
type GainCapture struct {
	CaptureDevice
	gain    float64
	clipped uint64
}

// WithGain wraps dev so every block it captures is scaled by gain. A gain
// of exactly 1.0 returns dev unchanged.
func WithGain(dev CaptureDevice, gain float64) (CaptureDevice, error) {
	if gain < 0 || gain > MaxGain || math.IsNaN(gain) {
		return nil, fmt.Errorf("%w: gain %.2f outside [0, %.1f]", ErrInvalidFormat, gain, MaxGain)
	}
	if gain == 1.0 {
		return dev, nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "WithGain",
		"gain":     gain,
	}).Info("Applying capture gain")

	return &GainCapture{CaptureDevice: dev, gain: gain}, nil
}

// Read captures a block and applies the gain in place.
func (g *GainCapture) Read(pcm []int16) error {
	if err := g.CaptureDevice.Read(pcm); err != nil {
		return err
	}

	clipped := 0
	for i, sample := range pcm {
		v := float64(sample) * g.gain
		switch {
		case v > math.MaxInt16:
			pcm[i] = math.MaxInt16
			clipped++
		case v < math.MinInt16:
			pcm[i] = math.MinInt16
			clipped++
		default:
			pcm[i] = int16(v)
		}
	}

	if clipped > 0 {
		g.clipped += uint64(clipped)
		logrus.WithFields(logrus.Fields{
			"function":      "GainCapture.Read",
			"clipped_count": clipped,
			"total_samples": len(pcm),
			"gain":          g.gain,
		}).Trace("Audio clipping detected during gain processing")
	}
	return nil
}

// Clipped returns the number of samples clipped so far.
func (g *GainCapture) Clipped() uint64 {
	return g.clipped
}
