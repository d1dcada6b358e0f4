package audio

import (
	"fmt"
	"math"

	"github.com/oov/audio/resampler"
	"github.com/sirupsen/logrus"
)

// resampleQuality is the speex resampler quality, 0 (fast) to 10 (best).
const resampleQuality = 10

// converter maps interleaved PCM between channel layouts and sample rates.
// It keeps resampler state between calls, so one converter serves one
// continuous stream.
type converter struct {
	inRate, outRate         int
	inChannels, outChannels int

	resampler *resampler.Resampler
	planar    [][]float32
	resampled [][]float32
	out       []int16
}

func newConverter(inRate, inChannels, outRate, outChannels int) (*converter, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("%w: rates %d -> %d", ErrInvalidFormat, inRate, outRate)
	}
	if inChannels < 1 || inChannels > 2 || outChannels < 1 || outChannels > 2 {
		return nil, fmt.Errorf("%w: channels %d -> %d", ErrInvalidFormat, inChannels, outChannels)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "newConverter",
		"in_rate":      inRate,
		"out_rate":     outRate,
		"in_channels":  inChannels,
		"out_channels": outChannels,
	}).Debug("Creating format converter")

	c := &converter{
		inRate:      inRate,
		outRate:     outRate,
		inChannels:  inChannels,
		outChannels: outChannels,
		planar:      make([][]float32, outChannels),
		resampled:   make([][]float32, outChannels),
	}
	if inRate != outRate {
		c.resampler = resampler.New(outChannels, inRate, outRate, resampleQuality)
	}
	return c, nil
}

// identity reports whether convert would return its input unchanged.
func (c *converter) identity() bool {
	return c.inRate == c.outRate && c.inChannels == c.outChannels
}

// convert returns in converted to the output format. The result is reused
// by the next call.
func (c *converter) convert(in []int16) []int16 {
	if c.identity() {
		return in
	}

	frames := len(in) / c.inChannels
	for ch := range c.planar {
		c.planar[ch] = grow(c.planar[ch], frames)
	}

	const scale = float32(math.MaxInt16)
	for i := 0; i < frames; i++ {
		switch {
		case c.inChannels == c.outChannels:
			for ch := 0; ch < c.outChannels; ch++ {
				c.planar[ch][i] = float32(in[i*c.inChannels+ch]) / scale
			}
		case c.inChannels == 1:
			v := float32(in[i]) / scale
			c.planar[0][i] = v
			c.planar[1][i] = v
		default:
			c.planar[0][i] = (float32(in[2*i]) + float32(in[2*i+1])) / 2 / scale
		}
	}

	source := c.planar
	outFrames := frames
	if c.resampler != nil {
		capacity := frames*c.outRate/c.inRate + 64
		written := 0
		for ch := range c.resampled {
			c.resampled[ch] = grow(c.resampled[ch], capacity)
			_, written = c.resampler.ProcessFloat32(ch, c.planar[ch], c.resampled[ch])
		}
		source = c.resampled
		outFrames = written
	}

	c.out = growInt16(c.out, outFrames*c.outChannels)
	for i := 0; i < outFrames; i++ {
		for ch := 0; ch < c.outChannels; ch++ {
			c.out[i*c.outChannels+ch] = toInt16(source[ch][i])
		}
	}
	return c.out
}

func grow(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}

func growInt16(buf []int16, n int) []int16 {
	if cap(buf) < n {
		return make([]int16, n)
	}
	return buf[:n]
}

func toInt16(v float32) int16 {
	s := v * math.MaxInt16
	if s > math.MaxInt16 {
		return math.MaxInt16
	}
	if s < math.MinInt16 {
		return math.MinInt16
	}
	return int16(s)
}
